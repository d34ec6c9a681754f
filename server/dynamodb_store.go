package server

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
)

// Provisioned throughput used when the table is created on first use.
const (
	tableReadCapacityUnits  = 10
	tableWriteCapacityUnits = 10
)

// DynamoDBStore implements the TableStore interface using AWS DynamoDB
type DynamoDBStore struct {
	client    *dynamodb.DynamoDB
	tableName string
}

// NewDynamoDBStore creates a new DynamoDB table store. An endpoint may be
// set to point at a local DynamoDB stand-in; empty uses the AWS default.
func NewDynamoDBStore(region, endpoint, tableName string) (*DynamoDBStore, error) {
	if tableName == "" {
		return nil, fmt.Errorf("DynamoDB table name is required")
	}

	cfg := &aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}

	return &DynamoDBStore{
		client:    dynamodb.New(sess),
		tableName: tableName,
	}, nil
}

// EnsureTable verifies the items table exists, creating it with a single
// string hash key "id" if it does not, and waits until it is ready.
// Errors other than "table not found" during the check are returned as-is
// so that startup can abort.
func (s *DynamoDBStore) EnsureTable(ctx context.Context) error {
	_, err := s.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err == nil {
		return nil
	}

	aerr, ok := err.(awserr.Error)
	if !ok || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return fmt.Errorf("failed to describe table %s: %w", s.tableName, err)
	}

	_, err = s.client.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("id"),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("id"),
				KeyType:       aws.String("HASH"),
			},
		},
		ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(tableReadCapacityUnits),
			WriteCapacityUnits: aws.Int64(tableWriteCapacityUnits),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.tableName, err)
	}

	if err := s.client.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	}); err != nil {
		return fmt.Errorf("failed to wait for table %s: %w", s.tableName, err)
	}

	return nil
}

// GetItem retrieves an item by id
func (s *DynamoDBStore) GetItem(ctx context.Context, id string) (Item, error) {
	result, err := s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {
				S: aws.String(id),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	if len(result.Item) == 0 {
		return nil, ErrNotFound
	}

	var item Item
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return item, nil
}

// PutItem unconditionally writes the item keyed by its id
func (s *DynamoDBStore) PutItem(ctx context.Context, item Item) error {
	av, err := dynamodbattribute.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}

	return nil
}

// CreateItem writes the item only if its id is not already taken. The
// conditional write makes concurrent creates race-free: exactly one wins.
func (s *DynamoDBStore) CreateItem(ctx context.Context, item Item) error {
	av, err := dynamodbattribute.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to put item: %w", err)
	}

	return nil
}

// DeleteItem removes the row for id; deleting a missing id is a no-op
func (s *DynamoDBStore) DeleteItem(ctx context.Context, id string) error {
	_, err := s.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"id": {
				S: aws.String(id),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	return nil
}
