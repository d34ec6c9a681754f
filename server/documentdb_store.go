package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const docdbCABundlePath = "/etc/ssl/certs/global-bundle.pem"

// DocumentDBStore implements the TableStore interface using AWS DocumentDB
type DocumentDBStore struct {
	client *mongo.Client
	items  *mongo.Collection
}

// NewDocumentDBStore creates a new DocumentDB table store. When a password
// secret ARN is set, the password is fetched from Secrets Manager and the
// connection string must carry the username only.
func NewDocumentDBStore(region, connectionString, passwordSecretArn, databaseName string) (*DocumentDBStore, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("DocumentDB connection string is required")
	}

	clientOptions := options.Client().ApplyURI(connectionString)

	if passwordSecretArn != "" {
		password, err := getPasswordFromSecretsManager(region, passwordSecretArn)
		if err != nil {
			return nil, fmt.Errorf("failed to get password from Secrets Manager: %w", err)
		}

		clientOptions.SetAuth(options.Credential{
			AuthMechanism: "SCRAM-SHA-1",
			AuthSource:    "admin",
			Username:      usernameFromConnectionString(connectionString),
			Password:      password,
		})
	}

	if strings.Contains(connectionString, "tls=true") || strings.Contains(connectionString, "ssl=true") {
		tlsConfig, err := createTLSConfig()
		if err != nil {
			return nil, err
		}
		clientOptions.SetTLSConfig(tlsConfig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DocumentDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping DocumentDB: %w", err)
	}

	return &DocumentDBStore{
		client: client,
		items:  client.Database(databaseName).Collection("items"),
	}, nil
}

// EnsureTable creates the unique index on id that backs conditional creates
func (s *DocumentDBStore) EnsureTable(ctx context.Context) error {
	_, err := s.items.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create id index: %w", err)
	}

	return nil
}

// GetItem retrieves an item by id
func (s *DocumentDBStore) GetItem(ctx context.Context, id string) (Item, error) {
	var item Item
	err := s.items.FindOne(ctx, bson.M{"id": id},
		options.FindOne().SetProjection(bson.M{"_id": 0})).Decode(&item)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return item, nil
}

// PutItem unconditionally writes the item keyed by its id
func (s *DocumentDBStore) PutItem(ctx context.Context, item Item) error {
	_, err := s.items.ReplaceOne(ctx, bson.M{"id": item.ID()}, item,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}

	return nil
}

// CreateItem writes the item only if its id is not already taken
func (s *DocumentDBStore) CreateItem(ctx context.Context, item Item) error {
	_, err := s.items.InsertOne(ctx, item)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert item: %w", err)
	}

	return nil
}

// DeleteItem removes the document for id; deleting a missing id is a no-op
func (s *DocumentDBStore) DeleteItem(ctx context.Context, id string) error {
	_, err := s.items.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	return nil
}

// Close disconnects the underlying client
func (s *DocumentDBStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// getPasswordFromSecretsManager retrieves the password from AWS Secrets Manager
func getPasswordFromSecretsManager(region, secretArn string) (string, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create AWS session: %w", err)
	}

	svc := secretsmanager.New(sess)

	result, err := svc.GetSecretValue(&secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretArn),
	})
	if err != nil {
		return "", err
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("secret value is nil")
	}

	return *result.SecretString, nil
}

// usernameFromConnectionString extracts the username from a
// mongodb://user@host style connection string.
func usernameFromConnectionString(connectionString string) string {
	rest := connectionString
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.Index(rest, "@"); i >= 0 {
		if user := strings.SplitN(rest[:i], ":", 2)[0]; user != "" {
			return user
		}
	}
	return "items"
}

// createTLSConfig builds the TLS configuration for DocumentDB using the
// regional CA bundle. SKIP_TLS_VERIFY=true disables verification for
// local testing only.
func createTLSConfig() (*tls.Config, error) {
	if os.Getenv("SKIP_TLS_VERIFY") == "true" {
		log.Println("WARNING: Skipping TLS certificate verification - NOT for production use!")
		return &tls.Config{InsecureSkipVerify: true}, nil
	}

	caCert, err := os.ReadFile(docdbCABundlePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate from %s: %w", docdbCABundlePath, err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{RootCAs: caCertPool}, nil
}
