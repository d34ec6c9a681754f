package server

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"gopkg.in/yaml.v2"
)

const ssmPrefix = "ssm://"

// Config represents the server configuration
type Config struct {
	Server struct {
		HTTPPort int `yaml:"http_port" json:"http_port"`
	} `yaml:"server" json:"server"`
	// TableStore selects the table backend: "dynamodb" or "documentdb".
	TableStore string `yaml:"table_store" json:"table_store"`
	AWS        struct {
		Region   string `yaml:"region" json:"region"`
		DynamoDB struct {
			TableName string `yaml:"table_name" json:"table_name"`
			Endpoint  string `yaml:"endpoint" json:"endpoint"`
		} `yaml:"dynamodb" json:"dynamodb"`
		DocumentDB struct {
			ConnectionString  string `yaml:"connection_string" json:"connection_string"`
			PasswordSecretArn string `yaml:"password_secret_arn" json:"password_secret_arn"`
			DatabaseName      string `yaml:"database_name" json:"database_name"`
		} `yaml:"documentdb" json:"documentdb"`
		S3 struct {
			BucketName string `yaml:"bucket_name" json:"bucket_name"`
			Endpoint   string `yaml:"endpoint" json:"endpoint"`
		} `yaml:"s3" json:"s3"`
		ElastiCache struct {
			Address string `yaml:"address" json:"address"`
			TTL     int    `yaml:"ttl" json:"ttl"`
		} `yaml:"elasticache" json:"elasticache"`
	} `yaml:"aws" json:"aws"`
}

// LoadConfig loads the configuration from a YAML file, or from AWS
// Parameter Store when the path has an ssm:// prefix. Environment
// overrides are applied on top in either case.
func LoadConfig(path string) (*Config, error) {
	var config *Config
	var err error

	if strings.HasPrefix(path, ssmPrefix) {
		config, err = loadConfigFromParameterStore(strings.TrimPrefix(path, ssmPrefix))
	} else {
		config, err = loadConfigFromFile(path)
	}
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(config)
	applyDefaults(config)

	return config, nil
}

// loadConfigFromFile loads the configuration from a YAML file
func loadConfigFromFile(path string) (*Config, error) {
	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse the YAML
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// loadConfigFromParameterStore loads the configuration from AWS Parameter Store
func loadConfigFromParameterStore(paramPath string) (*Config, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	ssmClient := ssm.New(sess)

	param, err := ssmClient.GetParameter(&ssm.GetParameterInput{
		Name:           aws.String(paramPath),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get parameter from Parameter Store: %w", err)
	}

	// Parameter Store configs are stored as JSON
	var config Config
	if err := json.Unmarshal([]byte(*param.Parameter.Value), &config); err != nil {
		return nil, fmt.Errorf("failed to parse parameter value as JSON: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides applies the environment overrides recognized by the
// service: endpoint overrides for local stacks, region, and store names.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("DYNAMODB_ENDPOINT"); v != "" {
		config.AWS.DynamoDB.Endpoint = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		config.AWS.S3.Endpoint = v
	}
	if v := os.Getenv("AWS_DEFAULT_REGION"); v != "" {
		config.AWS.Region = v
	}
	if v := os.Getenv("ITEMS_TABLE"); v != "" {
		config.AWS.DynamoDB.TableName = v
	}
	if v := os.Getenv("ITEMS_BUCKET"); v != "" {
		config.AWS.S3.BucketName = v
	}
}

// applyDefaults sets default values for the configuration
func applyDefaults(config *Config) {
	if config.Server.HTTPPort == 0 {
		config.Server.HTTPPort = 8000
	}
	if config.TableStore == "" {
		config.TableStore = "dynamodb"
	}
	if config.AWS.Region == "" {
		config.AWS.Region = "us-east-1"
	}
	if config.AWS.DynamoDB.TableName == "" {
		config.AWS.DynamoDB.TableName = "ItemsTable"
	}
	if config.AWS.DocumentDB.DatabaseName == "" {
		config.AWS.DocumentDB.DatabaseName = "items"
	}
	if config.AWS.S3.BucketName == "" {
		config.AWS.S3.BucketName = "my-bucket"
	}
	if config.AWS.ElastiCache.TTL == 0 {
		config.AWS.ElastiCache.TTL = 3600
	}
}
