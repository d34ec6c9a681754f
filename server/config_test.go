package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, "")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8000, config.Server.HTTPPort)
	assert.Equal(t, "dynamodb", config.TableStore)
	assert.Equal(t, "us-east-1", config.AWS.Region)
	assert.Equal(t, "ItemsTable", config.AWS.DynamoDB.TableName)
	assert.Equal(t, "my-bucket", config.AWS.S3.BucketName)
	assert.Equal(t, 3600, config.AWS.ElastiCache.TTL)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  http_port: 9000
table_store: documentdb
aws:
  region: eu-west-1
  dynamodb:
    table_name: other-items
  documentdb:
    connection_string: mongodb://items@docdb:27017/
    database_name: itemsdb
  s3:
    bucket_name: other-bucket
  elasticache:
    address: cache:6379
    ttl: 60
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.HTTPPort)
	assert.Equal(t, "documentdb", config.TableStore)
	assert.Equal(t, "eu-west-1", config.AWS.Region)
	assert.Equal(t, "other-items", config.AWS.DynamoDB.TableName)
	assert.Equal(t, "mongodb://items@docdb:27017/", config.AWS.DocumentDB.ConnectionString)
	assert.Equal(t, "itemsdb", config.AWS.DocumentDB.DatabaseName)
	assert.Equal(t, "other-bucket", config.AWS.S3.BucketName)
	assert.Equal(t, "cache:6379", config.AWS.ElastiCache.Address)
	assert.Equal(t, 60, config.AWS.ElastiCache.TTL)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DYNAMODB_ENDPOINT", "http://localhost:8001")
	t.Setenv("S3_ENDPOINT", "http://localhost:9001")
	t.Setenv("AWS_DEFAULT_REGION", "us-west-2")
	t.Setenv("ITEMS_TABLE", "ItemsTableTest")
	t.Setenv("ITEMS_BUCKET", "test-bucket")

	path := writeConfigFile(t, `
aws:
  region: eu-west-1
  s3:
    bucket_name: file-bucket
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8001", config.AWS.DynamoDB.Endpoint)
	assert.Equal(t, "http://localhost:9001", config.AWS.S3.Endpoint)
	assert.Equal(t, "us-west-2", config.AWS.Region)
	assert.Equal(t, "ItemsTableTest", config.AWS.DynamoDB.TableName)
	assert.Equal(t, "test-bucket", config.AWS.S3.BucketName)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a mapping")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
