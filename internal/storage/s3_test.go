package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceKey(t *testing.T) {
	assert.Equal(t, "sources/abc123", SourceKey("abc123"))
}

func TestNewS3Client(t *testing.T) {
	client, err := NewS3Client(context.Background(), S3ClientConfig{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "docqa",
		UsePathStyle:    true,
	})

	require.NoError(t, err)
	assert.Equal(t, "docqa", client.bucket)
	assert.NotNil(t, client.client)
}
