package awscfg

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RegionAndEndpoint(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")
	t.Setenv("AWS_ENDPOINT_URL", "")

	c, err := Load(context.Background(), "eu-west-1", "http://localhost:4566")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", c.Region())

	assert.Equal(t, "http://localhost:4566", aws.ToString(c.SQS().Options().BaseEndpoint))
	assert.Equal(t, "http://localhost:4566", aws.ToString(c.DynamoDB().Options().BaseEndpoint))

	ses := c.SES("us-east-1").Options()
	assert.Equal(t, "us-east-1", ses.Region)
	assert.Equal(t, "http://localhost:4566", aws.ToString(ses.BaseEndpoint))
}

func TestLoad_NoEndpoint(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")
	t.Setenv("AWS_ENDPOINT_URL", "")

	c, err := Load(context.Background(), "eu-west-1", "")
	require.NoError(t, err)

	assert.Nil(t, c.SQS().Options().BaseEndpoint)
	assert.Equal(t, "eu-west-1", c.SES("").Options().Region)
}
