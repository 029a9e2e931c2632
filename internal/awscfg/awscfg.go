// Package awscfg builds the shared AWS SDK configuration and clients.
package awscfg

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Clients holds the long-lived AWS clients of one process. Endpoint, when
// set, points every client at a local emulator.
type Clients struct {
	cfg      aws.Config
	endpoint string
}

// Load resolves credentials and region the standard SDK way. An empty
// region leaves it to the environment and shared config files.
func Load(ctx context.Context, region, endpoint string) (*Clients, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Clients{cfg: cfg, endpoint: endpoint}, nil
}

func (c *Clients) Region() string { return c.cfg.Region }

func (c *Clients) SQS() *sqs.Client {
	return sqs.NewFromConfig(c.cfg, func(o *sqs.Options) {
		if c.endpoint != "" {
			o.BaseEndpoint = aws.String(c.endpoint)
		}
	})
}

func (c *Clients) DynamoDB() *dynamodb.Client {
	return dynamodb.NewFromConfig(c.cfg, func(o *dynamodb.Options) {
		if c.endpoint != "" {
			o.BaseEndpoint = aws.String(c.endpoint)
		}
	})
}

// SES returns an SES v2 client, optionally in a region other than the
// default one.
func (c *Clients) SES(region string) *sesv2.Client {
	return sesv2.NewFromConfig(c.cfg, func(o *sesv2.Options) {
		if region != "" {
			o.Region = region
		}
		if c.endpoint != "" {
			o.BaseEndpoint = aws.String(c.endpoint)
		}
	})
}
