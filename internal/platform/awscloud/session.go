// Package awscloud wraps the AWS SDK calls the reconciler depends on:
// organization account listing, role assumption, region and workload
// discovery, and CloudFormation stack management.
package awscloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// DefaultRegion is used when neither the environment nor the profile
// names a region.
const DefaultRegion = "us-east-1"

// SessionOptions selects how base credentials are loaded.
type SessionOptions struct {
	Region    string
	Profile   string
	AccessKey string
	SecretKey string
}

// LoadConfig loads the organization-level AWS configuration. Static keys
// take precedence over a named profile, which takes precedence over the
// default credential chain.
func LoadConfig(ctx context.Context, opts SessionOptions) (aws.Config, error) {
	var loadOpts []func(*config.LoadOptions) error

	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	} else if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return cfg, nil
}
