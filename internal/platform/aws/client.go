package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// LoadConfig loads the ambient AWS configuration for the given region.
// This is the central-account identity the orchestrator starts with;
// target-account identities come from the Broker.
func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// ConfigFor builds an AWS configuration carrying the given credential
// context. Ambient contexts fall back to the default provider chain.
func ConfigFor(ctx context.Context, region string, cctx CredentialContext) (aws.Config, error) {
	if cctx.Ambient() {
		return LoadConfig(ctx, region)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cctx.AccessKeyID, cctx.SecretAccessKey, cctx.SessionToken,
		)),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to build config for account %s: %w", cctx.AccountID, err)
	}
	return cfg, nil
}
