package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsAPI is the subset of the Secrets Manager client used for
// reclaiming soft-deleted secrets.
type SecretsAPI interface {
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
	RestoreSecret(ctx context.Context, params *secretsmanager.RestoreSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.RestoreSecretOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// SecretsJanitor reclaims managed secrets stuck in their soft-delete
// grace period. A destroy-then-recreate cycle must not be blocked by a
// pending deletion, so the janitor restores and immediately
// force-deletes.
type SecretsJanitor struct {
	client SecretsAPI
}

// NewSecretsJanitor creates a secrets janitor.
func NewSecretsJanitor(client SecretsAPI) *SecretsJanitor {
	return &SecretsJanitor{client: client}
}

// ListPendingDeletion returns the ARNs of managed secrets scheduled for
// deletion.
func (j *SecretsJanitor) ListPendingDeletion(ctx context.Context) ([]string, error) {
	var arns []string
	var nextToken *string

	for {
		out, err := j.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{
			IncludePlannedDeletion: aws.Bool(true),
			NextToken:              nextToken,
			Filters: []types.Filter{
				{Key: types.FilterNameStringTypeTagKey, Values: []string{TagManaged}},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list secrets: %w", err)
		}

		for _, s := range out.SecretList {
			if s.DeletedDate == nil {
				continue
			}
			arns = append(arns, aws.ToString(s.ARN))
		}

		if out.NextToken == nil {
			return arns, nil
		}
		nextToken = out.NextToken
	}
}

// Reclaim restores a pending-deletion secret and force-deletes it
// without a recovery window. A secret that is already gone counts as
// success.
func (j *SecretsJanitor) Reclaim(ctx context.Context, arn string) error {
	if _, err := j.client.RestoreSecret(ctx, &secretsmanager.RestoreSecretInput{
		SecretId: aws.String(arn),
	}); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to restore secret %s: %w", arn, err)
	}

	if _, err := j.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(arn),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	}); err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to force-delete secret %s: %w", arn, err)
	}

	return nil
}
