package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMAPI is the subset of the SSM client used for parameter indirection.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ParameterStore resolves indirect descriptor references against the
// region-scoped parameter store. It satisfies config.ParameterClient.
type ParameterStore struct {
	client SSMAPI
}

// NewParameterStore creates a parameter store wrapper.
func NewParameterStore(client SSMAPI) *ParameterStore {
	return &ParameterStore{client: client}
}

// GetParameter fetches a single parameter value, decrypting if needed.
func (p *ParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	out, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm get-parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("ssm parameter %s has no value", name)
	}
	return aws.ToString(out.Parameter.Value), nil
}
