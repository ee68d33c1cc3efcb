// Package statestore records which deployment units have actually been
// applied. The markers live next to the remote state in the central
// account and let a destroy run tell "never provisioned" apart from
// "state went missing".
package statestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/tobkre/flotilla/internal/config"
)

// S3API is the subset of the S3 client the marker store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// MarkerStore keeps one applied-marker object per deployment unit.
type MarkerStore struct {
	client S3API
	bucket string
}

// NewMarkerStore creates a marker store for the given state bucket.
func NewMarkerStore(client S3API, bucket string) *MarkerStore {
	return &MarkerStore{client: client, bucket: bucket}
}

// StateBucket derives the central-account state bucket name.
func StateBucket(centralAccountID string) string {
	return "flotilla-state-" + centralAccountID
}

func markerKey(unit config.DeploymentUnit) string {
	return fmt.Sprintf("markers/%s/%s", unit.Kind, unit.Alias)
}

// Put records that the unit's infrastructure apply succeeded.
func (m *MarkerStore) Put(ctx context.Context, unit config.DeploymentUnit) error {
	body := fmt.Sprintf("applied %s\n", time.Now().UTC().Format(time.RFC3339))
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(markerKey(unit)),
		Body:   strings.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to write applied marker for %s: %w", unit.Alias, err)
	}
	return nil
}

// Exists reports whether an applied marker is recorded for the unit.
func (m *MarkerStore) Exists(ctx context.Context, unit config.DeploymentUnit) (bool, error) {
	_, err := m.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(markerKey(unit)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check applied marker for %s: %w", unit.Alias, err)
	}
	return true, nil
}

// Delete removes the unit's applied marker after teardown completes.
func (m *MarkerStore) Delete(ctx context.Context, unit config.DeploymentUnit) error {
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(markerKey(unit)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete applied marker for %s: %w", unit.Alias, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}
