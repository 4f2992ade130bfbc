// Package awsconf loads AWS SDK configuration and maps SDK errors for the
// Bedrock and SageMaker invokers.
package awsconf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/smithy-go"

	"github.com/rhuss/chatrelay/pkg/provider"
)

// DefaultRegion is used when neither AWS_REGION nor AWS_DEFAULT_REGION is set.
const DefaultRegion = "us-west-2"

// Settings selects the region, credentials and HTTP timeout.
type Settings struct {
	// Region overrides ResolveRegion.
	Region string

	// Profile selects a named profile from the shared config files.
	Profile string

	// AccessKeyID and SecretAccessKey select static credentials and take
	// precedence over Profile. When both are empty the default AWS
	// credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Timeout bounds each HTTP request to the service, including reading a
	// streamed response. Zero leaves the SDK default.
	Timeout time.Duration
}

// ResolveRegion returns AWS_REGION, then AWS_DEFAULT_REGION, then DefaultRegion.
func ResolveRegion() string {
	if r := os.Getenv("AWS_REGION"); r != "" {
		return r
	}
	if r := os.Getenv("AWS_DEFAULT_REGION"); r != "" {
		return r
	}
	return DefaultRegion
}

// Load returns the SDK configuration for s.
func Load(ctx context.Context, s Settings) (aws.Config, error) {
	region := s.Region
	if region == "" {
		region = ResolveRegion()
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if s.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(s.Profile))
	}
	if s.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, s.SessionToken),
		))
	}
	if s.Timeout > 0 {
		opts = append(opts, awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(s.Timeout)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// MapError converts an SDK error into a provider.UpstreamError carrying the
// service error code (e.g. ValidationException, ThrottlingException).
// Context errors are returned unchanged.
func MapError(providerName, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	upErr := &provider.UpstreamError{Provider: providerName, Op: op, Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		upErr.Code = apiErr.ErrorCode()
		upErr.Message = apiErr.ErrorMessage()
	}
	var httpErr interface{ HTTPStatusCode() int }
	if errors.As(err, &httpErr) {
		upErr.StatusCode = httpErr.HTTPStatusCode()
	}
	return upErr
}
