// Package bedrock invokes models hosted on Amazon Bedrock through the
// bedrock-runtime InvokeModel and InvokeModelWithResponseStream APIs.
package bedrock

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/rhuss/chatrelay/pkg/debug"
	"github.com/rhuss/chatrelay/pkg/provider"
	"github.com/rhuss/chatrelay/pkg/provider/internal/awsconf"
)

// ProviderName is the invoker name reported in logs and metrics.
const ProviderName = "bedrock"

const contentType = "application/json"

// runtimeAPI is the subset of the bedrock-runtime client used here.
type runtimeAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, in *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// Config holds Bedrock invoker settings.
type Config struct {
	awsconf.Settings

	// Endpoint overrides the service endpoint (e.g. a VPC endpoint).
	Endpoint string
}

// Invoker is a provider.Invoker backed by bedrock-runtime.
type Invoker struct {
	api    runtimeAPI
	region string
}

var _ provider.Invoker = (*Invoker)(nil)

// ResolveRegion returns AWS_REGION, then AWS_DEFAULT_REGION, then us-west-2.
func ResolveRegion() string { return awsconf.ResolveRegion() }

// New loads the AWS configuration and creates a bedrock-runtime client.
func New(ctx context.Context, cfg Config) (*Invoker, error) {
	awsCfg, err := awsconf.Load(ctx, cfg.Settings)
	if err != nil {
		return nil, err
	}

	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	debug.Log("upstream", "bedrock client ready", "region", awsCfg.Region, "endpoint", cfg.Endpoint)
	return &Invoker{api: client, region: awsCfg.Region}, nil
}

// Name returns "bedrock".
func (b *Invoker) Name() string { return ProviderName }

// Region returns the region the client was created for.
func (b *Invoker) Region() string { return b.region }

// Invoke calls InvokeModel and returns the response body.
func (b *Invoker) Invoke(ctx context.Context, req *provider.Request) ([]byte, error) {
	out, err := b.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.ModelID),
		Body:        req.Body,
		ContentType: aws.String(contentType),
		Accept:      aws.String(contentType),
	})
	if err != nil {
		return nil, awsconf.MapError(ProviderName, "invoke", err)
	}
	return out.Body, nil
}

// InvokeStream calls InvokeModelWithResponseStream.
func (b *Invoker) InvokeStream(ctx context.Context, req *provider.Request) (provider.EventStream, error) {
	out, err := b.api.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(req.ModelID),
		Body:        req.Body,
		ContentType: aws.String(contentType),
		Accept:      aws.String(contentType),
	})
	if err != nil {
		return nil, awsconf.MapError(ProviderName, "stream", err)
	}
	return &eventStream{reader: out.GetStream()}, nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (b *Invoker) Close() error { return nil }
