// Package sagemaker invokes models deployed behind SageMaker real-time
// endpoints through the sagemaker-runtime InvokeEndpoint and
// InvokeEndpointWithResponseStream APIs.
//
// Streamed payloads arrive in PayloadPart envelopes.
package sagemaker

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime/types"

	"github.com/rhuss/chatrelay/pkg/debug"
	"github.com/rhuss/chatrelay/pkg/provider"
	"github.com/rhuss/chatrelay/pkg/provider/internal/awsconf"
)

// ProviderName is the invoker name reported in logs and metrics.
const ProviderName = "sagemaker"

const contentType = "application/json"

type runtimeAPI interface {
	InvokeEndpoint(ctx context.Context, in *sagemakerruntime.InvokeEndpointInput, optFns ...func(*sagemakerruntime.Options)) (*sagemakerruntime.InvokeEndpointOutput, error)
	InvokeEndpointWithResponseStream(ctx context.Context, in *sagemakerruntime.InvokeEndpointWithResponseStreamInput, optFns ...func(*sagemakerruntime.Options)) (*sagemakerruntime.InvokeEndpointWithResponseStreamOutput, error)
}

// Config holds SageMaker invoker settings.
type Config struct {
	awsconf.Settings

	// EndpointName is the SageMaker endpoint to invoke. When empty the
	// request's ModelID is used as the endpoint name.
	EndpointName string

	// Endpoint overrides the service URL.
	Endpoint string
}

// Invoker is a provider.Invoker backed by sagemaker-runtime.
type Invoker struct {
	api          runtimeAPI
	endpointName string
}

var _ provider.Invoker = (*Invoker)(nil)

// New loads the AWS configuration and creates a sagemaker-runtime client.
func New(ctx context.Context, cfg Config) (*Invoker, error) {
	awsCfg, err := awsconf.Load(ctx, cfg.Settings)
	if err != nil {
		return nil, err
	}

	client := sagemakerruntime.NewFromConfig(awsCfg, func(o *sagemakerruntime.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	debug.Log("upstream", "sagemaker client ready", "region", awsCfg.Region, "endpoint_name", cfg.EndpointName)
	return &Invoker{api: client, endpointName: cfg.EndpointName}, nil
}

// Name returns "sagemaker".
func (s *Invoker) Name() string { return ProviderName }

// Invoke calls InvokeEndpoint and returns the response body.
func (s *Invoker) Invoke(ctx context.Context, req *provider.Request) ([]byte, error) {
	out, err := s.api.InvokeEndpoint(ctx, &sagemakerruntime.InvokeEndpointInput{
		EndpointName: aws.String(s.endpoint(req)),
		Body:         req.Body,
		ContentType:  aws.String(contentType),
		Accept:       aws.String(contentType),
	})
	if err != nil {
		return nil, awsconf.MapError(ProviderName, "invoke", err)
	}
	return out.Body, nil
}

// InvokeStream calls InvokeEndpointWithResponseStream.
func (s *Invoker) InvokeStream(ctx context.Context, req *provider.Request) (provider.EventStream, error) {
	out, err := s.api.InvokeEndpointWithResponseStream(ctx, &sagemakerruntime.InvokeEndpointWithResponseStreamInput{
		EndpointName: aws.String(s.endpoint(req)),
		Body:         req.Body,
		ContentType:  aws.String(contentType),
		Accept:       aws.String(contentType),
	})
	if err != nil {
		return nil, awsconf.MapError(ProviderName, "stream", err)
	}
	return &eventStream{reader: out.GetStream()}, nil
}

// Close is a no-op.
func (s *Invoker) Close() error { return nil }

func (s *Invoker) endpoint(req *provider.Request) string {
	if s.endpointName != "" {
		return s.endpointName
	}
	return req.ModelID
}

// eventReader is implemented by *sagemakerruntime.InvokeEndpointWithResponseStreamEventStream.
type eventReader interface {
	Events() <-chan types.ResponseStream
	Close() error
	Err() error
}

type eventStream struct {
	reader eventReader
}

// Recv maps the next SDK event to a RawEvent. PayloadPart events carry
// the payload; anything else is returned without one.
func (e *eventStream) Recv(ctx context.Context) (provider.RawEvent, error) {
	select {
	case <-ctx.Done():
		return provider.RawEvent{}, ctx.Err()
	case ev, ok := <-e.reader.Events():
		if !ok {
			if err := e.reader.Err(); err != nil {
				return provider.RawEvent{}, awsconf.MapError(ProviderName, "stream", err)
			}
			return provider.RawEvent{}, io.EOF
		}
		if v, ok := ev.(*types.ResponseStreamMemberPayloadPart); ok {
			return provider.PayloadPartEvent(v.Value.Bytes), nil
		}
		debug.Log("upstream", "sagemaker event without payload part", "type", fmt.Sprintf("%T", ev))
		return provider.RawEvent{}, nil
	}
}

func (e *eventStream) Close() error {
	return e.reader.Close()
}
