package bedrock

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/rhuss/chatrelay/pkg/debug"
	"github.com/rhuss/chatrelay/pkg/provider"
	"github.com/rhuss/chatrelay/pkg/provider/internal/awsconf"
)

// eventReader is implemented by *bedrockruntime.InvokeModelWithResponseStreamEventStream.
type eventReader interface {
	Events() <-chan types.ResponseStream
	Close() error
	Err() error
}

type eventStream struct {
	reader eventReader
}

// Recv maps the next SDK event to a RawEvent. Chunk events carry the
// payload; anything else is returned without one.
func (s *eventStream) Recv(ctx context.Context) (provider.RawEvent, error) {
	select {
	case <-ctx.Done():
		return provider.RawEvent{}, ctx.Err()
	case ev, ok := <-s.reader.Events():
		if !ok {
			if err := s.reader.Err(); err != nil {
				return provider.RawEvent{}, awsconf.MapError(ProviderName, "stream", err)
			}
			return provider.RawEvent{}, io.EOF
		}
		switch v := ev.(type) {
		case *types.ResponseStreamMemberChunk:
			return provider.ChunkEvent(v.Value.Bytes), nil
		default:
			debug.Log("upstream", "bedrock event without chunk", "type", fmt.Sprintf("%T", ev))
			return provider.RawEvent{}, nil
		}
	}
}

func (s *eventStream) Close() error {
	return s.reader.Close()
}
