package provider

// Request is one encoded invocation.
type Request struct {
	// ModelID identifies the model (or endpoint) to invoke.
	ModelID string

	// Body is the JSON-encoded completion request.
	Body []byte
}

// PayloadEnvelope carries the encoded bytes of one payload.
type PayloadEnvelope struct {
	Bytes []byte
}

// RawEvent is one event received on a stream. Endpoints wrap payloads in
// one of two envelopes: Chunk (Bedrock, OpenAI-compatible SSE) or
// PayloadPart (SageMaker). Events that carry neither, e.g. metadata or
// keep-alives, have both fields nil.
type RawEvent struct {
	Chunk       *PayloadEnvelope
	PayloadPart *PayloadEnvelope
}

// Payload returns the encoded payload bytes, preferring Chunk over
// PayloadPart. ok is false when the event carries no payload.
func (e RawEvent) Payload() (b []byte, ok bool) {
	if e.Chunk != nil && e.Chunk.Bytes != nil {
		return e.Chunk.Bytes, true
	}
	if e.PayloadPart != nil && e.PayloadPart.Bytes != nil {
		return e.PayloadPart.Bytes, true
	}
	return nil, false
}

// ChunkEvent wraps b in a Chunk envelope.
func ChunkEvent(b []byte) RawEvent {
	return RawEvent{Chunk: &PayloadEnvelope{Bytes: b}}
}

// PayloadPartEvent wraps b in a PayloadPart envelope.
func PayloadPartEvent(b []byte) RawEvent {
	return RawEvent{PayloadPart: &PayloadEnvelope{Bytes: b}}
}
