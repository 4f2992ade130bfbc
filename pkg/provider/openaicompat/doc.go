// Package openaicompat invokes any OpenAI-compatible Chat Completions
// backend (vLLM, LiteLLM, Ollama, the mock upstream) over plain HTTP.
//
// The relay's request body is forwarded as-is with the configured model
// name added. Streaming responses are read as SSE "data:" lines and
// surfaced as Chunk events until the [DONE] sentinel.
package openaicompat
