// Package api defines the wire types shared by the chatrelay packages.
//
// It covers the conversation model sent to the upstream model
// ([Message], [Conversation]), the relay endpoint request and response
// bodies ([ChatRequest], [ChatResponse]), persisted chat sessions
// ([Session]), streaming events with their termination signal
// ([StreamEvent]) and the structured [APIError] returned to clients.
//
// The package performs no I/O and depends only on the standard library.
package api
