// Package chat implements the relay endpoint behind transport.ChatHandler.
//
// The Service validates the request, merges stored session history, runs
// the conversation through the relay client (synchronously or as a
// fragment stream) and appends the exchange to the session once the
// completion succeeded.
package chat
