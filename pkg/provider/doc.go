// Package provider defines the boundary to remote model endpoints.
//
// An [Invoker] sends an already encoded completion request and returns
// either the single terminal payload or an [EventStream] of raw events.
// Invokers know nothing about payload shapes: locating text inside a
// payload is the job of pkg/relay. Each adapter (bedrock, sagemaker,
// openaicompat) handles its own wire protocol and envelope format.
package provider
