// Package relay turns conversations into completion text using a remote
// model endpoint.
//
// The pipeline has four parts:
//
//   - [Extract] pulls text fragments out of a decoded payload. It knows the
//     Chat Completions, content-block, flat-field and results shapes and
//     applies every shape that matches.
//   - [Clean] strips <reasoning>...</reasoning> blocks and trims whitespace.
//   - [Client.Complete] performs one blocking invocation and never fails;
//     errors come back as "Error: <message>" text.
//   - [Client.Stream] relays a streaming invocation as a lazy [Stream] of
//     fragments, degrading to a chunked replay of the blocking result when
//     the endpoint refuses to stream.
package relay
