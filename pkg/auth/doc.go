// Package auth authenticates relay requests and applies per-subject rate
// limits.
//
// Authenticators vote Yes, No or Abstain on a request. A [Chain] asks them in
// order and stops at the first vote that is not Abstain; if all abstain it
// either rejects the request or admits it as anonymous.
//
// [Middleware] runs the chain in front of the relay routes, stores the
// identity in the request context and marks its subject as the owner of
// the sessions it creates.
package auth
