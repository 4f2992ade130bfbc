// Package storage provides helpers shared by the session store adapters
// (memory, postgres): sentinel errors and owner context helpers.
//
// The adapters implement transport.SessionStore; the interface itself
// lives in pkg/transport.
package storage
