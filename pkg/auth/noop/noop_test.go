package noop

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/chatrelay/pkg/auth"
)

func TestAuthenticate(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/chat", nil)
	r.RemoteAddr = "10.0.0.7:51234"

	result := (&Authenticator{}).Authenticate(context.Background(), r)
	if result.Decision != auth.Yes {
		t.Fatalf("decision = %v, want Yes", result.Decision)
	}
	if result.Identity.Subject != "anonymous:10.0.0.7" {
		t.Errorf("subject = %q, want %q", result.Identity.Subject, "anonymous:10.0.0.7")
	}
	if result.Identity.Owner() != "" {
		t.Errorf("owner = %q, want empty for anonymous identity", result.Identity.Owner())
	}
}

func TestAuthenticateRawRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/chat", nil)
	r.RemoteAddr = "pipe"

	result := (&Authenticator{}).Authenticate(context.Background(), r)
	if result.Identity.Subject != "anonymous:pipe" {
		t.Errorf("subject = %q, want %q", result.Identity.Subject, "anonymous:pipe")
	}
}
