package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestProbes(t *testing.T) {
	relays := map[string]string{
		"streaming upstream": testEnv.Relay.URL,
		"fallback upstream":  testEnv.FallbackRelay.URL,
	}
	probes := []struct {
		path string
		body string
	}{
		{"/healthz", "ok"},
		{"/readyz", "ready"},
	}

	for name, base := range relays {
		for _, p := range probes {
			t.Run(name+p.path, func(t *testing.T) {
				// Probes carry no credentials and no request ID.
				resp := getURL(t, base+p.path)
				if resp.StatusCode != http.StatusOK {
					t.Fatalf("status = %d, want 200", resp.StatusCode)
				}
				if body := strings.TrimSpace(readBody(t, resp)); body != p.body {
					t.Errorf("body = %q, want %q", body, p.body)
				}
			})
		}
	}
}
