package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOutboundGuard_HTTPClient(t *testing.T) {
	guard := NewOutboundGuard()
	client := guard.HTTPClient(5 * time.Second)

	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport")
	}
}

// TestOutboundGuard_HTTPClientBlocksLoopback はhttptestサーバー（127.0.0.1）への接続が拒否されることを検証する。
func TestOutboundGuard_HTTPClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewOutboundGuard().HTTPClient(5 * time.Second)
	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

func TestOutboundGuard_CheckURL(t *testing.T) {
	guard := NewOutboundGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public https", "https://m.media-amazon.com/images/M/poster.jpg", false},
		{"public http", "http://www.omdbapi.com/", false},
		{"empty", "", true},
		{"N/A sentinel", "N/A", true},
		{"javascript scheme", "javascript:alert(1)", true},
		{"file scheme", "file:///etc/passwd", true},
		{"localhost", "http://localhost/x.jpg", true},
		{"loopback", "http://127.0.0.1/x.jpg", true},
		{"private", "http://192.168.1.10/x.jpg", true},
		{"metadata", "http://169.254.169.254/latest/meta-data", true},
		{"ipv6 loopback", "http://[::1]/x.jpg", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.CheckURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestOutboundGuard_SafePublicURL(t *testing.T) {
	guard := NewOutboundGuard()
	if got := guard.SafePublicURL("N/A"); got != "" {
		t.Errorf("SafePublicURL(N/A) = %q, want empty", got)
	}
	u := "https://example.com/poster.jpg"
	if got := guard.SafePublicURL(u); got != u {
		t.Errorf("SafePublicURL(%q) = %q", u, got)
	}
}
