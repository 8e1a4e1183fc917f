package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInspect(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name      string
		method    string
		target    string
		userAgent string
		wantHit   bool
		wantBlock bool
	}{
		{"report page", http.MethodGet, "/report?month=2025-03&user=all", "Mozilla/5.0", false, false},
		{"curl export", http.MethodGet, "/export?month=2025-03", "curl/8.5", false, false},
		{"dotenv probe", http.MethodGet, "/.env", "Mozilla/5.0", true, true},
		{"traversal in query", http.MethodGet, "/report?month=../../etc/passwd", "", true, true},
		{"script injection", http.MethodGet, "/report?user=%3Cscript%3E", "", true, true},
		{"trace method", "TRACE", "/", "", true, true},
		{"scanner agent", http.MethodGet, "/", "sqlmap/1.7", true, false},
		{"long url", http.MethodGet, "/" + strings.Repeat("a", maxURLLength), "", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			req.Header.Set("User-Agent", tt.userAgent)
			f, hit := d.Inspect(req)
			if hit != tt.wantHit {
				t.Fatalf("hit = %v (%q), want %v", hit, f.Reason, tt.wantHit)
			}
			if f.Block != tt.wantBlock {
				t.Errorf("block = %v, want %v", f.Block, tt.wantBlock)
			}
		})
	}
}

func TestDetectorMiddleware(t *testing.T) {
	d := NewDetector()
	var reached int
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached++
	}))

	for _, tc := range []struct{ target, ua string }{
		{"/wp-admin/setup.php", ""},
		{"/", "nikto"},
		{"/", "Mozilla/5.0"},
	} {
		req := httptest.NewRequest(http.MethodGet, tc.target, nil)
		req.Header.Set("User-Agent", tc.ua)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	if reached != 2 {
		t.Errorf("handler reached %d times, want 2", reached)
	}
	m := d.GetMetrics()
	if m.SuspiciousRequests != 2 || m.BlockedRequests != 1 {
		t.Errorf("metrics = %+v, want 2 suspicious and 1 blocked", m)
	}
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct", "203.0.113.7:5000", "", "", "203.0.113.7"},
		{"untrusted proxy ignored", "203.0.113.7:5000", "198.51.100.1", "", "203.0.113.7"},
		{"trusted proxy xff", "10.0.0.2:5000", "198.51.100.1, 10.0.0.2", "", "198.51.100.1"},
		{"trusted proxy real ip", "127.0.0.1:5000", "", "198.51.100.9", "198.51.100.9"},
		{"garbage xff", "10.0.0.2:5000", "nope", "", "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ExtractClientIP(req); got != tt.want {
				t.Errorf("ExtractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}

	if err := d.AddTrustedProxy("203.0.113.0/24"); err != nil {
		t.Fatalf("AddTrustedProxy: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5000"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := d.ExtractClientIP(req); got != "198.51.100.1" {
		t.Errorf("after AddTrustedProxy got %q", got)
	}
	if err := d.AddTrustedProxy("bogus"); err == nil {
		t.Error("expected error for bogus CIDR")
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
	if !strings.Contains(rr.Header().Get("Content-Security-Policy"), "unpkg.com") {
		t.Error("CSP should allow htmx from unpkg")
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}

func TestStaticAssetMiddleware(t *testing.T) {
	h := StaticAssetMiddleware(3600)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	if got := rr.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", got)
	}
}
