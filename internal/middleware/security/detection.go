package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"gastos/internal/log"
)

// DetectionMetrics tracks security detection events
type DetectionMetrics struct {
	SuspiciousRequests int64
	BlockedRequests    int64
}

// Finding explains why a request looked suspicious. Block is set for probes
// that no legitimate client of the app would send.
type Finding struct {
	Reason string
	Block  bool
}

var (
	probePatterns = []string{
		"../", "..\\", ".env", "wp-admin", "wp-login", "phpmyadmin",
		"admin.php", "config.php", ".git/", ".ssh", "etc/passwd", "cmd.exe",
	}
	injectionPatterns = []string{
		"eval(", "javascript:", "<script", "union select", "' or 1=1",
	}
	scannerAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab",
	}
	unusualMethods = map[string]bool{"TRACE": true, "TRACK": true, "DEBUG": true, "CONNECT": true}
)

const maxURLLength = 2048

// Detector handles suspicious request detection
type Detector struct {
	mu             sync.RWMutex
	trustedProxies []*net.IPNet

	suspicious atomic.Int64
	blocked    atomic.Int64
}

// NewDetector trusts loopback and private networks to set forwarding headers.
func NewDetector() *Detector {
	return &Detector{
		trustedProxies: []*net.IPNet{
			parseCIDR("127.0.0.0/8"),
			parseCIDR("10.0.0.0/8"),
			parseCIDR("172.16.0.0/12"),
			parseCIDR("192.168.0.0/16"),
			parseCIDR("::1/128"),
		},
	}
}

func parseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

// Inspect analyzes request patterns for potential threats. The zero Finding
// means the request looks ordinary.
func (d *Detector) Inspect(r *http.Request) (Finding, bool) {
	if unusualMethods[r.Method] {
		return Finding{Reason: "method " + r.Method, Block: true}, true
	}
	if len(r.URL.String()) > maxURLLength {
		return Finding{Reason: "url too long", Block: true}, true
	}

	path := strings.ToLower(r.URL.Path)
	query := strings.ToLower(r.URL.RawQuery)
	if unescaped, err := url.QueryUnescape(query); err == nil {
		query = unescaped
	}
	for _, p := range probePatterns {
		if strings.Contains(path, p) || strings.Contains(query, p) {
			return Finding{Reason: "probe " + p, Block: true}, true
		}
	}
	for _, p := range injectionPatterns {
		if strings.Contains(path, p) || strings.Contains(query, p) {
			return Finding{Reason: "injection " + p, Block: true}, true
		}
	}

	ua := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range scannerAgents {
		if strings.Contains(ua, a) {
			return Finding{Reason: "scanner " + a}, true
		}
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5 {
		return Finding{Reason: "forwarding chain too long"}, true
	}
	return Finding{}, false
}

// Middleware logs suspicious requests and answers blocked ones with 404 so
// probes learn nothing about the routes.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hit := d.Inspect(r)
		if !hit {
			next.ServeHTTP(w, r)
			return
		}
		d.suspicious.Add(1)
		log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).WarnContext(r.Context(), "Suspicious request",
			log.FieldClientIP, d.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			"reason", f.Reason,
			"blocked", f.Block)
		if f.Block {
			d.blocked.Add(1)
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractClientIP returns the connecting address, or the first forwarded
// address when the connection comes from a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil || !d.isTrustedProxy(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// GetMetrics returns current security metrics
func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		BlockedRequests:    d.blocked.Load(),
	}
}

// AddTrustedProxy adds a trusted proxy network
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.mu.Lock()
	d.trustedProxies = append(d.trustedProxies, network)
	d.mu.Unlock()
	return nil
}
