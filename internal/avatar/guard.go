package avatar

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// Guard decides which picture URLs the mirror may fetch.
type Guard interface {
	// NewClient returns the HTTP client used for downloads.
	NewClient(timeout time.Duration) *http.Client
	// ValidateURL rejects URLs that point at internal or unsupported targets
	// before any connection is made.
	ValidateURL(rawURL string) error
}

var (
	allowedSchemes = []string{"http", "https"}
	allowedPorts   = []int{80, 443}
)

var blockedNetworks = mustParseCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		out = append(out, network)
	}
	return out
}

type ssrfGuard struct{}

// NewGuard returns the production guard. Its client resolves hosts through
// safeurl, which rejects private, loopback and link-local addresses at dial
// time, so a public hostname rebinding to an internal address still fails.
func NewGuard() Guard {
	return ssrfGuard{}
}

func (ssrfGuard) NewClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(allowedPorts...).
		Build()
	return safeurl.Client(cfg).Client
}

// ValidateURL is a static check: it does not resolve DNS.
func (ssrfGuard) ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing host")
	}
	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || !portAllowed(n) {
			return fmt.Errorf("disallowed port %q", port)
		}
	}
	if u.User != nil {
		return fmt.Errorf("credentials in url")
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("blocked address %s", ip)
			}
		}
		if ip.IsUnspecified() || ip.IsMulticast() {
			return fmt.Errorf("blocked address %s", ip)
		}
		return nil
	}

	lower := strings.ToLower(strings.TrimSuffix(host, "."))
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || lower == "metadata.google.internal" {
		return fmt.Errorf("blocked host %s", host)
	}
	return nil
}

func portAllowed(port int) bool {
	for _, p := range allowedPorts {
		if p == port {
			return true
		}
	}
	return false
}
