package ops

import (
	"log"
	"net"
	"net/http"
)

// IsAllowedIP reports whether ip falls inside one of the CIDR blocks.
func IsAllowedIP(ip string, allowedCIDRs []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, cidr := range allowedCIDRs {
		_, netblock, err := net.ParseCIDR(cidr)
		if err != nil {
			// Skip invalid CIDR
			continue
		}
		if netblock.Contains(parsed) {
			return true
		}
	}
	return false
}

// AllowCIDRs rejects requests from outside the listed blocks. An empty list
// allows everyone.
func AllowCIDRs(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if !IsAllowedIP(host, allowed) {
				log.Printf("Rejected ops request from %s", host)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
