package chi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/marcelsud/heatmap-webhooks/endpoints"
	"github.com/marcelsud/heatmap-webhooks/ratelimit"
)

// OwnerHeader carries the authenticated owner id set by the upstream auth layer
const OwnerHeader = "X-Owner-ID"

type ownerKey struct{}

// requireOwner rejects requests without a valid owner id
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get(OwnerHeader)
		if _, err := uuid.Parse(owner); err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "Missing or invalid owner")
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey{}, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// rateLimit admits requests per client ip and endpoint class
func rateLimit(limiter *ratelimit.Limiter, classes *endpoints.Loader, trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if classes.Skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			class := classes.Classify(r.URL.Path, r.Method)
			d := limiter.Check(r.Context(), clientIP(r, trusted), class)
			reset := strconv.FormatInt(d.ResetAt.Unix(), 10)

			if !d.Admitted {
				w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds))
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: errorDetail{
					Code:    codeRateLimited,
					Message: fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", d.RetryAfterSeconds),
					Details: map[string]any{
						"limit":     d.Limit,
						"remaining": 0,
						"reset_at":  d.ResetAt.Unix(),
					},
				}})
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", reset)
			next.ServeHTTP(w, r)
		})
	}
}

/* clientIP is the socket peer. X-Forwarded-For is read only when the peer is a
 * trusted proxy, walking right to left past trusted hops, so a client cannot
 * pick its own identity by sending the header itself.
 */
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !isTrusted(peer, trusted) {
		return peer
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
	}
	return peer
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
