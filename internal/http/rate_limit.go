package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const rateWindow = time.Minute

// quota is the admission budget of one route family. Buckets are keyed by
// route plus the subject returned by key, falling back to the client IP.
type quota struct {
	limit int
	key   func(*http.Request) string
}

func (r *Router) quotas() (submit, lookup, login, admin, stream quota) {
	submit = quota{limit: r.submitLimit, key: clientSubject}
	lookup = quota{limit: r.lookupLimit, key: clientSubject}
	login = quota{limit: rateLimitLogin, key: clientSubject}
	admin = quota{limit: rateLimitAdmin, key: adminSubject}
	stream = quota{limit: rateLimitStream, key: adminSubject}
	return
}

// limit wraps next with q. A quota without a limit, or a router without a
// limiter, admits everything. Limiter failures admit the request.
func (r *Router) limit(route string, q quota, next http.HandlerFunc) http.HandlerFunc {
	if q.limit <= 0 || r.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, req *http.Request) {
		subject := q.key(req)
		if subject == "" {
			subject = clientSubject(req)
		}
		u, err := r.limiter.Hit(req.Context(), route+"|"+subject, rateWindow)
		if err != nil {
			r.logger.Warn("rate limiter unavailable; admitting request", "route", route, "error", err)
			next(w, req)
			return
		}
		u.writeHeaders(w, q.limit)
		if u.hits > q.limit {
			r.metrics.recordRateLimitHit(route, subjectKind(subject))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

func (u usage) writeHeaders(w http.ResponseWriter, limit int) {
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(limit-u.hits, 0)))
	if !u.resetAt.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(u.resetAt.Unix(), 10))
	}
}

func clientSubject(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

func adminSubject(req *http.Request) string {
	if info, ok := authInfoFromContext(req.Context()); ok && info.Username != "" {
		return "admin:" + info.Username
	}
	return ""
}

// subjectKind keeps metric labels bounded: "ip:10.0.0.1" becomes "ip".
func subjectKind(subject string) string {
	kind, _, found := strings.Cut(subject, ":")
	if !found || kind == "" {
		return "unknown"
	}
	return kind
}
