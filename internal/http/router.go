package httpx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gfgkiit/trapped/internal/domain"
	"github.com/gfgkiit/trapped/internal/service/auth"
	"github.com/gfgkiit/trapped/internal/service/export"
	"github.com/gfgkiit/trapped/internal/service/registration"
	"github.com/gfgkiit/trapped/internal/service/stats"
	"github.com/gfgkiit/trapped/internal/service/team"
	"github.com/gfgkiit/trapped/internal/validation"
	"github.com/gfgkiit/trapped/internal/ws"
)

// Services groups the domain services the router exposes.
type Services struct {
	Auth          auth.Service
	Registrations registration.Service
	Teams         team.Service
	Export        export.Service
	Feed          *ws.Hub
	// Stats backs GET /stats. Nil disables the route.
	Stats *stats.Service
}

// Options tunes limits and ambient collaborators. Zero values pick defaults.
type Options struct {
	Limiter         RateLimiter
	SubmitPerMinute int
	LookupPerMinute int
	DBHealth        func(context.Context) error
	Heartbeat       time.Duration
	// Registerer receives the HTTP metrics. Nil uses the default registry.
	Registerer prometheus.Registerer
	// Gatherer backs GET /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux           *http.ServeMux
	logger        *slog.Logger
	auth          auth.Service
	registrations registration.Service
	teams         team.Service
	export        export.Service
	feed          *ws.Hub
	stats         *stats.Service
	upgrader      websocket.Upgrader
	limiter       RateLimiter
	submitLimit   int
	lookupLimit   int
	dbHealth      func(context.Context) error
	heartbeat     time.Duration
	metrics       *metrics
	gatherer      prometheus.Gatherer
}

const (
	rateLimitLogin     = 12
	rateLimitAdmin     = 240
	rateLimitStream    = 30
	maxBodyBytes       = 64 << 10
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, svc Services, opts Options) *Router {
	r := &Router{
		mux:           http.NewServeMux(),
		logger:        logger,
		auth:          svc.Auth,
		registrations: svc.Registrations,
		teams:         svc.Teams,
		export:        svc.Export,
		feed:          svc.Feed,
		stats:         svc.Stats,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:     opts.Limiter,
		submitLimit: opts.SubmitPerMinute,
		lookupLimit: opts.LookupPerMinute,
		dbHealth:    opts.DBHealth,
		heartbeat:   opts.Heartbeat,
		gatherer:    opts.Gatherer,
	}
	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if r.gatherer == nil {
		r.gatherer = prometheus.DefaultGatherer
	}
	r.metrics = newMetrics(registerer)
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.heartbeat <= 0 {
		r.heartbeat = 20 * time.Second
	}
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	submit, lookup, login, admin, stream := r.quotas()
	adminOnly := func(route string, h http.HandlerFunc) http.HandlerFunc {
		return r.requireAdmin(r.limit(route, admin, h))
	}

	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	r.mux.HandleFunc("/register", r.audit("/register", r.handleRegister(r.limit("/register:submit", submit, r.handleRegisterSubmit), r.limit("/register:lookup", lookup, r.handleRegisterGet))))
	r.mux.HandleFunc("/card", r.audit("/card", r.limit("/card", lookup, r.handleCard)))
	r.mux.HandleFunc("/find-by-email", r.audit("/find-by-email", r.limit("/find-by-email", lookup, r.handleFindByEmail)))
	r.mux.HandleFunc("/check-device", r.audit("/check-device", r.limit("/check-device", lookup, r.handleCheckDevice)))
	r.mux.HandleFunc("/register-team", r.audit("/register-team", r.limit("/register-team", submit, r.handleRegisterTeam)))
	r.mux.HandleFunc("/admin/login", r.audit("/admin/login", r.limit("/admin/login", login, r.handleAdminLogin)))
	r.mux.HandleFunc("/admin/stream", r.audit("/admin/stream", r.requireAdminStream(r.limit("/admin/stream", stream, r.handleStream))))
	r.mux.HandleFunc("/registrations", r.audit("/registrations", adminOnly("/registrations", r.handleRegistrations)))
	r.mux.HandleFunc("/teams", r.audit("/teams", adminOnly("/teams", r.handleTeams)))
	r.mux.HandleFunc("/stats", r.audit("/stats", adminOnly("/stats", r.handleStats)))
	r.mux.HandleFunc("/export/registrations", r.audit("/export/registrations", adminOnly("/export", r.handleExportRegistrations)))
	r.mux.HandleFunc("/export/teams", r.audit("/export/teams", adminOnly("/export", r.handleExportTeams)))
	r.mux.HandleFunc("/export/domain/", r.audit("/export/domain/{domain}", adminOnly("/export", r.handleExportDomain)))
}

func (r *Router) handleRegister(post, get http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			post(w, req)
		case http.MethodGet:
			get(w, req)
		default:
			r.methodNotAllowed(w)
		}
	}
}

func (r *Router) handleRegisterSubmit(w http.ResponseWriter, req *http.Request) {
	var payload validation.RegistrationInput
	if !r.decodeJSON(w, req, &payload) {
		return
	}
	reg, err := r.registrations.Register(req.Context(), payload)
	r.metrics.recordAdmission(admissionApplicant, err)
	if err != nil {
		r.writeAppError(w, req, err, conflictAsBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (r *Router) handleRegisterGet(w http.ResponseWriter, req *http.Request) {
	reg, err := r.registrations.Get(req.Context(), req.URL.Query().Get("id"))
	if err != nil {
		r.writeAppError(w, req, err, conflictAsBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (r *Router) handleCard(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	card, err := r.registrations.Card(req.Context(), req.URL.Query().Get("id"))
	if err != nil {
		r.writeAppError(w, req, err, conflictAsBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (r *Router) handleFindByEmail(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	reg, err := r.registrations.FindByEmail(req.Context(), req.URL.Query().Get("email"))
	if err != nil {
		r.writeAppError(w, req, err, conflictAsBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (r *Router) handleCheckDevice(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		DeviceID string `json:"deviceId"`
	}
	if !r.decodeJSON(w, req, &payload) {
		return
	}
	registered, err := r.registrations.DeviceRegistered(req.Context(), payload.DeviceID)
	if err != nil {
		r.writeAppError(w, req, err, conflictAsBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"registered": registered})
}

func (r *Router) handleRegisterTeam(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload validation.TeamInput
	if !r.decodeJSON(w, req, &payload) {
		return
	}
	created, err := r.teams.Register(req.Context(), payload)
	r.metrics.recordAdmission(admissionTeam, err)
	if err != nil {
		r.writeAppError(w, req, err, conflictAsConflict)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (r *Router) handleAdminLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !r.decodeJSON(w, req, &payload) {
		return
	}
	token, err := r.auth.Login(req.Context(), payload.Username, payload.Password)
	switch {
	case errors.Is(err, auth.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token.AccessToken,
		"expiresIn": int64(token.ExpiresIn.Seconds()),
		"expiresAt": token.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleRegistrations(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	slot, err := registration.ParseSlot(req.URL.Query().Get("slot"))
	if err != nil {
		r.writeAppError(w, req, err, conflictAsBadRequest)
		return
	}
	records, err := r.registrations.List(req.Context(), req.URL.Query().Get("domain"), slot)
	if err != nil {
		r.writeAppError(w, req, err, conflictAsBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (r *Router) handleTeams(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	teams, err := r.teams.List(req.Context())
	if err != nil {
		r.writeAppError(w, req, err, conflictAsConflict)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.stats == nil {
		r.notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, r.stats.Snapshot())
}

func (r *Router) handleExportRegistrations(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	table, err := r.export.Registrations(req.Context())
	r.writeTable(w, req, table, err)
}

func (r *Router) handleExportTeams(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	table, err := r.export.Teams(req.Context())
	r.writeTable(w, req, table, err)
}

func (r *Router) handleExportDomain(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	raw := strings.TrimPrefix(req.URL.EscapedPath(), "/export/domain/")
	name, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(name) == "" {
		r.notFound(w)
		return
	}
	slot, err := registration.ParseSlot(req.URL.Query().Get("slot"))
	if err != nil {
		r.writeAppError(w, req, err, conflictAsBadRequest)
		return
	}
	table, err := r.export.Domain(req.Context(), name, slot)
	r.writeTable(w, req, table, err)
}

// writeTable encodes the workbook fully before sending headers so a failed
// encode still yields a JSON error.
func (r *Router) writeTable(w http.ResponseWriter, req *http.Request, table export.Table, err error) {
	if err != nil {
		r.writeAppError(w, req, err, conflictAsBadRequest)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, table); err != nil {
		r.logger.Error("spreadsheet encode failed", "sheet", table.Sheet, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", export.ContentType)
	headers.Set("Content-Disposition", `attachment; filename="`+table.FileName+`"`)
	headers.Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			r.logger.Error("health check failed", "component", "database", "error", err)
			status = "degraded"
			components["database"] = map[string]any{"status": "down"}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) decodeJSON(w http.ResponseWriter, req *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.metrics.recordRequest(req.Method, route, status, duration)
		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = info.Role
			fields = append(fields, "username", info.Username)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the connection for deadlines.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		if sr.status == 0 {
			sr.status = http.StatusSwitchingProtocols
		}
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

var feedTopics = map[string]struct{}{
	domain.TopicRegistrations: {},
	domain.TopicTeams:         {},
	domain.TopicStats:         {},
}
