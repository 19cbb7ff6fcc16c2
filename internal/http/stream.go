package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gfgkiit/trapped/internal/domain"
	"github.com/gfgkiit/trapped/internal/ws"
)

// handleStream subscribes an admin to one feed topic, over a websocket when
// the client asks to upgrade and as Server-Sent Events otherwise.
func (r *Router) handleStream(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed disabled")
		return
	}
	topic := strings.TrimSpace(req.URL.Query().Get("topic"))
	if topic == "" {
		topic = domain.TopicRegistrations
	}
	if _, ok := feedTopics[topic]; !ok {
		writeError(w, http.StatusBadRequest, "topic must be registrations, teams or stats")
		return
	}
	if websocket.IsWebSocketUpgrade(req) {
		r.streamWebsocket(w, req, topic)
		return
	}
	r.streamSSE(w, req, topic)
}

func (r *Router) streamWebsocket(w http.ResponseWriter, req *http.Request, topic string) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.feed.Register(topic, client)
	go func() {
		defer func() {
			r.feed.Unregister(topic, client)
			client.Close()
		}()
		client.Drain()
	}()
}

func (r *Router) streamSSE(w http.ResponseWriter, req *http.Request, topic string) {
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	client := ws.NewSSEClient(w, topic, r.logger)
	if err := client.Heartbeat(); err != nil {
		return
	}
	r.feed.Register(topic, client)
	defer func() {
		r.feed.Unregister(topic, client)
		client.Close()
		client.Wait()
	}()

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
