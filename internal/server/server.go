// Package server exposes the local command API: proactive sends and a
// health probe, available from process start regardless of whether the
// WhatsApp session is ready yet.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kamir/leonbridge/internal/bridge"
)

// SendFunc delivers a tagged message into the WhatsApp conversation
// identified by jid.
type SendFunc func(ctx context.Context, jid, text string) error

// Server is the local command HTTP server.
type Server struct {
	state    *bridge.SessionState
	replyTag string
	send     SendFunc
	started  time.Time
}

// New creates a command server bound to the shared session state.
func New(state *bridge.SessionState, replyTag string, send SendFunc) *Server {
	return &Server{
		state:    state,
		replyTag: replyTag,
		send:     send,
		started:  time.Now(),
	}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/send", s.handleSend)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// ListenAndServe runs the server on addr until it fails.
func (s *Server) ListenAndServe(addr string) error {
	slog.Info("command server listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type sendRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Readiness is checked before the body: a not-ready session answers
	// 503 regardless of payload.
	if !s.state.Ready() {
		writeError(w, http.StatusServiceUnavailable, "whatsapp session not ready")
		return
	}

	var body sendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Number) == "" || strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "number and message are required")
		return
	}

	jid := NormalizeJID(body.Number)
	text := s.replyTag + " " + body.Message
	if err := s.send(r.Context(), jid, text); err != nil {
		slog.Error("proactive send failed", "to", jid, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("proactive message sent", "to", jid, "chars", len(body.Message))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type healthResponse struct {
	Status         string  `json:"status"`
	WhatsAppReady  bool    `json:"whatsapp_ready"`
	MyNumber       *string `json:"my_number"`
	ReconnectCount int     `json:"reconnect_count"`
	UptimeSeconds  int     `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:         "ok",
		WhatsAppReady:  s.state.Ready(),
		ReconnectCount: s.state.ReconnectAttempts(),
		UptimeSeconds:  int(time.Since(s.started).Seconds()),
	}
	if own := s.state.OwnJID(); own != "" {
		resp.MyNumber = &own
	}
	writeJSON(w, http.StatusOK, resp)
}

// NormalizeJID turns a bare phone number into an individual-chat JID.
// Anything already carrying a server suffix is used as-is.
func NormalizeJID(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.Contains(number, "@") {
		return number
	}
	return number + "@s.whatsapp.net"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
