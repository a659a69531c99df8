// Package api exposes the HTTP surface: provider webhooks, read-only CRM
// queries, the realtime websocket and a health probe.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/store"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":8080"

// defaultAppointmentWindow bounds the appointment listing when no explicit
// range is given.
const defaultAppointmentWindow = 30 * 24 * time.Hour

// InboundHandler receives accepted webhook payloads.
type InboundHandler interface {
	HandleInbound(in models.InboundMessage)
}

// Server wires the HTTP routes over the store, the inbound router and the
// websocket hub.
type Server struct {
	st      store.Store
	router  InboundHandler
	ws      http.Handler
	httpSrv *http.Server
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// NewServer creates the API server. ws serves the realtime websocket; pass
// nil to disable the endpoint.
func NewServer(st store.Store, router InboundHandler, ws http.Handler, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{st: st, router: router, ws: ws}
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Post("/webhook/{channel}", s.handleWebhook)
	r.Get("/contacts", s.handleListContacts)
	r.Get("/contacts/{id}/messages", s.handleListMessages)
	r.Get("/appointments", s.handleListAppointments)
	if s.ws != nil {
		r.Get("/ws", s.ws.ServeHTTP)
	}
	return r
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	slog.Info("Server.ListenAndServe: listening", "addr", s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook accepts a provider payload for the channel in the path.
// Malformed payloads are ignored without error: the provider always gets
// 204 so it does not retry garbage.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	channel := models.Channel(chi.URLParam(r, "channel"))
	if !models.IsValidChannel(channel) {
		slog.Warn("Server.handleWebhook: unknown channel", "channel", channel)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var in models.InboundMessage
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		in = parseTwilioForm(r, channel)
	} else {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			slog.Warn("Server.handleWebhook: undecodable payload ignored", "error", err, "channel", channel)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		in.Channel = channel
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}

	s.router.HandleInbound(in)
	w.WriteHeader(http.StatusNoContent)
}

// parseTwilioForm maps Twilio's form-encoded webhook fields to the canonical
// inbound shape.
func parseTwilioForm(r *http.Request, channel models.Channel) models.InboundMessage {
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.parseTwilioForm: unparsable form", "error", err)
		return models.InboundMessage{}
	}
	return models.InboundMessage{
		Channel:           channel,
		ContactExternalID: strings.TrimPrefix(r.PostFormValue("From"), "whatsapp:"),
		ProviderMessageID: r.PostFormValue("MessageSid"),
		DisplayName:       r.PostFormValue("ProfileName"),
		Body:              r.PostFormValue("Body"),
		Kind:              models.MessageKindText,
	}
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.st.ListContacts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list contacts")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	contact, err := s.st.GetContactByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load contact")
		return
	}
	if contact == nil {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	messages, err := s.st.ListMessages(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	if contactID := r.URL.Query().Get("contact_id"); contactID != "" {
		appointments, err := s.st.ListAppointments(contactID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list appointments")
			return
		}
		writeJSON(w, http.StatusOK, appointments)
		return
	}

	from := time.Now()
	to := from.Add(defaultAppointmentWindow)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		to = parsed
	}

	appointments, err := s.st.ListAppointmentsBetween(from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}
	writeJSON(w, http.StatusOK, appointments)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("api.writeJSON: encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
