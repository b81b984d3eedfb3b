// Package httpapi serves the caption display and settings API.
//
// Routes:
//
//	GET  /healthz            liveness probe
//	GET  /readyz             readiness probe (transport must not be failed)
//	GET  /metrics            Prometheus scrape endpoint
//	GET  /api/languages      supported caption languages
//	GET  /api/captions       current display line per language and connection status
//	POST /api/captions/clear explicit caption reset
//	GET  /api/notifications  recent user-facing notifications
//	GET  /api/settings       current runtime settings
//	POST /api/settings       replace runtime settings
//	POST /api/settings/stt   replace only the STT section
//	POST /api/settings/llm   replace only the LLM section
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/overtitle/overtitle/internal/caption"
	"github.com/overtitle/overtitle/internal/health"
	"github.com/overtitle/overtitle/internal/notify"
	"github.com/overtitle/overtitle/internal/observe"
	"github.com/overtitle/overtitle/internal/transport"
)

// maxNotifications caps one /api/notifications response.
const maxNotifications = 50

// Server wires the caption aggregator, transport client, settings store and
// notification queue into one HTTP handler.
type Server struct {
	aggregator *caption.Aggregator
	client     *transport.Client
	settings   *SettingsStore
	notes      *notify.Queue
	metrics    *observe.Metrics
}

// ServerConfig configures a [Server]. Aggregator and Settings are required;
// the rest may be nil and the matching routes degrade gracefully.
type ServerConfig struct {
	Aggregator    *caption.Aggregator
	Client        *transport.Client
	Settings      *SettingsStore
	Notifications *notify.Queue
	Metrics       *observe.Metrics
}

// NewServer creates a [Server] with the given collaborators.
func NewServer(cfg ServerConfig) *Server {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		aggregator: cfg.Aggregator,
		client:     cfg.Client,
		settings:   cfg.Settings,
		notes:      cfg.Notifications,
		metrics:    metrics,
	}
}

// Handler returns the fully routed HTTP handler, wrapped in the
// observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	healthHandler := health.New(health.Checker{
		Name:  "transport",
		Check: s.checkTransport,
	})
	healthHandler.Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/languages", s.handleLanguages)
	mux.HandleFunc("GET /api/captions", s.handleCaptions)
	mux.HandleFunc("POST /api/captions/clear", s.handleClear)
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/settings", s.handlePutSettings)
	mux.HandleFunc("POST /api/settings/stt", s.handlePutSTT)
	mux.HandleFunc("POST /api/settings/llm", s.handlePutLLM)

	return observe.Middleware(s.metrics)(mux)
}

// checkTransport fails readiness when the caption stream has failed
// permanently. Reconnecting states are still considered ready — captions
// survive a brief network blip.
func (s *Server) checkTransport(context.Context) error {
	if s.client == nil {
		return nil
	}
	if state := s.client.State(); state == transport.StateFailed {
		return errors.New(s.client.Status())
	}
	return nil
}

// handleLanguages serves the supported language list.
func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, caption.Supported)
}

// captionLine is one language's entry in the captions response.
type captionLine struct {
	Language string `json:"language"`
	Text     string `json:"text"`
	Waiting  bool   `json:"waiting"`
}

// captionsResponse is the body of GET /api/captions.
type captionsResponse struct {
	Connection string        `json:"connection"`
	Status     string        `json:"status,omitempty"`
	Captions   []captionLine `json:"captions"`
}

// handleCaptions serves the current display line for every supported
// language plus the connection status.
func (s *Server) handleCaptions(w http.ResponseWriter, _ *http.Request) {
	resp := captionsResponse{
		Captions: make([]captionLine, 0, len(caption.Supported)),
	}
	if s.client != nil {
		resp.Connection = s.client.State().String()
		resp.Status = s.client.Status()
	}

	for _, lang := range caption.Supported {
		text, ok := s.aggregator.CurrentText(lang.Code)
		resp.Captions = append(resp.Captions, captionLine{
			Language: lang.Code,
			Text:     text,
			Waiting:  !ok,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleClear resets the aggregator on an explicit operator action.
func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.aggregator.Clear()
	if s.notes != nil {
		s.notes.Push(notify.LevelInfo, "captions cleared")
	}
	slog.Info("captions cleared via API")
	w.WriteHeader(http.StatusNoContent)
}

// handleNotifications serves the recent notification queue entries.
func (s *Server) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	if s.notes == nil {
		writeJSON(w, http.StatusOK, []notify.Notification{})
		return
	}
	writeJSON(w, http.StatusOK, s.notes.Recent(maxNotifications))
}

// settingsResponse is the body returned from settings mutations.
type settingsResponse struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Settings Settings `json:"settings"`
}

// handleGetSettings serves the current runtime settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Get())
}

// handlePutSettings replaces the full settings document.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var v Settings
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.settings.Put(v); err != nil {
		s.settingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		Status:   "success",
		Message:  "settings updated",
		Settings: s.settings.Get(),
	})
}

// handlePutSTT replaces only the STT settings section.
func (s *Server) handlePutSTT(w http.ResponseWriter, r *http.Request) {
	var v STTSettings
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	updated, err := s.settings.PutSTT(v)
	if err != nil {
		s.settingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		Status:   "success",
		Message:  "stt settings updated",
		Settings: updated,
	})
}

// handlePutLLM replaces only the LLM settings section.
func (s *Server) handlePutLLM(w http.ResponseWriter, r *http.Request) {
	var v LLMSettings
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	updated, err := s.settings.PutLLM(v)
	if err != nil {
		s.settingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		Status:   "success",
		Message:  "llm settings updated",
		Settings: updated,
	})
}

// settingsError maps a settings update failure to the right status code:
// validation failures are the client's fault, persistence failures ours.
func (s *Server) settingsError(w http.ResponseWriter, err error) {
	slog.Warn("settings update rejected", "err", err)
	status := http.StatusBadRequest
	if errors.Is(err, errPersist) {
		status = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), status)
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}
