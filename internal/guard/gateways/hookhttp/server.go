// Package hookhttp exposes the interception surface over HTTP for
// out-of-process hosts: a proxy or browser shim posts each candidate
// request and receives the verdict synchronously. It is a thin transport;
// all decision logic stays behind the interceptor.
package hookhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/haukened/surfguard/internal/guard/common/log"
	"github.com/haukened/surfguard/internal/guard/domain"
	"github.com/haukened/surfguard/internal/guard/gateways/intercept"
	"github.com/haukened/surfguard/internal/guard/services/recorder"
)

// Verdicts is the per-request handler surface; implemented by the
// interceptor.
type Verdicts interface {
	Handle(req domain.Request) intercept.Response
	Enabled() bool
}

// Status answers the introspection queries the UI layer issues.
type Status interface {
	Mode() domain.Mode
	Whitelist() []string
}

// Options configures a Server.
type Options struct {
	Addr     string
	Verdicts Verdicts
	Status   Status
	Tabs     *TabRegistry
	// TabClosed is invoked after a tab's state is dropped, so downstream
	// caches can release per-tab context.
	TabClosed func(tabID int)
	Logger    log.Logger
}

// Server serves the hook, tab, and status endpoints.
type Server struct {
	addr      string
	verdicts  Verdicts
	status    Status
	tabs      *TabRegistry
	tabClosed func(int)
	logger    log.Logger
	http      *http.Server
}

// New constructs a Server from opts.
func New(opts Options) *Server {
	s := &Server{
		addr:      opts.Addr,
		verdicts:  opts.Verdicts,
		status:    opts.Status,
		tabs:      opts.Tabs,
		tabClosed: opts.TabClosed,
		logger:    opts.Logger,
	}
	if s.tabs == nil {
		s.tabs = NewTabRegistry()
	}

	r := chi.NewRouter()
	r.Post("/v1/requests", s.handleRequest)
	r.Get("/v1/status", s.handleStatus)
	r.Put("/v1/tabs/{tabID}", s.handleTabPut)
	r.Delete("/v1/tabs/{tabID}", s.handleTabDelete)

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start listens and serves until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.logger.Info(map[string]any{"addr": ln.Addr().String()}, "hook endpoint listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

type requestPayload struct {
	URL       string `json:"url"`
	Type      string `json:"type"`
	TabID     int    `json:"tab_id"`
	RequestID string `json:"request_id"`
}

type verdictPayload struct {
	Action      string `json:"action"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var p requestPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	typ, err := domain.ParseResourceType(p.Type)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := s.verdicts.Handle(domain.Request{
		URL:       p.URL,
		Type:      typ,
		TabID:     p.TabID,
		RequestID: p.RequestID,
		Timestamp: time.Now(),
	})

	writeJSON(w, verdictPayload{
		Action:      resp.Action.String(),
		RedirectURL: resp.RedirectURL,
	})
}

type statusPayload struct {
	Mode      string   `json:"mode"`
	Enabled   bool     `json:"enabled"`
	Whitelist []string `json:"whitelist"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusPayload{
		Mode:      s.status.Mode().String(),
		Enabled:   s.verdicts.Enabled(),
		Whitelist: s.status.Whitelist(),
	})
}

type tabPayload struct {
	URL       string `json:"url"`
	Incognito bool   `json:"incognito"`
}

func (s *Server) handleTabPut(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(chi.URLParam(r, "tabID"))
	if err != nil {
		http.Error(w, "invalid tab id", http.StatusBadRequest)
		return
	}
	var p tabPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid tab payload", http.StatusBadRequest)
		return
	}
	s.tabs.Put(tabID, recorder.TabState{URL: p.URL, Incognito: p.Incognito})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTabDelete(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(chi.URLParam(r, "tabID"))
	if err != nil {
		http.Error(w, "invalid tab id", http.StatusBadRequest)
		return
	}
	s.tabs.Drop(tabID)
	if s.tabClosed != nil {
		s.tabClosed(tabID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
