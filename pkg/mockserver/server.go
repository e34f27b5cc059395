package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/getpactd/pactd/pkg/contract"
	"github.com/getpactd/pactd/pkg/logging"
	"github.com/getpactd/pactd/pkg/matching"
)

// ErrNotMatched is returned by WritePact while the pact has unverified
// interactions, mismatches, or unexpected requests on record.
var ErrNotMatched = errors.New("mockserver: pact has not been fully matched")

// Server plays back one pact's interactions over HTTP.
type Server struct {
	pact *contract.Pact
	log  *slog.Logger

	httpServer *http.Server
	listener   net.Listener

	mu         sync.Mutex
	running    bool
	hits       map[int]bool
	mismatched []MismatchRecord
	unexpected []MismatchRecord
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a mock server for the given pact. Message pacts have no HTTP
// half to play back and are rejected.
func New(pact *contract.Pact, opts ...Option) (*Server, error) {
	if pact == nil {
		return nil, errors.New("mockserver: nil pact")
	}
	if pact.IsMessagePact() {
		return nil, errors.New("mockserver: message pacts cannot be served over HTTP")
	}
	s := &Server{
		pact: pact,
		log:  logging.Nop(),
		hits: make(map[int]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start binds the server to the given port on the loopback interface and
// begins serving. Port 0 picks an ephemeral port; the bound port is
// returned.
func (s *Server) Start(port int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return 0, errors.New("mockserver: already started")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return 0, fmt.Errorf("mockserver: listen: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s}
	s.running = true

	server := s.httpServer
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("mock server stopped unexpectedly", "error", err)
		}
	}()

	bound := listener.Addr().(*net.TCPAddr).Port
	s.log.Info("mock server started",
		"consumer", s.pact.Consumer.Name,
		"provider", s.pact.Provider.Name,
		"port", bound)
	return bound, nil
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// URL returns the server's base URL, or "" before Start.
func (s *Server) URL() string {
	port := s.Port()
	if port == 0 {
		return ""
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// ServeHTTP matches the incoming request against the pact's interactions
// and plays back the best match's response. Unmatched requests get a 500
// and go on record.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusInternalServerError)
		return
	}
	body := requestBody(raw, r.Header.Get("Content-Type"))

	bestIdx := -1
	var best matching.RequestMatch
	for idx, interaction := range s.pact.Interactions {
		if interaction.Transport != "" {
			continue
		}
		result := matching.MatchRequest(interaction.Request,
			r.Method, r.URL.Path, r.URL.Query(), r.Header, body)
		if bestIdx == -1 || betterCandidate(result, best) {
			bestIdx, best = idx, result
		}
	}

	if bestIdx >= 0 && best.Matched {
		interaction := s.pact.Interactions[bestIdx]
		s.mu.Lock()
		s.hits[bestIdx] = true
		s.mu.Unlock()
		s.log.Debug("request matched",
			"method", r.Method, "path", r.URL.Path,
			"interaction", interaction.Description)
		writeResponse(w, interaction.Response)
		return
	}

	record := s.recordUnmatched(r, bestIdx, best)
	s.log.Debug("request did not match any interaction",
		"method", r.Method, "path", r.URL.Path, "type", record.Type)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(record)
}

// recordUnmatched files the failure. A candidate whose method and path both
// matched is reported as a mismatch against that interaction; anything else
// is an unknown request.
func (s *Server) recordUnmatched(r *http.Request, bestIdx int, best matching.RequestMatch) MismatchRecord {
	var record MismatchRecord
	if bestIdx >= 0 && best.Score >= matching.ScoreMethod+matching.ScorePath && methodPathMatched(best) {
		record = MismatchRecord{
			Type:        recordRequestMismatch,
			Method:      r.Method,
			Path:        r.URL.Path,
			Description: s.pact.Interactions[bestIdx].Description,
			Mismatches:  best.Mismatches,
		}
		s.mu.Lock()
		s.mismatched = append(s.mismatched, record)
		s.mu.Unlock()
		return record
	}

	record = MismatchRecord{
		Type:    recordRequestNotFound,
		Method:  r.Method,
		Path:    r.URL.Path,
		Request: fmt.Sprintf("%s %s", r.Method, r.URL.RequestURI()),
	}
	s.mu.Lock()
	s.unexpected = append(s.unexpected, record)
	s.mu.Unlock()
	return record
}

func methodPathMatched(m matching.RequestMatch) bool {
	for _, mm := range m.Mismatches {
		if mm.Kind == matching.KindMethod || mm.Kind == matching.KindPath {
			return false
		}
	}
	return true
}

// betterCandidate prefers matched results, then higher scores.
func betterCandidate(a, b matching.RequestMatch) bool {
	if a.Matched != b.Matched {
		return a.Matched
	}
	return a.Score > b.Score
}

// Matched reports whether every interaction was exercised at least once
// with no mismatches and no unexpected requests.
func (s *Server) Matched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.mismatched) > 0 || len(s.unexpected) > 0 {
		return false
	}
	for idx, interaction := range s.pact.Interactions {
		if interaction.Transport != "" {
			continue
		}
		if !s.hits[idx] {
			return false
		}
	}
	return true
}

// Mismatches lists everything that stands between the session and a clean
// match: recorded mismatches, unexpected requests, and interactions never
// exercised.
func (s *Server) Mismatches() []MismatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]MismatchRecord, 0, len(s.mismatched)+len(s.unexpected))
	out = append(out, s.mismatched...)
	out = append(out, s.unexpected...)
	for idx, interaction := range s.pact.Interactions {
		if interaction.Transport != "" || s.hits[idx] {
			continue
		}
		out = append(out, MismatchRecord{
			Type:        recordMissingRequest,
			Method:      interaction.Request.Method,
			Path:        interaction.Request.Path,
			Description: interaction.Description,
		})
	}
	return out
}

// MismatchesJSON renders the mismatch report.
func (s *Server) MismatchesJSON() ([]byte, error) {
	return json.Marshal(s.Mismatches())
}

// WritePact persists the pact to dir, merging with an existing file unless
// overwrite is set. It refuses to write while the pact is unmatched.
func (s *Server) WritePact(dir string, overwrite bool) (string, error) {
	if !s.Matched() {
		return "", ErrNotMatched
	}
	return contract.WriteFile(s.pact, dir, overwrite)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	s.httpServer = nil
	s.running = false
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	s.log.Info("mock server stopping")
	return server.Shutdown(ctx)
}

func requestBody(raw []byte, contentType string) contract.Body {
	if len(raw) == 0 {
		return contract.Body{State: contract.BodyMissing}
	}
	return contract.NewBinaryBody(raw, contentType)
}

func writeResponse(w http.ResponseWriter, resp contract.Response) {
	for name, values := range resp.Headers {
		w.Header().Set(name, strings.Join(values, ", "))
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body.IsPresent() {
		_, _ = w.Write(resp.Body.Content)
	}
}
