// Package cyphertest provides an in-process fake of the Neo4j-compatible
// HTTP transactional endpoint for driver tests.
//
// The fake does not execute Cypher. Tests script it with a QueryFunc that
// maps statement text and parameters to a result or a protocol error; the
// fake supplies the endpoint routing, transaction bookkeeping and wire
// shapes:
//
//	POST   /db/{db}/tx/commit       implicit transaction
//	POST   /db/{db}/tx              open explicit transaction
//	POST   /db/{db}/tx/{id}         execute in open transaction
//	POST   /db/{db}/tx/{id}/commit  commit transaction
//	DELETE /db/{db}/tx/{id}         rollback transaction
//	GET    /                        discovery document
package cyphertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Result is one scripted per-statement result.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Error is a scripted protocol error, returned in the response errors
// list.
type Error struct {
	Code    string
	Message string
}

// QueryFunc resolves one statement to a result or a protocol error.
type QueryFunc func(statement string, params map[string]any) (*Result, *Error)

// EchoQuery is the default script: every statement yields one row holding
// its own text under the column "echo".
func EchoQuery(statement string, params map[string]any) (*Result, *Error) {
	return &Result{Columns: []string{"echo"}, Rows: [][]any{{statement}}}, nil
}

// Server is the fake endpoint. Zero value is not usable; create it with
// NewServer and Close it when done.
type Server struct {
	ts    *httptest.Server
	query QueryFunc

	// sendLocation controls whether opening a transaction answers with a
	// Location header (Neo4j does, NornicDB does not).
	sendLocation bool
	username     string
	password     string
	expiry       time.Duration

	mu        sync.Mutex
	txSeq     int
	open      map[string]bool
	rollbacks int
	commits   int
	requests  int
}

// ServerOption configures the fake.
type ServerOption func(*Server)

// WithQueryFunc installs the statement script.
func WithQueryFunc(fn QueryFunc) ServerOption {
	return func(s *Server) { s.query = fn }
}

// WithoutLocationHeader makes the fake mimic NornicDB, which returns the
// commit URL in the body but no Location header.
func WithoutLocationHeader() ServerOption {
	return func(s *Server) { s.sendLocation = false }
}

// WithBasicAuth makes the fake reject requests lacking the credentials.
func WithBasicAuth(username, password string) ServerOption {
	return func(s *Server) { s.username, s.password = username, password }
}

// WithExpiry sets the advertised transaction lifetime.
func WithExpiry(d time.Duration) ServerOption {
	return func(s *Server) { s.expiry = d }
}

// NewServer starts the fake on a local listener.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		query:        EchoQuery,
		sendLocation: true,
		expiry:       30 * time.Second,
		open:         map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ts = httptest.NewServer(http.HandlerFunc(s.route))
	return s
}

// URL returns the base URL of the fake.
func (s *Server) URL() string { return s.ts.URL }

// TxEndpoint returns the transaction endpoint for a database.
func (s *Server) TxEndpoint(db string) string {
	return fmt.Sprintf("%s/db/%s/tx", s.ts.URL, db)
}

// Close shuts the fake down.
func (s *Server) Close() { s.ts.Close() }

// Rollbacks returns how many transactions were rolled back.
func (s *Server) Rollbacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbacks
}

// Commits returns how many explicit transactions were committed.
func (s *Server) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// OpenCount returns how many transactions are currently open.
func (s *Server) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, isOpen := range s.open {
		if isOpen {
			n++
		}
	}
	return n
}

// Requests returns the total number of HTTP requests served.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Wire shapes, matching the server side of the protocol.

type stmtRequest struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters"`
}

type txRequest struct {
	Statements []stmtRequest `json:"statements"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wireRow struct {
	Row []any `json:"row"`
}

type wireResult struct {
	Columns []string  `json:"columns"`
	Data    []wireRow `json:"data"`
}

type txInfo struct {
	Expires string `json:"expires"`
}

type txResponse struct {
	Results     []wireResult `json:"results"`
	Errors      []wireError  `json:"errors"`
	Commit      string       `json:"commit,omitempty"`
	Transaction *txInfo      `json:"transaction,omitempty"`
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	s.mu.Unlock()

	if s.username != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.username || pass != s.password {
			s.writeError(w, http.StatusUnauthorized,
				"Neo.ClientError.Security.Unauthorized", "no authentication provided")
			return
		}
	}

	if r.URL.Path == "/" {
		s.handleDiscovery(w, r)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/db/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[1] != "tx" {
		s.writeError(w, http.StatusNotFound, "Neo.ClientError.Request.Invalid", "unknown endpoint")
		return
	}
	db, remaining := parts[0], parts[2:]

	switch {
	case len(remaining) == 0 && r.Method == http.MethodPost:
		s.handleOpen(w, r, db)
	case len(remaining) == 1 && remaining[0] == "commit" && r.Method == http.MethodPost:
		s.handleImplicit(w, r)
	case len(remaining) == 1 && r.Method == http.MethodPost:
		s.handleExecute(w, r, remaining[0])
	case len(remaining) == 1 && r.Method == http.MethodDelete:
		s.handleRollback(w, r, remaining[0])
	case len(remaining) == 2 && remaining[1] == "commit" && r.Method == http.MethodPost:
		s.handleCommit(w, r, remaining[0])
	default:
		s.writeError(w, http.StatusNotFound, "Neo.ClientError.Request.Invalid", "unknown transaction endpoint")
	}
}

func (s *Server) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	doc := map[string]any{
		"transaction":   s.ts.URL + "/db/{databaseName}/tx",
		"neo4j_version": "5.0.0",
		"neo4j_edition": "community",
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleImplicit(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	resp := s.run(req.Statements)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request, db string) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	s.txSeq++
	id := fmt.Sprintf("%d", s.txSeq)
	s.open[id] = true
	s.mu.Unlock()

	resp := s.run(req.Statements)
	txURL := fmt.Sprintf("%s/db/%s/tx/%s", s.ts.URL, db, id)
	resp.Commit = txURL + "/commit"
	resp.Transaction = &txInfo{Expires: time.Now().Add(s.expiry).UTC().Format(time.RFC1123)}

	if s.sendLocation {
		w.Header().Set("Location", txURL)
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request, id string) {
	if !s.txExists(id) {
		s.writeError(w, http.StatusNotFound,
			"Neo.ClientError.Transaction.TransactionNotFound", "transaction not found: "+id)
		return
	}
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	resp := s.run(req.Statements)
	resp.Transaction = &txInfo{Expires: time.Now().Add(s.expiry).UTC().Format(time.RFC1123)}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request, id string) {
	if !s.txExists(id) {
		s.writeError(w, http.StatusNotFound,
			"Neo.ClientError.Transaction.TransactionNotFound", "transaction not found: "+id)
		return
	}
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	resp := s.run(req.Statements)

	s.mu.Lock()
	delete(s.open, id)
	if len(resp.Errors) == 0 {
		s.commits++
	}
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRollback(w http.ResponseWriter, _ *http.Request, id string) {
	if !s.txExists(id) {
		s.writeError(w, http.StatusNotFound,
			"Neo.ClientError.Transaction.TransactionNotFound", "transaction not found: "+id)
		return
	}
	s.mu.Lock()
	delete(s.open, id)
	s.rollbacks++
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, &txResponse{Results: []wireResult{}, Errors: []wireError{}})
}

// run executes scripted statements in order, stopping at the first
// error; later statements in the batch are skipped, and no result is
// reported for the failed statement.
func (s *Server) run(stmts []stmtRequest) *txResponse {
	resp := &txResponse{Results: []wireResult{}, Errors: []wireError{}}
	for _, stmt := range stmts {
		result, qerr := s.query(stmt.Statement, stmt.Parameters)
		if qerr != nil {
			resp.Errors = append(resp.Errors, wireError{Code: qerr.Code, Message: qerr.Message})
			break
		}
		wr := wireResult{Columns: result.Columns, Data: make([]wireRow, len(result.Rows))}
		for i, row := range result.Rows {
			wr.Data[i] = wireRow{Row: row}
		}
		resp.Results = append(resp.Results, wr)
	}
	return resp
}

func (s *Server) txExists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[id]
}

func (s *Server) readRequest(w http.ResponseWriter, r *http.Request) (*txRequest, bool) {
	var req txRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest,
				"Neo.ClientError.Request.InvalidFormat", "invalid request body")
			return nil, false
		}
	}
	return &req, true
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	resp := &txResponse{
		Results: []wireResult{},
		Errors:  []wireError{{Code: code, Message: message}},
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
