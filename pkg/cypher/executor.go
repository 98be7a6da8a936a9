package cypher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// maxResponseSize caps how much of a response body is read. 64MB is far
// beyond what a sane batch returns and protects against a runaway server.
const maxResponseSize = 64 * 1024 * 1024

// statementsEnvelope is the wire request shape: an ordered list of batch
// entries, each carrying statement text and parameter map.
type statementsEnvelope struct {
	Statements []*Statement `json:"statements"`
}

// txInfo carries the server-reported transaction state.
type txInfo struct {
	Expires string `json:"expires"` // RFC1123
}

// wireRow is one data entry of a per-statement result.
type wireRow struct {
	Row []Value `json:"row"`
}

// wireResult is one per-statement result: columns plus row-major cells.
type wireResult struct {
	Columns []string  `json:"columns"`
	Data    []wireRow `json:"data"`
}

// txResponse is the wire response shape shared by every transactional
// endpoint call: per-statement results in submission order, an errors
// list, and for open transactions the commit URL and expiry.
type txResponse struct {
	Commit      string       `json:"commit,omitempty"`
	Transaction *txInfo      `json:"transaction,omitempty"`
	Results     []wireResult `json:"results"`
	Errors      []Neo4jError `json:"errors"`
}

// resultSets materializes the decoded per-statement results, preserving
// submission order.
func (t *txResponse) resultSets() []*ResultSet {
	out := make([]*ResultSet, len(t.Results))
	for i, res := range t.Results {
		cells := make([][]Value, len(res.Data))
		for j, row := range res.Data {
			cells[j] = row.Row
		}
		out[i] = newResultSet(res.Columns, cells)
	}
	return out
}

// requester serializes statement batches, issues exactly one HTTP request
// per call through the transport collaborator, and decodes the response.
// It never retries: a transport failure surfaces as *TransportError, a
// non-empty server errors list as *ServerError with no partial results.
//
// Each call blocks until the transport completes or fails. Cancellation
// and timeouts belong to the context and the injected http.Client; the
// only suspension points in this package are these round trips.
type requester struct {
	client *http.Client
	header http.Header
	logger *slog.Logger
}

func newRequester(client *http.Client, header http.Header, logger *slog.Logger) *requester {
	if client == nil {
		client = http.DefaultClient
	}
	if header == nil {
		header = http.Header{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &requester{client: client, header: header, logger: logger}
}

// post sends the statements (possibly zero, which servers treat as a
// keep-alive) to the endpoint and returns the decoded response plus the
// Location header, which carries the transaction URL on begin.
func (rq *requester) post(ctx context.Context, endpoint string, stmts []*Statement) (*txResponse, string, error) {
	if stmts == nil {
		stmts = []*Statement{}
	}
	body, err := json.Marshal(statementsEnvelope{Statements: stmts})
	if err != nil {
		return nil, "", &TransportError{Op: "post", Endpoint: endpoint, Err: err}
	}

	rq.logger.Debug("sending cypher batch", "endpoint", endpoint, "statements", len(stmts))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, "", &TransportError{Op: "post", Endpoint: endpoint, Err: err}
	}
	rq.apply(req)

	resp, err := rq.client.Do(req)
	if err != nil {
		return nil, "", &TransportError{Op: "post", Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	result, err := decodeResponse(resp)
	if err != nil {
		return nil, "", &TransportError{Op: "post", Endpoint: endpoint, Err: err}
	}
	if len(result.Errors) > 0 {
		return result, resp.Header.Get("Location"), &ServerError{Errors: result.Errors}
	}
	return result, resp.Header.Get("Location"), nil
}

// delete issues the rollback request against a transaction endpoint.
func (rq *requester) delete(ctx context.Context, endpoint string) error {
	rq.logger.Debug("rolling back transaction", "endpoint", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return &TransportError{Op: "delete", Endpoint: endpoint, Err: err}
	}
	rq.apply(req)

	resp, err := rq.client.Do(req)
	if err != nil {
		return &TransportError{Op: "delete", Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	result, err := decodeResponse(resp)
	if err != nil {
		return &TransportError{Op: "delete", Endpoint: endpoint, Err: err}
	}
	if len(result.Errors) > 0 {
		return &ServerError{Errors: result.Errors}
	}
	return nil
}

func (rq *requester) apply(req *http.Request) {
	for k, vs := range rq.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// decodeResponse parses a transactional endpoint response body. A body
// that is not well-formed protocol JSON is a transport-level failure.
// Numbers decode through json.Number so integer cells stay integers.
func decodeResponse(resp *http.Response) (*txResponse, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}
	var result txResponse
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
