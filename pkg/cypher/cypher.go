package cypher

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
)

// Cypher is the per-connection session for a transactional Cypher
// endpoint. It holds the endpoint URL and the shared transport handle,
// both immutable after construction, so one session can serve many
// statements and transactions concurrently.
type Cypher struct {
	endpoint string
	rq       *requester
}

// Option configures a session at construction time.
type Option func(*options)

type options struct {
	client *http.Client
	header http.Header
	logger *slog.Logger
}

// WithHTTPClient sets the transport collaborator. Connection handling,
// TLS, socket-level retries and timeouts are its responsibility.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.client = client }
}

// WithBasicAuth sets HTTP basic authentication for every request.
func WithBasicAuth(username, password string) Option {
	return func(o *options) {
		cred := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		o.header.Set("Authorization", "Basic "+cred)
	}
}

// WithHeader adds a header to every request, e.g. an API key.
func WithHeader(key, value string) Option {
	return func(o *options) { o.header.Set(key, value) }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a session for a transaction endpoint, e.g.
// "http://localhost:7474/db/neo4j/tx".
func New(endpoint string, opts ...Option) *Cypher {
	o := &options{header: http.Header{}}
	for _, opt := range opts {
		opt(o)
	}
	return &Cypher{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		rq:       newRequester(o.client, o.header, o.logger),
	}
}

// Endpoint returns the transaction endpoint this session is bound to.
func (c *Cypher) Endpoint() string { return c.endpoint }

// commitEndpoint is the implicit-commit endpoint: statements POSTed here
// execute and commit in a single request.
func (c *Cypher) commitEndpoint() string { return c.endpoint + "/commit" }

// Exec executes a single statement with implicit commit and returns its
// ResultSet. Accepts a *Statement, Statement or bare query string.
func (c *Cypher) Exec(ctx context.Context, stmt any) (*ResultSet, error) {
	s, err := toStatement(stmt)
	if err != nil {
		return nil, err
	}
	resp, _, err := c.rq.post(ctx, c.commitEndpoint(), []*Statement{s})
	if err != nil {
		return nil, err
	}
	results := resp.resultSets()
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	return results[0], nil
}

// Query returns a batch builder that accumulates statements and commits
// them atomically in one request, without explicit transaction ceremony.
func (c *Cypher) Query() *Batch {
	return &Batch{session: c}
}

// Transaction returns a fresh, unopened transaction bound to this
// session's endpoint. Nothing is sent until Begin.
func (c *Cypher) Transaction() *Transaction {
	return newTransaction(c.rq, c.endpoint)
}

// Batch accumulates statements for a single immediately-committed
// request. Like a Transaction it is owned by one caller at a time and is
// not internally synchronized.
type Batch struct {
	session *Cypher
	stmts   []*Statement
	err     error
}

// AddStatement appends a statement to the batch.
func (b *Batch) AddStatement(stmt any) error {
	s, err := toStatement(stmt)
	if err != nil {
		return err
	}
	b.stmts = append(b.stmts, s)
	return nil
}

// WithStatement is AddStatement in builder style. A conversion error is
// remembered and surfaced by Send.
func (b *Batch) WithStatement(stmt any) *Batch {
	if err := b.AddStatement(stmt); err != nil && b.err == nil {
		b.err = err
	}
	return b
}

// Len returns the number of accumulated statements.
func (b *Batch) Len() int { return len(b.stmts) }

// Send commits the batch in one request and returns one ResultSet per
// statement, in submission order. The accumulated statements are cleared
// on success so the builder can be reused.
func (b *Batch) Send(ctx context.Context) ([]*ResultSet, error) {
	if b.err != nil {
		err := b.err
		b.err = nil
		return nil, err
	}
	resp, _, err := b.session.rq.post(ctx, b.session.commitEndpoint(), b.stmts)
	if err != nil {
		return nil, err
	}
	b.stmts = nil
	return resp.resultSets(), nil
}
