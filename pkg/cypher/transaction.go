package cypher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TxState is the lifecycle state of a Transaction.
type TxState int

const (
	// TxUnopened is the initial state: statements may be accumulated but
	// nothing has been sent.
	TxUnopened TxState = iota
	// TxOpen means the server has assigned a transaction endpoint.
	TxOpen
	// TxCommitted is terminal: the transaction committed successfully.
	TxCommitted
	// TxRolledBack is terminal: the transaction was explicitly rolled back.
	TxRolledBack
	// TxExpired is terminal: the server reported the transaction no longer
	// exists, or a commit failed and the server decided its fate.
	TxExpired
)

func (s TxState) String() string {
	switch s {
	case TxUnopened:
		return "unopened"
	case TxOpen:
		return "open"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled back"
	case TxExpired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transactionCodePrefix marks server error codes that mean the
// transaction itself is gone (unknown id, timeout, terminated).
const transactionCodePrefix = "Neo.ClientError.Transaction."

// Transaction drives an explicit server-side transaction through its
// lifecycle: Unopened → Open → {Committed, RolledBack, Expired}. It owns
// the server-assigned endpoint exclusively; no other component sends
// requests against it.
//
// A Transaction is meant to be driven by a single logical owner. It is
// not synchronized internally; concurrent use of the same Transaction
// from multiple goroutines without external locking is undefined.
// Independent Transactions created from one session are safe to use
// concurrently.
//
// Callers should defer Close after Begin so an open transaction is
// rolled back on every exit path:
//
//	tx := session.Transaction()
//	if _, err := tx.Begin(ctx); err != nil {
//	    return err
//	}
//	defer tx.Close()
type Transaction struct {
	rq       *requester
	beginURL string // session transaction endpoint, used only by Begin
	endpoint string // server-assigned transaction URL
	commit   string // server-assigned commit URL
	expires  time.Time
	pending  []*Statement
	state    TxState
	err      error // deferred builder error, surfaced by the next call
}

func newTransaction(rq *requester, beginURL string) *Transaction {
	return &Transaction{rq: rq, beginURL: beginURL, state: TxUnopened}
}

// State returns the current lifecycle state.
func (t *Transaction) State() TxState { return t.state }

// Expires returns the last server-reported expiry. It is data, not an
// enforced deadline; the server refreshes it on every successful call.
func (t *Transaction) Expires() time.Time { return t.expires }

// AddStatement appends a statement to the pending batch without sending
// anything. Valid in Unopened and Open. Accepts a *Statement, Statement
// or query string.
func (t *Transaction) AddStatement(stmt any) error {
	if t.state != TxUnopened && t.state != TxOpen {
		return stateError("add_statement", t.state)
	}
	s, err := toStatement(stmt)
	if err != nil {
		return err
	}
	t.pending = append(t.pending, s)
	return nil
}

// WithStatement is AddStatement in builder style. A conversion or state
// error is remembered and surfaced by the next Begin, Send or Commit.
func (t *Transaction) WithStatement(stmt any) *Transaction {
	if err := t.AddStatement(stmt); err != nil && t.err == nil {
		t.err = err
	}
	return t
}

// Begin opens the transaction, sending any pre-seeded pending statements
// (possibly zero) as the opening request. On success the server-assigned
// endpoint and expiry are stored, pending statements are cleared, and the
// ResultSets for the statements sent with the open call are returned. On
// failure the transaction stays Unopened.
func (t *Transaction) Begin(ctx context.Context) ([]*ResultSet, error) {
	if t.err != nil {
		return nil, t.flushErr()
	}
	if t.state != TxUnopened {
		return nil, stateError("begin", t.state)
	}

	resp, location, err := t.rq.post(ctx, t.beginURL, t.pending)
	if err != nil {
		return nil, err
	}

	endpoint := location
	if endpoint == "" {
		// NornicDB omits the Location header; derive the transaction URL
		// from the commit URL it always returns.
		endpoint = strings.TrimSuffix(resp.Commit, "/commit")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("no transaction endpoint returned from server")
	}

	t.endpoint = endpoint
	t.commit = resp.Commit
	if t.commit == "" {
		t.commit = endpoint + "/commit"
	}
	t.refreshExpiry(resp)
	t.pending = nil
	t.state = TxOpen
	t.rq.logger.Debug("transaction open", "endpoint", t.endpoint, "expires", t.expires)
	return resp.resultSets(), nil
}

// Exec sends exactly one statement against the open transaction and
// returns its ResultSet. Pending statements accumulated via AddStatement
// are not included; they stay queued for the next Send or Commit.
func (t *Transaction) Exec(ctx context.Context, stmt any) (*ResultSet, error) {
	if t.err != nil {
		return nil, t.flushErr()
	}
	if t.state != TxOpen {
		return nil, stateError("exec", t.state)
	}
	s, err := toStatement(stmt)
	if err != nil {
		return nil, err
	}

	resp, _, err := t.rq.post(ctx, t.endpoint, []*Statement{s})
	if err != nil {
		return nil, t.checkExpired(err)
	}
	t.refreshExpiry(resp)

	results := resp.resultSets()
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	return results[0], nil
}

// Send sends all pending statements against the open transaction,
// refreshing the expiry and clearing the pending batch. The transaction
// stays Open; Send never closes it. Sending with zero pending statements
// is allowed and acts as a keep-alive.
func (t *Transaction) Send(ctx context.Context) ([]*ResultSet, error) {
	if t.err != nil {
		return nil, t.flushErr()
	}
	if t.state != TxOpen {
		return nil, stateError("send", t.state)
	}

	resp, _, err := t.rq.post(ctx, t.endpoint, t.pending)
	if err != nil {
		return nil, t.checkExpired(err)
	}
	t.refreshExpiry(resp)
	t.pending = nil
	return resp.resultSets(), nil
}

// KeepAlive posts an empty statement list to reset the server-side
// transaction timeout.
func (t *Transaction) KeepAlive(ctx context.Context) error {
	if t.state != TxOpen {
		return stateError("keep_alive", t.state)
	}
	resp, _, err := t.rq.post(ctx, t.endpoint, nil)
	if err != nil {
		return t.checkExpired(err)
	}
	t.refreshExpiry(resp)
	return nil
}

// Commit sends any remaining pending statements together with the commit
// instruction in one call and returns their ResultSets. On success the
// transaction is Committed. On failure the server has already decided
// the transaction's fate, so it is marked terminal (Expired) rather than
// left open for a retry.
func (t *Transaction) Commit(ctx context.Context) ([]*ResultSet, error) {
	if t.err != nil {
		return nil, t.flushErr()
	}
	if t.state != TxOpen {
		return nil, stateError("commit", t.state)
	}

	resp, _, err := t.rq.post(ctx, t.commit, t.pending)
	if err != nil {
		t.state = TxExpired
		return nil, t.wrapExpired(err)
	}
	t.pending = nil
	t.state = TxCommitted
	t.rq.logger.Debug("transaction committed", "endpoint", t.endpoint)
	return resp.resultSets(), nil
}

// Rollback discards the transaction without executing pending
// statements. On success the transaction is RolledBack.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.state != TxOpen {
		return stateError("rollback", t.state)
	}
	if err := t.rq.delete(ctx, t.endpoint); err != nil {
		return t.checkExpired(err)
	}
	t.pending = nil
	t.state = TxRolledBack
	t.rq.logger.Debug("transaction rolled back", "endpoint", t.endpoint)
	return nil
}

// Close rolls the transaction back if it is still open, so server-side
// transactions are not leaked when a scope exits early. The rollback is
// best-effort: a failure is logged and swallowed, never propagated.
// Close on a closed or unopened transaction is a no-op. It always
// returns nil and satisfies io.Closer so it composes with defer.
func (t *Transaction) Close() error {
	if t.state != TxOpen {
		return nil
	}
	if err := t.Rollback(context.Background()); err != nil {
		t.rq.logger.Debug("best-effort rollback failed", "endpoint", t.endpoint, "error", err)
		t.state = TxExpired
	}
	return nil
}

// refreshExpiry parses the server-reported expiry. Neo4j and NornicDB
// format it as RFC1123; a missing or unparseable value leaves the
// previous expiry untouched.
func (t *Transaction) refreshExpiry(resp *txResponse) {
	if resp.Transaction == nil || resp.Transaction.Expires == "" {
		return
	}
	for _, layout := range []string{time.RFC1123, time.RFC1123Z} {
		if ts, err := time.Parse(layout, resp.Transaction.Expires); err == nil {
			t.expires = ts
			return
		}
	}
	t.rq.logger.Debug("unparseable transaction expiry", "expires", resp.Transaction.Expires)
}

// checkExpired inspects a send failure: if the server says the
// transaction no longer exists, the state flips to Expired and the error
// reports ErrTransactionExpired. Other errors pass through unchanged.
func (t *Transaction) checkExpired(err error) error {
	var srvErr *ServerError
	if errors.As(err, &srvErr) && srvErr.hasCodePrefix(transactionCodePrefix) {
		t.state = TxExpired
		return errors.Join(ErrTransactionExpired, err)
	}
	return err
}

// wrapExpired marks commit failures: the state is already terminal, the
// error gains ErrTransactionExpired only when the server reported the
// transaction gone.
func (t *Transaction) wrapExpired(err error) error {
	var srvErr *ServerError
	if errors.As(err, &srvErr) && srvErr.hasCodePrefix(transactionCodePrefix) {
		return errors.Join(ErrTransactionExpired, err)
	}
	return err
}

func (t *Transaction) flushErr() error {
	err := t.err
	t.err = nil
	return err
}
