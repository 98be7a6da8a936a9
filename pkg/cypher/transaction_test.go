package cypher_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/cypherhttp/pkg/cypher"
	"github.com/orneryd/cypherhttp/pkg/cypher/cyphertest"
)

func TestTransactionLifecycleCommit(t *testing.T) {
	session, srv := newSession(t)
	ctx := context.Background()

	tx := session.Transaction()
	assert.Equal(t, cypher.TxUnopened, tx.State())

	_, err := tx.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, cypher.TxOpen, tx.State())
	assert.Equal(t, 1, srv.OpenCount())

	result, err := tx.Exec(ctx, "MATCH (n:LANG) RETURN n.name")
	require.NoError(t, err)
	name, err := cypher.Get[string](result.Rows()[0], "n.name")
	require.NoError(t, err)
	assert.Equal(t, "Rust", name)

	_, err = tx.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, cypher.TxCommitted, tx.State())
	assert.Equal(t, 1, srv.Commits())
	assert.Equal(t, 0, srv.OpenCount())
}

func TestTransactionBeginWithSeededStatements(t *testing.T) {
	session, _ := newSession(t)
	ctx := context.Background()

	tx := session.Transaction().
		WithStatement(cypher.NewStatement("CREATE (n:LANG {name: $name})", cypher.Params{"name": "Rust"})).
		WithStatement("MATCH (n:LANG) RETURN n.name")

	results, err := tx.Begin(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, cypher.TxOpen, tx.State())

	name, err := cypher.Get[string](results[1].Rows()[0], "n.name")
	require.NoError(t, err)
	assert.Equal(t, "Rust", name)

	// Seeded statements were consumed by Begin, so committing sends none.
	_, err = tx.Commit(ctx)
	require.NoError(t, err)
}

func TestTransactionSingleSeededStatement(t *testing.T) {
	session, srv := newSession(t)
	ctx := context.Background()

	tx := session.Transaction().WithStatement("MATCH (n:LANG) RETURN n.name")

	results, err := tx.Begin(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Nothing pending anymore, so the commit call carries no statements.
	results, err = tx.Commit(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, cypher.TxCommitted, tx.State())
	assert.Equal(t, 1, srv.Commits())
}

func TestTransactionSendAndCommitPending(t *testing.T) {
	session, srv := newSession(t)
	ctx := context.Background()

	tx := session.Transaction()
	_, err := tx.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.AddStatement("RETURN 1"))
	require.NoError(t, tx.AddStatement("RETURN 2"))
	results, err := tx.Send(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, cypher.TxOpen, tx.State())

	// Pending was cleared; commit with a fresh statement sends only it.
	require.NoError(t, tx.AddStatement("RETURN 3"))
	results, err = tx.Commit(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, cypher.TxCommitted, tx.State())
	assert.Equal(t, 1, srv.Commits())
}

func TestTransactionExecDoesNotConsumePending(t *testing.T) {
	session, _ := newSession(t)
	ctx := context.Background()

	tx := session.Transaction()
	_, err := tx.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.AddStatement("RETURN 1"))
	_, err = tx.Exec(ctx, "RETURN 2")
	require.NoError(t, err)

	// The queued statement is still there for Send.
	results, err := tx.Send(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestTransactionRollback(t *testing.T) {
	session, srv := newSession(t)
	ctx := context.Background()

	tx := session.Transaction()
	_, err := tx.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, cypher.TxRolledBack, tx.State())
	assert.Equal(t, 1, srv.Rollbacks())
	assert.Equal(t, 0, srv.OpenCount())
}

func TestTransactionStateMachine(t *testing.T) {
	session, _ := newSession(t)
	ctx := context.Background()

	t.Run("operations before begin", func(t *testing.T) {
		tx := session.Transaction()
		_, err := tx.Exec(ctx, "RETURN 1")
		assert.ErrorIs(t, err, cypher.ErrInvalidTransactionState)
		_, err = tx.Send(ctx)
		assert.ErrorIs(t, err, cypher.ErrInvalidTransactionState)
		_, err = tx.Commit(ctx)
		assert.ErrorIs(t, err, cypher.ErrInvalidTransactionState)
		assert.ErrorIs(t, tx.Rollback(ctx), cypher.ErrInvalidTransactionState)
		assert.ErrorIs(t, tx.KeepAlive(ctx), cypher.ErrInvalidTransactionState)
	})

	t.Run("double begin", func(t *testing.T) {
		tx := session.Transaction()
		_, err := tx.Begin(ctx)
		require.NoError(t, err)
		_, err = tx.Begin(ctx)
		assert.ErrorIs(t, err, cypher.ErrInvalidTransactionState)
		require.NoError(t, tx.Rollback(ctx))
	})

	t.Run("operations after commit", func(t *testing.T) {
		tx := session.Transaction()
		_, err := tx.Begin(ctx)
		require.NoError(t, err)
		_, err = tx.Commit(ctx)
		require.NoError(t, err)

		_, err = tx.Exec(ctx, "RETURN 1")
		assert.ErrorIs(t, err, cypher.ErrInvalidTransactionState)
		_, err = tx.Commit(ctx)
		assert.ErrorIs(t, err, cypher.ErrInvalidTransactionState)
		assert.ErrorIs(t, tx.Rollback(ctx), cypher.ErrInvalidTransactionState)
		assert.ErrorIs(t, tx.AddStatement("RETURN 1"), cypher.ErrInvalidTransactionState)
	})

	t.Run("operations after rollback", func(t *testing.T) {
		tx := session.Transaction()
		_, err := tx.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Rollback(ctx))

		_, err = tx.Send(ctx)
		assert.ErrorIs(t, err, cypher.ErrInvalidTransactionState)
		assert.ErrorIs(t, tx.Rollback(ctx), cypher.ErrInvalidTransactionState)
	})
}

func TestTransactionWithoutLocationHeader(t *testing.T) {
	// NornicDB answers without a Location header; the transaction URL is
	// derived from the commit URL instead.
	srv := cyphertest.NewServer(
		cyphertest.WithQueryFunc(languageStore),
		cyphertest.WithoutLocationHeader(),
	)
	t.Cleanup(srv.Close)
	session := cypher.New(srv.TxEndpoint("neo4j"))
	ctx := context.Background()

	tx := session.Transaction()
	_, err := tx.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.Exec(ctx, "MATCH (n:LANG) RETURN n.name")
	require.NoError(t, err)

	_, err = tx.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Commits())
}

func TestTransactionExpiry(t *testing.T) {
	srv := cyphertest.NewServer(cyphertest.WithExpiry(90 * time.Second))
	t.Cleanup(srv.Close)
	session := cypher.New(srv.TxEndpoint("neo4j"))
	ctx := context.Background()

	tx := session.Transaction()
	_, err := tx.Begin(ctx)
	require.NoError(t, err)

	expires := tx.Expires()
	assert.False(t, expires.IsZero())
	assert.InDelta(t, 90, time.Until(expires).Seconds(), 10)

	require.NoError(t, tx.KeepAlive(ctx))
	assert.False(t, tx.Expires().Before(expires))

	require.NoError(t, tx.Rollback(ctx))
}

// expireServerSide deletes a transaction behind the client's back, so a
// still-open client handle points at a transaction the server forgot.
func expireServerSide(t *testing.T, srv *cyphertest.Server, txID string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, srv.TxEndpoint("neo4j")+"/"+txID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestTransactionExpiredDetection(t *testing.T) {
	session, srv := newSession(t)
	ctx := context.Background()

	tx := session.Transaction()
	_, err := tx.Begin(ctx)
	require.NoError(t, err)

	// The fake assigns sequential ids; this is the first transaction.
	expireServerSide(t, srv, "1")

	_, err = tx.Exec(ctx, "RETURN 1")
	assert.ErrorIs(t, err, cypher.ErrTransactionExpired)
	assert.Equal(t, cypher.TxExpired, tx.State())

	// Expired is terminal.
	_, err = tx.Send(ctx)
	assert.ErrorIs(t, err, cypher.ErrInvalidTransactionState)
	assert.ErrorIs(t, tx.Rollback(ctx), cypher.ErrInvalidTransactionState)
}

func TestTransactionCommitAfterServerForgot(t *testing.T) {
	session, srv := newSession(t)
	ctx := context.Background()

	tx := session.Transaction()
	_, err := tx.Begin(ctx)
	require.NoError(t, err)

	expireServerSide(t, srv, "1")

	_, err = tx.Commit(ctx)
	assert.ErrorIs(t, err, cypher.ErrTransactionExpired)
	assert.Equal(t, cypher.TxExpired, tx.State())
	assert.Equal(t, 0, srv.Commits())
}

func TestTransactionCloseRollsBack(t *testing.T) {
	session, srv := newSession(t)
	ctx := context.Background()

	tx := session.Transaction()
	_, err := tx.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx.Close())
	assert.Equal(t, cypher.TxRolledBack, tx.State())
	assert.Equal(t, 1, srv.Rollbacks())

	// Close again is a no-op.
	require.NoError(t, tx.Close())
	assert.Equal(t, 1, srv.Rollbacks())
}

func TestTransactionCloseBeforeBegin(t *testing.T) {
	session, srv := newSession(t)

	tx := session.Transaction()
	require.NoError(t, tx.Close())
	assert.Equal(t, cypher.TxUnopened, tx.State())
	assert.Equal(t, 0, srv.Requests())
}

func TestTransactionBuilderErrorSurfaces(t *testing.T) {
	session, srv := newSession(t)

	tx := session.Transaction().WithStatement(42)
	_, err := tx.Begin(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, cypher.ErrInvalidTransactionState)
	assert.Equal(t, 0, srv.Requests())
}

func TestTransactionCommitFailureIsTerminal(t *testing.T) {
	session, _ := newSession(t)
	ctx := context.Background()

	tx := session.Transaction()
	_, err := tx.Begin(ctx)
	require.NoError(t, err)

	tx.WithStatement("BROKEN")
	_, err = tx.Commit(ctx)
	require.Error(t, err)
	assert.Equal(t, cypher.TxExpired, tx.State())

	// Terminal means terminal: no retrying the commit.
	_, err = tx.Commit(ctx)
	assert.ErrorIs(t, err, cypher.ErrInvalidTransactionState)
}
