package cypher

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatement(t *testing.T) {
	stmt := NewStatement("MATCH (n) RETURN n")
	assert.Equal(t, "MATCH (n) RETURN n", stmt.Text())
	assert.Empty(t, stmt.Parameters())
}

func TestNewStatementMergesParams(t *testing.T) {
	stmt := NewStatement("CREATE (n:LANG {name: $name, level: $level})",
		Params{"name": "Rust", "level": 1},
		Params{"level": 2, "safe": true},
	)

	v, ok := stmt.Param("name")
	require.True(t, ok)
	assert.True(t, v.Equal(String("Rust")))

	// Later maps win over earlier ones.
	v, ok = stmt.Param("level")
	require.True(t, ok)
	assert.True(t, v.Equal(Int(2)))

	v, ok = stmt.Param("safe")
	require.True(t, ok)
	assert.True(t, v.Equal(Bool(true)))
}

func TestWithParamLastWriteWins(t *testing.T) {
	stmt := NewStatement("RETURN $x").
		WithParam("x", 1).
		WithParam("x", "one")

	v, ok := stmt.Param("x")
	require.True(t, ok)
	assert.True(t, v.Equal(String("one")))
	assert.Len(t, stmt.Parameters(), 1)
}

func TestRemoveParam(t *testing.T) {
	stmt := NewStatement("RETURN $x", Params{"x": 1, "y": 2})
	stmt.RemoveParam("x")
	_, ok := stmt.Param("x")
	assert.False(t, ok)

	// Removing an unbound name is a no-op.
	stmt.RemoveParam("z")
	assert.Len(t, stmt.Parameters(), 1)
}

func TestSetParametersReplaces(t *testing.T) {
	stmt := NewStatement("RETURN $x", Params{"x": 1})
	stmt.SetParameters(Params{"y": "only"})
	_, ok := stmt.Param("x")
	assert.False(t, ok)
	v, ok := stmt.Param("y")
	require.True(t, ok)
	assert.True(t, v.Equal(String("only")))
}

func TestParametersReturnsCopy(t *testing.T) {
	stmt := NewStatement("RETURN $x", Params{"x": 1})
	params := stmt.Parameters()
	params["x"] = String("mutated")

	v, _ := stmt.Param("x")
	assert.True(t, v.Equal(Int(1)))
}

func TestStatementMarshalsWireShape(t *testing.T) {
	tests := []struct {
		name string
		stmt *Statement
		want string
	}{
		{
			"no parameters omits the key",
			NewStatement("MATCH (n) RETURN n"),
			`{"statement":"MATCH (n) RETURN n"}`,
		},
		{
			"parameters included",
			NewStatement("RETURN $n", Params{"n": 5}),
			`{"statement":"RETURN $n","parameters":{"n":5}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.stmt)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestStatementUnmarshal(t *testing.T) {
	var stmt Statement
	require.NoError(t, json.Unmarshal(
		[]byte(`{"statement":"RETURN $n","parameters":{"n":5}}`), &stmt))
	assert.Equal(t, "RETURN $n", stmt.Text())
	v, ok := stmt.Param("n")
	require.True(t, ok)
	assert.True(t, v.Equal(Int(5)))
}

func TestToStatement(t *testing.T) {
	stmt, err := toStatement("MATCH (n) RETURN n")
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n) RETURN n", stmt.Text())

	original := NewStatement("RETURN 1")
	same, err := toStatement(original)
	require.NoError(t, err)
	assert.Same(t, original, same)

	_, err = toStatement(42)
	assert.Error(t, err)

	_, err = toStatement((*Statement)(nil))
	assert.Error(t, err)
}
