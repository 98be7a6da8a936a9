// Package cypher is a client for the Neo4j-compatible HTTP transactional
// Cypher endpoint, as served by NornicDB and Neo4j.
//
// A Cypher session executes parameterized statements either with implicit
// commit (Exec, Query) or inside an explicit transaction (Transaction).
// Statement text is treated as opaque: placeholders are not parsed or
// validated client-side, the server is the authority on query syntax.
package cypher

import (
	"encoding/json"
	"fmt"
)

// Params is a shorthand for building a parameter map:
//
//	cypher.NewStatement("MATCH (n:LANG) WHERE n.name = $name RETURN n",
//	    cypher.Params{"name": "Rust"})
type Params map[string]any

// Statement is one query text plus its named parameter bindings. A
// statement included in a sent batch is never mutated afterwards;
// statements and ResultSets are immutable once sent and freely shareable.
type Statement struct {
	text       string
	parameters map[string]Value
}

// NewStatement creates a statement. Additional Params maps, if given, are
// merged into the parameter set in order, last write wins.
func NewStatement(text string, params ...Params) *Statement {
	s := &Statement{text: text, parameters: map[string]Value{}}
	for _, p := range params {
		for k, v := range p {
			s.parameters[k] = ValueOf(v)
		}
	}
	return s
}

// Text returns the statement text.
func (s *Statement) Text() string { return s.text }

// WithParam binds a parameter in builder style, returning the statement
// for chaining. Rebinding an existing name overwrites it; last write
// wins, no error.
func (s *Statement) WithParam(key string, value any) *Statement {
	s.AddParam(key, value)
	return s
}

// AddParam binds a parameter, overwriting any prior binding for the same
// name.
func (s *Statement) AddParam(key string, value any) {
	s.parameters[key] = ValueOf(value)
}

// Param returns the bound value for a name, and whether it exists.
func (s *Statement) Param(key string) (Value, bool) {
	v, ok := s.parameters[key]
	return v, ok
}

// Parameters returns a copy of the parameter map.
func (s *Statement) Parameters() map[string]Value {
	out := make(map[string]Value, len(s.parameters))
	for k, v := range s.parameters {
		out[k] = v
	}
	return out
}

// SetParameters replaces the whole parameter set.
func (s *Statement) SetParameters(params Params) {
	s.parameters = make(map[string]Value, len(params))
	for k, v := range params {
		s.parameters[k] = ValueOf(v)
	}
}

// RemoveParam unbinds a parameter. Removing a name that is not bound has
// no effect.
func (s *Statement) RemoveParam(key string) {
	delete(s.parameters, key)
}

// MarshalJSON writes the statement as one entry of the batch envelope:
// {"statement": "...", "parameters": {...}}. Parameters are omitted when
// empty.
func (s *Statement) MarshalJSON() ([]byte, error) {
	type wire struct {
		Statement  string           `json:"statement"`
		Parameters map[string]Value `json:"parameters,omitempty"`
	}
	w := wire{Statement: s.text}
	if len(s.parameters) > 0 {
		w.Parameters = s.parameters
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads a statement back from its batch entry form.
func (s *Statement) UnmarshalJSON(data []byte) error {
	var w struct {
		Statement  string           `json:"statement"`
		Parameters map[string]Value `json:"parameters"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.text = w.Statement
	s.parameters = w.Parameters
	if s.parameters == nil {
		s.parameters = map[string]Value{}
	}
	return nil
}

// toStatement converts the values accepted wherever a statement is
// expected: a *Statement, a Statement, or a bare query string with zero
// parameters.
func toStatement(v any) (*Statement, error) {
	switch stmt := v.(type) {
	case *Statement:
		if stmt == nil {
			return nil, fmt.Errorf("nil statement")
		}
		return stmt, nil
	case Statement:
		return &stmt, nil
	case string:
		return NewStatement(stmt), nil
	default:
		return nil, fmt.Errorf("cannot use %T as a statement", v)
	}
}
