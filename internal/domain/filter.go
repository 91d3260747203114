package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ClauseKind is the kind of one filtered deck search term.
type ClauseKind int

const (
	ClauseDeck ClauseKind = iota
	ClauseIs
	ClauseProp
)

// Clause is one parsed search term.
type Clause struct {
	Kind   ClauseKind
	Negate bool

	// ClauseDeck
	Deck     string
	Wildcard bool

	// ClauseIs: one of "new", "learn", "review", "due".
	State string

	// ClauseProp: Prop is one of "ivl", "lapses", "reps", "ease".
	Prop  string
	Op    string
	Value float64
}

// Filter is a parsed search. All clauses must match.
type Filter struct {
	Clauses []Clause
}

var (
	filterStates = map[string]bool{"new": true, "learn": true, "review": true, "due": true}
	filterProps  = map[string]bool{"ivl": true, "lapses": true, "reps": true, "ease": true}
	// longest operators first so "<=" is not read as "<".
	filterOps = []string{"<=", ">=", "!=", "<", ">", "="}
)

// ParseFilter parses a search such as `deck:Spanish is:due -prop:ivl>30`.
func ParseFilter(search string) (Filter, error) {
	tokens, err := splitSearch(search)
	if err != nil {
		return Filter{}, err
	}
	var f Filter
	for _, tok := range tokens {
		c, err := parseClause(tok)
		if err != nil {
			return Filter{}, err
		}
		f.Clauses = append(f.Clauses, c)
	}
	return f, nil
}

func parseClause(tok string) (Clause, error) {
	var c Clause
	if strings.HasPrefix(tok, "-") {
		c.Negate = true
		tok = tok[1:]
	}
	key, val, ok := strings.Cut(tok, ":")
	if !ok || val == "" {
		return c, fmt.Errorf("%w: search term %q", ErrInvalidInput, tok)
	}
	switch strings.ToLower(key) {
	case "deck":
		c.Kind = ClauseDeck
		if strings.HasSuffix(val, "*") {
			c.Wildcard = true
			val = strings.TrimSuffix(val, "*")
		}
		c.Deck = val
	case "is":
		c.Kind = ClauseIs
		c.State = strings.ToLower(val)
		if !filterStates[c.State] {
			return c, fmt.Errorf("%w: unknown state %q", ErrInvalidInput, val)
		}
	case "prop":
		c.Kind = ClauseProp
		for _, op := range filterOps {
			if i := strings.Index(val, op); i > 0 {
				c.Prop, c.Op = strings.ToLower(val[:i]), op
				n, err := strconv.ParseFloat(val[i+len(op):], 64)
				if err != nil {
					return c, fmt.Errorf("%w: property value in %q", ErrInvalidInput, tok)
				}
				c.Value = n
				break
			}
		}
		if !filterProps[c.Prop] {
			return c, fmt.Errorf("%w: property term %q", ErrInvalidInput, val)
		}
	default:
		return c, fmt.Errorf("%w: unknown search key %q", ErrInvalidInput, key)
	}
	return c, nil
}

// splitSearch splits on spaces, keeping double-quoted runs together.
func splitSearch(s string) ([]string, error) {
	var (
		tokens []string
		cur    strings.Builder
		quoted bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
		case r == ' ' && !quoted:
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if quoted {
		return nil, fmt.Errorf("%w: unterminated quote in %q", ErrInvalidInput, s)
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}
