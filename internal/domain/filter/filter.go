// Package filter turns a JSON metadata filter into typed equality conditions
// that vector backends can push down or evaluate in process.
package filter

import (
	"fmt"
	"sort"
	"strconv"
)

// MaxConditions is the maximum number of conditions in one filter.
const MaxConditions = 32

// Kind is the value class of a condition.
type Kind int

const (
	// KindTag is an exact string match.
	KindTag Kind = iota
	// KindNumber is an exact numeric match.
	KindNumber
	// KindBool is an exact boolean match.
	KindBool
)

// Condition is a single metadata equality clause.
type Condition struct {
	key    string
	kind   Kind
	text   string
	number float64
	flag   bool
}

// Key returns the metadata field name.
func (c Condition) Key() string { return c.key }

// Kind returns the value class.
func (c Condition) Kind() Kind { return c.kind }

// Text returns the tag value, or the canonical string form for numbers and bools.
func (c Condition) Text() string {
	switch c.kind {
	case KindNumber:
		return strconv.FormatFloat(c.number, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(c.flag)
	default:
		return c.text
	}
}

// AsTag returns a KindTag condition on the same key with the given text.
// Backends use it to match an encoded form of the value.
func (c Condition) AsTag(text string) Condition {
	return Condition{key: c.key, kind: KindTag, text: text}
}

// Number returns the numeric value for KindNumber.
func (c Condition) Number() float64 { return c.number }

// Matches reports whether a metadata value satisfies the condition.
// Numbers compare by value regardless of their Go type (JSON decoding yields float64).
func (c Condition) Matches(v any) bool {
	switch c.kind {
	case KindNumber:
		n, ok := toFloat(v)
		return ok && n == c.number
	case KindBool:
		b, ok := v.(bool)
		return ok && b == c.flag
	default:
		s, ok := v.(string)
		return ok && s == c.text
	}
}

// Expression is a conjunction of conditions. The zero value matches everything.
type Expression struct {
	must []Condition
}

// Must returns the conditions, sorted by key.
func (e Expression) Must() []Condition { return e.must }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool { return len(e.must) == 0 }

// Matches reports whether metadata satisfies every condition.
func (e Expression) Matches(metadata map[string]any) bool {
	for _, c := range e.must {
		v, ok := metadata[c.key]
		if !ok || !c.Matches(v) {
			return false
		}
	}
	return true
}

// Split partitions the conditions: those accepted by keep go to in, the rest to out.
func (e Expression) Split(keep func(Condition) bool) (in, out Expression) {
	for _, c := range e.must {
		if keep(c) {
			in.must = append(in.must, c)
		} else {
			out.must = append(out.must, c)
		}
	}
	return in, out
}

// Map returns an expression with every condition replaced by fn(c).
func (e Expression) Map(fn func(Condition) Condition) Expression {
	if e.IsEmpty() {
		return e
	}
	out := make([]Condition, len(e.must))
	for i, c := range e.must {
		out[i] = fn(c)
	}
	return Expression{must: out}
}

// FromMap builds an Expression from a {key: scalar} map.
// Strings, numbers and booleans are accepted; nested values are rejected.
func FromMap(m map[string]any) (Expression, error) {
	if len(m) == 0 {
		return Expression{}, nil
	}
	if len(m) > MaxConditions {
		return Expression{}, fmt.Errorf("too many filter conditions (max %d)", MaxConditions)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]Condition, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			return Expression{}, fmt.Errorf("filter key is required")
		}
		c := Condition{key: k}
		switch v := m[k].(type) {
		case string:
			c.kind, c.text = KindTag, v
		case bool:
			c.kind, c.flag = KindBool, v
		default:
			n, ok := toFloat(v)
			if !ok {
				return Expression{}, fmt.Errorf("unsupported filter value for key %q: %T", k, v)
			}
			c.kind, c.number = KindNumber, n
		}
		conds = append(conds, c)
	}
	return Expression{must: conds}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
