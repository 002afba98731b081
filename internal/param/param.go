// Package param describes benchmark sweep axes, their Cartesian
// combinations and the canonical combination key used in result files.
package param

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrBadKey   = errors.New("param: malformed combination key")
	ErrBadValue = errors.New("param: unsupported axis value")
)

// Param is one named value. Values are int, float64 or bool.
type Param struct {
	Name  string
	Value any
}

// Combination is an ordered assignment of one value per axis.
type Combination []Param

func (c Combination) Lookup(name string) (any, bool) {
	for _, p := range c {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Int returns the integer value of name, or def when absent.
func (c Combination) Int(name string, def int) (int, error) {
	v, ok := c.Lookup(name)
	if !ok {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case float64:
		if x == math.Trunc(x) {
			return int(x), nil
		}
	}
	return 0, fmt.Errorf("%w: %s=%v is not an integer", ErrBadValue, name, v)
}

// Float returns the numeric value of name, or def when absent.
func (c Combination) Float(name string, def float64) (float64, error) {
	v, ok := c.Lookup(name)
	if !ok {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case float64:
		return x, nil
	}
	return 0, fmt.Errorf("%w: %s=%v is not a number", ErrBadValue, name, v)
}

// Bool returns the boolean value of name, or def when absent.
func (c Combination) Bool(name string, def bool) (bool, error) {
	v, ok := c.Lookup(name)
	if !ok {
		return def, nil
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("%w: %s=%v is not a boolean", ErrBadValue, name, v)
}

func (c Combination) Names() []string {
	names := make([]string, len(c))
	for i, p := range c {
		names[i] = p.Name
	}
	return names
}

// FormatValue renders a value the way it appears in a key. Booleans are
// capitalized to match keys in existing result files.
func FormatValue(v any) string {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(x)
	}
}

// ParseValue reads a key fragment back: integers first, then floats,
// then booleans.
func ParseValue(s string) (any, error) {
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrBadValue, s)
}

// Key joins name+value for every parameter with underscores, for example
// "M5_N15".
func Key(c Combination) string {
	parts := make([]string, len(c))
	for i, p := range c {
		parts[i] = p.Name + FormatValue(p.Value)
	}
	return strings.Join(parts, "_")
}

// ParseKey inverts Key given the axis names in key order. Names may
// contain underscores; each value runs up to the next "_<name>".
func ParseKey(key string, names []string) (Combination, error) {
	out := make(Combination, 0, len(names))
	rest := key
	for i, name := range names {
		if !strings.HasPrefix(rest, name) {
			return nil, fmt.Errorf("%w: %q does not continue with %q", ErrBadKey, key, name)
		}
		rest = rest[len(name):]

		var raw string
		if i == len(names)-1 {
			raw, rest = rest, ""
		} else {
			sep := "_" + names[i+1]
			idx := strings.Index(rest, sep)
			if idx < 0 {
				return nil, fmt.Errorf("%w: %q is missing %q", ErrBadKey, key, names[i+1])
			}
			raw, rest = rest[:idx], rest[idx+1:]
		}
		v, err := ParseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadKey, name, err)
		}
		out = append(out, Param{Name: name, Value: v})
	}
	if rest != "" {
		return nil, fmt.Errorf("%w: trailing %q", ErrBadKey, rest)
	}
	return out, nil
}

// Axis is a named sequence of candidate values.
type Axis struct {
	Name   string
	Values []any
}

// Axes is an ordered list of axes. The order defines the key layout and
// survives YAML and JSON round trips, where Axes is an object.
type Axes []Axis

func (a Axes) Names() []string {
	names := make([]string, len(a))
	for i, ax := range a {
		names[i] = ax.Name
	}
	return names
}

// Size returns the number of combinations.
func (a Axes) Size() int {
	if len(a) == 0 {
		return 0
	}
	n := 1
	for _, ax := range a {
		n *= len(ax.Values)
	}
	return n
}

// Combinations enumerates the Cartesian product, first axis outermost.
func (a Axes) Combinations() []Combination {
	if len(a) == 0 {
		return nil
	}
	out := make([]Combination, 0, a.Size())
	a.expand(0, make(Combination, 0, len(a)), &out)
	return out
}

func (a Axes) expand(depth int, current Combination, out *[]Combination) {
	if depth == len(a) {
		*out = append(*out, append(Combination(nil), current...))
		return
	}
	ax := a[depth]
	for _, v := range ax.Values {
		a.expand(depth+1, append(current, Param{Name: ax.Name, Value: v}), out)
	}
}

// Validate checks names and value types.
func (a Axes) Validate() error {
	seen := make(map[string]bool, len(a))
	for _, ax := range a {
		if ax.Name == "" || strings.HasPrefix(ax.Name, "_") {
			return fmt.Errorf("%w: invalid axis name %q", ErrBadValue, ax.Name)
		}
		if seen[ax.Name] {
			return fmt.Errorf("%w: duplicate axis %q", ErrBadValue, ax.Name)
		}
		seen[ax.Name] = true
		if len(ax.Values) == 0 {
			return fmt.Errorf("%w: axis %q has no values", ErrBadValue, ax.Name)
		}
		for _, v := range ax.Values {
			switch v.(type) {
			case int, float64, bool:
			default:
				return fmt.Errorf("%w: axis %q value %v (%T)", ErrBadValue, ax.Name, v, v)
			}
		}
	}
	return nil
}

func (a Axes) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, ax := range a {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, v := range ax.Values {
			var item yaml.Node
			if err := item.Encode(v); err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, &item)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: ax.Name},
			seq,
		)
	}
	return node, nil
}

func (a *Axes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("param: axes must be a mapping, got line %d", node.Line)
	}
	out := make(Axes, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var values []any
		if err := node.Content[i+1].Decode(&values); err != nil {
			return fmt.Errorf("param: axis %q: %w", name, err)
		}
		for j, v := range values {
			values[j] = normalize(v)
		}
		out = append(out, Axis{Name: name, Values: values})
	}
	*a = out
	return nil
}

func (a Axes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ax := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(ax.Name)
		if err != nil {
			return nil, err
		}
		values, err := json.Marshal(ax.Values)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(values)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a *Axes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("param: axes must be a JSON object")
	}
	out := make(Axes, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("param: axis name %v is not a string", tok)
		}
		var raw []any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("param: axis %q: %w", name, err)
		}
		for j, v := range raw {
			raw[j] = normalize(v)
		}
		out = append(out, Axis{Name: name, Values: raw})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}

// normalize maps decoded YAML/JSON scalars onto int, float64 and bool.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := strconv.Atoi(x.String()); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case int64:
		return int(x)
	case uint64:
		return int(x)
	default:
		return v
	}
}
