// Package loader turns JSON or YAML bytes into a value.Located tree,
// preserving map insertion order and recording source positions wherever
// the underlying format library can supply them. The core engine (lang,
// value, query, scope, eval) never imports this package: hosts wire a
// loader of their choosing, of which this is the reference implementation
// used by this repository's own tests and cmd/guard.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws-cloudformation/guard-lang/value"
	"gopkg.in/yaml.v3"
)

// LoadError reports that a document could not be parsed.
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string { return fmt.Sprintf("%s: %s", e.Name, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// LoadJSON decodes a JSON document into a value.Located tree rooted at
// value.Root, preserving object key order by driving json.Decoder's token
// stream directly rather than decoding through map[string]interface{}
// (which does not preserve order). Integers that fit in an int64 become
// value.IntKind; any other JSON number becomes value.FloatKind.
//
// Plain encoding/json has no notion of source position, so nodes loaded
// this way carry Path but no Line/Column.
func LoadJSON(name string, data []byte) (value.Located, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSONValue(dec, value.Root)
	if err != nil {
		return value.Located{}, &LoadError{Name: name, Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return value.Located{}, &LoadError{Name: name, Err: fmt.Errorf("trailing content after document")}
	}
	return v, nil
}

func decodeJSONValue(dec *json.Decoder, path value.Path) (value.Located, error) {
	tok, err := dec.Token()
	if err != nil {
		return value.Located{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			out := value.NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return value.Located{}, err
				}
				key, _ := keyTok.(string)
				v, err := decodeJSONValue(dec, path.Child(key))
				if err != nil {
					return value.Located{}, err
				}
				out.Set(key, v)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return value.Located{}, err
			}
			return value.Resolved(value.MapOf(out), path), nil
		case '[':
			var items []value.Located
			for dec.More() {
				v, err := decodeJSONValue(dec, path.Child(fmt.Sprintf("%d", len(items))))
				if err != nil {
					return value.Located{}, err
				}
				items = append(items, v)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return value.Located{}, err
			}
			return value.Resolved(value.List(items), path), nil
		}
	case nil:
		return value.Resolved(value.Null(), path), nil
	case bool:
		return value.Resolved(value.Bool(t), path), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return value.Resolved(value.Int(i), path), nil
		}
		f, _ := t.Float64()
		return value.Resolved(value.Float(f), path), nil
	case string:
		return value.Resolved(value.String(t), path), nil
	}
	return value.Resolved(value.Null(), path), nil
}

// LoadYAML decodes a YAML document into a value.Located tree, preserving
// mapping key order and recording Line/Column from the YAML library's AST
// (gopkg.in/yaml.v3's yaml.Node).
func LoadYAML(name string, data []byte) (value.Located, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return value.Located{}, &LoadError{Name: name, Err: err}
	}
	if len(doc.Content) == 0 {
		return value.Resolved(value.Null(), value.Root), nil
	}
	return fromYAML(doc.Content[0], value.Root), nil
}

func fromYAML(n *yaml.Node, path value.Path) value.Located {
	path = path.WithPos(n.Line, n.Column)
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return value.Resolved(value.Null(), path)
		}
		return fromYAML(n.Content[0], path)
	case yaml.AliasNode:
		return fromYAML(n.Alias, path)
	case yaml.ScalarNode:
		return scalarFromYAML(n, path)
	case yaml.SequenceNode:
		items := make([]value.Located, len(n.Content))
		for i, c := range n.Content {
			items[i] = fromYAML(c, path.Child(fmt.Sprintf("%d", i)))
		}
		return value.Resolved(value.List(items), path)
	case yaml.MappingNode:
		out := value.NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			val := n.Content[i+1]
			out.Set(key.Value, fromYAML(val, path.Child(key.Value)))
		}
		return value.Resolved(value.MapOf(out), path)
	}
	return value.Resolved(value.Null(), path)
}

func scalarFromYAML(n *yaml.Node, path value.Path) value.Located {
	var tmp interface{}
	if err := n.Decode(&tmp); err != nil {
		return value.UnresolvedAt(path, err.Error())
	}
	switch v := tmp.(type) {
	case nil:
		return value.Resolved(value.Null(), path)
	case bool:
		return value.Resolved(value.Bool(v), path)
	case int:
		return value.Resolved(value.Int(int64(v)), path)
	case int64:
		return value.Resolved(value.Int(v), path)
	case float64:
		return value.Resolved(value.Float(v), path)
	case string:
		return value.Resolved(value.String(v), path)
	default:
		return value.Resolved(value.String(n.Value), path)
	}
}
