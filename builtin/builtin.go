// Package builtin implements the library of pure functions the rule
// language exposes as `.name(args)` query steps, applied element-wise to
// the current collection.
//
// Every function here follows the same contract: bad input produces an
// unresolved marker, never a panic or a Go error, so a misapplied builtin
// reads as a query that failed to resolve rather than as an evaluator
// crash.
package builtin

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/aws-cloudformation/guard-lang/value"
)

// Names lists the built-in functions this package implements, matching
// lang/parser's builtinFuncs table.
var Names = map[string]bool{
	"regex_replace": true,
	"join":          true,
	"count":         true,
	"parse_int":     true,
	"parse_float":   true,
	"parse_string":  true,
	"parse_boolean": true,
	"json_parse":    true,
}

// Apply calls the named built-in on recv with the given already-evaluated
// arguments, returning the result located at recv's path (built-ins never
// move the cursor to a different document position). An unknown name
// returns an unresolved marker rather than panicking, so a function name
// missing from lang/parser's allow-list fails softly instead of crashing
// the evaluator.
func Apply(name string, recv value.Located, args []value.Value) value.Located {
	if recv.Unresolved {
		return recv
	}
	switch name {
	case "regex_replace":
		return regexReplace(recv, args)
	case "join":
		return join(recv, args)
	case "count":
		return count(recv)
	case "parse_int":
		return parseInt(recv)
	case "parse_float":
		return parseFloat(recv)
	case "parse_string":
		return parseString(recv)
	case "parse_boolean":
		return parseBoolean(recv)
	case "json_parse":
		return jsonParse(recv)
	}
	return value.UnresolvedAt(recv.Path, "unknown built-in function "+name)
}

func unresolved(recv value.Located, reason string) value.Located {
	return value.UnresolvedAt(recv.Path, reason)
}

// regexReplace mirrors strings.ReplaceAll semantics via a compiled regex
// pattern: regex_replace(pattern, replacement). The receiver must be a
// string; pattern must be a regex or string literal.
func regexReplace(recv value.Located, args []value.Value) value.Located {
	if recv.Value.Kind() != value.StringKind {
		return unresolved(recv, "regex_replace: receiver is not a string")
	}
	if len(args) != 2 {
		return unresolved(recv, "regex_replace: expected 2 arguments")
	}
	pattern := args[0]
	if pattern.Kind() != value.RegexKind && pattern.Kind() != value.StringKind {
		return unresolved(recv, "regex_replace: pattern argument is not a regex or string")
	}
	replacement := args[1]
	if replacement.Kind() != value.StringKind {
		return unresolved(recv, "regex_replace: replacement argument is not a string")
	}
	re, err := value.Regex(pattern.Text()).Compile()
	if err != nil {
		return unresolved(recv, "regex_replace: invalid pattern: "+err.Error())
	}
	out := re.ReplaceAllString(recv.Value.StringValue(), replacement.StringValue())
	return value.Resolved(value.String(out), recv.Path)
}

// join concatenates a list receiver's string elements with a separator:
// join(separator).
func join(recv value.Located, args []value.Value) value.Located {
	if recv.Value.Kind() != value.ListKind {
		return unresolved(recv, "join: receiver is not a list")
	}
	if len(args) != 1 || args[0].Kind() != value.StringKind {
		return unresolved(recv, "join: expected 1 string argument")
	}
	parts := make([]string, 0, len(recv.Value.ListItems()))
	for _, item := range recv.Value.ListItems() {
		if item.Unresolved {
			return unresolved(recv, "join: list element is unresolved")
		}
		parts = append(parts, item.Value.Text())
	}
	return value.Resolved(value.String(strings.Join(parts, args[0].StringValue())), recv.Path)
}

// count returns a list or map receiver's length as an Int. Like every
// built-in it applies element-wise, so it belongs before a flattening
// step: `Tags.count()` counts the tags, while `Tags[*].count()` counts
// each enumerated tag's own entries.
func count(recv value.Located) value.Located {
	switch recv.Value.Kind() {
	case value.ListKind:
		return value.Resolved(value.Int(int64(len(recv.Value.ListItems()))), recv.Path)
	case value.MapKind:
		return value.Resolved(value.Int(int64(recv.Value.MapValue().Len())), recv.Path)
	}
	return unresolved(recv, "count: receiver is not a list or map")
}

func parseInt(recv value.Located) value.Located {
	if recv.Value.Kind() != value.StringKind {
		return unresolved(recv, "parse_int: receiver is not a string")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(recv.Value.StringValue()), 10, 64)
	if err != nil {
		return unresolved(recv, "parse_int: "+err.Error())
	}
	return value.Resolved(value.Int(n), recv.Path)
}

func parseFloat(recv value.Located) value.Located {
	if recv.Value.Kind() != value.StringKind {
		return unresolved(recv, "parse_float: receiver is not a string")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(recv.Value.StringValue()), 64)
	if err != nil {
		return unresolved(recv, "parse_float: "+err.Error())
	}
	return value.Resolved(value.Float(f), recv.Path)
}

// parseString renders any scalar receiver as its string text, the inverse
// of the parse_* family.
func parseString(recv value.Located) value.Located {
	switch recv.Value.Kind() {
	case value.ListKind, value.MapKind:
		return unresolved(recv, "parse_string: receiver is not a scalar")
	}
	return value.Resolved(value.String(recv.Value.Text()), recv.Path)
}

func parseBoolean(recv value.Located) value.Located {
	if recv.Value.Kind() != value.StringKind {
		return unresolved(recv, "parse_boolean: receiver is not a string")
	}
	b, err := strconv.ParseBool(strings.TrimSpace(recv.Value.StringValue()))
	if err != nil {
		return unresolved(recv, "parse_boolean: "+err.Error())
	}
	return value.Resolved(value.Bool(b), recv.Path)
}

// jsonParse decodes a string receiver holding embedded JSON text into a
// full Value tree, rooted at the receiver's own path (a common pattern in
// CloudFormation documents embedding a JSON policy document as a string).
func jsonParse(recv value.Located) value.Located {
	if recv.Value.Kind() != value.StringKind {
		return unresolved(recv, "json_parse: receiver is not a string")
	}
	var raw interface{}
	if err := json.Unmarshal([]byte(recv.Value.StringValue()), &raw); err != nil {
		return unresolved(recv, "json_parse: "+err.Error())
	}
	return fromInterface(raw, recv.Path)
}

func fromInterface(raw interface{}, path value.Path) value.Located {
	switch v := raw.(type) {
	case nil:
		return value.Resolved(value.Null(), path)
	case bool:
		return value.Resolved(value.Bool(v), path)
	case float64:
		if v == float64(int64(v)) {
			return value.Resolved(value.Int(int64(v)), path)
		}
		return value.Resolved(value.Float(v), path)
	case string:
		return value.Resolved(value.String(v), path)
	case []interface{}:
		items := make([]value.Located, len(v))
		for i, elt := range v {
			items[i] = fromInterface(elt, path.Child(strconv.Itoa(i)))
		}
		return value.Resolved(value.List(items), path)
	case map[string]interface{}:
		m := value.NewMap()
		for _, k := range sortedKeys(v) {
			m.Set(k, fromInterface(v[k], path.Child(k)))
		}
		return value.Resolved(value.MapOf(m), path)
	}
	return value.Resolved(value.Null(), path)
}

// sortedKeys is used only for json_parse's ad hoc map[string]interface{}
// (encoding/json has already discarded source order by the time we get
// here); a stable order still beats Go's randomized map iteration for
// reproducible diagnostics.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
