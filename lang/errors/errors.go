// Package errors defines the positioned diagnostic type lang/parser uses
// to report policy-source problems.
package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws-cloudformation/guard-lang/lang/token"
)

// Error is the common diagnostic type produced by this module: a plain
// error with a source position. Document-side diagnostics (missing
// property, type mismatch) live on the evaluator's outcome nodes instead,
// which carry the document path alongside the verdict.
type Error interface {
	error
	Position() token.Pos
}

// posError is the concrete Error used throughout this module.
type posError struct {
	pos token.Pos
	msg string
}

func (e *posError) Error() string {
	if e.pos.IsValid() {
		return fmt.Sprintf("%s: %s", e.pos, e.msg)
	}
	return e.msg
}

func (e *posError) Position() token.Pos { return e.pos }

// Newf creates an Error positioned at pos with a formatted message.
func Newf(pos token.Pos, format string, args ...interface{}) Error {
	return &posError{pos: pos, msg: fmt.Sprintf(format, args...)}
}

// List collects diagnostics in the order encountered and can render a
// combined message.
type List []Error

func (l List) Error() string {
	var b strings.Builder
	for i, e := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Error())
	}
	return b.String()
}

// Add appends err to the list.
func (l *List) Add(err Error) { *l = append(*l, err) }

// Sort orders the list by source position, with no-position errors first.
func (l List) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		pi, pj := l[i].Position(), l[j].Position()
		if !pi.IsValid() {
			return pj.IsValid()
		}
		if !pj.IsValid() {
			return false
		}
		return pi.Offset() < pj.Offset()
	})
}

// Err returns nil if the list is empty, else the list itself as an error.
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}
