package scanner_test

import (
	"testing"

	"github.com/aws-cloudformation/guard-lang/lang/scanner"
	"github.com/aws-cloudformation/guard-lang/lang/token"
)

type tok struct {
	tok token.Token
	lit string
}

func scanAll(t *testing.T, src string) []tok {
	t.Helper()
	file := token.NewFile("test", len(src))
	var s scanner.Scanner
	var errs []string
	s.Init(file, []byte(src), func(pos token.Position, msg string) {
		errs = append(errs, msg)
	})
	var out []tok
	for {
		_, tk, lit := s.Scan()
		if tk == token.EOF {
			break
		}
		out = append(out, tok{tk, lit})
	}
	if len(errs) > 0 {
		t.Fatalf("unexpected scan errors: %v", errs)
	}
	return out
}

func TestScanIdentifiersWithAWSStyleSymbols(t *testing.T) {
	got := scanAll(t, "us-east-1b AWS::S3::Bucket")
	want := []tok{
		{token.IDENT, "us-east-1b"},
		{token.IDENT, "AWS::S3::Bucket"},
	}
	assertTokens(t, got, want)
}

func TestScanStringLiteralsBothQuoteStyles(t *testing.T) {
	// The scanner reports the raw literal text including its delimiters;
	// unquoting and unescaping are lang/literal's job.
	got := scanAll(t, `"double" 'single'`)
	want := []tok{
		{token.STRING, `"double"`},
		{token.STRING, `'single'`},
	}
	assertTokens(t, got, want)
}

func TestScanRegexLiteralWithEscapedSlash(t *testing.T) {
	got := scanAll(t, `/a\/b/`)
	want := []tok{{token.REGEX, `/a\/b/`}}
	assertTokens(t, got, want)
}

func TestScanNumbers(t *testing.T) {
	got := scanAll(t, "123 1.5")
	want := []tok{
		{token.INT, "123"},
		{token.FLOAT, "1.5"},
	}
	assertTokens(t, got, want)
}

func TestScanKeywordsCaseInsensitive(t *testing.T) {
	got := scanAll(t, "rule RULE Rule when WHEN exists EXISTS")
	for _, g := range got {
		if g.tok != token.RULE && g.tok != token.WHEN && g.tok != token.EXISTS {
			t.Fatalf("expected a keyword token, got %v %q", g.tok, g.lit)
		}
	}
}

func TestScanOperatorsAndPunctuation(t *testing.T) {
	got := scanAll(t, "== != <= >= < > { } [ ] ( ) , : . * %")
	wantToks := []token.Token{
		token.EQL, token.NEQ, token.LEQ, token.GEQ, token.LSS, token.GTR,
		token.LBRACE, token.RBRACE, token.LBRACK, token.RBRACK,
		token.LPAREN, token.RPAREN, token.COMMA, token.COLON, token.PERIOD,
		token.STAR, token.PERCENT,
	}
	if len(got) != len(wantToks) {
		t.Fatalf("got %d tokens, want %d", len(got), len(wantToks))
	}
	for i, w := range wantToks {
		if got[i].tok != w {
			t.Errorf("token %d: got %v, want %v", i, got[i].tok, w)
		}
	}
}

func TestScanCommentsAreSkippedByParserButReportedHere(t *testing.T) {
	file := token.NewFile("test", 0)
	var s scanner.Scanner
	s.Init(file, []byte("# a comment\nlet x = 1"), nil)
	_, tk, lit := s.Scan()
	if tk != token.COMMENT {
		t.Fatalf("expected COMMENT, got %v %q", tk, lit)
	}
}

func TestScanCustomMessageCarriesVerbatimText(t *testing.T) {
	// A << ... >> block is a single MSG_OPEN token whose literal is the
	// text between the delimiters, preserved verbatim; the closing >> is
	// consumed with it.
	got := scanAll(t, "<< must be encrypted >>")
	if len(got) != 1 || got[0].tok != token.MSG_OPEN {
		t.Fatalf("expected a single MSG_OPEN token, got %v", got)
	}
	if got[0].lit != " must be encrypted " {
		t.Fatalf("expected the message text to be preserved verbatim, got %q", got[0].lit)
	}
}

func TestScanBothAssignmentSpellingsAreDistinctTokens(t *testing.T) {
	got := scanAll(t, "= :=")
	assertTokens(t, got, []tok{{token.ASSIGN, ""}, {token.DEFASSIGN, ""}})
}

func assertTokens(t *testing.T, got, want []tok) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d tokens %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i].tok != want[i].tok || got[i].lit != want[i].lit {
			t.Errorf("token %d: got {%v %q}, want {%v %q}", i, got[i].tok, got[i].lit, want[i].tok, want[i].lit)
		}
	}
}
