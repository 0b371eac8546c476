// Package scanner implements a lexer for the rule language, tokenizing
// policy source into a stream of token.Token values with source positions.
package scanner

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/aws-cloudformation/guard-lang/lang/token"
)

// ErrorHandler is invoked for each lexical error encountered. If nil, errors
// are silently counted in ErrorCount.
type ErrorHandler func(pos token.Position, msg string)

// Scanner tokenizes a single source file.
type Scanner struct {
	file *token.File
	src  []byte
	err  ErrorHandler

	ch         rune
	offset     int
	rdOffset   int
	lineOffset int

	ErrorCount int
}

const bom = 0xFEFF
const eof = -1

// Init prepares s to scan src, using file for position tracking.
func (s *Scanner) Init(file *token.File, src []byte, err ErrorHandler) {
	s.file = file
	s.src = src
	s.err = err
	s.ch = ' '
	s.offset = 0
	s.rdOffset = 0
	s.ErrorCount = 0
	s.next()
	if s.ch == bom {
		s.next() // ignore BOM at start of file
	}
}

func (s *Scanner) next() {
	if s.rdOffset < len(s.src) {
		s.offset = s.rdOffset
		if s.ch == '\n' {
			s.lineOffset = s.offset
			s.file.AddLine(s.offset)
		}
		r, w := rune(s.src[s.rdOffset]), 1
		switch {
		case r == 0:
			s.error(s.offset, "illegal character NUL")
		case r >= utf8.RuneSelf:
			r, w = utf8.DecodeRune(s.src[s.rdOffset:])
			if r == utf8.RuneError && w == 1 {
				s.error(s.offset, "illegal UTF-8 encoding")
			} else if r == bom && s.offset > 0 {
				s.error(s.offset, "illegal byte order mark")
			}
		}
		s.rdOffset += w
		s.ch = r
	} else {
		s.offset = len(s.src)
		if s.ch == '\n' {
			s.lineOffset = s.offset
			s.file.AddLine(s.offset)
		}
		s.ch = eof
	}
}

func (s *Scanner) peek() byte {
	if s.rdOffset < len(s.src) {
		return s.src[s.rdOffset]
	}
	return 0
}

func (s *Scanner) error(offset int, msg string) {
	s.ErrorCount++
	if s.err != nil {
		s.err(s.file.Pos(offset).Position(), msg)
	}
}

func isLetter(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isIdentRune(ch rune) bool {
	return isLetter(ch) || unicode.IsDigit(ch) || ch == '-' || ch == ':'
}

func isDigit(ch rune) bool {
	return unicode.IsDigit(ch)
}

func (s *Scanner) skipWhitespace() {
	for s.ch == ' ' || s.ch == '\t' || s.ch == '\n' || s.ch == '\r' {
		s.next()
	}
}

// scanIdentifier also accepts '-' and ':' after the first rune so that
// bare AWS-style symbols like us-east-1b or AWS::S3::Bucket lex as a single
// IDENT.
func (s *Scanner) scanIdentifier() string {
	start := s.offset
	for isIdentRune(s.ch) {
		s.next()
	}
	return string(s.src[start:s.offset])
}

func digitVal(ch rune) int {
	switch {
	case '0' <= ch && ch <= '9':
		return int(ch - '0')
	}
	return 16
}

func (s *Scanner) scanNumber() (token.Token, string) {
	start := s.offset
	tok := token.INT
	for isDigit(s.ch) {
		s.next()
	}
	if s.ch == '.' && isDigit(rune(s.peek())) {
		tok = token.FLOAT
		s.next()
		for isDigit(s.ch) {
			s.next()
		}
	}
	if s.ch == 'e' || s.ch == 'E' {
		tok = token.FLOAT
		s.next()
		if s.ch == '+' || s.ch == '-' {
			s.next()
		}
		for isDigit(s.ch) {
			s.next()
		}
	}
	return tok, string(s.src[start:s.offset])
}

// scanString scans a "..." or '...' string literal, with \-escapes, and
// returns the raw literal text, delimiters and escapes included (unescaping
// is left to lang/literal.Unquote).
func (s *Scanner) scanString(quote rune) string {
	start := s.offset
	s.next() // consume opening quote
	for {
		ch := s.ch
		if ch == '\n' || ch < 0 {
			s.error(start, "string literal not terminated")
			break
		}
		s.next()
		if ch == quote {
			break
		}
		if ch == '\\' {
			s.scanEscape(quote)
		}
	}
	return string(s.src[start:s.offset])
}

func (s *Scanner) scanEscape(quote rune) {
	switch s.ch {
	case 'a', 'b', 'f', 'n', 'r', 't', 'v', '\\', quote:
		s.next()
	case 'u':
		s.next()
		for i := 0; i < 4 && isHex(s.ch); i++ {
			s.next()
		}
	default:
		s.error(s.offset, fmt.Sprintf("unknown escape sequence %q", s.ch))
		s.next()
	}
}

func isHex(ch rune) bool {
	return ('0' <= ch && ch <= '9') || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
}

// scanRegex scans a /.../ literal where \/ escapes a literal slash.
func (s *Scanner) scanRegex() string {
	start := s.offset
	s.next() // consume opening '/'
	for {
		ch := s.ch
		if ch == '\n' || ch < 0 {
			s.error(start, "regex literal not terminated")
			break
		}
		s.next()
		if ch == '/' {
			break
		}
		if ch == '\\' && s.ch == '/' {
			s.next()
		}
	}
	return string(s.src[start:s.offset])
}

// scanMessage scans a <<...>> custom-message block, returning the raw text
// between the delimiters, preserved verbatim.
func (s *Scanner) scanMessage() string {
	start := s.offset
	for {
		if s.ch < 0 {
			s.error(start, "custom message not terminated")
			break
		}
		if s.ch == '>' && s.peek() == '>' {
			break
		}
		s.next()
	}
	text := string(s.src[start:s.offset])
	s.next()
	s.next()
	return text
}

func (s *Scanner) skipLineComment() {
	for s.ch != '\n' && s.ch >= 0 {
		s.next()
	}
}

// Scan returns the next token, its source position, and its literal text:
// the source text for IDENT/THIS/INT/FLOAT/STRING/REGEX, the canonical
// spelling for other keywords, the message text for MSG_OPEN, and the
// offending character for ILLEGAL; empty otherwise, COMMENT included.
func (s *Scanner) Scan() (pos token.Pos, tok token.Token, lit string) {
	s.skipWhitespace()
	pos = s.file.Pos(s.offset)

	switch ch := s.ch; {
	case isLetter(ch):
		lit = s.scanIdentifier()
		tok = token.Lookup(lit)
		if tok != token.IDENT && tok != token.THIS {
			// Keywords are normalized to their canonical spelling; the AST
			// never sees the source's casing for reserved words.
			lit = tok.String()
		}
	case isDigit(ch):
		tok, lit = s.scanNumber()
	case ch == '"' || ch == '\'':
		tok = token.STRING
		lit = s.scanString(ch)
	case ch == '/':
		tok = token.REGEX
		lit = s.scanRegex()
	default:
		s.next()
		switch ch {
		case eof:
			tok = token.EOF
		case '#':
			s.skipLineComment()
			tok = token.COMMENT
		case '%':
			tok = token.PERCENT
		case '{':
			tok = token.LBRACE
		case '}':
			tok = token.RBRACE
		case '[':
			tok = token.LBRACK
		case ']':
			tok = token.RBRACK
		case '(':
			tok = token.LPAREN
		case ')':
			tok = token.RPAREN
		case ',':
			tok = token.COMMA
		case ':':
			if s.ch == '=' {
				s.next()
				tok = token.DEFASSIGN
			} else {
				tok = token.COLON
			}
		case '.':
			tok = token.PERIOD
		case '*':
			tok = token.STAR
		case '!':
			if s.ch == '=' {
				s.next()
				tok = token.NEQ
			} else {
				tok = token.NOT
			}
		case '=':
			if s.ch == '=' {
				s.next()
				tok = token.EQL
			} else {
				tok = token.ASSIGN
			}
		case '<':
			switch s.ch {
			case '=':
				s.next()
				tok = token.LEQ
			case '<':
				s.next()
				tok = token.MSG_OPEN
				lit = s.scanMessage()
			default:
				tok = token.LSS
			}
		case '>':
			switch s.ch {
			case '=':
				s.next()
				tok = token.GEQ
			case '>':
				s.next()
				tok = token.MSG_CLOSE
			default:
				tok = token.GTR
			}
		default:
			s.error(s.offset-1, fmt.Sprintf("illegal character %#U", ch))
			tok = token.ILLEGAL
			lit = string(ch)
		}
	}
	return
}
