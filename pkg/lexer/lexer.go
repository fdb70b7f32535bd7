package lexer

import (
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/unicode/norm"
)

type TokenType string

// Token represents a lexical token.
type Token struct {
	Type     TokenType
	Literal  string // the actual text of the token (lexeme)
	Line     int    // 1-based line number where the token starts
	Column   int    // 1-based column number where the token starts
	StartPos int    // 0-based byte offset where the token starts
	EndPos   int    // 0-based byte offset after the token ends
}

// --- Token Types ---
const (
	// Special
	ILLEGAL TokenType = "ILLEGAL"
	EOF     TokenType = "EOF"

	// Layout. Kava is indentation-structured: the scanner turns physical
	// lines into NEWLINE and indentation changes into INDENT/OUTDENT
	// pairs, so the parser never counts spaces itself.
	NEWLINE TokenType = "NEWLINE"
	INDENT  TokenType = "INDENT"
	OUTDENT TokenType = "OUTDENT"

	// Identifiers + Literals
	IDENT  TokenType = "IDENT"
	NUMBER TokenType = "NUMBER"
	STRING TokenType = "STRING"
	REGEX  TokenType = "REGEX"

	// Operators
	PLUS     TokenType = "+"
	MINUS    TokenType = "-"
	ASTERISK TokenType = "*"
	SLASH    TokenType = "/"
	PERCENT  TokenType = "%"
	BANG     TokenType = "!"
	EQ       TokenType = "=="
	NOT_EQ   TokenType = "!="
	LT       TokenType = "<"
	GT       TokenType = ">"
	LE       TokenType = "<="
	GE       TokenType = ">="

	LOGICAL_AND TokenType = "&&"
	LOGICAL_OR  TokenType = "||"
	AND_ASSIGN  TokenType = "&&="
	OR_ASSIGN   TokenType = "||="

	DOT   TokenType = "."
	RANGE TokenType = ".."

	// Delimiters
	COMMA    TokenType = ","
	COLON    TokenType = ":"
	LPAREN   TokenType = "("
	RPAREN   TokenType = ")"
	LBRACKET TokenType = "["
	RBRACKET TokenType = "]"
	LBRACE   TokenType = "{"
	RBRACE   TokenType = "}"
	ARROW    TokenType = "=>"

	// Keywords
	IF       TokenType = "IF"
	UNLESS   TokenType = "UNLESS"
	ELSE     TokenType = "ELSE"
	THEN     TokenType = "THEN"
	WHILE    TokenType = "WHILE"
	FOR      TokenType = "FOR"
	IN       TokenType = "IN"
	SWITCH   TokenType = "SWITCH"
	WHEN     TokenType = "WHEN"
	TRY      TokenType = "TRY"
	CATCH    TokenType = "CATCH"
	FINALLY  TokenType = "FINALLY"
	THROW    TokenType = "THROW"
	RETURN   TokenType = "RETURN"
	BREAK    TokenType = "BREAK"
	CONTINUE TokenType = "CONTINUE"
	NEW      TokenType = "NEW"
	SUPER    TokenType = "SUPER"
	DELETE   TokenType = "DELETE"
	TRUE     TokenType = "TRUE"
	FALSE    TokenType = "FALSE"
	NULL     TokenType = "NULL"
	IS       TokenType = "IS"
	AINT     TokenType = "AINT"
	AND      TokenType = "AND"
	OR       TokenType = "OR"
	NOT      TokenType = "NOT"
)

var keywords = map[string]TokenType{
	"if":       IF,
	"unless":   UNLESS,
	"else":     ELSE,
	"then":     THEN,
	"while":    WHILE,
	"for":      FOR,
	"in":       IN,
	"switch":   SWITCH,
	"when":     WHEN,
	"try":      TRY,
	"catch":    CATCH,
	"finally":  FINALLY,
	"throw":    THROW,
	"return":   RETURN,
	"break":    BREAK,
	"continue": CONTINUE,
	"new":      NEW,
	"super":    SUPER,
	"delete":   DELETE,
	"true":     TRUE,
	"false":    FALSE,
	"null":     NULL,
	"is":       IS,
	"aint":     AINT,
	"and":      AND,
	"or":       OR,
	"not":      NOT,
}

// LookupIdent checks the keywords table for an identifier.
func LookupIdent(ident string) TokenType {
	if tokType, ok := keywords[ident]; ok {
		return tokType
	}
	return IDENT
}

// operandEnders are the token types a value expression can end on. A
// slash directly after one of these is division; anywhere else it opens
// a regex literal.
var operandEnders = map[TokenType]bool{
	IDENT:    true,
	NUMBER:   true,
	STRING:   true,
	REGEX:    true,
	RPAREN:   true,
	RBRACKET: true,
	RBRACE:   true,
	TRUE:     true,
	FALSE:    true,
	NULL:     true,
}

// Lexer holds the state of the scanner.
type Lexer struct {
	input        string
	position     int  // byte offset of the current char
	readPosition int  // byte offset after the current char
	ch           byte // current char under examination
	line         int  // current 1-based line number
	column       int  // current 1-based column number

	indents        []int     // open indentation widths, root level included
	pendingOutdent int       // outdents still owed from the last dedent
	bracketDepth   int       // layout is suspended inside ( [ {
	prev           TokenType // last emitted token, for regex detection
}

// NewLexer creates a new Lexer.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 1, indents: []int{0}}
	l.readChar()
	return l
}

// State is a resumable snapshot of the scanner, including the layout
// stack. Needed for parser backtracking: a probe can scan ahead through
// brackets and newlines and rewind without corrupting indentation
// accounting.
type State struct {
	position       int
	readPosition   int
	ch             byte
	line           int
	column         int
	indents        []int
	pendingOutdent int
	bracketDepth   int
	prev           TokenType
}

// SaveState captures the scanner state for a later RestoreState.
func (l *Lexer) SaveState() State {
	indents := make([]int, len(l.indents))
	copy(indents, l.indents)
	return State{
		position:       l.position,
		readPosition:   l.readPosition,
		ch:             l.ch,
		line:           l.line,
		column:         l.column,
		indents:        indents,
		pendingOutdent: l.pendingOutdent,
		bracketDepth:   l.bracketDepth,
		prev:           l.prev,
	}
}

// RestoreState rewinds the scanner to a previously saved state.
func (l *Lexer) RestoreState(s State) {
	l.position = s.position
	l.readPosition = s.readPosition
	l.ch = s.ch
	l.line = s.line
	l.column = s.column
	l.indents = make([]int, len(s.indents))
	copy(l.indents, s.indents)
	l.pendingOutdent = s.pendingOutdent
	l.bracketDepth = s.bracketDepth
	l.prev = s.prev
}

// readChar advances one byte, tracking line and column counts.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++
}

// peekChar looks ahead one byte without consuming it.
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// skipSpaces consumes horizontal whitespace only; newlines are layout.
func (l *Lexer) skipSpaces() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
		l.readChar()
	}
}

// skipComment consumes a # comment up to, but not including, the line
// break that ends it.
func (l *Lexer) skipComment() {
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
}

// NextToken scans the input and returns the next token.
func (l *Lexer) NextToken() Token {
	tok := l.scan()
	l.prev = tok.Type
	return tok
}

func (l *Lexer) scan() Token {
	if l.pendingOutdent > 0 {
		l.pendingOutdent--
		return l.layoutToken(OUTDENT)
	}

	l.skipSpaces()
	for l.ch == '#' {
		l.skipComment()
	}

	if l.ch == '\n' {
		if l.bracketDepth > 0 {
			// Inside brackets layout is suspended; the newline is plain
			// whitespace.
			l.readChar()
			return l.scan()
		}
		return l.scanLayout()
	}

	if l.ch == 0 {
		if len(l.indents) > 1 {
			l.pendingOutdent = len(l.indents) - 2
			l.indents = l.indents[:1]
			return l.layoutToken(OUTDENT)
		}
		return l.layoutToken(EOF)
	}

	startPos := l.position
	startLine := l.line
	startCol := l.column

	switch l.ch {
	case '+':
		return l.single(PLUS)
	case '-':
		return l.single(MINUS)
	case '*':
		return l.single(ASTERISK)
	case '%':
		return l.single(PERCENT)
	case '/':
		if !operandEnders[l.prev] {
			return l.readRegex()
		}
		return l.single(SLASH)
	case '=':
		if l.peekChar() == '=' {
			return l.double(EQ)
		}
		if l.peekChar() == '>' {
			return l.double(ARROW)
		}
		return l.illegalHere()
	case '!':
		if l.peekChar() == '=' {
			return l.double(NOT_EQ)
		}
		return l.single(BANG)
	case '<':
		if l.peekChar() == '=' {
			return l.double(LE)
		}
		return l.single(LT)
	case '>':
		if l.peekChar() == '=' {
			return l.double(GE)
		}
		return l.single(GT)
	case '&':
		if l.peekChar() == '&' {
			l.readChar()
			if l.peekChar() == '=' {
				l.readChar()
				return l.finish(AND_ASSIGN, startPos, startLine, startCol)
			}
			return l.finish(LOGICAL_AND, startPos, startLine, startCol)
		}
		return l.illegalHere()
	case '|':
		if l.peekChar() == '|' {
			l.readChar()
			if l.peekChar() == '=' {
				l.readChar()
				return l.finish(OR_ASSIGN, startPos, startLine, startCol)
			}
			return l.finish(LOGICAL_OR, startPos, startLine, startCol)
		}
		return l.illegalHere()
	case '.':
		if l.peekChar() == '.' {
			return l.double(RANGE)
		}
		return l.single(DOT)
	case ',':
		return l.single(COMMA)
	case ':':
		return l.single(COLON)
	case '(':
		l.bracketDepth++
		return l.single(LPAREN)
	case ')':
		if l.bracketDepth > 0 {
			l.bracketDepth--
		}
		return l.single(RPAREN)
	case '[':
		l.bracketDepth++
		return l.single(LBRACKET)
	case ']':
		if l.bracketDepth > 0 {
			l.bracketDepth--
		}
		return l.single(RBRACKET)
	case '{':
		l.bracketDepth++
		return l.single(LBRACE)
	case '}':
		if l.bracketDepth > 0 {
			l.bracketDepth--
		}
		return l.single(RBRACE)
	case '\'', '"':
		return l.readString(l.ch)
	}

	if isDigit(l.ch) {
		return l.readNumber()
	}
	if isIdentStart(l.ch) {
		return l.readIdentifier()
	}
	if l.ch >= utf8.RuneSelf {
		r, _ := utf8.DecodeRuneInString(l.input[l.position:])
		if unicode.IsLetter(r) {
			return l.readIdentifier()
		}
	}
	return l.illegalHere()
}

// scanLayout consumes a run of line breaks (and any blank or
// comment-only lines inside it), measures the indentation of the next
// code line and emits NEWLINE, INDENT or the first of the owed
// OUTDENTs.
func (l *Lexer) scanLayout() Token {
	for {
		l.readChar() // consume the newline
		width := 0
		for l.ch == ' ' || l.ch == '\t' {
			width++
			l.readChar()
		}
		if l.ch == '\r' {
			l.readChar()
			continue
		}
		if l.ch == '#' {
			l.skipComment()
			if l.ch == '\n' {
				continue
			}
		}
		if l.ch == '\n' {
			continue
		}
		if l.ch == 0 {
			// End of input closes every open level via the EOF path.
			return l.scan()
		}

		top := l.indents[len(l.indents)-1]
		switch {
		case width > top:
			l.indents = append(l.indents, width)
			return l.layoutToken(INDENT)
		case width == top:
			return l.layoutToken(NEWLINE)
		default:
			count := 0
			for len(l.indents) > 1 && l.indents[len(l.indents)-1] > width {
				l.indents = l.indents[:len(l.indents)-1]
				count++
			}
			// A dedent between known levels snaps to the closest one.
			if l.indents[len(l.indents)-1] < width {
				l.indents[len(l.indents)-1] = width
			}
			l.pendingOutdent = count - 1
			return l.layoutToken(OUTDENT)
		}
	}
}

func (l *Lexer) layoutToken(t TokenType) Token {
	return Token{Type: t, Literal: "", Line: l.line, Column: l.column, StartPos: l.position, EndPos: l.position}
}

// single emits a one-character token and advances.
func (l *Lexer) single(t TokenType) Token {
	tok := Token{Type: t, Literal: string(l.ch), Line: l.line, Column: l.column, StartPos: l.position, EndPos: l.position + 1}
	l.readChar()
	return tok
}

// double emits a two-character token and advances past both.
func (l *Lexer) double(t TokenType) Token {
	startPos := l.position
	startLine := l.line
	startCol := l.column
	l.readChar()
	return l.finish(t, startPos, startLine, startCol)
}

// finish emits a token whose last character is the current one.
func (l *Lexer) finish(t TokenType, startPos, startLine, startCol int) Token {
	l.readChar()
	return Token{
		Type:     t,
		Literal:  l.input[startPos:l.position],
		Line:     startLine,
		Column:   startCol,
		StartPos: startPos,
		EndPos:   l.position,
	}
}

func (l *Lexer) illegalHere() Token {
	return l.single(ILLEGAL)
}

// readIdentifier scans an identifier or keyword. Identifiers may use
// any Unicode letter and are normalized to NFC, so visually identical
// spellings refer to the same name.
func (l *Lexer) readIdentifier() Token {
	startPos := l.position
	startLine := l.line
	startCol := l.column
	for {
		if isIdentPart(l.ch) {
			l.readChar()
			continue
		}
		if l.ch >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(l.input[l.position:])
			// Combining marks continue an identifier so decomposed
			// spellings survive until NFC unifies them.
			if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
				for i := 0; i < size; i++ {
					l.readChar()
				}
				continue
			}
		}
		break
	}
	literal := norm.NFC.String(l.input[startPos:l.position])
	return Token{
		Type:     LookupIdent(literal),
		Literal:  literal,
		Line:     startLine,
		Column:   startCol,
		StartPos: startPos,
		EndPos:   l.position,
	}
}

// readNumber scans an integer or decimal literal. A dot is only part of
// the number when a digit follows, so range expressions like 1..5 stay
// intact.
func (l *Lexer) readNumber() Token {
	startPos := l.position
	startLine := l.line
	startCol := l.column
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return Token{
		Type:     NUMBER,
		Literal:  l.input[startPos:l.position],
		Line:     startLine,
		Column:   startCol,
		StartPos: startPos,
		EndPos:   l.position,
	}
}

// readString scans a quoted string, keeping the quotes in the lexeme
// because string literals pass through to the JavaScript output
// verbatim. An unterminated string yields ILLEGAL.
func (l *Lexer) readString(quote byte) Token {
	startPos := l.position
	startLine := l.line
	startCol := l.column
	l.readChar()
	for l.ch != quote {
		if l.ch == 0 || l.ch == '\n' {
			return Token{
				Type:     ILLEGAL,
				Literal:  l.input[startPos:l.position],
				Line:     startLine,
				Column:   startCol,
				StartPos: startPos,
				EndPos:   l.position,
			}
		}
		if l.ch == '\\' {
			l.readChar()
		}
		l.readChar()
	}
	l.readChar() // closing quote
	return Token{
		Type:     STRING,
		Literal:  l.input[startPos:l.position],
		Line:     startLine,
		Column:   startCol,
		StartPos: startPos,
		EndPos:   l.position,
	}
}

// readRegex scans a /pattern/flags literal. The pattern body is
// validated by compiling it in ECMAScript mode; a pattern the engine
// rejects becomes an ILLEGAL token.
func (l *Lexer) readRegex() Token {
	startPos := l.position
	startLine := l.line
	startCol := l.column
	l.readChar() // opening slash
	patternStart := l.position
	inClass := false
	for {
		if l.ch == 0 || l.ch == '\n' {
			return Token{
				Type:     ILLEGAL,
				Literal:  l.input[startPos:l.position],
				Line:     startLine,
				Column:   startCol,
				StartPos: startPos,
				EndPos:   l.position,
			}
		}
		if l.ch == '\\' {
			l.readChar()
			l.readChar()
			continue
		}
		if l.ch == '[' {
			inClass = true
		} else if l.ch == ']' {
			inClass = false
		} else if l.ch == '/' && !inClass {
			break
		}
		l.readChar()
	}
	pattern := l.input[patternStart:l.position]
	l.readChar() // closing slash
	for isIdentPart(l.ch) {
		l.readChar() // flags
	}
	literal := l.input[startPos:l.position]
	if _, err := regexp2.Compile(pattern, regexp2.ECMAScript); err != nil {
		return Token{
			Type:     ILLEGAL,
			Literal:  literal,
			Line:     startLine,
			Column:   startCol,
			StartPos: startPos,
			EndPos:   l.position,
		}
	}
	return Token{
		Type:     REGEX,
		Literal:  literal,
		Line:     startLine,
		Column:   startCol,
		StartPos: startPos,
		EndPos:   l.position,
	}
}

func isIdentStart(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
