package lexer

import (
	"testing"
)

func TestRegexLiterals(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []TokenType
		literals []string
	}{
		{
			name:     "Simple regex",
			input:    "/hello/",
			expected: []TokenType{REGEX, EOF},
			literals: []string{"/hello/", ""},
		},
		{
			name:     "Regex with flags",
			input:    "/world/gi",
			expected: []TokenType{REGEX, EOF},
			literals: []string{"/world/gi", ""},
		},
		{
			name:     "Character class",
			input:    "/complex[A-Z]+/m",
			expected: []TokenType{REGEX, EOF},
			literals: []string{"/complex[A-Z]+/m", ""},
		},
		{
			name:     "Assignment context",
			input:    "x: /test/i",
			expected: []TokenType{IDENT, COLON, REGEX, EOF},
			literals: []string{"x", ":", "/test/i", ""},
		},
		{
			name:     "Division after number",
			input:    "5 / 2",
			expected: []TokenType{NUMBER, SLASH, NUMBER, EOF},
			literals: []string{"5", "/", "2", ""},
		},
		{
			name:     "Division after closing paren",
			input:    "(a) / 2",
			expected: []TokenType{LPAREN, IDENT, RPAREN, SLASH, NUMBER, EOF},
			literals: []string{"(", "a", ")", "/", "2", ""},
		},
		{
			name:     "Regex after opening paren",
			input:    "(/pattern/)",
			expected: []TokenType{LPAREN, REGEX, RPAREN, EOF},
			literals: []string{"(", "/pattern/", ")", ""},
		},
		{
			name:     "Regex after operator",
			input:    "a && /b+/",
			expected: []TokenType{IDENT, LOGICAL_AND, REGEX, EOF},
			literals: []string{"a", "&&", "/b+/", ""},
		},
		{
			name:     "Slash inside character class",
			input:    "/[/]/",
			expected: []TokenType{REGEX, EOF},
			literals: []string{"/[/]/", ""},
		},
		{
			name:     "Escaped slash",
			input:    `/a\/b/`,
			expected: []TokenType{REGEX, EOF},
			literals: []string{`/a\/b/`, ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLexer(tt.input)

			for i, expectedToken := range tt.expected {
				tok := l.NextToken()
				if tok.Type != expectedToken {
					t.Errorf("test[%d] - tokentype wrong. expected=%q, got=%q", i, expectedToken, tok.Type)
				}
				if i < len(tt.literals) && tok.Literal != tt.literals[i] {
					t.Errorf("test[%d] - literal wrong. expected=%q, got=%q", i, tt.literals[i], tok.Literal)
				}
			}
		})
	}
}

func TestRegexValidation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "Valid pattern",
			input:   "/ab+c/",
			wantErr: false,
		},
		{
			name:    "Unbalanced group",
			input:   "/a(/",
			wantErr: true,
		},
		{
			name:    "Dangling quantifier",
			input:   "/+/",
			wantErr: true,
		},
		{
			name:    "Unterminated literal",
			input:   "/abc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLexer(tt.input)
			tok := l.NextToken()

			if tt.wantErr {
				if tok.Type != ILLEGAL {
					t.Errorf("expected ILLEGAL token for invalid regex, got %q (%q)", tok.Type, tok.Literal)
				}
			} else {
				if tok.Type != REGEX {
					t.Errorf("expected REGEX token, got %q (%q)", tok.Type, tok.Literal)
				}
			}
		})
	}
}
