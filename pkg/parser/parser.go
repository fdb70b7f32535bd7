package parser

import (
	"fmt"
	"unicode/utf8"

	"kava/pkg/errors"
	"kava/pkg/lexer"
	"kava/pkg/nodes"
)

// --- Debug Flag ---
const debugParser = false

func debugPrint(format string, args ...interface{}) {
	if debugParser {
		fmt.Printf("[Parser Debug] "+format+"\n", args...)
	}
}

// --- End Debug Flag ---

// Parser takes a lexer and builds a tree of nodes.
type Parser struct {
	l      *lexer.Lexer
	errors []errors.KavaError

	curToken  lexer.Token
	peekToken lexer.Token

	prefixParseFns map[lexer.TokenType]prefixParseFn
	infixParseFns  map[lexer.TokenType]infixParseFn

	// eofError records that some error was raised at the end of input,
	// which is how the REPL tells "broken" from "not finished yet".
	eofError bool
}

// Parsing function types for the Pratt parser
type (
	prefixParseFn func() nodes.Node
	infixParseFn  func(nodes.Node) nodes.Node // Arg is the left side expression
)

// Precedence levels. The postfix modifiers bind loosest so a trailing
// `if` guards the whole assignment it follows. The for modifier sits a
// step higher: a return value parses at MODIFIER and so absorbs a
// trailing for, but not a trailing if.
const (
	_ int = iota
	LOWEST
	MODIFIER      // postfix if, unless, while
	COMPREHENSION // postfix for
	ASSIGN        // x: value
	COMPOUND      // ||=, &&=
	LOGICAL_OR    // or, ||
	LOGICAL_AND   // and, &&
	EQUALS        // ==, !=, is, aint
	LESSGREATER   // <, >, <=, >=
	SUM           // +, -
	PRODUCT       // *, /, %
	PREFIX        // -x, !x, not x, delete x
	CALL          // f(x)
	INDEX         // xs[i], xs[1..3]
	MEMBER        // xs.length
)

// Precedences map for operator tokens
var precedences = map[lexer.TokenType]int{
	lexer.IF:     MODIFIER,
	lexer.UNLESS: MODIFIER,
	lexer.WHILE:  MODIFIER,
	lexer.FOR:    COMPREHENSION,

	lexer.COLON: ASSIGN,

	lexer.OR_ASSIGN:  COMPOUND,
	lexer.AND_ASSIGN: COMPOUND,

	lexer.OR:          LOGICAL_OR,
	lexer.LOGICAL_OR:  LOGICAL_OR,
	lexer.AND:         LOGICAL_AND,
	lexer.LOGICAL_AND: LOGICAL_AND,

	lexer.EQ:     EQUALS,
	lexer.NOT_EQ: EQUALS,
	lexer.IS:     EQUALS,
	lexer.AINT:   EQUALS,

	lexer.LT: LESSGREATER,
	lexer.GT: LESSGREATER,
	lexer.LE: LESSGREATER,
	lexer.GE: LESSGREATER,

	lexer.PLUS:  SUM,
	lexer.MINUS: SUM,

	lexer.SLASH:    PRODUCT,
	lexer.ASTERISK: PRODUCT,
	lexer.PERCENT:  PRODUCT,

	lexer.LPAREN:   CALL,
	lexer.LBRACKET: INDEX,
	lexer.DOT:      MEMBER,
}

// NewParser creates a new Parser.
func NewParser(l *lexer.Lexer) *Parser {
	p := &Parser{
		l:      l,
		errors: []errors.KavaError{},
	}

	p.prefixParseFns = make(map[lexer.TokenType]prefixParseFn)
	p.infixParseFns = make(map[lexer.TokenType]infixParseFn)

	// --- Register Prefix Functions ---
	p.registerPrefix(lexer.IDENT, p.parseIdentifier)
	p.registerPrefix(lexer.NUMBER, p.parseLiteral)
	p.registerPrefix(lexer.STRING, p.parseLiteral)
	p.registerPrefix(lexer.REGEX, p.parseLiteral)
	p.registerPrefix(lexer.TRUE, p.parseLiteral)
	p.registerPrefix(lexer.FALSE, p.parseLiteral)
	p.registerPrefix(lexer.NULL, p.parseLiteral)
	p.registerPrefix(lexer.BREAK, p.parseLiteral)
	p.registerPrefix(lexer.CONTINUE, p.parseLiteral)
	p.registerPrefix(lexer.BANG, p.parsePrefixExpression)
	p.registerPrefix(lexer.MINUS, p.parsePrefixExpression)
	p.registerPrefix(lexer.NOT, p.parsePrefixExpression)
	p.registerPrefix(lexer.DELETE, p.parsePrefixExpression)
	p.registerPrefix(lexer.LPAREN, p.parseGroupedOrArrow)
	p.registerPrefix(lexer.LBRACKET, p.parseArrayLiteral)
	p.registerPrefix(lexer.LBRACE, p.parseObjectLiteral)
	p.registerPrefix(lexer.IF, p.parseIfExpression)
	p.registerPrefix(lexer.UNLESS, p.parseUnlessExpression)
	p.registerPrefix(lexer.WHILE, p.parseWhileExpression)
	p.registerPrefix(lexer.FOR, p.parseForExpression)
	p.registerPrefix(lexer.SWITCH, p.parseSwitchExpression)
	p.registerPrefix(lexer.TRY, p.parseTryExpression)
	p.registerPrefix(lexer.THROW, p.parseThrowExpression)
	p.registerPrefix(lexer.RETURN, p.parseReturnExpression)
	p.registerPrefix(lexer.NEW, p.parseNewExpression)
	p.registerPrefix(lexer.SUPER, p.parseSuperExpression)

	// --- Register Infix Functions ---
	p.registerInfix(lexer.PLUS, p.parseInfixExpression)
	p.registerInfix(lexer.MINUS, p.parseInfixExpression)
	p.registerInfix(lexer.SLASH, p.parseInfixExpression)
	p.registerInfix(lexer.ASTERISK, p.parseInfixExpression)
	p.registerInfix(lexer.PERCENT, p.parseInfixExpression)
	p.registerInfix(lexer.EQ, p.parseInfixExpression)
	p.registerInfix(lexer.NOT_EQ, p.parseInfixExpression)
	p.registerInfix(lexer.IS, p.parseInfixExpression)
	p.registerInfix(lexer.AINT, p.parseInfixExpression)
	p.registerInfix(lexer.LT, p.parseInfixExpression)
	p.registerInfix(lexer.GT, p.parseInfixExpression)
	p.registerInfix(lexer.LE, p.parseInfixExpression)
	p.registerInfix(lexer.GE, p.parseInfixExpression)
	p.registerInfix(lexer.AND, p.parseInfixExpression)
	p.registerInfix(lexer.OR, p.parseInfixExpression)
	p.registerInfix(lexer.LOGICAL_AND, p.parseInfixExpression)
	p.registerInfix(lexer.LOGICAL_OR, p.parseInfixExpression)
	p.registerInfix(lexer.AND_ASSIGN, p.parseInfixExpression)
	p.registerInfix(lexer.OR_ASSIGN, p.parseInfixExpression)
	p.registerInfix(lexer.COLON, p.parseAssignExpression)
	p.registerInfix(lexer.LPAREN, p.parseCallExpression)
	p.registerInfix(lexer.LBRACKET, p.parseIndexExpression)
	p.registerInfix(lexer.DOT, p.parseMemberExpression)
	p.registerInfix(lexer.IF, p.parseIfModifier)
	p.registerInfix(lexer.UNLESS, p.parseUnlessModifier)
	p.registerInfix(lexer.WHILE, p.parseWhileModifier)
	p.registerInfix(lexer.FOR, p.parseForModifier)

	// Read two tokens, so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()

	return p
}

// Errors returns the list of parsing errors.
func (p *Parser) Errors() []errors.KavaError {
	return p.errors
}

// nextToken advances the current and peek tokens.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
	debugPrint("nextToken(): cur='%s' (%s), peek='%s' (%s)", p.curToken.Literal, p.curToken.Type, p.peekToken.Literal, p.peekToken.Type)
}

// ParseProgram parses the entire input and returns the root expression
// list and any errors.
func (p *Parser) ParseProgram() (*nodes.Expressions, []errors.KavaError) {
	program := nodes.NewExpressions()

	for !p.curTokenIs(lexer.EOF) {
		// A stray OUTDENT can reach the root after error recovery
		// inside a block; skip it like a line break.
		if p.curTokenIs(lexer.NEWLINE) || p.curTokenIs(lexer.OUTDENT) {
			p.nextToken()
			continue
		}
		stmt := p.parseExpression(LOWEST)
		if stmt == nil {
			p.synchronize()
			continue
		}
		program.Append(stmt)
		p.nextToken()
	}

	return program, p.errors
}

// IsIncomplete reports whether src fails to parse only because the
// input stops short, as with an unfinished block or an open bracket.
// The REPL uses it to decide between evaluating and reading more lines.
func IsIncomplete(src string) bool {
	p := NewParser(lexer.NewLexer(src))
	_, errs := p.ParseProgram()
	return len(errs) > 0 && p.eofError
}

// synchronize skips to the start of the next statement after a parse
// error, so the statements that follow still get checked. It never
// consumes an OUTDENT; the enclosing block needs it to close.
func (p *Parser) synchronize() {
	for !p.curTokenIs(lexer.EOF) && !p.curTokenIs(lexer.NEWLINE) && !p.curTokenIs(lexer.OUTDENT) {
		p.nextToken()
	}
	if p.curTokenIs(lexer.NEWLINE) {
		p.nextToken()
	}
}

// parseStatements parses a run of newline-separated statements up to
// the end token, leaving it as the current token.
func (p *Parser) parseStatements(end lexer.TokenType) *nodes.Expressions {
	block := nodes.NewExpressions()
	for !p.curTokenIs(end) && !p.curTokenIs(lexer.EOF) {
		if p.curTokenIs(lexer.NEWLINE) {
			p.nextToken()
			continue
		}
		stmt := p.parseExpression(LOWEST)
		if stmt == nil {
			p.synchronize()
			continue
		}
		block.Append(stmt)
		p.nextToken()
	}
	return block
}

// parseIndentedBlock parses the statements of an INDENT..OUTDENT block.
// The current token is the INDENT on entry and the OUTDENT on exit.
func (p *Parser) parseIndentedBlock() *nodes.Expressions {
	p.nextToken()
	return p.parseStatements(lexer.OUTDENT)
}

// parseBlock parses the body of a control header: an indented block on
// the following lines, or an inline `then` expression.
func (p *Parser) parseBlock() *nodes.Expressions {
	if p.peekTokenIs(lexer.INDENT) {
		p.nextToken()
		return p.parseIndentedBlock()
	}
	if p.peekTokenIs(lexer.THEN) {
		p.nextToken()
		p.nextToken()
		stmt := p.parseExpression(LOWEST)
		if stmt == nil {
			return nil
		}
		return nodes.Wrap(stmt)
	}
	p.addError(p.peekToken, "expected an indented block or then")
	return nil
}

// parseElseBody parses an else branch: an indented block or an inline
// expression on the same line.
func (p *Parser) parseElseBody() *nodes.Expressions {
	if p.peekTokenIs(lexer.INDENT) {
		p.nextToken()
		return p.parseIndentedBlock()
	}
	p.nextToken()
	stmt := p.parseExpression(LOWEST)
	if stmt == nil {
		return nil
	}
	return nodes.Wrap(stmt)
}

// clauseFollows reports whether the next meaningful token is the given
// clause keyword, looking through a single line break. It consumes up
// to the keyword when it matches and rewinds when it does not.
func (p *Parser) clauseFollows(t lexer.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	if !p.peekTokenIs(lexer.NEWLINE) {
		return false
	}
	state := p.l.SaveState()
	cur, peek := p.curToken, p.peekToken
	p.nextToken()
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.l.RestoreState(state)
	p.curToken, p.peekToken = cur, peek
	return false
}

// --- Expression Parsing ---

func (p *Parser) parseExpression(precedence int) nodes.Node {
	debugPrint("parseExpression(%d): cur='%s' (%s)", precedence, p.curToken.Literal, p.curToken.Type)
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError(p.curToken)
		return nil
	}
	leftExp := prefix()

	for leftExp != nil && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}
		p.nextToken()
		leftExp = infix(leftExp)
	}

	return leftExp
}

// parseIdentifier yields the identifier as a literal node, or a
// single-parameter function when an arrow follows: `x => x * 2`.
func (p *Parser) parseIdentifier() nodes.Node {
	if p.peekTokenIs(lexer.ARROW) {
		name := p.curToken.Literal
		p.nextToken()
		body := p.parseCodeBody()
		if body == nil {
			return nil
		}
		return nodes.NewCode([]string{name}, body)
	}
	return nodes.NewLiteral(p.curToken.Literal)
}

// parseLiteral passes the lexeme through verbatim: numbers, strings and
// regexes keep their source spelling all the way to the JavaScript.
func (p *Parser) parseLiteral() nodes.Node {
	return nodes.NewLiteral(p.curToken.Literal)
}

// parsePrefixExpression handles !expr, -expr, not expr and delete expr.
func (p *Parser) parsePrefixExpression() nodes.Node {
	operator := p.curToken.Literal
	p.nextToken()
	operand := p.parseExpression(PREFIX)
	if operand == nil {
		return nil
	}
	return nodes.NewUnary(operator, operand)
}

func (p *Parser) parseInfixExpression(left nodes.Node) nodes.Node {
	operator := p.curToken.Literal
	precedence := p.curPrecedence()
	p.nextToken()
	right := p.parseExpression(precedence)
	if right == nil {
		return nil
	}
	return nodes.NewOp(operator, left, right)
}

// parseAssignExpression handles `target: value`. The value is parsed
// at ASSIGN so a trailing if, unless or while guards the whole
// assignment; a trailing for is absorbed into the value instead, making
// the comprehension the thing assigned.
func (p *Parser) parseAssignExpression(left nodes.Node) nodes.Node {
	if !validAssignTarget(left) {
		p.addError(p.curToken, "invalid assignment target")
		return nil
	}
	p.nextToken()
	value := p.parseExpression(ASSIGN)
	if value == nil {
		return nil
	}
	if p.peekTokenIs(lexer.FOR) {
		p.nextToken()
		value = p.parseForModifier(value)
		if value == nil {
			return nil
		}
	}
	return nodes.NewAssign(left, value, "")
}

func validAssignTarget(n nodes.Node) bool {
	switch t := n.(type) {
	case *nodes.LiteralNode:
		return isIdentifierLiteral(t.Value)
	case *nodes.ValueNode:
		return true
	}
	return false
}

func isIdentifierLiteral(s string) bool {
	if s == "" {
		return false
	}
	ch := s[0]
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_' || ch >= utf8.RuneSelf
}

// asValue wraps a node in a value so a suffix can be hung off it, or
// extends the chain when it already is one.
func asValue(n nodes.Node) *nodes.ValueNode {
	if v, ok := n.(*nodes.ValueNode); ok {
		return v
	}
	return nodes.NewValue(n)
}

func (p *Parser) parseMemberExpression(left nodes.Node) nodes.Node {
	if !p.expectPeekPropertyName() {
		return nil
	}
	return asValue(left).Add(nodes.NewAccessor(p.curToken.Literal))
}

// parseIndexExpression handles both `xs[i]` and the inclusive range
// slice `xs[1..3]`.
func (p *Parser) parseIndexExpression(left nodes.Node) nodes.Node {
	p.nextToken()
	first := p.parseExpression(LOWEST)
	if first == nil {
		return nil
	}
	var sfx nodes.Node
	if p.peekTokenIs(lexer.RANGE) {
		p.nextToken()
		p.nextToken()
		to := p.parseExpression(LOWEST)
		if to == nil {
			return nil
		}
		sfx = nodes.NewSlice(first, to)
	} else {
		sfx = nodes.NewIndex(first)
	}
	if !p.expectPeek(lexer.RBRACKET) {
		return nil
	}
	return asValue(left).Add(sfx)
}

func (p *Parser) parseCallExpression(left nodes.Node) nodes.Node {
	args := p.parseExpressionList(lexer.RPAREN)
	if args == nil {
		return nil
	}
	return nodes.NewCall(left, args...)
}

// parseExpressionList parses a comma-separated list up to the end
// token. The current token is the opening bracket on entry.
func (p *Parser) parseExpressionList(end lexer.TokenType) []nodes.Node {
	list := []nodes.Node{}
	if p.peekTokenIs(end) {
		p.nextToken()
		return list
	}
	p.nextToken()
	first := p.parseExpression(LOWEST)
	if first == nil {
		return nil
	}
	list = append(list, first)
	for p.peekTokenIs(lexer.COMMA) {
		p.nextToken()
		p.nextToken()
		next := p.parseExpression(LOWEST)
		if next == nil {
			return nil
		}
		list = append(list, next)
	}
	if !p.expectPeek(end) {
		return nil
	}
	return list
}

// parseGroupedOrArrow disambiguates `(a + b)` from `(a, b) => body` by
// probing ahead for the arrow and rewinding.
func (p *Parser) parseGroupedOrArrow() nodes.Node {
	if p.arrowAhead() {
		return p.parseArrowFunction()
	}
	p.nextToken()
	inner := p.parseExpression(LOWEST)
	if inner == nil {
		return nil
	}
	if !p.expectPeek(lexer.RPAREN) {
		return nil
	}
	return nodes.NewParenthetical(inner)
}

// arrowAhead scans past a parenthesized parameter list for `=>`,
// rewinding the lexer whatever it finds.
func (p *Parser) arrowAhead() bool {
	state := p.l.SaveState()
	cur, peek := p.curToken, p.peekToken
	defer func() {
		p.l.RestoreState(state)
		p.curToken, p.peekToken = cur, peek
	}()

	p.nextToken()
	if p.curTokenIs(lexer.RPAREN) {
		return p.peekTokenIs(lexer.ARROW)
	}
	for {
		if !p.curTokenIs(lexer.IDENT) {
			return false
		}
		if p.peekTokenIs(lexer.COMMA) {
			p.nextToken()
			p.nextToken()
			continue
		}
		if p.peekTokenIs(lexer.RPAREN) {
			p.nextToken()
			return p.peekTokenIs(lexer.ARROW)
		}
		return false
	}
}

// parseArrowFunction parses `(a, b) => body`; arrowAhead has already
// vouched for the shape of the parameter list.
func (p *Parser) parseArrowFunction() nodes.Node {
	params := []string{}
	p.nextToken()
	for !p.curTokenIs(lexer.RPAREN) {
		params = append(params, p.curToken.Literal)
		p.nextToken()
		if p.curTokenIs(lexer.COMMA) {
			p.nextToken()
		}
	}
	p.nextToken() // the arrow
	body := p.parseCodeBody()
	if body == nil {
		return nil
	}
	return nodes.NewCode(params, body)
}

// parseCodeBody parses a function body: an indented block or an inline
// expression after the arrow.
func (p *Parser) parseCodeBody() *nodes.Expressions {
	if p.peekTokenIs(lexer.INDENT) {
		p.nextToken()
		return p.parseIndentedBlock()
	}
	p.nextToken()
	expr := p.parseExpression(LOWEST)
	if expr == nil {
		return nil
	}
	return nodes.Wrap(expr)
}

func (p *Parser) parseArrayLiteral() nodes.Node {
	elems := p.parseExpressionList(lexer.RBRACKET)
	if elems == nil {
		return nil
	}
	return nodes.NewArray(elems...)
}

func (p *Parser) parseObjectLiteral() nodes.Node {
	props := []*nodes.AssignNode{}
	if p.peekTokenIs(lexer.RBRACE) {
		p.nextToken()
		return nodes.NewObject()
	}
	p.nextToken()
	for {
		key := p.parseObjectKey()
		if key == nil {
			return nil
		}
		if !p.expectPeek(lexer.COLON) {
			return nil
		}
		p.nextToken()
		value := p.parseExpression(ASSIGN)
		if value == nil {
			return nil
		}
		props = append(props, nodes.NewAssign(key, value, nodes.ObjectContext))
		if p.peekTokenIs(lexer.COMMA) {
			p.nextToken()
			p.nextToken()
			continue
		}
		break
	}
	if !p.expectPeek(lexer.RBRACE) {
		return nil
	}
	return nodes.NewObject(props...)
}

func (p *Parser) parseObjectKey() nodes.Node {
	if p.curTokenIs(lexer.IDENT) || p.curTokenIs(lexer.STRING) || p.curTokenIs(lexer.NUMBER) ||
		p.isKeyword(p.curToken.Type) {
		return nodes.NewLiteral(p.curToken.Literal)
	}
	p.addError(p.curToken, fmt.Sprintf("invalid object key %s", p.curToken.Type))
	return nil
}

// --- Conditionals and Loops ---

func (p *Parser) parseIfExpression() nodes.Node     { return p.parseIfCommon(false) }
func (p *Parser) parseUnlessExpression() nodes.Node { return p.parseIfCommon(true) }

// parseIfCommon parses a block-form if or unless with optional else and
// else-if chains. The condition is parsed at ASSIGN so a `:` next to it
// reads as a block marker mistake, not as an assignment condition.
func (p *Parser) parseIfCommon(negate bool) nodes.Node {
	p.nextToken()
	cond := p.parseExpression(ASSIGN)
	if cond == nil {
		return nil
	}
	if negate {
		cond = nodes.NewUnary("not", cond)
	}
	body := p.parseBlock()
	if body == nil {
		return nil
	}
	n := nodes.NewIf(cond, body)
	if p.clauseFollows(lexer.ELSE) {
		return p.parseElse(n)
	}
	return n
}

// parseElse attaches `else if ...` or a plain else branch. The current
// token is the else keyword.
func (p *Parser) parseElse(n *nodes.IfNode) nodes.Node {
	if p.peekTokenIs(lexer.IF) {
		p.nextToken()
		alt := p.parseIfExpression()
		if alt == nil {
			return nil
		}
		return n.AddElse(alt)
	}
	body := p.parseElseBody()
	if body == nil {
		return nil
	}
	return n.AddElse(body)
}

func (p *Parser) parseIfModifier(left nodes.Node) nodes.Node {
	p.nextToken()
	cond := p.parseExpression(ASSIGN)
	if cond == nil {
		return nil
	}
	return nodes.NewIf(cond, left)
}

func (p *Parser) parseUnlessModifier(left nodes.Node) nodes.Node {
	p.nextToken()
	cond := p.parseExpression(ASSIGN)
	if cond == nil {
		return nil
	}
	return nodes.NewIf(nodes.NewUnary("not", cond), left)
}

func (p *Parser) parseWhileExpression() nodes.Node {
	p.nextToken()
	cond := p.parseExpression(ASSIGN)
	if cond == nil {
		return nil
	}
	body := p.parseBlock()
	if body == nil {
		return nil
	}
	return nodes.NewWhile(cond, body)
}

func (p *Parser) parseWhileModifier(left nodes.Node) nodes.Node {
	p.nextToken()
	cond := p.parseExpression(ASSIGN)
	if cond == nil {
		return nil
	}
	return nodes.NewWhile(cond, nodes.Wrap(left))
}

func (p *Parser) parseForExpression() nodes.Node {
	name, index, src := p.parseForHeader()
	if src == nil {
		return nil
	}
	body := p.parseBlock()
	if body == nil {
		return nil
	}
	return nodes.NewFor(body, src, name, index)
}

func (p *Parser) parseForModifier(left nodes.Node) nodes.Node {
	name, index, src := p.parseForHeader()
	if src == nil {
		return nil
	}
	return nodes.NewFor(nodes.Wrap(left), src, name, index)
}

// parseForHeader parses `x in src` or `x, i in src` after the for
// keyword.
func (p *Parser) parseForHeader() (string, string, nodes.Node) {
	if !p.expectPeek(lexer.IDENT) {
		return "", "", nil
	}
	name := p.curToken.Literal
	index := ""
	if p.peekTokenIs(lexer.COMMA) {
		p.nextToken()
		if !p.expectPeek(lexer.IDENT) {
			return "", "", nil
		}
		index = p.curToken.Literal
	}
	if !p.expectPeek(lexer.IN) {
		return "", "", nil
	}
	p.nextToken()
	src := p.parseExpression(ASSIGN)
	return name, index, src
}

// parseSwitchExpression lowers switch/when into an if chain testing the
// subject against each arm.
func (p *Parser) parseSwitchExpression() nodes.Node {
	p.nextToken()
	subject := p.parseExpression(ASSIGN)
	if subject == nil {
		return nil
	}
	if !p.expectPeek(lexer.INDENT) {
		return nil
	}
	p.nextToken()

	var chain *nodes.IfNode
	for p.curTokenIs(lexer.WHEN) {
		p.nextToken()
		cond := p.parseExpression(ASSIGN)
		if cond == nil {
			return nil
		}
		body := p.parseBlock()
		if body == nil {
			return nil
		}
		arm := nodes.NewIf(cond, body)
		if chain == nil {
			chain = arm
		} else {
			chain = chain.AddElse(arm)
		}
		p.advanceArm()
	}
	if chain == nil {
		p.addError(p.curToken, "switch needs at least one when arm")
		return nil
	}

	if p.curTokenIs(lexer.ELSE) {
		body := p.parseElseBody()
		if body == nil {
			return nil
		}
		chain = chain.AddDefaultElse(body)
		p.advanceArm()
	}

	if !p.curTokenIs(lexer.OUTDENT) && !p.curTokenIs(lexer.EOF) {
		p.addError(p.curToken, fmt.Sprintf("unexpected %s in switch", p.curToken.Type))
		return nil
	}
	return chain.RewriteConditionForSwitch(subject)
}

// advanceArm steps from the end of a when body to the next arm or the
// closing outdent.
func (p *Parser) advanceArm() {
	if p.peekTokenIs(lexer.NEWLINE) {
		p.nextToken()
	}
	p.nextToken()
}

// --- Exceptions ---

func (p *Parser) parseTryExpression() nodes.Node {
	body := p.parseBlock()
	if body == nil {
		return nil
	}
	errorName := ""
	var recovery, finally *nodes.Expressions
	if p.clauseFollows(lexer.CATCH) {
		if p.peekTokenIs(lexer.IDENT) {
			p.nextToken()
			errorName = p.curToken.Literal
		}
		recovery = p.parseBlock()
		if recovery == nil {
			return nil
		}
	}
	if p.clauseFollows(lexer.FINALLY) {
		finally = p.parseBlock()
		if finally == nil {
			return nil
		}
	}
	return nodes.NewTry(body, errorName, recovery, finally)
}

func (p *Parser) parseThrowExpression() nodes.Node {
	p.nextToken()
	expr := p.parseExpression(ASSIGN)
	if expr == nil {
		return nil
	}
	return nodes.NewThrow(expr)
}

// parseReturnExpression parses `return` with an optional value. The
// value sits at MODIFIER so `return x for x in xs` returns the
// collected array while `return 5 if done` wraps the whole return.
func (p *Parser) parseReturnExpression() nodes.Node {
	if p.peekTokenIs(lexer.NEWLINE) || p.peekTokenIs(lexer.OUTDENT) || p.peekTokenIs(lexer.EOF) {
		return nodes.NewReturn(nodes.NewLiteral("null"))
	}
	p.nextToken()
	expr := p.parseExpression(MODIFIER)
	if expr == nil {
		return nil
	}
	return nodes.NewReturn(expr)
}

// --- Calls ---

// parseNewExpression parses `new Callee(args)`; the callee may carry
// member and index suffixes, and the argument list is optional.
func (p *Parser) parseNewExpression() nodes.Node {
	p.nextToken()
	callee := p.parseExpression(CALL)
	if callee == nil {
		return nil
	}
	var args []nodes.Node
	if p.peekTokenIs(lexer.LPAREN) {
		p.nextToken()
		args = p.parseExpressionList(lexer.RPAREN)
		if args == nil {
			return nil
		}
	}
	return nodes.NewCall(callee, args...).NewInstance()
}

func (p *Parser) parseSuperExpression() nodes.Node {
	if !p.expectPeek(lexer.LPAREN) {
		return nil
	}
	args := p.parseExpressionList(lexer.RPAREN)
	if args == nil {
		return nil
	}
	return nodes.NewSuperCall(args...)
}

// --- Token Helpers ---

func (p *Parser) registerPrefix(tokenType lexer.TokenType, fn prefixParseFn) {
	p.prefixParseFns[tokenType] = fn
}

func (p *Parser) registerInfix(tokenType lexer.TokenType, fn infixParseFn) {
	p.infixParseFns[tokenType] = fn
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t lexer.TokenType) bool {
	return p.peekToken.Type == t
}

// expectPeek checks the type of the next token and advances if it
// matches. If it doesn't match, it adds an error.
func (p *Parser) expectPeek(t lexer.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

// expectPeekPropertyName advances over a property name, which may be an
// identifier or any keyword: `list.length` but also `task.new`.
func (p *Parser) expectPeekPropertyName() bool {
	if p.peekTokenIs(lexer.IDENT) || p.isKeyword(p.peekToken.Type) {
		p.nextToken()
		return true
	}
	p.addError(p.peekToken, fmt.Sprintf("expected property name after '.', got %s", p.peekToken.Type))
	return false
}

// isKeyword reports whether the token type is one of the reserved
// words, all of which read as plain names after a dot or as object
// keys.
func (p *Parser) isKeyword(t lexer.TokenType) bool {
	switch t {
	case lexer.IF, lexer.UNLESS, lexer.ELSE, lexer.THEN, lexer.WHILE, lexer.FOR, lexer.IN,
		lexer.SWITCH, lexer.WHEN, lexer.TRY, lexer.CATCH, lexer.FINALLY, lexer.THROW,
		lexer.RETURN, lexer.BREAK, lexer.CONTINUE, lexer.NEW, lexer.SUPER, lexer.DELETE,
		lexer.TRUE, lexer.FALSE, lexer.NULL, lexer.IS, lexer.AINT, lexer.AND, lexer.OR, lexer.NOT:
		return true
	default:
		return false
	}
}

// --- Error Handling ---

func (p *Parser) peekError(t lexer.TokenType) {
	msg := fmt.Sprintf("expected next token to be %s, got %s instead",
		t, p.peekToken.Type)
	p.addError(p.peekToken, msg)
}

func (p *Parser) noPrefixParseFnError(tok lexer.Token) {
	switch tok.Type {
	case lexer.EOF:
		p.addError(tok, "unexpected end of input")
	case lexer.INDENT:
		p.addError(tok, "unexpected indentation")
	case lexer.ILLEGAL:
		p.addError(tok, fmt.Sprintf("unexpected character sequence %q", tok.Literal))
	default:
		p.addError(tok, fmt.Sprintf("no prefix parse function for %s found", tok.Type))
	}
}

func (p *Parser) addError(tok lexer.Token, msg string) {
	// Prevent memory exhaustion from infinite error generation
	const maxErrors = 100
	if len(p.errors) >= maxErrors {
		return
	}
	if tok.Type == lexer.EOF {
		p.eofError = true
	}
	p.errors = append(p.errors, errors.NewSyntaxError(errors.Position{
		Line:     tok.Line,
		Column:   tok.Column,
		StartPos: tok.StartPos,
		EndPos:   tok.EndPos,
	}, "%s", msg))
}

// --- Precedence Helpers ---

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return LOWEST
}
