// Package nodes holds the Kava syntax tree and its JavaScript code
// generator. Every variant compiles itself: Compile walks the tree once,
// threading an indentation string, a mutable Scope of declared names and
// an immutable Options record, and returns the JavaScript fragment for
// the subtree. There is no separate IR.
package nodes

import (
	"strings"

	"kava/pkg/errors"
)

// Indent is one level of output indentation.
const Indent = "  "

// ObjectContext marks an assignment that is a property inside an object
// literal, emitted as `key: value` instead of `key = value`.
const ObjectContext = "object"

// Options carries compilation context downward through the tree. It is
// a value record: nodes never mutate the copy they receive, they derive
// fresh copies with the fields they need overridden.
type Options struct {
	// Return asks the compiled text to deliver the subtree's value via
	// a return statement. Expressions pushes it onto its last child;
	// nodes with custom return handling consume it themselves.
	Return bool
	// Assign is the target text of an enclosing assignment whose value
	// has custom assign handling; the node renders the assignment.
	Assign string
	// LastAssign is the final accessor text of the innermost assignment
	// target, threaded through function literals so a super call can
	// resolve the method name it lives in.
	LastAssign string
	// Statement forces an If to compile in statement form even when both
	// branches are expressions. Used for else-if chain tails.
	Statement bool
	// NoParen tells a Parenthetical that the caller already guarantees
	// grouping, so one layer of parentheses can be dropped.
	NoParen bool
}

// expressionOpts reduces opts to what plain subexpressions inherit.
// Return intent, assignment context and grouping hints never cross an
// expression boundary; only the method-name thread for super survives.
func expressionOpts(opts Options) Options {
	return Options{LastAssign: opts.LastAssign}
}

// Node is implemented by every syntax tree variant.
type Node interface {
	// Compile renders the node as JavaScript. indent is the literal
	// leading whitespace for the current nesting depth. scope is the
	// only mutable collaborator; opts is copied, never written through.
	Compile(indent string, scope *Scope, opts Options) (string, error)
	// IsStatement reports that the node cannot appear where a value is
	// expected.
	IsStatement() bool
	// HasCustomReturn reports that the node renders its own return;
	// callers must not prefix one.
	HasCustomReturn() bool
	// HasCustomAssign reports that the node renders an enclosing
	// assignment itself when given opts.Assign.
	HasCustomAssign() bool
	// LineTerminator is appended when the node is emitted as a line:
	// ";" for most, "" where a closing brace already ends the line.
	LineTerminator() string
	// Unwrap returns the node's canonical payload: the sole child of a
	// single-expression block, the node itself otherwise.
	Unwrap() Node
}

// expressionDefaults supplies the flag methods shared by plain
// expression variants.
type expressionDefaults struct{}

func (expressionDefaults) IsStatement() bool      { return false }
func (expressionDefaults) HasCustomReturn() bool  { return false }
func (expressionDefaults) HasCustomAssign() bool  { return false }
func (expressionDefaults) LineTerminator() string { return ";" }

// statementDefaults supplies the flag methods shared by brace-terminated
// statement variants.
type statementDefaults struct{}

func (statementDefaults) IsStatement() bool      { return true }
func (statementDefaults) HasCustomReturn() bool  { return false }
func (statementDefaults) HasCustomAssign() bool  { return false }
func (statementDefaults) LineTerminator() string { return "" }

func missingChild(kind, part string) error {
	return errors.NewCompileError(errors.Unknown, "%s node is missing its %s", kind, part)
}

// --- Expressions ---

// Expressions is a block: an ordered list of nodes compiled one per
// line. It is the body of every function, loop and branch, and the root
// of a program.
type Expressions struct {
	statementDefaults
	Nodes []Node
}

// NewExpressions builds a block from the given nodes.
func NewExpressions(nodes ...Node) *Expressions {
	return &Expressions{Nodes: nodes}
}

// Wrap lifts a node into a block; a node that already is one is
// returned unchanged.
func Wrap(node Node) *Expressions {
	if block, ok := node.(*Expressions); ok {
		return block
	}
	return &Expressions{Nodes: []Node{node}}
}

// Append adds a node to the end of the block.
func (e *Expressions) Append(node Node) *Expressions {
	e.Nodes = append(e.Nodes, node)
	return e
}

func (e *Expressions) HasCustomReturn() bool { return true }

// Unwrap returns the sole child of a single-expression block, or the
// block itself.
func (e *Expressions) Unwrap() Node {
	if len(e.Nodes) == 1 {
		return e.Nodes[0]
	}
	return e
}

// Compile renders each child on its own line, indented and terminated
// per the child's LineTerminator. Return intent lands on the last child
// only: a statement or custom-return child receives it through opts and
// handles it itself, anything else is prefixed with `return `.
func (e *Expressions) Compile(indent string, scope *Scope, opts Options) (string, error) {
	lines := make([]string, 0, len(e.Nodes))
	for i, child := range e.Nodes {
		childOpts := opts
		childOpts.Statement = false
		childOpts.NoParen = false
		last := i == len(e.Nodes)-1
		prefix := ""
		if !last {
			childOpts.Return = false
			childOpts.Assign = ""
		} else if opts.Return && !child.IsStatement() && !child.HasCustomReturn() {
			childOpts.Return = false
			prefix = "return "
		}
		code, err := child.Compile(indent, scope, childOpts)
		if err != nil {
			return "", err
		}
		lines = append(lines, indent+prefix+code+child.LineTerminator())
	}
	return strings.Join(lines, "\n"), nil
}

// CompileRoot compiles the block as a whole program: a fresh root scope,
// return intent on the final expression, and an isolating closure so
// declarations never leak into the host page.
func (e *Expressions) CompileRoot() (string, error) {
	scope := NewScope(nil)
	body, err := e.Compile(Indent, scope, Options{Return: true})
	if err != nil {
		return "", err
	}
	return "(function(){\n" + body + "\n})();", nil
}

// --- Literal ---

// statementLiterals are the spellings that are statements in their own
// right and must never be prefixed with return.
var statementLiterals = map[string]bool{
	"break":    true,
	"continue": true,
}

// LiteralNode passes source text straight through: numbers, strings,
// regexes, identifiers and the bare keywords.
type LiteralNode struct {
	expressionDefaults
	Value string
}

func NewLiteral(value string) *LiteralNode { return &LiteralNode{Value: value} }

func (n *LiteralNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	return n.Value, nil
}

func (n *LiteralNode) IsStatement() bool     { return statementLiterals[n.Value] }
func (n *LiteralNode) HasCustomReturn() bool { return n.IsStatement() }
func (n *LiteralNode) Unwrap() Node          { return n }

// --- Return ---

// ReturnNode is an explicit return statement.
type ReturnNode struct {
	statementDefaults
	Expression Node
}

func NewReturn(expression Node) *ReturnNode { return &ReturnNode{Expression: expression} }

func (n *ReturnNode) HasCustomReturn() bool { return true }

// LineTerminator delegates to the expression when it renders the return
// itself, so a comprehension's loop emission is not followed by a stray
// semicolon.
func (n *ReturnNode) LineTerminator() string {
	if n.Expression != nil && n.Expression.HasCustomReturn() {
		return n.Expression.LineTerminator()
	}
	return ";"
}

func (n *ReturnNode) Unwrap() Node { return n }

func (n *ReturnNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	if n.Expression == nil {
		return "", missingChild("return", "expression")
	}
	if n.Expression.HasCustomReturn() {
		childOpts := Options{Return: true, LastAssign: opts.LastAssign}
		return n.Expression.Compile(indent, scope, childOpts)
	}
	code, err := n.Expression.Compile(indent, scope, expressionOpts(opts))
	if err != nil {
		return "", err
	}
	if n.Expression.IsStatement() {
		return code + n.Expression.LineTerminator() + "\n" + indent + "return null", nil
	}
	return "return " + code, nil
}

// --- Value and suffixes ---

// suffix is implemented by the node variants that may only appear
// hanging off a ValueNode.
type suffix interface {
	Node
	compileSuffix(indent string, scope *Scope, opts Options) (string, error)
}

// ValueNode is a base expression with a chain of accessor, index and
// slice suffixes: `door`, `door.handle`, `doors[2]`, `doors[0..2].length`.
type ValueNode struct {
	expressionDefaults
	Base     Node
	Suffixes []Node
}

func NewValue(base Node, suffixes ...Node) *ValueNode {
	return &ValueNode{Base: base, Suffixes: suffixes}
}

// Add appends a suffix to the chain.
func (v *ValueNode) Add(s Node) *ValueNode {
	v.Suffixes = append(v.Suffixes, s)
	return v
}

// HasSuffixes reports whether anything hangs off the base.
func (v *ValueNode) HasSuffixes() bool { return len(v.Suffixes) > 0 }

// Unwrap returns the bare base when no suffix is attached.
func (v *ValueNode) Unwrap() Node {
	if v.HasSuffixes() {
		return v
	}
	return v.Base
}

func (v *ValueNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	code, _, err := v.CompileTarget(indent, scope, opts)
	return code, err
}

// CompileTarget compiles the value and additionally reports the text of
// the final suffix (the base when there is none). An enclosing
// assignment threads that text downward so a super call inside the
// assigned function can resolve its method name.
func (v *ValueNode) CompileTarget(indent string, scope *Scope, opts Options) (string, string, error) {
	if v.Base == nil {
		return "", "", missingChild("value", "base")
	}
	childOpts := expressionOpts(opts)
	code, err := v.Base.Compile(indent, scope, childOpts)
	if err != nil {
		return "", "", err
	}
	last := code
	for _, s := range v.Suffixes {
		sx, ok := s.(suffix)
		if !ok {
			return "", "", errors.NewCompileError(errors.Unknown, "value suffix is not an accessor, index or slice")
		}
		part, err := sx.compileSuffix(indent, scope, childOpts)
		if err != nil {
			return "", "", err
		}
		code += part
		last = part
	}
	return code, last, nil
}

// AccessorNode is a `.name` property suffix.
type AccessorNode struct {
	expressionDefaults
	Name string
}

func NewAccessor(name string) *AccessorNode { return &AccessorNode{Name: name} }

func (n *AccessorNode) Unwrap() Node { return n }

func (n *AccessorNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	return "", errors.NewCompileError(errors.Unknown, "accessor suffix compiled outside a value")
}

func (n *AccessorNode) compileSuffix(indent string, scope *Scope, opts Options) (string, error) {
	return "." + n.Name, nil
}

// IndexNode is a `[expr]` suffix.
type IndexNode struct {
	expressionDefaults
	Index Node
}

func NewIndex(index Node) *IndexNode { return &IndexNode{Index: index} }

func (n *IndexNode) Unwrap() Node { return n }

func (n *IndexNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	return "", errors.NewCompileError(errors.Unknown, "index suffix compiled outside a value")
}

func (n *IndexNode) compileSuffix(indent string, scope *Scope, opts Options) (string, error) {
	if n.Index == nil {
		return "", missingChild("index", "expression")
	}
	code, err := n.Index.Compile(indent, scope, expressionOpts(opts))
	if err != nil {
		return "", err
	}
	return "[" + code + "]", nil
}

// SliceNode is a `[from..to]` range suffix. The range is inclusive at
// both ends, so the emitted slice call adds one to the upper bound to
// bridge JavaScript's exclusive end.
type SliceNode struct {
	expressionDefaults
	From Node
	To   Node
}

func NewSlice(from, to Node) *SliceNode { return &SliceNode{From: from, To: to} }

func (n *SliceNode) Unwrap() Node { return n }

func (n *SliceNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	return "", errors.NewCompileError(errors.Unknown, "slice suffix compiled outside a value")
}

func (n *SliceNode) compileSuffix(indent string, scope *Scope, opts Options) (string, error) {
	if n.From == nil || n.To == nil {
		return "", missingChild("slice", "range bound")
	}
	childOpts := expressionOpts(opts)
	from, err := n.From.Compile(indent, scope, childOpts)
	if err != nil {
		return "", err
	}
	to, err := n.To.Compile(indent, scope, childOpts)
	if err != nil {
		return "", err
	}
	return ".slice(" + from + ", " + to + " + 1)", nil
}

// --- Call ---

// CallNode is a function invocation, a constructor invocation when the
// new flag is set, or a super call when built with NewSuperCall.
type CallNode struct {
	expressionDefaults
	Callee Node
	Args   []Node
	isNew  bool
	super  bool
}

func NewCall(callee Node, args ...Node) *CallNode {
	return &CallNode{Callee: callee, Args: args}
}

// NewSuperCall builds a call to the enclosing method's super
// implementation; the method name is resolved at compile time from the
// innermost assignment target.
func NewSuperCall(args ...Node) *CallNode {
	return &CallNode{super: true, Args: args}
}

// NewInstance marks the call as a constructor invocation and returns
// the node.
func (n *CallNode) NewInstance() *CallNode {
	n.isNew = true
	return n
}

// IsSuper reports whether this is a super call.
func (n *CallNode) IsSuper() bool { return n.super }

func (n *CallNode) Unwrap() Node { return n }

func (n *CallNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	argOpts := expressionOpts(opts)
	argOpts.NoParen = true
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		code, err := arg.Compile(indent, scope, argOpts)
		if err != nil {
			return "", err
		}
		args[i] = code
	}
	joined := strings.Join(args, ", ")

	if n.super {
		if opts.LastAssign == "" {
			return "", errors.NewCompileError(errors.Unknown, "super call outside of a method assignment")
		}
		method := strings.TrimPrefix(opts.LastAssign, ".")
		if len(args) == 0 {
			return "this.constructor.prototype." + method + ".call(this)", nil
		}
		return "this.constructor.prototype." + method + ".call(this, " + joined + ")", nil
	}

	if n.Callee == nil {
		return "", missingChild("call", "callee")
	}
	callee, err := n.Callee.Compile(indent, scope, expressionOpts(opts))
	if err != nil {
		return "", err
	}
	prefix := ""
	if n.isNew {
		prefix = "new "
	}
	return prefix + callee + "(" + joined + ")", nil
}

// --- Assign ---

// AssignNode binds a value to a target. Context distinguishes object
// literal properties from ordinary assignments.
type AssignNode struct {
	statementDefaults
	Target  Node
	Value   Node
	Context string
}

func NewAssign(target, value Node, context string) *AssignNode {
	return &AssignNode{Target: target, Value: value, Context: context}
}

func (n *AssignNode) HasCustomReturn() bool { return true }

func (n *AssignNode) LineTerminator() string {
	if n.Value != nil && n.Value.HasCustomAssign() {
		return ""
	}
	return ";"
}

func (n *AssignNode) Unwrap() Node { return n }

// Compile picks one of three shapes: `key: value` inside an object
// literal, `target = value` for suffixed targets, and a scope-resolved
// declaration for plain identifiers. Values with custom assign handling
// (comprehensions) render the assignment themselves.
func (n *AssignNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	if n.Target == nil {
		return "", missingChild("assignment", "target")
	}
	if n.Value == nil {
		return "", missingChild("assignment", "value")
	}

	var name, last string
	var err error
	suffixed := false
	if target, ok := n.Target.(*ValueNode); ok {
		name, last, err = target.CompileTarget(indent, scope, expressionOpts(opts))
		suffixed = target.HasSuffixes()
	} else {
		name, err = n.Target.Compile(indent, scope, expressionOpts(opts))
		last = name
	}
	if err != nil {
		return "", err
	}

	childOpts := opts
	childOpts.Statement = false
	childOpts.NoParen = false
	childOpts.Assign = name
	childOpts.LastAssign = last

	if n.Context == ObjectContext {
		childOpts.Return = false
		childOpts.Assign = ""
		value, err := n.Value.Compile(indent, scope, childOpts)
		if err != nil {
			return "", err
		}
		return name + ": " + value, nil
	}

	if suffixed {
		childOpts.Return = false
		if n.Value.HasCustomAssign() {
			return n.Value.Compile(indent, scope, childOpts)
		}
		childOpts.Assign = ""
		value, err := n.Value.Compile(indent, scope, childOpts)
		if err != nil {
			return "", err
		}
		return name + " = " + value, nil
	}

	declared := scope.Declared(name)
	if !declared {
		scope.Declare(name)
	}

	if n.Value.HasCustomAssign() {
		code, err := n.Value.Compile(indent, scope, childOpts)
		if err != nil {
			return "", err
		}
		if !declared {
			return "var " + name + ";\n" + indent + code, nil
		}
		return code, nil
	}

	childOpts.Return = false
	childOpts.Assign = ""
	value, err := n.Value.Compile(indent, scope, childOpts)
	if err != nil {
		return "", err
	}
	code := name + " = " + value
	if !declared {
		code = "var " + code
	}
	if opts.Return {
		code += ";\n" + indent + "return " + name
	}
	return code, nil
}

// --- Op ---

// conversions maps Kava operator spellings to their JavaScript
// equivalents. Spellings not in the table pass through unchanged.
var conversions = map[string]string{
	"==":   "===",
	"!=":   "!==",
	"is":   "===",
	"aint": "!==",
	"and":  "&&",
	"or":   "||",
	"not":  "!",
}

// conditionals are the compound assignment spellings that expand to a
// short-circuit re-assignment.
var conditionals = map[string]bool{
	"||=": true,
	"&&=": true,
}

// OpNode is a unary or binary operator application. A nil Second means
// unary.
type OpNode struct {
	expressionDefaults
	Operator string
	First    Node
	Second   Node
}

func NewOp(operator string, first, second Node) *OpNode {
	return &OpNode{Operator: operator, First: first, Second: second}
}

func NewUnary(operator string, operand Node) *OpNode {
	return &OpNode{Operator: operator, First: operand}
}

func (n *OpNode) Unwrap() Node { return n }

func (n *OpNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	if n.First == nil {
		return "", missingChild("operator", "operand")
	}
	childOpts := expressionOpts(opts)
	op := n.Operator
	if converted, ok := conversions[op]; ok {
		op = converted
	}
	first, err := n.First.Compile(indent, scope, childOpts)
	if err != nil {
		return "", err
	}
	if n.Second == nil {
		space := ""
		if op == "delete" {
			space = " "
		}
		return op + space + first, nil
	}
	second, err := n.Second.Compile(indent, scope, childOpts)
	if err != nil {
		return "", err
	}
	if conditionals[n.Operator] {
		return first + " = " + first + " " + n.Operator[:2] + " " + second, nil
	}
	return first + " " + op + " " + second, nil
}

// --- Code ---

// CodeNode is a function literal.
type CodeNode struct {
	expressionDefaults
	Params []string
	Body   *Expressions
}

func NewCode(params []string, body *Expressions) *CodeNode {
	return &CodeNode{Params: params, Body: body}
}

func (n *CodeNode) Unwrap() Node { return n }

// Compile opens a child scope, declares the parameters into it, and
// forces return intent onto the body: the last expression of a function
// is its return value.
func (n *CodeNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	if n.Body == nil {
		return "", missingChild("function", "body")
	}
	child := scope.ChildScope()
	for _, param := range n.Params {
		child.Declare(param)
	}
	bodyOpts := Options{Return: true, LastAssign: opts.LastAssign}
	body, err := n.Body.Compile(indent+Indent, child, bodyOpts)
	if err != nil {
		return "", err
	}
	return "function(" + strings.Join(n.Params, ", ") + ") {\n" + body + "\n" + indent + "}", nil
}

// --- Object ---

// ObjectNode is an object literal; its properties are assignments with
// object context.
type ObjectNode struct {
	expressionDefaults
	Properties []*AssignNode
}

func NewObject(properties ...*AssignNode) *ObjectNode {
	return &ObjectNode{Properties: properties}
}

func (n *ObjectNode) Unwrap() Node { return n }

func (n *ObjectNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	if len(n.Properties) == 0 {
		return "{}", nil
	}
	inner := indent + Indent
	childOpts := expressionOpts(opts)
	lines := make([]string, len(n.Properties))
	for i, prop := range n.Properties {
		code, err := prop.Compile(inner, scope, childOpts)
		if err != nil {
			return "", err
		}
		lines[i] = inner + code
	}
	return "{\n" + strings.Join(lines, ",\n") + "\n" + indent + "}", nil
}

// --- Array ---

// ArrayNode is an array literal.
type ArrayNode struct {
	expressionDefaults
	Elements []Node
}

func NewArray(elements ...Node) *ArrayNode {
	return &ArrayNode{Elements: elements}
}

func (n *ArrayNode) Unwrap() Node { return n }

func (n *ArrayNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	childOpts := expressionOpts(opts)
	parts := make([]string, len(n.Elements))
	for i, element := range n.Elements {
		code, err := element.Compile(indent, scope, childOpts)
		if err != nil {
			return "", err
		}
		parts[i] = code
	}
	return "[" + strings.Join(parts, ", ") + "]", nil
}

// --- While ---

// WhileNode is a while loop.
type WhileNode struct {
	statementDefaults
	Condition Node
	Body      *Expressions
}

func NewWhile(condition Node, body *Expressions) *WhileNode {
	return &WhileNode{Condition: condition, Body: body}
}

func (n *WhileNode) Unwrap() Node { return n }

func (n *WhileNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	if n.Condition == nil {
		return "", missingChild("while", "condition")
	}
	if n.Body == nil {
		return "", missingChild("while", "body")
	}
	condOpts := expressionOpts(opts)
	condOpts.NoParen = true
	cond, err := n.Condition.Compile(indent, scope, condOpts)
	if err != nil {
		return "", err
	}
	body, err := n.Body.Compile(indent+Indent, scope, expressionOpts(opts))
	if err != nil {
		return "", err
	}
	return "while (" + cond + ") {\n" + body + "\n" + indent + "}", nil
}

// --- For ---

// ForNode is a comprehension over a source expression: `x * 2 for x in
// list`, optionally with an index variable. When the surrounding
// context wants the loop's value (a return or an assignment), the body
// results are collected into a fresh array.
type ForNode struct {
	statementDefaults
	Body   *Expressions
	Source Node
	Name   string
	Index  string
}

func NewFor(body *Expressions, source Node, name, index string) *ForNode {
	return &ForNode{Body: body, Source: source, Name: name, Index: index}
}

func (n *ForNode) HasCustomReturn() bool { return true }
func (n *ForNode) HasCustomAssign() bool { return true }

func (n *ForNode) Unwrap() Node { return n }

func (n *ForNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	if n.Source == nil {
		return "", missingChild("for", "source")
	}
	if n.Body == nil || len(n.Body.Nodes) == 0 {
		return "", missingChild("for", "body")
	}
	collecting := opts.Return || opts.Assign != ""

	srcVar := scope.FreshTemporary()
	iVar := scope.FreshTemporary()
	lenVar := scope.FreshTemporary()
	resVar := ""
	if collecting {
		resVar = scope.FreshTemporary()
	}

	source, err := n.Source.Compile(indent, scope, expressionOpts(opts))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("var " + srcVar + " = " + source + ";\n")
	if collecting {
		b.WriteString(indent + "var " + resVar + " = [];\n")
	}
	b.WriteString(indent + "for (var " + iVar + " = 0, " + lenVar + " = " + srcVar + ".length; " + iVar + " < " + lenVar + "; " + iVar + "++) {\n")

	inner := indent + Indent
	b.WriteString(inner + bindLine(scope, n.Name, srcVar+"["+iVar+"]"))
	if n.Index != "" {
		b.WriteString(inner + bindLine(scope, n.Index, iVar))
	}

	bodyOpts := expressionOpts(opts)
	if collecting {
		// The last body expression becomes the collected element; any
		// preceding ones run for their side effects.
		setup := n.Body.Nodes[:len(n.Body.Nodes)-1]
		final := n.Body.Nodes[len(n.Body.Nodes)-1]
		if len(setup) > 0 {
			code, err := NewExpressions(setup...).Compile(inner, scope, bodyOpts)
			if err != nil {
				return "", err
			}
			b.WriteString(code + "\n")
		}
		slot := NewValue(NewLiteral(resVar), NewIndex(NewLiteral(iVar)))
		store := NewAssign(slot, final.Unwrap(), "")
		code, err := store.Compile(inner, scope, bodyOpts)
		if err != nil {
			return "", err
		}
		b.WriteString(inner + code + store.LineTerminator() + "\n")
	} else {
		code, err := n.Body.Compile(inner, scope, bodyOpts)
		if err != nil {
			return "", err
		}
		b.WriteString(code + "\n")
	}

	b.WriteString(indent + "}")
	if opts.Assign != "" {
		b.WriteString("\n" + indent + opts.Assign + " = " + resVar + ";")
	}
	if opts.Return {
		b.WriteString("\n" + indent + "return " + resVar + ";")
	}
	return b.String(), nil
}

// bindLine emits one loop-variable binding, declaring it with var only
// the first time the name is seen in this scope.
func bindLine(scope *Scope, name, value string) string {
	prefix := ""
	if !scope.Declared(name) {
		scope.Declare(name)
		prefix = "var "
	}
	return prefix + name + " = " + value + ";\n"
}

// --- Try ---

// TryNode is a try statement with an optional recovery body and an
// optional finally body.
type TryNode struct {
	statementDefaults
	Body      *Expressions
	ErrorName string
	Recovery  *Expressions
	Finally   *Expressions
}

func NewTry(body *Expressions, errorName string, recovery, finally *Expressions) *TryNode {
	return &TryNode{Body: body, ErrorName: errorName, Recovery: recovery, Finally: finally}
}

func (n *TryNode) Unwrap() Node { return n }

// Compile passes the outer options into every branch, so return intent
// flows into the try, recovery and finally bodies alike.
func (n *TryNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	if n.Body == nil {
		return "", missingChild("try", "body")
	}
	childOpts := opts
	childOpts.Statement = false
	childOpts.NoParen = false
	childOpts.Assign = ""

	body, err := n.Body.Compile(indent+Indent, scope, childOpts)
	if err != nil {
		return "", err
	}
	out := "try {\n" + body + "\n" + indent + "}"

	errName := n.ErrorName
	if errName == "" {
		errName = "err"
	}
	if n.Recovery != nil {
		scope.Declare(errName)
		recovery, err := n.Recovery.Compile(indent+Indent, scope, childOpts)
		if err != nil {
			return "", err
		}
		out += " catch (" + errName + ") {\n" + recovery + "\n" + indent + "}"
	} else if n.Finally == nil {
		out += " catch (" + errName + ") {}"
	}

	if n.Finally != nil {
		finally, err := n.Finally.Compile(indent+Indent, scope, childOpts)
		if err != nil {
			return "", err
		}
		out += " finally {\n" + finally + "\n" + indent + "}"
	}
	return out, nil
}

// --- Throw ---

// ThrowNode is a throw statement.
type ThrowNode struct {
	statementDefaults
	Expression Node
}

func NewThrow(expression Node) *ThrowNode { return &ThrowNode{Expression: expression} }

func (n *ThrowNode) LineTerminator() string { return ";" }
func (n *ThrowNode) Unwrap() Node           { return n }

func (n *ThrowNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	if n.Expression == nil {
		return "", missingChild("throw", "expression")
	}
	code, err := n.Expression.Compile(indent, scope, expressionOpts(opts))
	if err != nil {
		return "", err
	}
	return "throw " + code, nil
}

// --- Parenthetical ---

// ParentheticalNode is explicit grouping. It is transparent: statement
// and custom handling flags come from the inner node, and the
// parentheses are dropped when the caller guarantees grouping or the
// inner node is a statement.
type ParentheticalNode struct {
	Inner Node
}

func NewParenthetical(inner Node) *ParentheticalNode {
	return &ParentheticalNode{Inner: inner.Unwrap()}
}

func (n *ParentheticalNode) IsStatement() bool      { return n.Inner.IsStatement() }
func (n *ParentheticalNode) HasCustomReturn() bool  { return n.Inner.HasCustomReturn() }
func (n *ParentheticalNode) HasCustomAssign() bool  { return n.Inner.HasCustomAssign() }
func (n *ParentheticalNode) LineTerminator() string { return n.Inner.LineTerminator() }
func (n *ParentheticalNode) Unwrap() Node           { return n.Inner }

func (n *ParentheticalNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	if n.Inner == nil {
		return "", missingChild("parenthetical", "expression")
	}
	childOpts := opts
	childOpts.NoParen = false
	childOpts.Statement = false
	code, err := n.Inner.Compile(indent, scope, childOpts)
	if err != nil {
		return "", err
	}
	if opts.NoParen || n.Inner.IsStatement() {
		return code, nil
	}
	return "(" + code + ")", nil
}

// --- If ---

// IfNode is a conditional. It compiles to an if statement when either
// branch is a statement (or a caller forces statement form) and to a
// ternary expression otherwise. A chain is an if whose else branch is
// another if, emitted as `else if`.
type IfNode struct {
	expressionDefaults
	Condition Node
	ThenBody  Node
	ElseBody  Node
	chain     bool
}

// NewIf builds a conditional; the branch is normalized via Unwrap.
func NewIf(condition, consequent Node) *IfNode {
	return &IfNode{Condition: condition, ThenBody: consequent.Unwrap()}
}

// IsChain reports whether the else branch is a chained if.
func (n *IfNode) IsChain() bool { return n.chain }

// AddElse attaches an else branch at the end of the chain. Attaching an
// if marks the link as a chain, so it renders as `else if`.
func (n *IfNode) AddElse(body Node) *IfNode {
	if n.chain {
		n.ElseBody.(*IfNode).AddElse(body)
		return n
	}
	body = body.Unwrap()
	if elseIf, ok := body.(*IfNode); ok {
		n.chain = true
		n.ElseBody = elseIf
	} else {
		n.ElseBody = body
	}
	return n
}

// AddDefaultElse attaches a default branch at the deepest link of the
// chain without ever chaining it, as the else of a switch lowering.
func (n *IfNode) AddDefaultElse(body Node) *IfNode {
	if n.chain {
		n.ElseBody.(*IfNode).AddDefaultElse(body)
		return n
	}
	n.ElseBody = body.Unwrap()
	return n
}

// RewriteConditionForSwitch turns each condition in the chain into an
// equality test of subject against it. The parser lowers switch/when
// through this.
func (n *IfNode) RewriteConditionForSwitch(subject Node) *IfNode {
	n.Condition = NewOp("is", subject, n.Condition)
	if n.chain {
		n.ElseBody.(*IfNode).RewriteConditionForSwitch(subject)
	}
	return n
}

// IsStatement reports statement form: forced as soon as either branch
// cannot be an expression.
func (n *IfNode) IsStatement() bool {
	if n.ThenBody != nil && n.ThenBody.IsStatement() {
		return true
	}
	return n.ElseBody != nil && n.ElseBody.IsStatement()
}

func (n *IfNode) LineTerminator() string {
	if n.IsStatement() {
		return ""
	}
	return ";"
}

func (n *IfNode) Unwrap() Node { return n }

func (n *IfNode) Compile(indent string, scope *Scope, opts Options) (string, error) {
	if n.Condition == nil {
		return "", missingChild("if", "condition")
	}
	if n.ThenBody == nil {
		return "", missingChild("if", "consequent")
	}
	if opts.Statement || n.IsStatement() {
		return n.compileStatement(indent, scope, opts)
	}
	return n.compileTernary(indent, scope, opts)
}

// compileStatement renders a brace-delimited if. Branches are compiled
// as blocks, so return intent pushes down into each of them; chain
// tails are compiled with statement form forced, producing `else if`.
func (n *IfNode) compileStatement(indent string, scope *Scope, opts Options) (string, error) {
	condOpts := expressionOpts(opts)
	condOpts.NoParen = true
	cond, err := n.Condition.Compile(indent, scope, condOpts)
	if err != nil {
		return "", err
	}

	branchOpts := opts
	branchOpts.Statement = false
	branchOpts.NoParen = false
	branchOpts.Assign = ""

	thenBody, err := Wrap(n.ThenBody).Compile(indent+Indent, scope, branchOpts)
	if err != nil {
		return "", err
	}
	out := "if (" + cond + ") {\n" + thenBody + "\n" + indent + "}"

	if n.ElseBody == nil {
		return out, nil
	}
	if n.chain {
		tailOpts := branchOpts
		tailOpts.Statement = true
		tail, err := n.ElseBody.Compile(indent, scope, tailOpts)
		if err != nil {
			return "", err
		}
		return out + " else " + tail, nil
	}
	elseBody, err := Wrap(n.ElseBody).Compile(indent+Indent, scope, branchOpts)
	if err != nil {
		return "", err
	}
	return out + " else {\n" + elseBody + "\n" + indent + "}", nil
}

func (n *IfNode) compileTernary(indent string, scope *Scope, opts Options) (string, error) {
	childOpts := expressionOpts(opts)
	cond, err := n.Condition.Compile(indent, scope, childOpts)
	if err != nil {
		return "", err
	}
	thenBody, err := n.ThenBody.Compile(indent, scope, childOpts)
	if err != nil {
		return "", err
	}
	elseBody := "null"
	if n.ElseBody != nil {
		elseBody, err = n.ElseBody.Compile(indent, scope, childOpts)
		if err != nil {
			return "", err
		}
	}
	return cond + " ? " + thenBody + " : " + elseBody, nil
}
