package nodes

import (
	"strings"
	"testing"
)

func mustCompile(t *testing.T, n Node, opts Options) string {
	t.Helper()
	code, err := n.Compile("", NewScope(nil), opts)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	return code
}

func TestUnwrap(t *testing.T) {
	lit := NewLiteral("42")

	if got := Wrap(lit).Unwrap(); got != Node(lit) {
		t.Errorf("single-child block should unwrap to its child, got %#v", got)
	}
	block := NewExpressions(NewLiteral("1"), NewLiteral("2"))
	if got := block.Unwrap(); got != Node(block) {
		t.Errorf("multi-child block should unwrap to itself, got %#v", got)
	}
	if got := NewValue(lit).Unwrap(); got != Node(lit) {
		t.Errorf("suffix-free value should unwrap to its base, got %#v", got)
	}
	suffixed := NewValue(lit, NewAccessor("length"))
	if got := suffixed.Unwrap(); got != Node(suffixed) {
		t.Errorf("suffixed value should unwrap to itself, got %#v", got)
	}
	if got := NewParenthetical(lit).Unwrap(); got != Node(lit) {
		t.Errorf("parenthetical should unwrap to its inner node, got %#v", got)
	}
	if got := lit.Unwrap(); got != Node(lit) {
		t.Errorf("literal should unwrap to itself, got %#v", got)
	}
}

func TestLiteralStatementSet(t *testing.T) {
	for _, keyword := range []string{"break", "continue"} {
		lit := NewLiteral(keyword)
		if !lit.IsStatement() {
			t.Errorf("%s should be a statement", keyword)
		}
		if !lit.HasCustomReturn() {
			t.Errorf("%s must never be prefixed with return", keyword)
		}
	}
	if NewLiteral("42").IsStatement() {
		t.Errorf("a number literal is not a statement")
	}
}

func TestExpressionsReturnPushdown(t *testing.T) {
	block := NewExpressions(
		NewLiteral("1"),
		NewOp("+", NewLiteral("a"), NewLiteral("b")),
	)
	got := mustCompile(t, block, Options{Return: true})
	want := "1;\nreturn a + b;"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestExpressionsReturnSkipsStatements(t *testing.T) {
	block := NewExpressions(NewLiteral("break"))
	got := mustCompile(t, block, Options{Return: true})
	if got != "break;" {
		t.Errorf("a trailing break must stay bare, got %q", got)
	}
}

func TestAssignDeclaresOnce(t *testing.T) {
	block := NewExpressions(
		NewAssign(NewValue(NewLiteral("x")), NewLiteral("5"), ""),
		NewAssign(NewValue(NewLiteral("x")), NewLiteral("6"), ""),
	)
	got := mustCompile(t, block, Options{})
	want := "var x = 5;\nx = 6;"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestAssignReturnsTheName(t *testing.T) {
	block := NewExpressions(NewAssign(NewValue(NewLiteral("x")), NewLiteral("5"), ""))
	got := mustCompile(t, block, Options{Return: true})
	want := "var x = 5;\nreturn x;"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestAssignObjectContext(t *testing.T) {
	assign := NewAssign(NewValue(NewLiteral("a")), NewLiteral("5"), ObjectContext)
	if got := mustCompile(t, assign, Options{}); got != "a: 5" {
		t.Errorf("expected object property form, got %q", got)
	}
}

func TestAssignSuffixedTarget(t *testing.T) {
	target := NewValue(NewLiteral("a"), NewAccessor("b"))
	assign := NewAssign(target, NewLiteral("5"), "")
	got := mustCompile(t, assign, Options{})
	if got != "a.b = 5" {
		t.Errorf("expected plain property assignment, got %q", got)
	}

	scope := NewScope(nil)
	if _, err := assign.Compile("", scope, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scope.Declared("a.b") || scope.Declared("a") {
		t.Errorf("suffixed targets must not declare anything")
	}
}

func TestSliceInclusiveUpperBound(t *testing.T) {
	value := NewValue(NewLiteral("list"), NewSlice(NewLiteral("2"), NewLiteral("4")))
	got := mustCompile(t, value, Options{})
	if got != "list.slice(2, 4 + 1)" {
		t.Errorf("expected inclusive slice, got %q", got)
	}
}

func TestOperatorConversions(t *testing.T) {
	cases := []struct {
		op   string
		want string
	}{
		{"is", "a === b"},
		{"aint", "a !== b"},
		{"==", "a === b"},
		{"!=", "a !== b"},
		{"and", "a && b"},
		{"or", "a || b"},
		{"+", "a + b"},
		{"<=", "a <= b"},
	}
	for _, tc := range cases {
		t.Run(tc.op, func(t *testing.T) {
			op := NewOp(tc.op, NewLiteral("a"), NewLiteral("b"))
			if got := mustCompile(t, op, Options{}); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestUnaryOperators(t *testing.T) {
	if got := mustCompile(t, NewUnary("not", NewLiteral("ok")), Options{}); got != "!ok" {
		t.Errorf("expected !ok, got %q", got)
	}
	if got := mustCompile(t, NewUnary("-", NewLiteral("x")), Options{}); got != "-x" {
		t.Errorf("expected -x, got %q", got)
	}
	target := NewValue(NewLiteral("cache"), NewAccessor("entry"))
	if got := mustCompile(t, NewUnary("delete", target), Options{}); got != "delete cache.entry" {
		t.Errorf("delete keeps its space, got %q", got)
	}
}

func TestConditionalCompounds(t *testing.T) {
	orEq := NewOp("||=", NewLiteral("a"), NewLiteral("b"))
	if got := mustCompile(t, orEq, Options{}); got != "a = a || b" {
		t.Errorf("expected expansion, got %q", got)
	}
	andEq := NewOp("&&=", NewLiteral("a"), NewLiteral("b"))
	if got := mustCompile(t, andEq, Options{}); got != "a = a && b" {
		t.Errorf("expected expansion, got %q", got)
	}
}

func TestSuperResolvesMethodName(t *testing.T) {
	target := NewValue(NewLiteral("Dog"), NewAccessor("prototype"), NewAccessor("speak"))
	fn := NewCode([]string{"sound"}, NewExpressions(NewSuperCall(NewLiteral("sound"))))
	assign := NewAssign(target, fn, "")

	got := mustCompile(t, assign, Options{})
	want := "Dog.prototype.speak = function(sound) {\n" +
		"  return this.constructor.prototype.speak.call(this, sound);\n" +
		"}"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSuperWithoutMethodContext(t *testing.T) {
	_, err := NewSuperCall().Compile("", NewScope(nil), Options{})
	if err == nil {
		t.Fatalf("super outside a method assignment must fail")
	}
	if !strings.Contains(err.Error(), "super") {
		t.Errorf("error should mention super, got %q", err.Error())
	}
}

func TestConstructorCall(t *testing.T) {
	call := NewCall(NewValue(NewLiteral("Animal")), NewLiteral("'rex'")).NewInstance()
	if got := mustCompile(t, call, Options{}); got != "new Animal('rex')" {
		t.Errorf("expected constructor call, got %q", got)
	}
}

func TestIfTernary(t *testing.T) {
	cond := NewIf(NewLiteral("a"), NewLiteral("b")).AddElse(NewLiteral("c"))
	got := mustCompile(t, cond, Options{})
	if got != "a ? b : c" {
		t.Errorf("expected ternary, got %q", got)
	}

	noElse := NewIf(NewLiteral("a"), NewLiteral("b"))
	if got := mustCompile(t, noElse, Options{}); got != "a ? b : null" {
		t.Errorf("missing else becomes null, got %q", got)
	}
}

func TestIfStatementForm(t *testing.T) {
	branch := NewExpressions(NewLiteral("b"), NewLiteral("c"))
	cond := NewIf(NewLiteral("a"), branch)

	if !cond.IsStatement() {
		t.Fatalf("an if with a statement branch is a statement")
	}
	got := mustCompile(t, cond, Options{})
	if !strings.HasPrefix(got, "if (") {
		t.Errorf("expected statement form, got %q", got)
	}
	if strings.Contains(got, "?") {
		t.Errorf("statement form must not contain a ternary, got %q", got)
	}
}

func TestIfChain(t *testing.T) {
	chain := NewIf(NewLiteral("a"), NewLiteral("1"))
	chain.AddElse(NewIf(NewLiteral("b"), NewLiteral("2")))
	chain.AddDefaultElse(NewLiteral("3"))

	if !chain.IsChain() {
		t.Fatalf("attaching an else-if should mark the chain")
	}

	got := mustCompile(t, chain, Options{Statement: true})
	want := "if (a) {\n" +
		"  1;\n" +
		"} else if (b) {\n" +
		"  2;\n" +
		"} else {\n" +
		"  3;\n" +
		"}"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSwitchLowering(t *testing.T) {
	sw := NewIf(NewLiteral("1"), NewLiteral("'one'"))
	sw.AddElse(NewIf(NewLiteral("2"), NewLiteral("'two'")))
	sw.RewriteConditionForSwitch(NewLiteral("x"))
	sw.AddDefaultElse(NewLiteral("'many'"))

	got := mustCompile(t, sw, Options{})
	want := "x === 1 ? 'one' : x === 2 ? 'two' : 'many'"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestForComprehensionCollects(t *testing.T) {
	body := NewExpressions(NewOp("*", NewLiteral("x"), NewLiteral("2")))
	loop := NewFor(body, NewArray(NewLiteral("1"), NewLiteral("2"), NewLiteral("3")), "x", "")

	got := mustCompile(t, loop, Options{Return: true})
	want := "var __a = [1, 2, 3];\n" +
		"var __d = [];\n" +
		"for (var __b = 0, __c = __a.length; __b < __c; __b++) {\n" +
		"  var x = __a[__b];\n" +
		"  __d[__b] = x * 2;\n" +
		"}\n" +
		"return __d;"
	if got != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, got)
	}
}

func TestForComprehensionAssigns(t *testing.T) {
	body := NewExpressions(NewOp("*", NewLiteral("x"), NewLiteral("2")))
	loop := NewFor(body, NewArray(NewLiteral("1"), NewLiteral("2"), NewLiteral("3")), "x", "")
	block := NewExpressions(NewAssign(NewValue(NewLiteral("doubled")), loop, ""))

	got := mustCompile(t, block, Options{})
	want := "var doubled;\n" +
		"var __a = [1, 2, 3];\n" +
		"var __d = [];\n" +
		"for (var __b = 0, __c = __a.length; __b < __c; __b++) {\n" +
		"  var x = __a[__b];\n" +
		"  __d[__b] = x * 2;\n" +
		"}\n" +
		"doubled = __d;"
	if got != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, got)
	}
}

func TestForSideEffectOnly(t *testing.T) {
	body := NewExpressions(NewCall(NewValue(NewLiteral("log")), NewLiteral("x")))
	loop := NewFor(body, NewValue(NewLiteral("items")), "x", "i")

	got := mustCompile(t, loop, Options{})
	if strings.Contains(got, "= [];") {
		t.Errorf("no result array without return or assign intent, got %q", got)
	}
	if !strings.Contains(got, "var i = __b;") {
		t.Errorf("index variable should be bound, got %q", got)
	}
	if !strings.Contains(got, "log(x);") {
		t.Errorf("body should run for side effects, got %q", got)
	}
}

func TestNestedComprehensionsDelegate(t *testing.T) {
	inner := NewFor(NewExpressions(NewLiteral("y")), NewValue(NewLiteral("row")), "y", "")
	outer := NewFor(NewExpressions(inner), NewValue(NewLiteral("rows")), "row", "")
	block := NewExpressions(outer)

	got := mustCompile(t, block, Options{Return: true})
	if !strings.Contains(got, "__d[__b] = __h;") {
		t.Errorf("inner loop should assign into the outer slot, got:\n%s", got)
	}
	if !strings.HasSuffix(got, "return __d;") {
		t.Errorf("outer loop should return its result array, got:\n%s", got)
	}
}

func TestReturnNode(t *testing.T) {
	plain := NewReturn(NewOp("+", NewLiteral("a"), NewLiteral("b")))
	if got := mustCompile(t, plain, Options{}); got != "return a + b" {
		t.Errorf("expected plain return, got %q", got)
	}

	loop := NewWhile(NewLiteral("true"), NewExpressions(NewCall(NewValue(NewLiteral("tick")))))
	got := mustCompile(t, NewReturn(loop), Options{})
	want := "while (true) {\n  tick();\n}\nreturn null"
	if got != want {
		t.Errorf("returning a statement appends return null, got %q", got)
	}

	if got := mustCompile(t, NewReturn(NewLiteral("break")), Options{}); got != "break" {
		t.Errorf("return of a custom-return literal delegates, got %q", got)
	}
}

func TestParenthetical(t *testing.T) {
	sum := NewOp("+", NewLiteral("a"), NewLiteral("b"))

	if got := mustCompile(t, NewParenthetical(sum), Options{}); got != "(a + b)" {
		t.Errorf("expected parens, got %q", got)
	}

	call := NewCall(NewValue(NewLiteral("f")), NewParenthetical(sum))
	if got := mustCompile(t, call, Options{}); got != "f(a + b)" {
		t.Errorf("argument position suppresses parens, got %q", got)
	}

	cond := NewParenthetical(NewOp("<", NewLiteral("a"), NewLiteral("b")))
	loop := NewWhile(cond, NewExpressions(NewLiteral("a")))
	got := mustCompile(t, loop, Options{})
	if !strings.HasPrefix(got, "while (a < b) {") {
		t.Errorf("condition position suppresses parens, got %q", got)
	}
}

func TestParentheticalTransparency(t *testing.T) {
	loop := NewFor(NewExpressions(NewLiteral("x")), NewValue(NewLiteral("xs")), "x", "")
	wrapped := NewParenthetical(loop)
	if !wrapped.HasCustomAssign() {
		t.Errorf("grouping must not hide custom assign handling")
	}
	if !wrapped.IsStatement() {
		t.Errorf("grouping must not hide statement form")
	}
}

func TestTryCatchFinally(t *testing.T) {
	body := NewExpressions(NewCall(NewValue(NewLiteral("risky"))))
	recovery := NewExpressions(NewCall(NewValue(NewLiteral("handle")), NewValue(NewLiteral("err"))))

	got := mustCompile(t, NewTry(body, "err", recovery, nil), Options{})
	want := "try {\n" +
		"  risky();\n" +
		"} catch (err) {\n" +
		"  handle(err);\n" +
		"}"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	cleanup := NewExpressions(NewCall(NewValue(NewLiteral("close"))))
	got = mustCompile(t, NewTry(body, "", nil, cleanup), Options{})
	if strings.Contains(got, "catch") {
		t.Errorf("finally without recovery needs no catch, got %q", got)
	}
	if !strings.Contains(got, "finally {") {
		t.Errorf("expected finally block, got %q", got)
	}

	got = mustCompile(t, NewTry(body, "", nil, nil), Options{})
	if !strings.Contains(got, "catch (err) {}") {
		t.Errorf("bare try synthesizes an empty catch, got %q", got)
	}
}

func TestTryReturnFlowsIntoBranches(t *testing.T) {
	body := NewExpressions(NewCall(NewValue(NewLiteral("risky"))))
	recovery := NewExpressions(NewLiteral("null"))
	got := mustCompile(t, NewTry(body, "err", recovery, nil), Options{Return: true})
	if !strings.Contains(got, "return risky();") {
		t.Errorf("return intent should reach the try body, got %q", got)
	}
	if !strings.Contains(got, "return null;") {
		t.Errorf("return intent should reach the recovery body, got %q", got)
	}
}

func TestThrow(t *testing.T) {
	boom := NewCall(NewValue(NewLiteral("Error")), NewLiteral("'boom'")).NewInstance()
	if got := mustCompile(t, NewThrow(boom), Options{}); got != "throw new Error('boom')" {
		t.Errorf("expected throw, got %q", got)
	}
}

func TestObjectLiteral(t *testing.T) {
	obj := NewObject(
		NewAssign(NewValue(NewLiteral("root")), NewValue(NewLiteral("Math"), NewAccessor("sqrt")), ObjectContext),
		NewAssign(NewValue(NewLiteral("cube")), NewValue(NewLiteral("cube")), ObjectContext),
	)
	got := mustCompile(t, obj, Options{})
	want := "{\n" +
		"  root: Math.sqrt,\n" +
		"  cube: cube\n" +
		"}"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if got := mustCompile(t, NewObject(), Options{}); got != "{}" {
		t.Errorf("empty object stays inline, got %q", got)
	}
}

func TestCodeDeclaresParams(t *testing.T) {
	body := NewExpressions(NewAssign(NewValue(NewLiteral("x")), NewOp("*", NewLiteral("x"), NewLiteral("2")), ""))
	fn := NewCode([]string{"x"}, body)
	got := mustCompile(t, fn, Options{})
	want := "function(x) {\n" +
		"  x = x * 2;\n" +
		"  return x;\n" +
		"}"
	if got != want {
		t.Errorf("parameters are pre-declared, got %q", got)
	}
}

func TestCompileRoot(t *testing.T) {
	program := NewExpressions(NewLiteral("42"))
	got, err := program.CompileRoot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "(function(){\n  return 42;\n})();"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	build := func() *Expressions {
		body := NewExpressions(NewOp("*", NewLiteral("x"), NewLiteral("2")))
		loop := NewFor(body, NewArray(NewLiteral("1"), NewLiteral("2")), "x", "")
		return NewExpressions(
			NewAssign(NewValue(NewLiteral("xs")), loop, ""),
			NewValue(NewLiteral("xs")),
		)
	}
	program := build()
	first, err := program.CompileRoot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := program.CompileRoot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("repeated compiles must be byte-identical:\n%s\n---\n%s", first, second)
	}
}

func TestSuffixOutsideValue(t *testing.T) {
	if _, err := NewAccessor("x").Compile("", NewScope(nil), Options{}); err == nil {
		t.Errorf("accessor outside a value must fail")
	}
	if _, err := NewIndex(NewLiteral("0")).Compile("", NewScope(nil), Options{}); err == nil {
		t.Errorf("index outside a value must fail")
	}
	if _, err := NewSlice(NewLiteral("0"), NewLiteral("1")).Compile("", NewScope(nil), Options{}); err == nil {
		t.Errorf("slice outside a value must fail")
	}
}

func TestMissingChildren(t *testing.T) {
	if _, err := NewReturn(nil).Compile("", NewScope(nil), Options{}); err == nil {
		t.Errorf("return without expression must fail")
	}
	if _, err := NewAssign(NewValue(NewLiteral("x")), nil, "").Compile("", NewScope(nil), Options{}); err == nil {
		t.Errorf("assignment without value must fail")
	}
	if _, err := NewOp("+", nil, nil).Compile("", NewScope(nil), Options{}); err == nil {
		t.Errorf("operator without operand must fail")
	}
}

func TestLineTerminators(t *testing.T) {
	loop := NewWhile(NewLiteral("true"), NewExpressions(NewLiteral("1")))
	if loop.LineTerminator() != "" {
		t.Errorf("brace-terminated statements take no semicolon")
	}
	if NewOp("+", NewLiteral("a"), NewLiteral("b")).LineTerminator() != ";" {
		t.Errorf("expressions take a semicolon")
	}
	comprehension := NewFor(NewExpressions(NewLiteral("x")), NewValue(NewLiteral("xs")), "x", "")
	assign := NewAssign(NewValue(NewLiteral("out")), comprehension, "")
	if assign.LineTerminator() != "" {
		t.Errorf("assignment of a comprehension ends on the loop's brace")
	}
	if NewReturn(comprehension).LineTerminator() != "" {
		t.Errorf("return of a comprehension ends on the loop's emission")
	}
	if NewReturn(NewLiteral("a")).LineTerminator() != ";" {
		t.Errorf("plain returns take a semicolon")
	}
}
