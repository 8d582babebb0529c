package compiler

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		input string
		want  stmtKind
	}{
		{"var a:number", stmtVarDecl},
		{"define f(x:number) -> number", stmtFunctionDecl},
		{"define P.f()", stmtFunctionDecl},
		{"define Point", stmtClassDecl},
		{"if (a)", stmtIf},
		{"else if (a)", stmtElseIf},
		{"else", stmtElse},
		{"for (i in 1...3)", stmtFor},
		{"while (a)", stmtWhile},
		{"continue", stmtContinue},
		{"break", stmtBreak},
		{"return a", stmtReturn},
		{`include "x"`, stmtInclude},
		{"a = b + 1", stmtExpression},
	}
	for _, tc := range tests {
		if got := classify(firstStatement(t, tc.input)); got != tc.want {
			t.Errorf("classify(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestAnalyzeVarDecl(t *testing.T) {
	s := &sink{}
	syn := analyzeVarDecl(s, firstStatement(t, "var total:number = a + 1"))
	if syn == nil {
		t.Fatalf("analyzeVarDecl failed: %v", s.diags)
	}
	if syn.Name.Literal != "total" || syn.Type != TypeNumber {
		t.Errorf("got %s:%s", syn.Name.Literal, syn.Type)
	}
	// The initializer is rewritten as an assignment to the variable.
	if len(syn.Init) != 5 || syn.Init[0].Literal != "total" || syn.Init[1].Type != TokenAssign {
		t.Errorf("Init = %v", syn.Init)
	}

	wild := analyzeVarDecl(s, firstStatement(t, "var x:*"))
	if wild == nil || wild.Type != TypeAny || wild.Init != nil {
		t.Errorf("wildcard declaration = %+v", wild)
	}

	for _, bad := range []string{"var x", "var x:", "var x:number 1", "var x:number ="} {
		s := &sink{}
		if analyzeVarDecl(s, firstStatement(t, bad)) != nil || len(s.diags) != 1 {
			t.Errorf("analyzeVarDecl(%q) accepted or gave %v", bad, s.diags)
		}
	}
}

func TestAnalyzeFunctionDecl(t *testing.T) {
	tests := []struct {
		input  string
		name   string
		class  string
		params []ParamSyntax
		ret    string
	}{
		{"define f()", "f", "", nil, TypeVoid},
		{"define f(a:number, b:*) -> string", "f", "", []ParamSyntax{{"a", TypeNumber}, {"b", TypeAny}}, TypeString},
		{"define Point.len() -> number", "len", "Point", nil, TypeNumber},
	}
	for _, tc := range tests {
		s := &sink{}
		syn := analyzeFunctionDecl(s, firstStatement(t, tc.input))
		if syn == nil {
			t.Errorf("analyzeFunctionDecl(%q) failed: %v", tc.input, s.diags)
			continue
		}
		if syn.Name != tc.name || syn.Class != tc.class || syn.Return != tc.ret {
			t.Errorf("analyzeFunctionDecl(%q) = %+v", tc.input, syn)
		}
		if len(syn.Params) != len(tc.params) {
			t.Errorf("analyzeFunctionDecl(%q) params = %v, want %v", tc.input, syn.Params, tc.params)
			continue
		}
		for i := range tc.params {
			if syn.Params[i] != tc.params[i] {
				t.Errorf("analyzeFunctionDecl(%q) param %d = %v, want %v", tc.input, i, syn.Params[i], tc.params[i])
			}
		}
	}

	for _, bad := range []string{"define 1()", "define f x", "define f(a)", "define f(a:number", "define f() number"} {
		s := &sink{}
		if analyzeFunctionDecl(s, firstStatement(t, bad)) != nil || len(s.diags) == 0 {
			t.Errorf("analyzeFunctionDecl(%q) accepted", bad)
		}
	}
}

func TestAnalyzeFor(t *testing.T) {
	s := &sink{}
	syn := analyzeFor(s, firstStatement(t, "for (i in a + 1...n * 2) print(i)"))
	if syn == nil {
		t.Fatalf("analyzeFor failed: %v", s.diags)
	}
	if syn.Counter.Literal != "i" || len(syn.From) != 3 || len(syn.To) != 3 || len(syn.Inline) != 4 {
		t.Errorf("analyzeFor = counter %s, from %v, to %v, inline %v", syn.Counter.Literal, syn.From, syn.To, syn.Inline)
	}
}

func TestAnalyzeCond(t *testing.T) {
	s := &sink{}
	syn := analyzeElseIf(s, firstStatement(t, "else if (a == (b)) a++"))
	if syn == nil {
		t.Fatalf("analyzeElseIf failed: %v", s.diags)
	}
	if len(syn.Cond) != 5 || len(syn.Inline) != 2 {
		t.Errorf("cond %v inline %v", syn.Cond, syn.Inline)
	}
	if analyzeWhile(s, firstStatement(t, "while ()")) != nil {
		t.Error("empty while condition accepted")
	}
}

func TestClassifyExpr(t *testing.T) {
	tests := []struct {
		input string
		want  exprForm
	}{
		{"a", exprAtom},
		{"f(a, b)", exprCall},
		{"[1, 2]", exprArray},
		{"new Point", exprInstance},
		{"p.x", exprAttribute},
		{"p.f(1)", exprAttribute},
		{"a[0]", exprSubscript},
		{"[1, 2][0]", exprSubscript},
		{"a as string", exprCast},
		{"a++", exprSuffix},
		{"-a", exprPrefix},
		{"f(a) + g(b)", exprInfix},
		{"a b", exprInvalid},
	}
	for _, tc := range tests {
		got, _ := classifyExpr(firstStatement(t, tc.input))
		if got != tc.want {
			t.Errorf("classifyExpr(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestAnalyzeSubscript(t *testing.T) {
	tokens := firstStatement(t, "m[i][j + 1]")
	s := &sink{}
	syn := analyzeSubscript(s, tokens, lpo(tokens))
	if syn == nil {
		t.Fatalf("analyzeSubscript failed: %v", s.diags)
	}
	if len(syn.Target) != 1 || len(syn.Indices) != 2 || len(syn.Indices[1]) != 3 {
		t.Errorf("target %v indices %v", syn.Target, syn.Indices)
	}

	literal := firstStatement(t, "[1, 2][0]")
	syn = analyzeSubscript(s, literal, lpo(literal))
	if syn == nil || len(syn.Target) != 5 || len(syn.Indices) != 1 {
		t.Errorf("array literal subscript = %+v", syn)
	}
}

func TestArgumentsRejectEmptyParts(t *testing.T) {
	s := &sink{}
	if analyzeCall(s, firstStatement(t, "f(a,,b)")) != nil {
		t.Error("empty argument accepted")
	}
	if len(s.diags) != 1 || s.diags[0].Category != SyntaxError {
		t.Errorf("diagnostics = %v", s.diags)
	}
	if syn := analyzeCall(s, firstStatement(t, "f()")); syn == nil || len(syn.Args) != 0 {
		t.Errorf("f() = %+v", syn)
	}
}

func TestSinkSuppressionStillMarks(t *testing.T) {
	s := &sink{}
	mark := s.mark()
	s.suppressed(func() { s.report(TypeError, 1, "hidden") })
	if len(s.diags) != 0 {
		t.Errorf("suppressed report recorded: %v", s.diags)
	}
	if !s.failedSince(mark) {
		t.Error("suppressed report did not count as a failure")
	}
}
