package compiler

import "testing"

func TestLPO(t *testing.T) {
	tests := []struct {
		input string
		want  int // index of the split operator, -1 for none
	}{
		{"a", -1},
		{"f(a + b)", -1},
		{"a + b * c", 1},
		{"a * b + c", 3},
		{"a - b - c", 3},
		{"a = b = c", 1},
		{"- - a", 0},
		{"-a * b", 2},
		{"(a + b) * c", 5},
		{"a[i + 1]", 1},
		{"a[0][1]", 4},
		{"a.b[0]", 3},
		{"a[0].b", 4},
		{"a.b.c", 3},
		{"x as number + 1", 3},
		{"a++", 1},
		{"a < b && c", 3},
		{"a ? 0", 1},
		{"[1, 2]", 0},
	}
	for _, tc := range tests {
		tokens := firstStatement(t, tc.input)
		if got := lpo(tokens); got != tc.want {
			t.Errorf("lpo(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestPill(t *testing.T) {
	tests := []struct {
		input string
		want  int // tokens left
	}{
		{"((a + b))", 3},
		{"(a)", 1},
		{"(a) + (b)", 7},
		{"a", 1},
		{"()", 0},
	}
	for _, tc := range tests {
		tokens := firstStatement(t, tc.input)
		if got := len(pill(tokens)); got != tc.want {
			t.Errorf("pill(%q) left %d tokens, want %d", tc.input, got, tc.want)
		}
	}
}

func TestSplit(t *testing.T) {
	tokens := firstStatement(t, "a, f(b, c), [d, e], g")
	parts := split(tokens, TokenComma)
	want := []int{1, 6, 5, 1}
	if len(parts) != len(want) {
		t.Fatalf("split gave %d parts, want %d", len(parts), len(want))
	}
	for i, n := range want {
		if len(parts[i]) != n {
			t.Errorf("part[%d] has %d tokens, want %d", i, len(parts[i]), n)
		}
	}

	if parts := split(nil, TokenComma); parts != nil {
		t.Errorf("split(nil) = %v, want nil", parts)
	}

	trailing := split(firstStatement(t, "a,"), TokenComma)
	if len(trailing) != 2 || len(trailing[1]) != 0 {
		t.Errorf("split(a,) = %v, want an empty second part", trailing)
	}
}

func TestIndexOfCloseAndOpen(t *testing.T) {
	tokens := firstStatement(t, "f(a[(1)], b)[2]")
	// f ( a [ ( 1 ) ] , b ) [ 2 ]
	// 0 1 2 3 4 5 6 7 8 9 10 11 12 13
	tests := []struct {
		open, close int
	}{
		{1, 10},
		{3, 7},
		{4, 6},
		{11, 13},
	}
	for _, tc := range tests {
		if got := indexOfClose(tokens, tc.open); got != tc.close {
			t.Errorf("indexOfClose(%d) = %d, want %d", tc.open, got, tc.close)
		}
		if got := indexOfOpen(tokens, tc.close); got != tc.open {
			t.Errorf("indexOfOpen(%d) = %d, want %d", tc.close, got, tc.open)
		}
	}
	if got := indexOfClose(tokens, 0); got != -1 {
		t.Errorf("indexOfClose on an identifier = %d, want -1", got)
	}

	unclosed := firstStatement(t, "f(a")
	if got := indexOfClose(unclosed, 1); got != -1 {
		t.Errorf("indexOfClose on unclosed paren = %d, want -1", got)
	}
}
