package main

import "testing"

func TestEvaluateCountExprAccepts(t *testing.T) {
	cases := []struct {
		expr string
		want int64
	}{
		{"42", 42},
		{" 42 ", 42},
		{"0", 0},
		{"6*7", 42},
		{"(40+2)", 42},
		{"100/4", 25},
		{"84/2", 42},
		{"41.5+0.5", 42},
		{"5--3", 8},
		{"50-8", 42},
		{"2*(20+1)", 42},
		{"10/4*2", 5},
		{"50--2*4", 58},
	}
	for _, tc := range cases {
		got, err := evaluateCountExpr(tc.expr)
		if err != nil {
			t.Errorf("evaluateCountExpr(%q) error: %v", tc.expr, err)
			continue
		}
		if got != tc.want {
			t.Errorf("evaluateCountExpr(%q) = %d, want %d", tc.expr, got, tc.want)
		}
	}
}

func TestEvaluateCountExprRejects(t *testing.T) {
	cases := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"words", "forty two"},
		{"letters mixed in", "4f2"},
		{"division by zero", "42/0"},
		{"division by zero expr", "42/(3-3)"},
		{"empty parens", "()"},
		{"empty parens in expr", "42+()"},
		{"leading zero", "042"},
		{"leading zeros", "007"},
		{"chained plus", "5++3"},
		{"triple minus", "5---3"},
		{"plus minus", "5+-3"},
		{"star minus", "5*-3"},
		{"slash minus", "6/-3"},
		{"leading minus", "-5"},
		{"negative zero", "-0"},
		{"parenthesized negative", "(-3)+5"},
		{"chained mul div", "5*/3"},
		{"bare dot", "."},
		{"dangling fraction", "42."},
		{"dot prefix", ".5"},
		{"double dot", "4..2"},
		{"unclosed paren", "(42"},
		{"stray close paren", "42)"},
		{"negative result", "3-5"},
		{"non-integer result", "10/4"},
		{"trailing operator", "42+"},
		{"leading star", "*42"},
		{"illegal char", "42!"},
	}
	for _, tc := range cases {
		if _, err := evaluateCountExpr(tc.expr); err == nil {
			t.Errorf("%s: evaluateCountExpr(%q) succeeded, want error", tc.name, tc.expr)
		}
	}
}
