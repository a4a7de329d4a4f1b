package graph

import (
	"reflect"
	"testing"
)

func TestParseDependencies(t *testing.T) {
	tests := []struct {
		expr string
		want []Term
	}{
		{"3", []Term{ConstTerm(3)}},
		{"j", []Term{SymbolTerm("j")}},
		{"10 + i - 1 + j", []Term{ConstTerm(9), SymbolTerm("i"), SymbolTerm("j")}},
		{"BUFF_SIZE+1", []Term{ConstTerm(1), SymbolTerm("BUFF_SIZE")}},
		{"5 - 5", []Term{}},
		{"n - 5 + m", []Term{ConstTerm(-5), SymbolTerm("n"), SymbolTerm("m")}},
		{"i + i", []Term{SymbolTerm("i"), SymbolTerm("i")}},
		{"10abc", []Term{SymbolTerm("10abc")}},
		{"  1 \t+ 2 ", []Term{ConstTerm(3)}},
		{"", []Term{}},
		{"9223372036854775807 + 1 + n", []Term{SymbolTerm("n")}},
	}

	for _, tt := range tests {
		got := ParseDependencies(tt.expr)
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("ParseDependencies(%q) = %+v, want %+v", tt.expr, got, tt.want)
		}
	}
}

func TestParseDependenciesWorkedExample(t *testing.T) {
	terms := ParseDependencies("10 + i - 1 + j")
	if len(terms) != 3 {
		t.Fatalf("expected 3 terms, got %d: %+v", len(terms), terms)
	}
	consts := 0
	for _, term := range terms {
		if term.IsConst() {
			consts++
			if term.Const != 9 {
				t.Fatalf("expected constant 9, got %d", term.Const)
			}
		}
	}
	if consts != 1 {
		t.Fatalf("expected exactly one constant term, got %d", consts)
	}
	if terms[1].Name != "i" || terms[2].Name != "j" {
		t.Fatalf("expected symbols i, j in order, got %+v", terms[1:])
	}
}

// A symbol with a leading minus cannot be represented; it is dropped rather
// than negated.
func TestParseDependenciesDropsNegatedSymbols(t *testing.T) {
	p := parseExpression("10 - i + j")
	want := []Term{ConstTerm(10), SymbolTerm("j")}
	if !reflect.DeepEqual(p.terms, want) {
		t.Fatalf("terms = %+v, want %+v", p.terms, want)
	}
	if !reflect.DeepEqual(p.dropped, []string{"-i"}) {
		t.Fatalf("dropped = %v, want [-i]", p.dropped)
	}

	p = parseExpression("x - 12ab")
	want = []Term{ConstTerm(-12), SymbolTerm("x")}
	if !reflect.DeepEqual(p.terms, want) {
		t.Fatalf("terms = %+v, want %+v", p.terms, want)
	}
	if !reflect.DeepEqual(p.dropped, []string{"-ab"}) {
		t.Fatalf("dropped = %v, want [-ab]", p.dropped)
	}
}

func TestNewBufferClassifiesSize(t *testing.T) {
	tests := []struct {
		size string
		kind OperandKind
	}{
		{"100", OperandLiteral},
		{"BUFF_SIZE", OperandName},
		{"BUFF_SIZE + 1", OperandExpr},
		{"", OperandUnknown},
		{" 8 ", OperandLiteral},
	}
	for _, tt := range tests {
		n := NewBuffer("buf", tt.size)
		if n.Kind != KindBuffer {
			t.Fatalf("expected buffer kind, got %v", n.Kind)
		}
		if n.Size.Kind != tt.kind {
			t.Fatalf("NewBuffer(%q) size kind = %v, want %v", tt.size, n.Size.Kind, tt.kind)
		}
	}
	if n := NewBuffer("buf", "BUFF_SIZE"); n.Size.Name != "BUFF_SIZE" {
		t.Fatalf("expected bare size name BUFF_SIZE, got %q", n.Size.Name)
	}
}

func TestParseOperandOverflow(t *testing.T) {
	for _, text := range []string{"99999999999999999999", "9223372036854775807 + 1", "-9223372036854775807 - 2", "n + 99999999999999999999"} {
		op, dropped := parseOperand(text)
		if op.Kind != OperandExpr || !op.Overflow {
			t.Fatalf("parseOperand(%q) = %+v, want an overflowed expression", text, op)
		}
		if len(dropped) != 0 {
			t.Fatalf("parseOperand(%q) dropped %v", text, dropped)
		}
	}
	if op, _ := parseOperand("9223372036854775807"); op.Kind != OperandLiteral || op.Overflow {
		t.Fatalf("expected max int64 to stay a literal, got %+v", op)
	}
}
