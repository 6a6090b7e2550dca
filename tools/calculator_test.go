package tools

import (
	"context"
	"testing"
)

func TestCalculatorBasicOps(t *testing.T) {
	c := &CalculatorTool{}
	tests := []struct{ in, want string }{
		{`{"op":"add","a":1,"b":2}`, "3"},
		{`{"op":"sub","a":5,"b":2}`, "3"},
		{`{"op":"mul","a":150,"b":12.5}`, "1875"},
		{`{"op":"div","a":8,"b":2}`, "4"},
		{`{"op":"pow","a":2,"b":3}`, "8"},
		{`{"op":"sqrt","a":9}`, "3"},
		{`{"op":"pct_change","a":200,"b":210}`, "5"},
	}
	for _, tc := range tests {
		got, err := c.Execute(context.Background(), tc.in)
		if err != nil || got != tc.want {
			t.Fatalf("%s => %q (%v), want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestCalculatorErrors(t *testing.T) {
	c := &CalculatorTool{}
	cases := []string{`x`, `{"op":"div","a":1,"b":0}`, `{"op":"sqrt","a":-1}`, `{"op":"noop","a":1}`, `{"op":"pct_change","a":0,"b":1}`}
	for _, in := range cases {
		if _, err := c.Execute(context.Background(), in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
