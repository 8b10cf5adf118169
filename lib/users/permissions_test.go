package users

import (
	"encoding/json"
	"math"
	"testing"
)

func TestRangeGrantJSON(t *testing.T) {
	tests := []struct {
		in   string
		want RangeGrant
		out  string
	}{
		{"true", RangeUnlimited, "true"},
		{"false", RangeDenied, "false"},
		{"null", RangeDenied, "false"},
		{"0", RangeDenied, "false"},
		{"-3", RangeDenied, "false"},
		{"20", 20, "20"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var g RangeGrant
			if err := json.Unmarshal([]byte(tt.in), &g); err != nil {
				t.Fatalf("Unmarshal(%s) failed: %v", tt.in, err)
			}
			if g != tt.want {
				t.Errorf("Unmarshal(%s) = %d, want %d", tt.in, g, tt.want)
			}
			out, err := json.Marshal(g)
			if err != nil {
				t.Fatal(err)
			}
			if string(out) != tt.out {
				t.Errorf("Marshal(%d) = %s, want %s", g, out, tt.out)
			}
		})
	}

	var g RangeGrant
	if err := json.Unmarshal([]byte(`"x"`), &g); err == nil {
		t.Error("expected an error for a string grant")
	}
}

func TestRangeGrantCap(t *testing.T) {
	if got := RangeUnlimited.Cap(); got != math.MaxInt64 {
		t.Errorf("unlimited cap = %d", got)
	}
	if got := RangeGrant(7).Cap(); got != 7 {
		t.Errorf("cap = %d, want 7", got)
	}
	if RangeDenied.Allowed() {
		t.Error("denied grant allows listing")
	}
}

func TestGrantsResolve(t *testing.T) {
	g := Grants{
		Perms: Permissions{Get: true, Range: 5},
		Base: map[string]BasePermissions{
			"b":    {Put: true, Range: 20},
			"free": {Range: RangeUnlimited},
		},
	}

	tests := []struct {
		name string
		op   Op
		base string
		want bool
	}{
		{"global grant", OpGet, "", true},
		{"global grant any base", OpGet, "x", true},
		{"override grant", OpPut, "b", true},
		{"override of other base", OpPut, "x", false},
		{"no base", OpPut, "", false},
		{"not grantable per base", OpHalt, "b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Allows(tt.op, tt.base); got != tt.want {
				t.Errorf("Allows(%s, %q) = %v, want %v", tt.op, tt.base, got, tt.want)
			}
		})
	}

	// the effective cap is the wider of both grants
	if got := g.Range("b"); got != 20 {
		t.Errorf("Range(b) = %d, want 20", got)
	}
	if got := g.Range("x"); got != 5 {
		t.Errorf("Range(x) = %d, want 5", got)
	}
	if got := g.Range("free"); got != RangeUnlimited {
		t.Errorf("Range(free) = %d, want unlimited", got)
	}
	if (Grants{}).Allows(OpRange, "b") {
		t.Error("zero grants allow listing")
	}
}
