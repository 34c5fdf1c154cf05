package ftn

import "testing"

func TestParseAddressRoundTrip(t *testing.T) {
	cases := []string{"1:2/3", "2:250/0", "21:1/100.5", "1:2/3.4@fidonet"}
	for _, s := range cases {
		a, err := ParseAddress(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got := a.String(); got != s {
			t.Fatalf("round trip %q -> %q", s, got)
		}
	}
}

func TestEqualVsEqualNumeric(t *testing.T) {
	a, _ := ParseAddress("1:2/3@fidonet")
	b, _ := ParseAddress("1:2/3@othernet")

	if a.Equal(b) {
		t.Fatalf("addresses with different domains should not be Equal")
	}
	if !a.EqualNumeric(b) {
		t.Fatalf("addresses should match numerically regardless of domain")
	}
}

func TestBossResolvesPointToZero(t *testing.T) {
	a, _ := ParseAddress("1:2/3.4")
	boss := a.Boss()
	if boss.Point != 0 || !boss.IsBoss() {
		t.Fatalf("boss = %+v, want point 0", boss)
	}
}

func TestParseAddressRejectsMalformed(t *testing.T) {
	bad := []string{"", "1/2/3", "1:2", "z:2/3"}
	for _, s := range bad {
		if _, err := ParseAddress(s); err == nil {
			t.Fatalf("expected error parsing %q", s)
		}
	}
}
