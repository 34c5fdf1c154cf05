package groups

import "testing"

func TestMatchWildcards(t *testing.T) {
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"FIDO.*", "FIDO.GENERAL", true},
		{"FIDO.*", "OTHER.GENERAL", false},
		{"*", "ANYTHING", true},
		{"F?DO", "FIDO", true},
		{"F?DO", "FIDOO", false},
		{"EXACT", "exact", true},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.s); got != c.want {
			t.Errorf("Match(%q,%q) = %v, want %v", c.pattern, c.s, got, c.want)
		}
	}
}

func TestSubscribesUplinkGroupOverlap(t *testing.T) {
	uplink := &Link{Address: "1:1/1", IsDownlink: false, Groups: []string{"fido"}}
	if !Subscribes(uplink, Area{Tag: "GENERAL", Groups: []string{"fido"}}) {
		t.Fatal("expected overlap match")
	}
	if Subscribes(uplink, Area{Tag: "GENERAL", Groups: []string{"other"}}) {
		t.Fatal("expected no match on disjoint groups")
	}
	uplinkAll := &Link{Address: "1:1/2", IsDownlink: false}
	if !Subscribes(uplinkAll, Area{Tag: "GENERAL", Groups: []string{"other"}}) {
		t.Fatal("empty link groups should match all")
	}
}

func TestSubscribesDownlinkAreaFix(t *testing.T) {
	dl := &Link{
		Address: "1:1/3", IsDownlink: true,
		AreaFixTags: []string{"general"}, AllowEchoes: "*",
	}
	if !Subscribes(dl, Area{Tag: "GENERAL"}) {
		t.Fatal("expected subscribed tag to match")
	}
	if Subscribes(dl, Area{Tag: "OTHER"}) {
		t.Fatal("unsubscribed tag should not match")
	}
}

func TestSubscribesPausedLinkNeverMatches(t *testing.T) {
	l := &Link{Address: "1:1/4", Paused: true}
	if Subscribes(l, Area{Tag: "GENERAL"}) {
		t.Fatal("paused link must never subscribe")
	}
}
