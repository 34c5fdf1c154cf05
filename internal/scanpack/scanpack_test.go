package scanpack

import (
	"strings"
	"testing"

	"github.com/robwilkins/ftnbbs/internal/ftn"
	"github.com/robwilkins/ftnbbs/internal/groups"
)

func TestRouteNetmailLocalDelivery(t *testing.T) {
	s := NewScanner(groups.NewManager(nil))
	s.OwnAddrs = []ftn.Address{{Zone: 1, Net: 1, Node: 1}}
	local, uplink := s.RouteNetmail(ftn.Address{Zone: 1, Net: 1, Node: 1})
	if !local || uplink != "" {
		t.Fatalf("expected local delivery, got local=%v uplink=%q", local, uplink)
	}
}

func TestRouteNetmailUplinkMatch(t *testing.T) {
	mgr := groups.NewManager([]groups.Link{{Address: "2:2/2"}})
	s := NewScanner(mgr)
	s.OwnAddrs = []ftn.Address{{Zone: 1, Net: 1, Node: 1}}
	local, uplink := s.RouteNetmail(ftn.Address{Zone: 2, Net: 2, Node: 2})
	if local || uplink != "2:2/2" {
		t.Fatalf("local=%v uplink=%q", local, uplink)
	}
}

func TestRouteNetmailZoneDefault(t *testing.T) {
	mgr := groups.NewManager([]groups.Link{{Address: "3:1/1"}})
	s := NewScanner(mgr)
	s.OwnAddrs = []ftn.Address{{Zone: 1, Net: 1, Node: 1}}
	s.DefaultUplink = "1:1/2"
	local, uplink := s.RouteNetmail(ftn.Address{Zone: 3, Net: 9, Node: 9})
	if local || uplink != "3:1/1" {
		t.Fatalf("expected zone-matched uplink, got local=%v uplink=%q", local, uplink)
	}
	local2, uplink2 := s.RouteNetmail(ftn.Address{Zone: 9, Net: 9, Node: 9})
	if local2 || uplink2 != "1:1/2" {
		t.Fatalf("expected default uplink fallback, got local=%v uplink=%q", local2, uplink2)
	}
}

func TestRouteNetmailPointResolvesToBoss(t *testing.T) {
	mgr := groups.NewManager([]groups.Link{{Address: "1:1/5"}})
	s := NewScanner(mgr)
	s.OwnAddrs = []ftn.Address{{Zone: 9, Net: 9, Node: 9}}
	local, uplink := s.RouteNetmail(ftn.Address{Zone: 1, Net: 1, Node: 5, Point: 3})
	if local || uplink != "1:1/5" {
		t.Fatalf("expected point to route via boss, got local=%v uplink=%q", local, uplink)
	}
}

func TestPacketNameFlavours(t *testing.T) {
	cases := []struct {
		f    Flavour
		want string
	}{
		{FlavourNormal, "000000ff.pkt"},
		{FlavourHold, "h000000ff.hpkt"},
		{FlavourCrash, "c000000ff.cpkt"},
		{FlavourImmediate, "i000000ff.ipkt"},
	}
	for _, c := range cases {
		got := packetName(c.f, 255)
		if got != c.want {
			t.Errorf("packetName(%v) = %q, want %q", c.f, got, c.want)
		}
	}
}

func TestHandleEchoFixSubscribe(t *testing.T) {
	link := &groups.Link{Address: "1:1/5", Password: "secret", AllowEchoes: "*"}
	areas := []groups.Area{{Tag: "GENERAL"}, {Tag: "CHAT"}}

	reply := HandleEchoFixRequest(link, "secret\n+GENERAL\n+GENERAL\n", areas)
	if !groups.ContainsFold(link.AreaFixTags, "GENERAL") {
		t.Fatalf("expected GENERAL subscribed, tags=%v", link.AreaFixTags)
	}
	if len(link.AreaFixTags) != 1 {
		t.Fatalf("expected idempotent subscribe, tags=%v", link.AreaFixTags)
	}
	if !strings.Contains(strings.Join(reply.Lines, "\n"), "+GENERAL") {
		t.Fatalf("reply = %v", reply.Lines)
	}
}

func TestHandleEchoFixBadPassword(t *testing.T) {
	link := &groups.Link{Address: "1:1/5", Password: "secret"}
	reply := HandleEchoFixRequest(link, "wrong\n+GENERAL\n", nil)
	if len(reply.Lines) != 1 || !strings.Contains(reply.Lines[0], "incorrect") {
		t.Fatalf("reply = %v", reply.Lines)
	}
	if len(link.AreaFixTags) != 0 {
		t.Fatal("bad password must not apply commands")
	}
}

func TestParseAndVerifyTIC(t *testing.T) {
	body := "File test.zip\nArea FILES.GENERAL\nDesc A test file\nSize 4\nCrc 73A0B06A\nFrom 1:1/2\nTo 1:1/1\n"
	tic, err := ParseTIC(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tic.File != "test.zip" || tic.Area != "FILES.GENERAL" || tic.Size != 4 {
		t.Fatalf("parsed = %+v", tic)
	}

	out := FormatTIC(tic, "1:1/1")
	if !strings.Contains(out, "Path 1:1/1") || !strings.Contains(out, "Seenby 1:1/1") {
		t.Fatalf("formatted TIC missing AKA: %s", out)
	}
}
