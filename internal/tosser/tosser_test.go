package tosser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robwilkins/ftnbbs/internal/ftn"
	"github.com/robwilkins/ftnbbs/internal/store"
)

func newTestTosser(t *testing.T) (*Tosser, *store.MessageArea, *store.MessageArea) {
	t.Helper()
	dir := t.TempDir()

	echoDir := filepath.Join(dir, "msg", "general")
	netmailDir := filepath.Join(dir, "msg", "netmail")
	echo, err := store.OpenMessageArea(echoDir)
	if err != nil {
		t.Fatalf("open echo area: %v", err)
	}
	netmail, err := store.OpenMessageArea(netmailDir)
	if err != nil {
		t.Fatalf("open netmail area: %v", err)
	}

	dupeDB, err := NewDupeDB(filepath.Join(dir, "dupes.json"), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("dupe db: %v", err)
	}

	inbound := filepath.Join(dir, "inbound")
	if err := os.MkdirAll(inbound, 0755); err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		NetworkName:  "fidonet",
		OwnAddr:      ftn.Address{Zone: 1, Net: 1, Node: 1},
		InboundDir:   inbound,
		BadDir:       filepath.Join(dir, "bad"),
		ProcessedDir: filepath.Join(dir, "processed"),
		TempDir:      filepath.Join(dir, "temp"),
		Areas:        map[string]*store.MessageArea{"general": echo},
		NetmailArea:  netmail,
		DupeDB:       dupeDB,
	}
	tos, err := New(cfg)
	if err != nil {
		t.Fatalf("new tosser: %v", err)
	}
	return tos, echo, netmail
}

func writeTestPacket(t *testing.T, path string, msgs []*ftn.PackedMessage) {
	t.Helper()
	hdr := ftn.NewPacketHeader(1, 1, 2, 0, 1, 1, 1, 0, "")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := ftn.WritePacket(f, hdr, msgs); err != nil {
		t.Fatalf("write packet: %v", err)
	}
}

func TestTossEchomailIntoArea(t *testing.T) {
	tos, echo, _ := newTestTosser(t)

	body := ftn.FormatPackedMessageBody(&ftn.ParsedBody{
		Area:    "general",
		Text:    "hello world",
		Kludges: []string{"MSGID: 1:1/2 abc123"},
	})
	msg := &ftn.PackedMessage{
		MsgType:  2,
		OrigNode: 2, OrigNet: 1, DestNode: 1, DestNet: 1,
		DateTime: ftn.FormatFTNDateTime(time.Now()),
		To:       "All", From: "Tester", Subject: "Hi", Body: body,
	}
	writeTestPacket(t, filepath.Join(tos.cfg.InboundDir, "test.pkt"), []*ftn.PackedMessage{msg})

	result := tos.ProcessInbound()
	if result.MessagesImported != 1 {
		t.Fatalf("imported = %d, want 1 (errors: %v)", result.MessagesImported, result.Errors)
	}

	msgs, err := echo.FindUnexported()
	if err != nil {
		t.Fatalf("find unexported: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Subject != "Hi" {
		t.Fatalf("stored messages = %+v", msgs)
	}

	if _, err := os.Stat(filepath.Join(tos.cfg.ProcessedDir, "test.pkt")); err != nil {
		t.Fatalf("expected packet moved to Processed/: %v", err)
	}
}

func TestTossUnknownAreaQuarantined(t *testing.T) {
	tos, _, _ := newTestTosser(t)

	body := ftn.FormatPackedMessageBody(&ftn.ParsedBody{Area: "nosuchtag", Text: "x"})
	msg := &ftn.PackedMessage{
		MsgType:  2,
		OrigNode: 2, OrigNet: 1, DestNode: 1, DestNet: 1,
		DateTime: ftn.FormatFTNDateTime(time.Now()),
		To:       "All", From: "Tester", Subject: "Hi", Body: body,
	}
	writeTestPacket(t, filepath.Join(tos.cfg.InboundDir, "bad.pkt"), []*ftn.PackedMessage{msg})

	result := tos.ProcessInbound()
	if result.MessagesBad != 1 {
		t.Fatalf("bad = %d, want 1", result.MessagesBad)
	}
	if _, err := os.Stat(filepath.Join(tos.cfg.BadDir, "bad.pkt")); err != nil {
		t.Fatalf("expected packet moved to Bad/: %v", err)
	}
}

func TestTossNetmailHeldForRouting(t *testing.T) {
	tos, _, netmail := newTestTosser(t)

	body := ftn.FormatPackedMessageBody(&ftn.ParsedBody{Text: "private"})
	msg := &ftn.PackedMessage{
		MsgType:  2,
		OrigNode: 2, OrigNet: 1, DestNode: 1, DestNet: 1,
		DateTime: ftn.FormatFTNDateTime(time.Now()),
		To:       "Sysop", From: "Tester", Subject: "Hi", Body: body,
	}
	writeTestPacket(t, filepath.Join(tos.cfg.InboundDir, "nm.pkt"), []*ftn.PackedMessage{msg})

	result := tos.ProcessInbound()
	if result.MessagesImported != 1 {
		t.Fatalf("imported = %d, want 1 (errors %v)", result.MessagesImported, result.Errors)
	}
	msgs, _ := netmail.FindUnexported()
	if len(msgs) != 1 || !msgs[0].IsNetmail {
		t.Fatalf("netmail messages = %+v", msgs)
	}
}

func TestTossDuplicateSkipped(t *testing.T) {
	tos, echo, _ := newTestTosser(t)

	body := ftn.FormatPackedMessageBody(&ftn.ParsedBody{Area: "general", Text: "same body", Kludges: []string{"MSGID: 1:1/2 dupe1"}})
	msg := &ftn.PackedMessage{
		MsgType:  2,
		OrigNode: 2, OrigNet: 1, DestNode: 1, DestNet: 1,
		DateTime: ftn.FormatFTNDateTime(time.Now()),
		To:       "All", From: "Tester", Subject: "Same", Body: body,
	}
	writeTestPacket(t, filepath.Join(tos.cfg.InboundDir, "a.pkt"), []*ftn.PackedMessage{msg})
	tos.ProcessInbound()

	writeTestPacket(t, filepath.Join(tos.cfg.InboundDir, "b.pkt"), []*ftn.PackedMessage{msg})
	result := tos.ProcessInbound()
	if result.DupesSkipped != 1 {
		t.Fatalf("dupes = %d, want 1", result.DupesSkipped)
	}

	msgs, _ := echo.FindUnexported()
	if len(msgs) != 1 {
		t.Fatalf("stored = %d, want 1", len(msgs))
	}
}
