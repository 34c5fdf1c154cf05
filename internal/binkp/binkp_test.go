package binkp

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robwilkins/ftnbbs/internal/ftn"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCommand(&buf, MADR, "1:1/1"); err != nil {
		t.Fatal(err)
	}
	if err := WriteData(&buf, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	fr, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !fr.IsCommand || fr.Command != MADR || fr.Arg != "1:1/1" {
		t.Fatalf("frame = %+v", fr)
	}

	fr2, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if fr2.IsCommand || string(fr2.Data) != "hello" {
		t.Fatalf("frame2 = %+v", fr2)
	}
}

func TestCRAMDigestMatchesCheckPassword(t *testing.T) {
	challenge := "abc123"
	resp := FormatCRAMResponse("secret", challenge)
	if err := CheckPassword(resp, "secret", challenge); err != nil {
		t.Fatalf("expected digest to validate: %v", err)
	}
	if err := CheckPassword(resp, "wrong", challenge); err == nil {
		t.Fatal("expected mismatch for wrong password")
	}
}

func TestHandshakeAndFileExchange(t *testing.T) {
	answererConn, callerConn := net.Pipe()
	defer answererConn.Close()
	defer callerConn.Close()

	dir := t.TempDir()
	srcFile := filepath.Join(dir, "send.txt")
	content := []byte("hello binkp world")
	if err := os.WriteFile(srcFile, content, 0644); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(srcFile)

	answerer := &Session{
		Conn:       answererConn,
		OwnAddrs:   []ftn.Address{{Zone: 1, Net: 1, Node: 1}},
		Password:   "secret",
		InboundDir: filepath.Join(dir, "inbound"),
		Outbound: []OutboundFile{
			{Path: srcFile, Name: "send.txt", Size: info.Size(), ModTime: info.ModTime()},
		},
	}
	caller := &Session{
		Conn:       callerConn,
		OwnAddrs:   []ftn.Address{{Zone: 2, Net: 2, Node: 2}},
		Password:   "secret",
		InboundDir: filepath.Join(dir, "caller-inbound"),
	}

	errCh := make(chan error, 2)
	go func() { errCh <- answerer.RunAnswerer() }()
	go func() { errCh <- caller.RunCaller() }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			if err != nil {
				t.Fatalf("session error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for binkp session to complete")
		}
	}

	got, err := os.ReadFile(filepath.Join(dir, "caller-inbound", "send.txt"))
	if err != nil {
		t.Fatalf("read received file: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("received content = %q, want %q", got, content)
	}
}
