package transfer

import (
	"bytes"
	"io"
	"testing"
	"time"
)

type memFile struct {
	name  string
	data  []byte
	store map[string][]byte
}

func (f *memFile) Write(p []byte) (int, error) {
	f.data = append(f.data, p...)
	return len(p), nil
}

func (f *memFile) Close() error {
	f.store[f.name] = f.data
	return nil
}

func waitErr(t *testing.T, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
		return nil
	}
}

func TestYmodemHeaderRoundTrip(t *testing.T) {
	h := YmodemHeader{Filename: "readme.txt", Size: 1234, ModTime: 0755}
	encoded := encodeYmodemHeader(h)
	got, err := decodeYmodemHeader(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h {
		t.Fatalf("round trip = %+v, want %+v", got, h)
	}
}

func TestYmodemEmptyBlockZeroEndsBatch(t *testing.T) {
	empty := make([]byte, shortBlockLen)
	if !isEmptyBlockZero(empty) {
		t.Fatalf("all-zero block should be recognized as batch terminator")
	}
	encoded := encodeYmodemHeader(YmodemHeader{Filename: "x"})
	if isEmptyBlockZero(encoded) {
		t.Fatalf("a real header must not be mistaken for the batch terminator")
	}
}

func TestYmodemBatchRoundTrip(t *testing.T) {
	toSender := &memLink{}
	toReceiver := &memLink{}

	body := bytes.Repeat([]byte("ymodem-body-"), 100)
	files := []YmodemFile{
		{Name: "one.txt", Size: int64(len(body)), Body: bytes.NewReader(body)},
	}

	received := make(map[string][]byte)
	open := func(name string, size int64) (io.WriteCloser, error) {
		return &memFile{name: name, store: received}, nil
	}

	sendDone := make(chan error, 1)
	go func() { sendDone <- YmodemSendBatch(toSender, toReceiver, files, false) }()
	recvDone := make(chan error, 1)
	go func() { recvDone <- YmodemReceiveBatch(toReceiver, toSender, open, false) }()

	if err := waitErr(t, sendDone); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := waitErr(t, recvDone); err != nil {
		t.Fatalf("receive: %v", err)
	}

	got, ok := received["one.txt"]
	if !ok {
		t.Fatalf("file not received")
	}
	if !bytes.Equal(got[:len(body)], body) {
		t.Fatalf("body mismatch")
	}
}
