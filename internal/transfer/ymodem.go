package transfer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// YmodemHeader is the parsed contents of a YMODEM block 0 (spec §4.5.2):
// filename, size in bytes, and modification time as a Unix timestamp
// (decoded from the block's octal field).
type YmodemHeader struct {
	Filename string
	Size     int64
	ModTime  int64
}

// encodeYmodemHeader renders block 0's payload: "<filename>\0<size-ascii>
// <mod-time-octal>\0...".
func encodeYmodemHeader(h YmodemHeader) []byte {
	s := fmt.Sprintf("%s\x00%d %o", h.Filename, h.Size, h.ModTime)
	return []byte(s)
}

func decodeYmodemHeader(payload []byte) (YmodemHeader, error) {
	nul := -1
	for i, b := range payload {
		if b == 0 {
			nul = i
			break
		}
	}
	if nul < 0 {
		return YmodemHeader{}, fmt.Errorf("ymodem: block 0 missing filename terminator")
	}
	name := string(payload[:nul])
	rest := payload[nul+1:]
	end := len(rest)
	for i, b := range rest {
		if b == 0 || b == padByte {
			end = i
			break
		}
	}
	fields := strings.Fields(string(rest[:end]))
	h := YmodemHeader{Filename: name}
	if len(fields) >= 1 {
		if n, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
			h.Size = n
		}
	}
	if len(fields) >= 2 {
		if n, err := strconv.ParseInt(fields[1], 8, 64); err == nil {
			h.ModTime = n
		}
	}
	return h, nil
}

// isEmptyBlockZero reports whether a decoded block-0 payload is the
// all-zero batch terminator (spec §8 boundary behaviour: "YMODEM empty
// block 0 ends a batch").
func isEmptyBlockZero(payload []byte) bool {
	for _, b := range payload {
		if b != 0 {
			return false
		}
	}
	return true
}

// YmodemSendBatch sends files as a YMODEM batch: one block-0 header per
// file followed by XMODEM-CRC/1K data, then a final all-zero block 0 to
// close the batch. streamG, when true, runs YMODEM-G: the sender does not
// wait for per-block ACKs; it does not read the receiver while streaming
// a file's data, so a NAK or CAN sent mid-file does not stop the stream.
func YmodemSendBatch(src ByteSource, dst ByteSink, files []YmodemFile, streamG bool) error {
	for _, f := range files {
		mode, startByte, err := ymodemWaitStart(src)
		if err != nil {
			return err
		}
		if streamG && startByte != GByte {
			return fmt.Errorf("%w: expected 'G' to start YMODEM-G batch", ErrProtocol)
		}

		header := encodeYmodemHeader(YmodemHeader{Filename: f.Name, Size: f.Size, ModTime: f.ModTime})
		block0 := xmodemBlock(0, header, true, mode)
		canCount := 0
		if err := sendBlockUntilAcked(src, dst, block0, &canCount); err != nil {
			return err
		}

		// Per-file data reuses the XMODEM-1K sender; YMODEM-G writes every
		// block and the EOT without reading any reply.
		if streamG {
			if err := ymodemGSendFile(dst, f.Body, mode); err != nil {
				return err
			}
		} else {
			fileMode, _, err := ymodemWaitStart(src)
			if err != nil {
				return err
			}
			if err := xmodemSendFileBody(src, dst, f.Body, true, fileMode); err != nil {
				return err
			}
		}
	}

	// Close the batch with an empty block 0.
	mode, _, err := ymodemWaitStart(src)
	if err != nil {
		return err
	}
	empty := make([]byte, shortBlockLen)
	block0 := xmodemBlock(0, empty, false, mode)
	canCount := 0
	return sendBlockUntilAcked(src, dst, block0, &canCount)
}

// YmodemFile is one batch member for YmodemSendBatch.
type YmodemFile struct {
	Name    string
	Size    int64
	ModTime int64
	Body    io.Reader
}

func ymodemWaitStart(src ByteSource) (Mode, byte, error) {
	deadline := time.Now().Add(startTimeout)
	for time.Now().Before(deadline) {
		b, err := src.ReadByte(deadline)
		if err != nil {
			continue
		}
		switch b {
		case CByte:
			return ModeCRC, CByte, nil
		case GByte:
			return ModeCRC, GByte, nil
		case NAK:
			return ModeChecksum, NAK, nil
		}
	}
	return ModeChecksum, 0, ErrTimeout
}

func ymodemGSendFile(dst ByteSink, r io.Reader, mode Mode) error {
	seq := byte(1)
	buf := make([]byte, longBlockLen)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			block := xmodemBlock(seq, buf[:n], true, mode)
			if werr := dst.WriteBytes(block); werr != nil {
				return werr
			}
			seq++
		}
		if err != nil {
			break
		}
	}
	return dst.WriteBytes([]byte{EOT})
}

// YmodemReceiveBatch runs the receiver side: send 'C' or 'G', read block 0
// headers, and defer to the XMODEM-CRC/1K receiver for each file's data
// until an empty block 0 closes the batch.
func YmodemReceiveBatch(src ByteSource, dst ByteSink, open func(name string, size int64) (io.WriteCloser, error), streamG bool) error {
	startByte := CByte
	if streamG {
		startByte = GByte
	}
	for {
		header, payload, err := ymodemReceiveBlock0(src, dst, startByte)
		if err != nil {
			return err
		}
		if payload == nil || isEmptyBlockZero(payload) {
			return nil
		}

		w, err := open(header.Filename, header.Size)
		if err != nil {
			return err
		}
		if err := XmodemReceiveFile(src, dst, w, true); err != nil {
			w.Close()
			return err
		}
		w.Close()
	}
}

func ymodemReceiveBlock0(src ByteSource, dst ByteSink, startByte byte) (YmodemHeader, []byte, error) {
	if err := dst.WriteBytes([]byte{startByte}); err != nil {
		return YmodemHeader{}, nil, err
	}
	deadline := time.Now().Add(startTimeout)
	hdrByte, err := src.ReadByte(deadline)
	if err != nil {
		return YmodemHeader{}, nil, err
	}
	if hdrByte == EOT {
		dst.WriteBytes([]byte{ACK})
		return YmodemHeader{}, []byte{}, nil
	}
	if hdrByte != SOH && hdrByte != STX {
		return YmodemHeader{}, nil, ErrProtocol
	}
	size := shortBlockLen
	if hdrByte == STX {
		size = longBlockLen
	}
	seq, _ := src.ReadByte(time.Now().Add(blockTimeout))
	nseq, _ := src.ReadByte(time.Now().Add(blockTimeout))
	if seq != 0 || nseq != 0xFF {
		dst.WriteBytes([]byte{NAK})
		return YmodemHeader{}, nil, ErrProtocol
	}
	data := make([]byte, size)
	for i := range data {
		b, err := src.ReadByte(time.Now().Add(blockTimeout))
		if err != nil {
			return YmodemHeader{}, nil, err
		}
		data[i] = b
	}
	check := make([]byte, 2)
	for i := range check {
		b, err := src.ReadByte(time.Now().Add(blockTimeout))
		if err != nil {
			return YmodemHeader{}, nil, err
		}
		check[i] = b
	}
	if !verifyCheck(data, check, ModeCRC) {
		dst.WriteBytes([]byte{NAK})
		return YmodemHeader{}, nil, ErrProtocol
	}
	dst.WriteBytes([]byte{ACK})

	if isEmptyBlockZero(data) {
		return YmodemHeader{}, data, nil
	}
	h, err := decodeYmodemHeader(data)
	return h, data, err
}
