package scanpack

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robwilkins/ftnbbs/internal/ftn"
)

// Flavour is an outbound packet's delivery priority (spec §4.9 "Pack").
type Flavour int

const (
	FlavourNormal Flavour = iota
	FlavourHold
	FlavourDirect
	FlavourCrash
	FlavourImmediate
)

type flavourInfo struct {
	prefix string
	pktExt string
	outExt string
}

var flavourTable = map[Flavour]flavourInfo{
	FlavourNormal:    {"", "pkt", "out"},
	FlavourHold:      {"h", "hpkt", "hut"},
	FlavourDirect:    {"d", "dpkt", "dut"},
	FlavourCrash:     {"c", "cpkt", "cut"},
	FlavourImmediate: {"i", "ipkt", "iut"},
}

// packetName builds the monotonic-timestamp packet filename for a
// flavour, using the flavour's prefix/extension from the table (spec
// §4.9 "Pack": "a file whose name encodes a monotonic timestamp plus a
// flavour prefix, and whose flavour is also reflected in the file
// extension").
func packetName(flavour Flavour, seq uint32) string {
	info := flavourTable[flavour]
	return fmt.Sprintf("%s%08x.%s", info.prefix, seq, info.pktExt)
}

// Pack writes one outbound .pkt for a single destination and flavour,
// placed under destDir (the destination-address directory under the
// domain's outbound root, per spec §4.9 "Pack": "Outbound file names
// are placed in the destination-address directory under the
// destination domain's outbound root").
func Pack(destDir string, own, dest ftn.Address, password string, flavour Flavour, msgs []OutMessage, seq uint32) (string, int, error) {
	if len(msgs) == 0 {
		return "", 0, nil
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", 0, err
	}

	hdr := ftn.NewPacketHeader(
		uint16(own.Zone), uint16(own.Net), uint16(own.Node), uint16(own.Point),
		uint16(dest.Zone), uint16(dest.Net), uint16(dest.Node), uint16(dest.Point),
		password,
	)

	packed := make([]*ftn.PackedMessage, 0, len(msgs))
	for _, m := range msgs {
		packed = append(packed, &ftn.PackedMessage{
			MsgType:  2,
			OrigNode: uint16(own.Node), DestNode: uint16(dest.Node),
			OrigNet: uint16(own.Net), DestNet: uint16(dest.Net),
			Attr:     ftn.MsgAttrLocal,
			DateTime: ftn.FormatFTNDateTime(time.Now()),
			To:       m.To, From: m.From, Subject: m.Subject,
			Body: ftn.FormatPackedMessageBody(m.Body),
		})
	}

	name := packetName(flavour, seq)
	path := filepath.Join(destDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	if err := ftn.WritePacket(f, hdr, packed); err != nil {
		os.Remove(path)
		return "", 0, err
	}
	return path, len(packed), nil
}

// DestDir computes the per-destination outbound directory under a
// domain's outbound root (spec §4.9 "Pack").
func DestDir(outboundRoot string, dest ftn.Address) string {
	return filepath.Join(outboundRoot, dest.String4D())
}
