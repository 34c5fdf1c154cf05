package tosser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robwilkins/ftnbbs/internal/ftn"
	"github.com/robwilkins/ftnbbs/internal/logging"
	"github.com/robwilkins/ftnbbs/internal/store"
)

// Tosser processes one FTN network/domain's inbound directory (spec
// §4.8), filing echomail into the configured message areas and netmail
// into the netmail holding area or EchoFix.
type Tosser struct {
	cfg Config
}

// New creates a Tosser for one network/domain.
func New(cfg Config) (*Tosser, error) {
	if cfg.DupeDB == nil {
		return nil, fmt.Errorf("tosser[%s]: DupeDB is required", cfg.NetworkName)
	}
	for _, dir := range []string{cfg.BadDir, cfg.ProcessedDir, cfg.TempDir} {
		if dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("tosser[%s]: mkdir %s: %w", cfg.NetworkName, dir, err)
			}
		}
	}
	return &Tosser{cfg: cfg}, nil
}

// TossResult holds the results of one inbound processing pass.
type TossResult struct {
	PacketsProcessed int
	MessagesImported int
	MessagesBad      int
	DupesSkipped     int
	LoopsDropped     int
	Errors           []string
}

// ProcessInbound scans the inbound directory for .pkt files and arcmail
// bundles, importing everything it finds (spec §4.8 steps 1-8).
func (t *Tosser) ProcessInbound() TossResult {
	result := TossResult{}
	if t.cfg.InboundDir == "" {
		return result
	}
	entries, err := os.ReadDir(t.cfg.InboundDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, fmt.Sprintf("read inbound dir: %v", err))
		}
		return result
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		lower := strings.ToLower(name)
		path := filepath.Join(t.cfg.InboundDir, name)

		switch {
		case strings.HasSuffix(lower, ".pkt"):
			t.tossPktFile(path, name, &result)
		case ftn.BundleExtension(lower):
			isZIP, err := ftn.IsZIPBundle(path)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("check bundle %s: %v", name, err))
				continue
			}
			if !isZIP {
				continue
			}
			t.processBundle(path, name, &result)
		}
	}

	if err := t.cfg.DupeDB.Save(); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("save dupe db: %v", err))
	}
	return result
}

// processBundle extracts an arcmail bundle's packets into a scratch
// directory and tosses each one recursively (spec §4.8 step 1).
func (t *Tosser) processBundle(path, name string, result *TossResult) {
	scratch := filepath.Join(t.cfg.TempDir, "unpack")
	pktPaths, err := ftn.ExtractBundle(path, scratch)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("extract bundle %s: %v", name, err))
		t.quarantineBad(path, name)
		return
	}
	for _, pktPath := range pktPaths {
		t.tossPktFile(pktPath, filepath.Base(pktPath), result)
	}
	t.quarantineProcessed(path, name)
}

func (t *Tosser) tossPktFile(path, displayName string, result *TossResult) {
	imported, bad, dupes, loops, errs := t.tossPacket(path)
	result.PacketsProcessed++
	result.MessagesImported += imported
	result.MessagesBad += bad
	result.DupesSkipped += dupes
	result.LoopsDropped += loops
	result.Errors = append(result.Errors, errs...)

	if len(errs) == 0 {
		t.quarantineProcessed(path, displayName)
	} else {
		t.quarantineBad(path, displayName)
	}
}

func (t *Tosser) tossPacket(path string) (imported, bad, dupes, loops int, errs []string) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0, 0, []string{fmt.Sprintf("open %s: %v", path, err)}
	}
	defer f.Close()

	pktHdr, msgs, err := ftn.ReadPacket(f)
	if err != nil {
		return 0, 0, 0, 0, []string{fmt.Sprintf("parse %s: malformed packet: %v", path, err)}
	}

	for i, msg := range msgs {
		switch outcome, err := t.tossMessage(msg, pktHdr); {
		case outcome == outcomeBad:
			bad++
			if err != nil {
				errs = append(errs, fmt.Sprintf("msg %d in %s: %v", i, filepath.Base(path), err))
			}
		case err != nil:
			errs = append(errs, fmt.Sprintf("msg %d in %s: %v", i, filepath.Base(path), err))
		case outcome == outcomeDupe:
			dupes++
		case outcome == outcomeLoop:
			loops++
		default:
			imported++
		}
	}
	return imported, bad, dupes, loops, errs
}

type tossOutcome int

const (
	outcomeStored tossOutcome = iota
	outcomeDupe
	outcomeLoop
	outcomeBad
)

// tossMessage implements spec §4.8 steps 2-7 for one packed message.
func (t *Tosser) tossMessage(msg *ftn.PackedMessage, pktHdr *ftn.PacketHeader) (tossOutcome, error) {
	parsed := ftn.ParsePackedMessageBody(msg.Body)

	msgIDKludge := ""
	for _, k := range parsed.Kludges {
		if strings.HasPrefix(k, "MSGID:") {
			msgIDKludge = strings.TrimSpace(strings.TrimPrefix(k, "MSGID:"))
			break
		}
	}

	origZone := pktHdr.OrigZone
	if origZone == 0 {
		origZone = pktHdr.QOrigZone
	}
	if origZone == 0 {
		origZone = uint16(t.cfg.OwnAddr.Zone)
	}
	origin := ftn.Address{Zone: int(origZone), Net: int(msg.OrigNet), Node: int(msg.OrigNode)}

	// AreaFix/FileFix/AreaMgr-style robots intercept netmail before
	// ordinary storage (spec §4.8 step 7).
	if parsed.Area == "" && t.cfg.EchoFix != nil {
		handled, err := t.cfg.EchoFix(msg, origin)
		if err != nil {
			return outcomeBad, err
		}
		if handled {
			return outcomeStored, nil
		}
	}

	// Step 4: duplicate detection against a bounded composite-key history.
	dupeKey := DupeKey(origin.String4D(), msgIDKludge, msg.Subject, parsed.Text)
	if t.cfg.DupeDB.Add(dupeKey) {
		logging.Debug("tosser[%s]: dupe from %s area %q msgid=%s", t.cfg.NetworkName, msg.From, parsed.Area, msgIDKludge)
		return outcomeDupe, nil
	}

	// Step 5: echomail loop detection via SEEN-BY.
	own2D := t.cfg.OwnAddr.String2D()
	if parsed.Area != "" {
		for _, sb := range parsed.SeenBy {
			for _, nn := range ParseSeenByLine(sb) {
				if fmt.Sprintf("%d/%d", nn.Net, nn.Node) == own2D {
					logging.Debug("tosser[%s]: loop dropped, our AKA already in SEEN-BY", t.cfg.NetworkName)
					return outcomeLoop, nil
				}
			}
		}
	}

	dt, err := ftn.ParseFTNDateTime(msg.DateTime)
	if err != nil {
		dt = time.Now()
	}

	if parsed.Area == "" {
		// Netmail: held for C9 to route (locally deliver or re-export).
		if t.cfg.NetmailArea == nil {
			return outcomeBad, fmt.Errorf("no netmail area configured")
		}
		return outcomeStored, t.store(t.cfg.NetmailArea, "", msg, origin, parsed, dt, true)
	}

	// Step 3: map AREA tag case-insensitively to a configured area.
	area, ok := t.cfg.Areas[strings.ToLower(parsed.Area)]
	if !ok {
		logging.Warn("tosser[%s]: unknown area %q from %s, quarantining", t.cfg.NetworkName, parsed.Area, msg.From)
		return outcomeBad, fmt.Errorf("unknown area %q", parsed.Area)
	}

	// Step 6: append our AKA to SEEN-BY and PATH before storing.
	parsed.SeenBy = MergeSeenBy(parsed.SeenBy, own2D)
	parsed.Path = AppendPath(parsed.Path, own2D)

	return outcomeStored, t.store(area, parsed.Area, msg, origin, parsed, dt, false)
}

func (t *Tosser) store(area *store.MessageArea, areaTag string, msg *ftn.PackedMessage, origin ftn.Address, parsed *ftn.ParsedBody, dt time.Time, isNetmail bool) error {
	msgIDKludge := ""
	for _, k := range parsed.Kludges {
		if strings.HasPrefix(k, "MSGID:") {
			msgIDKludge = strings.TrimSpace(strings.TrimPrefix(k, "MSGID:"))
			break
		}
	}

	dest := t.cfg.OwnAddr
	if isNetmail {
		if addr, err := ftn.ParseAddress(msg.To); err == nil {
			dest = addr
		}
	}

	rec := store.Message{
		AreaTag:     areaTag,
		FromName:    msg.From,
		ToName:      msg.To,
		Subject:     msg.Subject,
		Origin:      origin,
		Dest:        dest,
		Written:     dt,
		MsgIDKludge: msgIDKludge,
		SeenBy:      parsed.SeenBy,
		Path:        parsed.Path,
		IsNetmail:   isNetmail,
		Exported:    false,
	}

	id, err := area.Add(rec)
	if err != nil {
		return err
	}
	bodyFile, err := writeBody(area, id, parsed.Text)
	if err != nil {
		return err
	}
	rec.BodyFile = bodyFile
	rec.ID = id
	return area.Update(id, rec)
}

func writeBody(area *store.MessageArea, id int, text string) (string, error) {
	f, rel, err := area.BeginBody(id)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return "", err
	}
	return rel, nil
}
