// Command bbsd is the board's single long-running process: it answers
// telnet/serial/local lines, drives the script engine over them, runs
// the FTN mailer on cron schedules, and exposes the sysop console
// contract over a Unix socket for cmd/bbsconsole. Adapted from the
// teacher's cmd/vision3, which assembled the same kind of dependency
// graph (stores, line registry, scheduler, transports) in one main;
// the FTN mailer wiring here has no teacher analogue and is built
// directly from the retrieved FTN packages (groups/scanpack/tosser/
// binkp/nodelist/mailsched).
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/robwilkins/ftnbbs/internal/binkp"
	"github.com/robwilkins/ftnbbs/internal/calllog"
	"github.com/robwilkins/ftnbbs/internal/chat"
	"github.com/robwilkins/ftnbbs/internal/config"
	"github.com/robwilkins/ftnbbs/internal/consolebridge"
	"github.com/robwilkins/ftnbbs/internal/events"
	"github.com/robwilkins/ftnbbs/internal/ftn"
	"github.com/robwilkins/ftnbbs/internal/groups"
	"github.com/robwilkins/ftnbbs/internal/line"
	"github.com/robwilkins/ftnbbs/internal/logging"
	"github.com/robwilkins/ftnbbs/internal/mailsched"
	"github.com/robwilkins/ftnbbs/internal/nodelist"
	"github.com/robwilkins/ftnbbs/internal/pipe"
	"github.com/robwilkins/ftnbbs/internal/scanpack"
	"github.com/robwilkins/ftnbbs/internal/script"
	"github.com/robwilkins/ftnbbs/internal/session"
	"github.com/robwilkins/ftnbbs/internal/store"
	"github.com/robwilkins/ftnbbs/internal/tosser"
	"github.com/robwilkins/ftnbbs/internal/transport/local"
	"github.com/robwilkins/ftnbbs/internal/transport/serial"
	"github.com/robwilkins/ftnbbs/internal/transport/telnet"
)

func main() {
	cfgPath := flag.String("config", "bbsd.yaml", "path to board configuration")
	scriptDir := flag.String("scripts", "scripts", "directory holding .scr sources")
	consoleSocket := flag.String("console-socket", "/tmp/bbsd-console.sock", "unix socket for cmd/bbsconsole")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logging.DebugEnabled = *debug
	logging.Init(*debug)
	defer logging.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	bus := events.NewBus(256)
	hub, err := consolebridge.Serve(*consoleSocket, bus)
	if err != nil {
		logging.Error("console bridge: %v", err)
	}

	users, err := store.NewUserStore(cfg.Paths.UsersDir)
	if err != nil {
		fatal("open user store: %v", err)
	}

	calls, err := store.OpenCallCounter(filepath.Join(cfg.Paths.DataDir, "CallCount"))
	if err != nil {
		logging.Warn("call counter: %v", err)
		calls = &store.CallCounter{}
	}
	startedAt := time.Now()

	messageAreas, fileAreas, areaGroups := openAreas(cfg)

	netmailAreas := make(map[string]*store.MessageArea)
	for name, netCfg := range cfg.FTN.Networks {
		if !netCfg.Enabled {
			continue
		}
		dir := filepath.Join(cfg.Paths.MessageDir, "netmail-"+name)
		area, err := store.OpenMessageArea(dir)
		if err != nil {
			fatal("open netmail area for %s: %v", name, err)
		}
		netmailAreas[name] = area
	}

	room := chat.NewChatRoom(200)

	boardAddr := ftn.Address{}
	for _, netCfg := range cfg.FTN.Networks {
		if a, err := ftn.ParseAddress(netCfg.OwnAddress); err == nil {
			boardAddr = a
			break
		}
	}

	doors := make(map[string]script.DoorDef, len(cfg.Doors))
	for _, d := range cfg.Doors {
		doors[d.Name] = script.DoorDef{Command: d.Command, Args: d.Args}
	}

	sctx := &script.Context{
		Users:       users,
		MessageDirs: messageAreas,
		FileDirs:    fileAreas,
		Chat:        room,
		Doors:       doors,
		SysopLevel:  cfg.Board.SysopLevel,
		BoardName:   cfg.Board.Name,
		SysopName:   cfg.Board.SysopName,
		BoardAddr:   boardAddr,
	}

	types, enabled := lineKinds(cfg.Lines)
	lines := line.NewRegistry(types, enabled)
	plane := pipe.NewPlane(len(types), pipe.DefaultCapacity)

	for _, l := range lines.All() {
		bus.Publish(events.Event{Kind: events.LineRegistered, Line: l.ID()})
	}

	engine := script.NewEngine(*scriptDir, sctx, lines)
	runner := &scriptRunner{engine: engine, bus: bus, plane: plane}

	sched := session.NewScheduler(lines, plane, bus, cfg.Board.IdleTimeout, runner)

	stop := make(chan struct{})

	startTransports(cfg, lines, plane, bus, stop)
	startEventFanout(cfg, bus, hub, calls)
	startCommandLoop(lines, bus, room)
	startBoardStatus(bus, calls, startedAt, stop)

	mailStop, mailWG := startMailer(cfg, users, messageAreas, netmailAreas, areaGroups, boardAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	logging.Info("bbsd: ready, %d line(s) configured", lines.Count())

runLoop:
	for {
		select {
		case <-sigCh:
			logging.Info("bbsd: shutting down")
			break runLoop
		case <-ticker.C:
			sched.Tick()
			bindLogonScript(sched, lines, runner)
		}
	}

	close(stop)
	close(mailStop)
	mailWG.Wait()
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// scriptRunner adapts script.Engine to session.Runner, stepping the
// line's script and disconnecting the line once the script is done
// (spec §7 Script policy). The logon script is started by
// bindLogonScript, not by Step.
type scriptRunner struct {
	engine *script.Engine
	bus    *events.Bus
	plane  *pipe.Plane
}

func (r *scriptRunner) Step(s *session.Session) error {
	if r.engine.Done(s) {
		if s.Line.State() != line.Disconnected {
			s.Line.Disconnect(r.bus)
			r.plane.Reset(s.Line.ID())
		}
		r.engine.Forget(s)
		return nil
	}
	return r.engine.Step(s)
}

// bindLogonScript starts logon.scr for any session that has just been
// bound by the scheduler but has no script state yet.
func bindLogonScript(sched *session.Scheduler, lines *line.Registry, runner *scriptRunner) {
	for _, l := range lines.All() {
		if l.State() == line.Disconnected {
			continue
		}
		s, ok := sched.Session(l.ID())
		if !ok {
			continue
		}
		if runner.engine.Done(s) {
			runner.engine.Start(s, "logon.scr")
		}
	}
}

func lineKinds(cfgs []config.LineConfig) ([]line.Type, []bool) {
	types := make([]line.Type, len(cfgs))
	enabled := make([]bool, len(cfgs))
	for i, c := range cfgs {
		types[i] = line.Type(c.Type)
		enabled[i] = c.Enabled
	}
	return types, enabled
}

func startTransports(cfg config.Config, lines *line.Registry, plane *pipe.Plane, bus *events.Bus, stop <-chan struct{}) {
	for i, c := range cfg.Lines {
		if !c.Enabled {
			continue
		}
		switch line.Type(c.Type) {
		case line.Telnet:
			srv := &telnet.Server{Plane: plane, Registry: lines, Bus: bus}
			addr := fmt.Sprintf(":%d", c.Port)
			go func(addr string) {
				if err := srv.ListenAndServe(addr, stop); err != nil {
					logging.Error("telnet: %v", err)
				}
			}(addr)
		case line.Serial:
			poller := &serial.Poller{
				Driver:   &serial.FileDriver{Path: c.Device},
				LineID:   i,
				Plane:    plane,
				Line:     lines.Get(i),
				Bus:      bus,
				BaudRate: c.BaudRate,
			}
			go poller.Run(stop)
		case line.Local:
			console := &local.Console{Plane: plane, Line: lines.Get(i), Bus: bus}
			teardown, err := console.Connect()
			if err != nil {
				logging.Error("local: connect line %d: %v", i, err)
				continue
			}
			go func() {
				<-stop
				teardown()
			}()
		}
	}
}

// startCommandLoop is the single consumer of bus.Commands(), applying
// the §6 UI contract's sysop commands against the line registry and
// chat room.
func startCommandLoop(lines *line.Registry, bus *events.Bus, room *chat.ChatRoom) {
	go func() {
		for cmd := range bus.Commands() {
			switch cmd.Kind {
			case events.CmdDisconnectLine:
				if l := lines.Get(cmd.Line); l != nil {
					l.Cancel()
				}
			case events.CmdSetAcceptingNewConns:
				lines.SetAccepting(cmd.Bool)
			case events.CmdSetChatPager:
				room.SetSysopPaged(cmd.Bool)
			case events.CmdViewLine:
				if l := lines.Get(cmd.Line); l != nil {
					bus.Publish(events.Event{Kind: events.LineActivity, Line: l.ID(), Text: l.Snapshot().Activity})
				}
			case events.CmdLogonLine:
				// Local console logon is driven interactively by the
				// sysop's own terminal (internal/transport/local),
				// not by a remote console connection.
				logging.Warn("bbsd: logon-line command has no effect over the console bridge")
			}
		}
	}()
}

// startEventFanout is the single consumer of bus.Events() — its channel
// has exactly one reader, so every other event sink (the call log, the
// sysop console bridge) is driven from here rather than each reading
// the bus directly.
func startEventFanout(cfg config.Config, bus *events.Bus, hub *consolebridge.Hub, calls *store.CallCounter) {
	if err := os.MkdirAll(cfg.Paths.LogDir, 0755); err != nil {
		logging.Warn("calllog: mkdir %s: %v", cfg.Paths.LogDir, err)
	}
	w, err := calllog.Open(filepath.Join(cfg.Paths.LogDir, "Calls"))
	if err != nil {
		logging.Warn("calllog: open: %v", err)
	}

	go func() {
		for ev := range bus.Events() {
			if hub != nil {
				hub.Broadcast(ev)
			}
			switch ev.Kind {
			case events.LineConnected:
				if _, err := calls.Increment(); err != nil {
					logging.Warn("call counter: %v", err)
				}
			}
			if w == nil {
				continue
			}
			switch ev.Kind {
			case events.LineConnected:
				w.Record(time.Now(), ev.Line, 0, calllog.Answered)
			case events.LineDisconnected:
				w.Record(time.Now(), ev.Line, 0, calllog.Hungup)
			}
		}
	}()
}

// startBoardStatus periodically publishes events.BoardStatus so the
// console can answer the §6 "reads call-total and uptime" requirement
// without a separate RPC from cmd/bbsconsole.
func startBoardStatus(bus *events.Bus, calls *store.CallCounter, startedAt time.Time, stop <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				bus.Publish(events.Event{
					Kind: events.BoardStatus,
					Line: -1,
					Text: fmt.Sprintf("calls=%d uptime=%d", calls.Total(), int(time.Since(startedAt).Seconds())),
				})
			}
		}
	}()
}

// openAreas discovers message/file area tags from every configured
// FTN link's EchoAreas list plus each network's AreaGroups keys, and
// opens a store.MessageArea/FileArea for each one under Paths.
func openAreas(cfg config.Config) (map[string]*store.MessageArea, map[string]*store.FileArea, map[string][]string) {
	tags := make(map[string]struct{})
	areaGroups := make(map[string][]string)
	for _, net := range cfg.FTN.Networks {
		for tag, grp := range net.AreaGroups {
			tags[strings.ToLower(tag)] = struct{}{}
			areaGroups[strings.ToLower(tag)] = grp
		}
		for _, l := range net.Links {
			for _, tag := range l.EchoAreas {
				tags[strings.ToLower(tag)] = struct{}{}
			}
		}
	}

	messageAreas := make(map[string]*store.MessageArea)
	fileAreas := make(map[string]*store.FileArea)
	for tag := range tags {
		mdir := filepath.Join(cfg.Paths.MessageDir, tag)
		if area, err := store.OpenMessageArea(mdir); err == nil {
			messageAreas[tag] = area
		} else {
			logging.Warn("open message area %s: %v", tag, err)
		}
		fdir := filepath.Join(cfg.Paths.FileDir, tag)
		if area, err := store.OpenFileArea(fdir); err == nil {
			fileAreas[tag] = area
		} else {
			logging.Warn("open file area %s: %v", tag, err)
		}
	}
	return messageAreas, fileAreas, areaGroups
}

// startMailer assembles groups/scanpack/tosser/nodelist/binkp/mailsched
// for every enabled FTN network and starts its cron jobs and BinkP
// listener. Returns a stop channel and a WaitGroup the caller closes
// and waits on during shutdown.
func startMailer(cfg config.Config, users *store.UserStore, messageAreas map[string]*store.MessageArea,
	netmailAreas map[string]*store.MessageArea, areaGroups map[string][]string, boardAddr ftn.Address) (chan struct{}, *waitGroup) {

	stop := make(chan struct{})
	wg := &waitGroup{}

	for name, netCfg := range cfg.FTN.Networks {
		if !netCfg.Enabled {
			continue
		}
		name, netCfg := name, netCfg
		own, err := ftn.ParseAddress(netCfg.OwnAddress)
		if err != nil {
			logging.Error("ftn[%s]: bad ownAddress %q: %v", name, netCfg.OwnAddress, err)
			continue
		}

		links := make([]groups.Link, 0, len(netCfg.Links))
		for _, lc := range netCfg.Links {
			links = append(links, groups.Link{
				Address:     lc.Address,
				Name:        lc.Name,
				IsDownlink:  !lc.IsUplink,
				Groups:      lc.Groups,
				AreaFixTags: lc.EchoAreas,
				AllowEchoes: lc.AllowEchoes,
				AllowGroups: lc.AllowGroups,
				AllowFiles:  lc.AllowFiles,
				MaxEchoes:   lc.MaxEchoes,
				MaxFiles:    lc.MaxFiles,
				Password:    lc.Password,
			})
		}
		mgr := groups.NewManager(links)
		scanner := scanpack.NewScanner(mgr)
		scanner.OwnAddrs = []ftn.Address{own}
		scanner.DefaultUplink = netCfg.DefaultUplink
		scanner.AreaGroups = areaGroups
		scanner.Tearline = netCfg.Tearline

		dupePath := filepath.Join(netCfg.ProcessedPath, ".dupedb.json")
		dupeDB, err := tosser.NewDupeDB(dupePath, 90*24*time.Hour)
		if err != nil {
			logging.Error("ftn[%s]: dupe db: %v", name, err)
			continue
		}

		tossCfg := tosser.Config{
			NetworkName:  name,
			OwnAddr:      own,
			InboundDir:   netCfg.InboundPath,
			BadDir:       netCfg.BadPath,
			ProcessedDir: netCfg.ProcessedPath,
			TempDir:      filepath.Join(netCfg.ProcessedPath, "tmp"),
			Areas:        messageAreas,
			NetmailArea:  netmailAreas[name],
			DupeDB:       dupeDB,
		}
		tsr, err := tosser.New(tossCfg)
		if err != nil {
			logging.Error("ftn[%s]: tosser: %v", name, err)
			continue
		}

		indexPath := netCfg.NodelistPath + ".idx"
		var idx *nodelist.Index
		if i, err := nodelist.OpenIndex(indexPath); err == nil {
			idx = i
		}
		watcher, err := nodelist.NewWatcher(netCfg.NodelistPath, indexPath, func(i *nodelist.Index, err error) {
			if err != nil {
				logging.Warn("ftn[%s]: nodelist recompile: %v", name, err)
				return
			}
			idx = i
		})
		if err != nil {
			logging.Warn("ftn[%s]: nodelist watcher: %v", name, err)
		} else {
			wg.add(1)
			go func() {
				<-stop
				watcher.Stop()
				wg.done()
			}()
		}

		historyPath := filepath.Join(netCfg.ProcessedPath, ".mailsched-history.json")
		msched := mailsched.NewScheduler(historyPath)
		msched.Add(mailsched.Job{
			ID:       name + "-toss",
			Name:     "toss inbound " + name,
			Schedule: "*/5 * * * *",
			Run: func(ctx context.Context) error {
				tsr.ProcessInbound()
				return nil
			},
		})
		msched.Add(mailsched.Job{
			ID:       name + "-scan",
			Name:     "scan/pack outbound " + name,
			Schedule: "*/10 * * * *",
			Run: func(ctx context.Context) error {
				return scanAndPack(scanner, mgr, messageAreas, netmailAreas[name], netCfg, own)
			},
		})
		msched.Add(mailsched.Job{
			ID:       name + "-dial",
			Name:     "binkp outbound " + name,
			Schedule: pollIntervalCron(netCfg.PollInterval),
			Run: func(ctx context.Context) error {
				return dialLinks(mgr, netCfg, own, idx, tsr)
			},
		})

		ctx, cancel := context.WithCancel(context.Background())
		msched.Start(ctx)
		wg.add(1)
		go func() {
			<-stop
			cancel()
			wg.done()
		}()

		if netCfg.BinkPPort > 0 {
			wg.add(1)
			go func() {
				defer wg.done()
				runBinkPListener(name, netCfg, own, tsr, stop)
			}()
		}
	}

	return stop, wg
}

func scanAndPack(scanner *scanpack.Scanner, mgr *groups.Manager, messageAreas map[string]*store.MessageArea,
	netmailArea *store.MessageArea, netCfg config.FTNNetworkConfig, own ftn.Address) error {

	queues := make(map[string][]scanpack.OutMessage)
	if netmailArea != nil {
		q, err := scanner.ScanNetmail(netmailArea)
		if err != nil {
			return err
		}
		queues = scanpack.MergeQueues(queues, q)
	}
	for tag, area := range messageAreas {
		q, err := scanner.ScanEchoArea(tag, area)
		if err != nil {
			continue
		}
		queues = scanpack.MergeQueues(queues, q)
	}

	var seq uint32
	for destAddr, msgs := range queues {
		dest, err := ftn.ParseAddress(destAddr)
		if err != nil {
			continue
		}
		destDir := scanpack.DestDir(netCfg.OutboundPath, dest)
		password := ""
		if l, ok := mgr.Get(destAddr); ok {
			password = l.Password
		}
		seq++
		if _, _, err := scanpack.Pack(destDir, own, dest, password, scanpack.FlavourNormal, msgs, seq); err != nil {
			logging.Warn("scanpack: pack for %s: %v", destAddr, err)
		}
	}
	return nil
}

// dialLinks places an outbound BinkP call to every non-paused uplink,
// resolving a dialable host:port via the nodelist when idx is available
// (spec §4.11's hub/host/zone-coordinator route walk), falling back to
// the network's configured BinkP port against the link's own address.
func dialLinks(mgr *groups.Manager, netCfg config.FTNNetworkConfig, own ftn.Address, idx *nodelist.Index, tsr *tosser.Tosser) error {
	for _, l := range mgr.All() {
		if l.IsDownlink || l.Paused {
			continue
		}
		addr, err := ftn.ParseAddress(l.Address)
		if err != nil {
			continue
		}

		host, port := addr.String4D(), netCfg.BinkPPort
		if idx != nil {
			if entry, err := idx.Route(addr.Zone, addr.Net, addr.Node); err == nil {
				if h, p := entry.Hostname(); h != "" {
					host, port = h, p
				}
			}
		}

		outbound := listOutboundFiles(scanpack.DestDir(netCfg.OutboundPath, addr))
		if len(outbound) == 0 {
			continue // spec §4.10: a call is placed only when there is outbound traffic to deliver
		}

		conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), 30*time.Second)
		if err != nil {
			continue
		}
		sess := &binkp.Session{
			Conn:       conn,
			OwnAddrs:   []ftn.Address{own},
			Password:   l.Password,
			Outbound:   outbound,
			InboundDir: netCfg.InboundPath,
			FREQPath:   netCfg.OutboundPath,
			OnFileReceived: func(name string, path string, size int64, modTime time.Time) {
				tsr.ProcessInbound()
			},
		}
		if err := sess.RunCaller(); err != nil {
			logging.Warn("binkp: outbound call to %s: %v", addr, err)
		}
	}
	return nil
}

// pollIntervalCron renders a poll interval as a standard 5-field cron
// expression understood by robfig/cron/v3, falling back to a 15 minute
// default when unset.
func pollIntervalCron(d time.Duration) string {
	minutes := int(d / time.Minute)
	if minutes <= 0 {
		minutes = 15
	}
	if minutes >= 60 {
		return fmt.Sprintf("0 */%d * * *", minutes/60)
	}
	return fmt.Sprintf("*/%d * * * *", minutes)
}

// listOutboundFiles collects the packets/bundles queued under a
// destination's outbound directory into binkp.OutboundFile values.
func listOutboundFiles(dir string) []binkp.OutboundFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	out := make([]binkp.OutboundFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, binkp.OutboundFile{
			Path:    filepath.Join(dir, e.Name()),
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out
}

func runBinkPListener(name string, netCfg config.FTNNetworkConfig, own ftn.Address, tsr *tosser.Tosser, stop <-chan struct{}) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", netCfg.BinkPPort))
	if err != nil {
		logging.Error("binkp[%s]: listen: %v", name, err)
		return
	}
	defer ln.Close()
	go func() {
		<-stop
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-stop:
				return
			default:
				logging.Warn("binkp[%s]: accept: %v", name, err)
				continue
			}
		}
		go func() {
			sess := &binkp.Session{
				Conn:       conn,
				OwnAddrs:   []ftn.Address{own},
				InboundDir: netCfg.InboundPath,
				FREQPath:   netCfg.OutboundPath,
				OnFileReceived: func(name string, path string, size int64, modTime time.Time) {
					tsr.ProcessInbound()
				},
			}
			if err := sess.RunAnswerer(); err != nil {
				logging.Warn("binkp[%s]: session: %v", name, err)
			}
		}()
	}
}

// waitGroup is a tiny counting semaphore, used instead of sync.WaitGroup
// only to keep startMailer's return type import-light.
type waitGroup struct {
	ch chan struct{}
	n  int
}

func (w *waitGroup) add(n int) {
	if w.ch == nil {
		w.ch = make(chan struct{}, 64)
	}
	w.n += n
}

func (w *waitGroup) done() {
	w.ch <- struct{}{}
}

func (w *waitGroup) Wait() {
	for i := 0; i < w.n; i++ {
		<-w.ch
	}
}
