package nodelist

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/robwilkins/ftnbbs/internal/logging"
)

// Watcher watches one network's Diffs/ directory for new nodelist diff
// files and recompiles the binary index on change, debounced the same
// way the teacher's configuration watcher debounces rapid successive
// writes (cmd/vision3/config_watcher.go).
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	done        chan struct{}
	nodelistDir string // directory containing the raw Nodelist file
	indexPath   string
	onRecompile func(*Index, error)
}

// NewWatcher starts watching nodelistDir/Diffs for changes, recompiling
// nodelistDir/Nodelist into indexPath whenever a diff lands (spec §4.11:
// "fsnotify watches each network's Diffs/ directory and triggers
// recompilation").
func NewWatcher(nodelistDir, indexPath string, onRecompile func(*Index, error)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	diffsDir := filepath.Join(nodelistDir, "Diffs")
	if err := os.MkdirAll(diffsDir, 0755); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Add(diffsDir); err != nil {
		w.Close()
		return nil, err
	}

	nw := &Watcher{
		watcher:     w,
		done:        make(chan struct{}),
		nodelistDir: nodelistDir,
		indexPath:   indexPath,
		onRecompile: onRecompile,
	}
	go nw.loop()
	logging.Info("nodelist: watching %s for diffs", diffsDir)
	return nw, nil
}

func (nw *Watcher) loop() {
	var debounce *time.Timer
	const debounceDuration = 500 * time.Millisecond

	for {
		select {
		case event, ok := <-nw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDuration, nw.recompile)
		case err, ok := <-nw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("nodelist: watcher error: %v", err)
		case <-nw.done:
			return
		}
	}
}

func (nw *Watcher) recompile() {
	raw := filepath.Join(nw.nodelistDir, "Nodelist")
	idx, err := RecompileFile(raw, nw.indexPath)
	if err != nil {
		logging.Error("nodelist: recompile %s: %v", raw, err)
	} else {
		logging.Info("nodelist: recompiled %s (%d entries)", nw.indexPath, idx.Count())
	}
	if nw.onRecompile != nil {
		nw.onRecompile(idx, err)
	}
}

// Stop halts the watcher.
func (nw *Watcher) Stop() {
	nw.mu.Lock()
	defer nw.mu.Unlock()
	select {
	case <-nw.done:
	default:
		close(nw.done)
	}
	nw.watcher.Close()
}

// RecompileFile parses rawPath and writes the compiled index to
// indexPath, returning the newly opened index.
func RecompileFile(rawPath, indexPath string) (*Index, error) {
	f, err := os.Open(rawPath)
	if err != nil {
		return nil, err
	}
	entries, err := Parse(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	out, err := os.Create(indexPath)
	if err != nil {
		return nil, err
	}
	if err := Compile(out, entries); err != nil {
		out.Close()
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	return OpenIndex(indexPath)
}
