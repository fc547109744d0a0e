package suggest

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileStore loads the keyword rule table from suggestions.json and keeps it
// fresh via fsnotify, so school nurses can edit rules without a restart.
// When the file is absent the built-in defaults apply.
type FileStore struct {
	dataDir string

	engineMu sync.RWMutex
	engine   *Engine

	// fsnotify for detecting external edits of suggestions.json
	watcher    *fsnotify.Watcher
	debounce   *time.Timer
	debounceMu sync.Mutex
}

const rulesFileName = "suggestions.json"

// NewFileStore creates a FileStore and loads the current rule table.
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	store := &FileStore{dataDir: dataDir}

	rules, err := store.readRulesFromDisk()
	if err != nil {
		return nil, err
	}
	store.engine = NewEngine(rules)

	return store, nil
}

func (s *FileStore) rulesPath() string {
	return filepath.Join(s.dataDir, rulesFileName)
}

// Engine returns the current engine snapshot. The returned engine is
// immutable; hot reloads swap in a fresh one.
func (s *FileStore) Engine() *Engine {
	s.engineMu.RLock()
	defer s.engineMu.RUnlock()
	return s.engine
}

func (s *FileStore) readRulesFromDisk() ([]Rule, error) {
	data, err := os.ReadFile(s.rulesPath())
	if os.IsNotExist(err) {
		return DefaultRules(), nil
	}
	if err != nil {
		return nil, err
	}

	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	return validRules(rules), nil
}

// validRules drops rules whose keyword is empty after trimming. An empty
// keyword would substring-match every input and shadow the whole table.
func validRules(rules []Rule) []Rule {
	kept := rules[:0]
	for _, rule := range rules {
		if strings.TrimSpace(rule.Keyword) == "" {
			slog.Warn("ignoring suggestion rule with empty keyword", "reply", rule.Reply)
			continue
		}
		kept = append(kept, rule)
	}
	return kept
}

// StartWatching begins monitoring the rule file for external changes.
func (s *FileStore) StartWatching() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	if err := watcher.Add(s.dataDir); err != nil {
		watcher.Close()
		return err
	}

	go s.watchLoop()
	slog.Info("suggestion rules watching for external changes", "path", s.rulesPath())
	return nil
}

func (s *FileStore) StopWatching() {
	s.debounceMu.Lock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounceMu.Unlock()

	if s.watcher != nil {
		s.watcher.Close()
	}
}

func (s *FileStore) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != rulesFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			s.scheduleReload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("suggestion rules fsnotify error", "error", err)
		}
	}
}

const reloadDebounce = 100 * time.Millisecond

func (s *FileStore) scheduleReload() {
	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()

	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(reloadDebounce, s.reloadFromDisk)
}

func (s *FileStore) reloadFromDisk() {
	rules, err := s.readRulesFromDisk()
	if err != nil {
		slog.Error("failed to reload suggestion rules, keeping previous table", "error", err)
		return
	}

	s.engineMu.Lock()
	s.engine = NewEngine(rules)
	s.engineMu.Unlock()

	slog.Info("suggestion rules reloaded", "count", len(rules))
}
