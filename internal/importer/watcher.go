package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tallyhq/tally/internal/database"
	"github.com/tallyhq/tally/internal/web/sse"
)

// debounceDelay lets editors and copies finish writing before a file is
// picked up.
const debounceDelay = 2 * time.Second

// Grant is one entry of a bulk grant file.
type Grant struct {
	Email  string `json:"email"`
	Amount int64  `json:"amount"`
}

// Watcher watches an import directory for *.json grant files and
// applies them to the ledger. Processed files are renamed to .done,
// unreadable ones to .failed.
type Watcher struct {
	db      *database.DB
	broker  *sse.Broker
	watcher *fsnotify.Watcher
	dir     string

	// Debounce tracking
	pending   map[string]*time.Timer
	pendingMu sync.Mutex

	mu      sync.Mutex
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a grant file watcher for dir. broker may be nil.
func New(db *database.DB, broker *sse.Broker, dir string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		db:      db,
		broker:  broker,
		watcher: fsWatcher,
		dir:     dir,
		pending: make(map[string]*time.Timer),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins watching the import directory, creating it if needed.
// Returns false when no directory is configured.
func (w *Watcher) Start() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return true, nil
	}
	if w.dir == "" {
		return false, nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create import directory: %w", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return false, fmt.Errorf("failed to watch import directory: %w", err)
	}

	w.running = true
	w.wg.Add(1)
	go w.eventLoop()

	// Pick up files dropped while the service was down
	go w.scanExisting()

	log.Info().Str("dir", w.dir).Msg("Grant importer started")
	return true, nil
}

// Stop stops the watcher
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	w.watcher.Close()
	w.wg.Wait()

	// Cancel any pending debounce timers
	w.pendingMu.Lock()
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)
	w.pendingMu.Unlock()

	log.Info().Msg("Grant importer stopped")
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isGrantFile(event.Name) {
				continue
			}
			w.debounce(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Grant importer watch error")
		}
	}
}

// debounce schedules processing of path, resetting the timer on every
// new event for the same file.
func (w *Watcher) debounce(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(debounceDelay, func() {
		w.pendingMu.Lock()
		delete(w.pending, path)
		w.pendingMu.Unlock()

		if err := w.ProcessFile(path); err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to process grant file")
		}
	})
}

func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Error().Err(err).Str("dir", w.dir).Msg("Failed to scan import directory")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isGrantFile(entry.Name()) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if err := w.ProcessFile(path); err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to process grant file")
		}
	}
}

// ProcessFile applies every grant in the file to the ledger. Unknown
// emails are skipped; grants never create accounts. The file is renamed
// to .done on success, .failed when it cannot be parsed.
func (w *Watcher) ProcessFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read grant file: %w", err)
	}

	var grants []Grant
	if err := json.Unmarshal(data, &grants); err != nil {
		if renameErr := os.Rename(path, path+".failed"); renameErr != nil {
			log.Error().Err(renameErr).Str("file", path).Msg("Failed to mark grant file as failed")
		}
		return fmt.Errorf("failed to parse grant file: %w", err)
	}

	source := filepath.Base(path)
	applied := 0
	for _, grant := range grants {
		if grant.Email == "" || grant.Amount == 0 {
			log.Warn().Str("file", source).Str("email", grant.Email).Int64("amount", grant.Amount).Msg("Skipping malformed grant entry")
			continue
		}

		if err := w.db.GrantTokens(grant.Email, grant.Amount); err != nil {
			if errors.Is(err, database.ErrNoAccount) {
				log.Warn().Str("file", source).Str("email", grant.Email).Msg("Skipping grant for unknown account")
				continue
			}
			return fmt.Errorf("failed to apply grant for %s: %w", grant.Email, err)
		}

		if err := w.db.RecordGrant(uuid.NewString(), source, grant.Email, grant.Amount); err != nil {
			log.Error().Err(err).Str("email", grant.Email).Msg("Failed to record grant audit row")
		}

		if w.broker != nil {
			w.broker.Publish(sse.Event{
				Type: sse.EventTokensGranted,
				Data: map[string]any{"email": grant.Email, "amount": grant.Amount},
			})
		}
		applied++
	}

	if err := os.Rename(path, path+".done"); err != nil {
		return fmt.Errorf("failed to mark grant file as done: %w", err)
	}

	log.Info().Str("file", source).Int("applied", applied).Int("total", len(grants)).Msg("Grant file processed")
	return nil
}

func isGrantFile(name string) bool {
	return strings.HasSuffix(name, ".json")
}
