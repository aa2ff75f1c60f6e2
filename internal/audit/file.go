package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akashi-ai/noema/internal/clock"
)

// FileStore is a JSON-Lines backend: one Entry object per line, rotated into
// new time-stamped files once the active file exceeds maxFileBytes.
// Malformed lines are logged and skipped, never repaired — the store
// tolerates corruption but does not self-heal it.
type FileStore struct {
	mu           sync.Mutex
	dir          string
	maxFileBytes int64
	clock        clock.Clock
	logger       *slog.Logger

	activePath string
	activeSize int64

	// In-memory mirror for fast reads; rebuilt from disk on open.
	mem *MemoryStore
}

// NewFileStore opens (creating if necessary) a JSON-Lines audit store
// rooted at dir, replaying existing *.jsonl files to rebuild the in-memory
// index and tip.
func NewFileStore(dir string, maxFileBytes int64, cl clock.Clock, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFileBytes <= 0 {
		maxFileBytes = 64 * 1024 * 1024
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errBackend("create audit dir", err)
	}

	fs := &FileStore{
		dir:          dir,
		maxFileBytes: maxFileBytes,
		clock:        cl,
		logger:       logger,
		mem:          NewMemoryStore(cl, logger),
	}
	if err := fs.replay(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) replay() error {
	files, err := fs.sortedFiles()
	if err != nil {
		return errBackend("list audit files", err)
	}
	for _, path := range files {
		if err := fs.replayFile(path); err != nil {
			return err
		}
	}
	if len(files) > 0 {
		fs.activePath = files[len(files)-1]
		if info, err := os.Stat(fs.activePath); err == nil {
			fs.activeSize = info.Size()
		}
	}
	return nil
}

func (fs *FileStore) replayFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errBackend("open audit file", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			fs.logger.Warn("audit: skipping malformed line", "file", path, "line", lineNo, "error", err)
			continue
		}
		fs.mem.mu.Lock()
		if idx, ok := fs.mem.byID[e.EntryID]; ok {
			fs.mem.entries[idx] = e
		} else {
			fs.mem.entries = append(fs.mem.entries, e)
			fs.mem.byID[e.EntryID] = len(fs.mem.entries) - 1
		}
		fs.mem.mu.Unlock()
	}
	return scanner.Err()
}

func (fs *FileStore) sortedFiles() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".jsonl" {
			continue
		}
		files = append(files, filepath.Join(fs.dir, de.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (fs *FileStore) rotateIfNeeded(nextLineLen int64) error {
	if fs.activePath != "" && fs.activeSize+nextLineLen <= fs.maxFileBytes {
		return nil
	}
	ts := fs.now().Format("20060102T150405.000000000Z0700")
	fs.activePath = filepath.Join(fs.dir, fmt.Sprintf("audit-%s.jsonl", ts))
	fs.activeSize = 0
	return nil
}

func (fs *FileStore) now() time.Time {
	if fs.clock != nil {
		return fs.clock.Now()
	}
	return nowUTC()
}

func (fs *FileStore) appendLine(e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errBackend("marshal entry", err)
	}
	b = append(b, '\n')

	if err := fs.rotateIfNeeded(int64(len(b))); err != nil {
		return err
	}

	f, err := os.OpenFile(fs.activePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errBackend("open active audit file", err)
	}
	defer func() { _ = f.Close() }()

	n, err := f.Write(b)
	if err != nil {
		return errBackend("append audit entry", err)
	}
	fs.activeSize += int64(n)
	return nil
}

func (fs *FileStore) Record(ctx context.Context, in RecordInput) (Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	e, err := fs.mem.Record(ctx, in)
	if err != nil {
		return Entry{}, err
	}
	if err := fs.appendLine(e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (fs *FileStore) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	return fs.mem.Get(ctx, id)
}

func (fs *FileStore) UpdateVerification(ctx context.Context, id uuid.UUID, status VerificationStatus, verifierID string, score *float64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.mem.UpdateVerification(ctx, id, status, verifierID, score); err != nil {
		return err
	}
	// Append a compacting rewrite is out of scope for the append-only
	// format; the updated entry is appended again so replay picks up the
	// latest version (last write for an id wins during replay above).
	e, err := fs.mem.Get(ctx, id)
	if err != nil {
		return err
	}
	return fs.appendLine(e)
}

func (fs *FileStore) VerifyIntegrity(ctx context.Context) (IntegrityReport, error) {
	return fs.mem.VerifyIntegrity(ctx)
}

func (fs *FileStore) LatestHash(ctx context.Context) (string, error) {
	return fs.mem.LatestHash(ctx)
}

func (fs *FileStore) ByAgent(ctx context.Context, agentID string) ([]Entry, error) {
	return fs.mem.ByAgent(ctx, agentID)
}

func (fs *FileStore) BySession(ctx context.Context, sessionID string) ([]Entry, error) {
	return fs.mem.BySession(ctx, sessionID)
}

func (fs *FileStore) ByType(ctx context.Context, decisionType string) ([]Entry, error) {
	return fs.mem.ByType(ctx, decisionType)
}

func (fs *FileStore) ByDateRange(ctx context.Context, r DateRange) ([]Entry, error) {
	return fs.mem.ByDateRange(ctx, r)
}

func (fs *FileStore) Children(ctx context.Context, id uuid.UUID) ([]Entry, error) {
	return fs.mem.Children(ctx, id)
}

func (fs *FileStore) AncestorChain(ctx context.Context, id uuid.UUID) ([]Entry, error) {
	return fs.mem.AncestorChain(ctx, id)
}

func (fs *FileStore) DecisionTree(ctx context.Context, id uuid.UUID) ([]Entry, error) {
	return fs.mem.DecisionTree(ctx, id)
}

var _ Store = (*FileStore)(nil)
