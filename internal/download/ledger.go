package download

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chget/chplus-dl/internal/platform"
)

// ErrLedgerMismatch indicates a resumed ledger disagrees with the
// manifest's segment count. Segment ordering is assumed stable for a VOD
// asset; a count change means the temp state cannot be trusted.
var ErrLedgerMismatch = errors.New("segment ledger does not match manifest")

// markerName warns users away from the temp directory.
const markerName = "__DO NOT TOUCH FILES HERE__"

// ledgerState is the persisted form of the segment table.
type ledgerState struct {
	Count int    `json:"count"`
	Done  []bool `json:"done"`
}

// Ledger is the persisted per-video segment completion table. It owns the
// video's temp directory: decrypted per-segment files live next to the
// table and are removed together with it. Safe for concurrent MarkDone
// calls from segment workers.
type Ledger struct {
	dir  string
	path string

	mu    sync.Mutex
	state ledgerState
}

// NewLedger creates a ledger for the given output container path. State
// lives in a sibling temp directory derived from the container name.
func NewLedger(containerPath string) *Ledger {
	stem := strings.TrimSuffix(filepath.Base(containerPath), filepath.Ext(containerPath))
	dir := filepath.Join(filepath.Dir(containerPath), "temp_"+stem)
	return &Ledger{
		dir:  dir,
		path: filepath.Join(dir, stem+".json"),
	}
}

// Init creates or resumes the segment table and returns the fraction of
// segments already complete. With fresh set, any existing state is
// discarded first. Resuming a table whose count disagrees with
// segmentCount fails with ErrLedgerMismatch.
func (l *Ledger) Init(segmentCount int, fresh bool) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if segmentCount <= 0 {
		return 0, fmt.Errorf("segment count must be positive")
	}
	if fresh {
		if err := os.RemoveAll(l.dir); err != nil {
			return 0, fmt.Errorf("discard ledger: %w", err)
		}
	}

	if err := platform.CreateDirectoryIfNotExists(l.dir); err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	if f, err := os.OpenFile(filepath.Join(l.dir, markerName), os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
		f.Close()
	}

	data, err := os.ReadFile(l.path)
	switch {
	case err == nil:
		var state ledgerState
		if err := json.Unmarshal(data, &state); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrLedgerMismatch, err)
		}
		if state.Count != segmentCount || len(state.Done) != segmentCount {
			return 0, fmt.Errorf("%w: ledger has %d segments, manifest has %d", ErrLedgerMismatch, state.Count, segmentCount)
		}
		l.state = state
	case os.IsNotExist(err):
		l.state = ledgerState{Count: segmentCount, Done: make([]bool, segmentCount)}
		if err := l.persistLocked(); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("read ledger: %w", err)
	}

	return l.fractionLocked(), nil
}

// HasResumeState reports whether an earlier run left resumable state for
// the given container path.
func HasResumeState(containerPath string) bool {
	_, err := os.Stat(NewLedger(containerPath).path)
	return err == nil
}

// IsDone reports whether the segment at index is complete.
func (l *Ledger) IsDone(index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return index >= 0 && index < len(l.state.Done) && l.state.Done[index]
}

// MarkDone flags one segment complete and persists immediately, so a crash
// loses at most in-flight segments. Marking an already-done segment is a
// no-op.
func (l *Ledger) MarkDone(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.state.Done) {
		return fmt.Errorf("segment index %d out of range [0,%d)", index, len(l.state.Done))
	}
	if l.state.Done[index] {
		return nil
	}
	l.state.Done[index] = true
	return l.persistLocked()
}

// Count returns the number of segments in the table.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Count
}

// Complete reports whether every segment is done.
func (l *Ledger) Complete() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, done := range l.state.Done {
		if !done {
			return false
		}
	}
	return l.state.Count > 0
}

// Fraction returns the completed share in [0.0, 1.0].
func (l *Ledger) Fraction() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fractionLocked()
}

// SegmentPath returns the temp file path for one decrypted segment.
func (l *Ledger) SegmentPath(index int) string {
	return filepath.Join(l.dir, fmt.Sprintf("%d.ts", index))
}

// Clear removes the temp directory, the segment files, and the table.
func (l *Ledger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return os.RemoveAll(l.dir)
}

func (l *Ledger) fractionLocked() float64 {
	if l.state.Count == 0 {
		return 0
	}
	done := 0
	for _, d := range l.state.Done {
		if d {
			done++
		}
	}
	return float64(done) / float64(l.state.Count)
}

// persistLocked writes the table atomically: a torn write must never
// corrupt resumable state.
func (l *Ledger) persistLocked() error {
	data, err := json.Marshal(l.state)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
