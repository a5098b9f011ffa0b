package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chget/chplus-dl/internal/model"
	"github.com/chget/chplus-dl/internal/platform"
)

// CatalogFileName is the per-channel catalog file inside the channel's
// output directory.
const CatalogFileName = "catalog.json"

// CatalogError reports an unreadable or inconsistent catalog file. It is
// fatal for the whole channel job: guessing at the catalog risks
// re-downloading or silently skipping videos.
type CatalogError struct {
	Path string
	Err  error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Path, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

// TitleSource resolves a video's display title (and output stem) from its
// content code.
type TitleSource interface {
	VideoName(ctx context.Context, code model.ContentCode, knownTitle string) (stem, title string, err error)
}

// Catalog is the persisted per-channel video ledger. Entries keep their
// insertion order across runs; the file is the single source of truth for
// which videos a channel job still owes.
type Catalog struct {
	path    string
	entries []model.VideoEntry
}

// NewCatalog creates a catalog backed by the given file path.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// Load reads the catalog from disk. A missing file is an empty catalog;
// anything unparseable or carrying an unknown status is a CatalogError.
func (c *Catalog) Load() error {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		c.entries = nil
		return nil
	}
	if err != nil {
		return &CatalogError{Path: c.path, Err: err}
	}

	var entries []model.VideoEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return &CatalogError{Path: c.path, Err: err}
	}
	for _, entry := range entries {
		if entry.Code == "" {
			return &CatalogError{Path: c.path, Err: fmt.Errorf("entry with empty content code")}
		}
		if !entry.Status.IsValid() {
			return &CatalogError{Path: c.path, Err: fmt.Errorf("entry %s has unknown status %q", entry.Code, entry.Status)}
		}
	}

	c.entries = entries
	return nil
}

// Save persists the catalog atomically.
func (c *Catalog) Save() error {
	if err := platform.CreateDirectoryIfNotExists(filepath.Dir(c.path)); err != nil {
		return &CatalogError{Path: c.path, Err: err}
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return &CatalogError{Path: c.path, Err: err}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &CatalogError{Path: c.path, Err: err}
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return &CatalogError{Path: c.path, Err: err}
	}
	return nil
}

// Entries returns a copy of the catalog rows in stored order.
func (c *Catalog) Entries() []model.VideoEntry {
	out := make([]model.VideoEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of catalog rows.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Pending counts the rows still owed by the channel job.
func (c *Catalog) Pending() int {
	n := 0
	for _, entry := range c.entries {
		if entry.Status.NeedsDownload() {
			n++
		}
	}
	return n
}

// Sync appends catalog rows for listed codes not seen before, resolving
// their titles, and persists each row as it lands. Every title costs a
// throttled metadata call, so an interrupt or a failed lookup must not
// discard the rows already resolved. Existing rows keep their position,
// title, and status: a completed download stays completed even if the
// listing changes. Returns how many rows were added.
func (c *Catalog) Sync(ctx context.Context, titles TitleSource, codes []model.ContentCode) (int, error) {
	known := make(map[model.ContentCode]bool, len(c.entries))
	for _, entry := range c.entries {
		known[entry.Code] = true
	}

	added := 0
	for _, code := range codes {
		if code == "" || known[code] {
			continue
		}
		_, title, err := titles.VideoName(ctx, code, "")
		if err != nil {
			return added, fmt.Errorf("resolve title of %s: %w", code, err)
		}
		c.entries = append(c.entries, model.VideoEntry{Code: code, Title: title, Status: model.StatusPending})
		known[code] = true
		added++
		if err := c.Save(); err != nil {
			return added, err
		}
	}
	return added, nil
}

// Select applies an interactive selection, given as indexes into the
// stored order, and persists. Completed rows are immutable; of the rest,
// chosen rows become pending and unchosen ones skipped.
func (c *Catalog) Select(indexes []int) error {
	chosen := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		chosen[i] = true
	}

	for i := range c.entries {
		if c.entries[i].Status == model.StatusDone {
			continue
		}
		if chosen[i] {
			c.entries[i].Status = model.StatusPending
		} else {
			c.entries[i].Status = model.StatusSkipped
		}
	}
	return c.Save()
}

// MarkDone flags one row as downloaded and persists immediately.
func (c *Catalog) MarkDone(code model.ContentCode) error {
	for i := range c.entries {
		if c.entries[i].Code == code {
			c.entries[i].Status = model.StatusDone
			return c.Save()
		}
	}
	return &CatalogError{Path: c.path, Err: fmt.Errorf("no entry for %s", code)}
}
