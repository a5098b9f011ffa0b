package channel

import (
	"context"
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/chget/chplus-dl/internal/download"
	"github.com/chget/chplus-dl/internal/model"
)

// Metadata is the slice of the API client the orchestrator needs.
type Metadata interface {
	TitleSource
	ListVideos(ctx context.Context, id model.ChannelID) ([]model.ContentCode, error)
	ListVideosIncludingPrivate(ctx context.Context, id model.ChannelID) ([]model.ContentCode, error)
}

// Downloader fetches one video end to end.
type Downloader interface {
	Download(ctx context.Context, job download.Job) error
}

// Prompter asks the user questions between the catalog phase and the
// download phase. Implementations run on a terminal; tests use fakes.
type Prompter interface {
	// Confirm asks a yes/no question, returning def on empty input.
	Confirm(question string, def bool) bool
	// SelectMany presents all items and returns the chosen indexes.
	// Entries flagged done are shown for context but stay immutable.
	SelectMany(items []string, done []bool) []int
}

// Options configures one channel run.
type Options struct {
	ChannelID      model.ChannelID
	Dir            string
	Target         model.Resolution
	Fresh          bool
	Transcode      bool
	IncludePrivate bool
	AssumeYes      bool
	Interactive    bool
}

// Orchestrator drives a whole-channel job: it reconciles the channel's
// listing with the persisted catalog, then walks the pending rows one by
// one. Videos download sequentially; concurrency lives inside the per-video
// fetcher. One failed video never aborts the rest of the batch.
type Orchestrator struct {
	meta     Metadata
	fetcher  Downloader
	prompter Prompter
}

// NewOrchestrator creates an orchestrator. A nil prompter disables the
// confirmation and selection steps, as if the user approved everything.
func NewOrchestrator(meta Metadata, fetcher Downloader, prompter Prompter) *Orchestrator {
	return &Orchestrator{meta: meta, fetcher: fetcher, prompter: prompter}
}

// Run executes one channel job and reports the outcome of every video it
// attempted. The returned error covers batch-level failures only;
// per-video failures land in the results.
func (o *Orchestrator) Run(ctx context.Context, opts Options) ([]model.VideoResult, error) {
	codes, err := o.listCodes(ctx, opts)
	if err != nil {
		return nil, err
	}

	catalog := NewCatalog(filepath.Join(opts.Dir, CatalogFileName))
	if err := catalog.Load(); err != nil {
		return nil, err
	}
	added, err := catalog.Sync(ctx, o.meta, codes)
	if err != nil {
		return nil, err
	}
	log.Infof("Catalog has %d videos (%d new)", catalog.Len(), added)

	if opts.Interactive && o.prompter != nil {
		entries := catalog.Entries()
		items := make([]string, len(entries))
		done := make([]bool, len(entries))
		for i, entry := range entries {
			items[i] = fmt.Sprintf("%s (%s)", entry.Title, entry.Code)
			done[i] = entry.Status == model.StatusDone
		}
		if err := catalog.Select(o.prompter.SelectMany(items, done)); err != nil {
			return nil, err
		}
	}

	pending := catalog.Pending()
	if pending == 0 {
		log.Info("Nothing to download")
		return nil, nil
	}
	if !opts.AssumeYes && o.prompter != nil {
		if !o.prompter.Confirm(fmt.Sprintf("Download %d videos?", pending), true) {
			log.Info("Aborted by user")
			return nil, nil
		}
	}

	var results []model.VideoResult
	position := 0
	for _, entry := range catalog.Entries() {
		if !entry.Status.NeedsDownload() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		position++
		log.Infof("Downloading %s (%d/%d)", entry.Title, position, pending)
		result := o.downloadOne(ctx, catalog, entry, opts)
		if result.Err != nil {
			log.WithField("video", entry.Code).Errorf("Download failed: %v", result.Err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (o *Orchestrator) listCodes(ctx context.Context, opts Options) ([]model.ContentCode, error) {
	if opts.IncludePrivate {
		return o.meta.ListVideosIncludingPrivate(ctx, opts.ChannelID)
	}
	return o.meta.ListVideos(ctx, opts.ChannelID)
}

func (o *Orchestrator) downloadOne(ctx context.Context, catalog *Catalog, entry model.VideoEntry, opts Options) model.VideoResult {
	result := model.VideoResult{Code: entry.Code, Title: entry.Title}

	stem, title, err := o.meta.VideoName(ctx, entry.Code, entry.Title)
	if err != nil {
		result.Err = err
		return result
	}
	result.Title = title

	err = o.fetcher.Download(ctx, download.Job{
		Code:      entry.Code,
		Title:     title,
		Output:    filepath.Join(opts.Dir, stem),
		Target:    opts.Target,
		Fresh:     opts.Fresh,
		Transcode: opts.Transcode,
	})
	if err != nil {
		result.Err = err
		return result
	}

	result.Err = catalog.MarkDone(entry.Code)
	return result
}
