package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/chget/chplus-dl/internal/hls"
	"github.com/chget/chplus-dl/internal/model"
	"github.com/chget/chplus-dl/internal/platform"
)

const (
	// maxSessionRenewals bounds how often one download may re-issue its
	// streaming session before giving up.
	maxSessionRenewals = 5
	// maxStalledRounds bounds consecutive rounds that complete zero
	// segments before the video is declared failed.
	maxStalledRounds = 3

	containerExtension  = ".ts"
	transcodedExtension = ".mp4"
)

// Job describes one video to fetch. Output is the destination path without
// extension; the service appends the container extension itself.
type Job struct {
	Code      model.ContentCode
	Title     string
	Output    string
	Target    model.Resolution
	Fresh     bool
	Transcode bool
}

// Service downloads single videos end to end: manifest resolution, bounded
// concurrent segment transfer with decryption, resumable ledger tracking,
// concatenation, and the optional transcode handoff.
type Service struct {
	resolver   *hls.Resolver
	issuer     SessionIssuer
	client     *http.Client
	workers    int
	transcoder Transcoder
	tokenFn    func(context.Context) (string, error)
	onUpdate   func(model.Progress)
}

// NewService creates a download service with the given worker bound for
// segment transfers. A nil client uses a default with a timeout.
func NewService(resolver *hls.Resolver, issuer SessionIssuer, client *http.Client, workers int) *Service {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if workers < 1 {
		workers = 1
	}
	return &Service{
		resolver: resolver,
		issuer:   issuer,
		client:   client,
		workers:  workers,
	}
}

// SetUpdateCallback registers a callback invoked on every progress change.
func (s *Service) SetUpdateCallback(cb func(model.Progress)) {
	s.onUpdate = cb
}

// SetTranscoder enables the post-download transcode stage for jobs that
// request it.
func (s *Service) SetTranscoder(t Transcoder) {
	s.transcoder = t
}

// SetTokenSource makes segment requests carry a bearer token.
func (s *Service) SetTokenSource(fn func(context.Context) (string, error)) {
	s.tokenFn = fn
}

// Download fetches one video. Interrupted downloads resume from the
// persisted ledger on the next call; Fresh discards that state first.
func (s *Service) Download(ctx context.Context, job Job) error {
	container := job.Output + containerExtension
	if err := platform.CreateDirectoryIfNotExists(filepath.Dir(container)); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	s.notify(job, model.StageResolving, 0)
	manifest, key, err := s.resolve(ctx, job)
	if err != nil {
		return err
	}

	ledger := NewLedger(container)
	fraction, err := ledger.Init(len(manifest.Segments), job.Fresh)
	if err != nil {
		return err
	}
	s.notify(job, model.StageDownloading, fraction)

	stalled := 0
	for !ledger.Complete() {
		if err := ctx.Err(); err != nil {
			return err
		}

		completed, roundErr := s.round(ctx, manifest, key, ledger, job)
		if roundErr != nil {
			var decErr *hls.DecryptionError
			if errors.As(roundErr, &decErr) {
				return roundErr
			}
			if errors.Is(roundErr, hls.ErrSessionExpired) {
				manifest, key, err = s.resolve(ctx, job)
				if err != nil {
					return err
				}
				if len(manifest.Segments) != ledger.Count() {
					return fmt.Errorf("%w: rendition now has %d segments, ledger has %d",
						ErrLedgerMismatch, len(manifest.Segments), ledger.Count())
				}
			}
			log.WithField("video", job.Code).Warnf("Segment round incomplete: %v", roundErr)
		}

		if completed == 0 {
			stalled++
			if stalled >= maxStalledRounds {
				return fmt.Errorf("no segment progress after %d rounds: %w", stalled, roundErr)
			}
		} else {
			stalled = 0
		}
	}

	if err := s.concatenate(job, ledger, container); err != nil {
		return err
	}

	if job.Transcode && s.transcoder != nil {
		output := job.Output + transcodedExtension
		s.notify(job, model.StageTranscoding, 0)
		err := s.transcoder.Run(ctx, container, output, func(f float64) {
			s.notify(job, model.StageTranscoding, f)
		})
		if err != nil {
			// The concatenated stream stays on disk so the work is not lost
			return err
		}
		if err := os.Remove(container); err != nil {
			log.WithField("video", job.Code).Warnf("Could not remove raw container: %v", err)
		}
	}

	s.notify(job, model.StageCleanup, 0)
	if err := ledger.Clear(); err != nil {
		return fmt.Errorf("remove temp dir: %w", err)
	}

	s.notify(job, model.StageDone, 1)
	return nil
}

// resolve obtains a streaming session and walks the manifest hierarchy
// down to the AES key, re-issuing the session when the edge rejects it.
func (s *Service) resolve(ctx context.Context, job Job) (*hls.MediaManifest, []byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxSessionRenewals; attempt++ {
		session, err := s.issuer.SessionID(ctx, job.Code)
		if err != nil {
			return nil, nil, err
		}

		manifest, key, err := s.resolveSession(ctx, session, job.Target)
		if err == nil {
			return manifest, key, nil
		}
		if !errors.Is(err, hls.ErrSessionExpired) {
			return nil, nil, err
		}
		lastErr = err
		log.WithField("video", job.Code).Warn("Streaming session rejected, issuing a new one")
	}
	return nil, nil, fmt.Errorf("session renewals exhausted: %w", lastErr)
}

func (s *Service) resolveSession(ctx context.Context, session model.SessionID, target model.Resolution) (*hls.MediaManifest, []byte, error) {
	variants, err := s.resolver.Master(ctx, s.issuer.IndexURL(session))
	if err != nil {
		return nil, nil, err
	}

	variant := hls.SelectVariant(variants, target)
	manifest, err := s.resolver.Media(ctx, variant.URI)
	if err != nil {
		return nil, nil, err
	}

	key, err := s.resolver.Key(ctx, manifest.KeyURI)
	if err != nil {
		return nil, nil, err
	}
	return manifest, key, nil
}

// round makes one pass over the outstanding segments with bounded
// concurrency. It returns how many segments completed; a failure cancels
// the segments still in flight but keeps everything already marked done.
func (s *Service) round(ctx context.Context, manifest *hls.MediaManifest, key []byte, ledger *Ledger, job Job) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	var completed atomic.Int64
	for i, seg := range manifest.Segments {
		if ledger.IsDone(i) {
			continue
		}
		i, seg := i, seg
		g.Go(func() error {
			ciphertext, err := s.fetchSegment(gctx, seg.URI)
			if err != nil {
				return &SegmentFetchError{Index: i, Err: err}
			}
			plaintext, err := hls.DecryptSegment(key, seg.Sequence, ciphertext)
			if err != nil {
				return err
			}
			if err := os.WriteFile(ledger.SegmentPath(i), plaintext, 0o644); err != nil {
				return &SegmentFetchError{Index: i, Err: err}
			}
			if err := ledger.MarkDone(i); err != nil {
				return err
			}
			completed.Add(1)
			s.notify(job, model.StageDownloading, ledger.Fraction())
			return nil
		})
	}

	err := g.Wait()
	return int(completed.Load()), err
}

func (s *Service) fetchSegment(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	if s.tokenFn != nil {
		token, err := s.tokenFn(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusGone:
		return nil, fmt.Errorf("%w: segment returned status %d", hls.ErrSessionExpired, resp.StatusCode)
	default:
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// concatenate stitches the decrypted segments into the container in
// ascending index order.
func (s *Service) concatenate(job Job, ledger *Ledger, container string) error {
	s.notify(job, model.StageConcatenating, 0)

	out, err := os.Create(container)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}

	total := ledger.Count()
	for i := 0; i < total; i++ {
		seg, err := os.Open(ledger.SegmentPath(i))
		if err != nil {
			out.Close()
			return fmt.Errorf("open segment %d: %w", i, err)
		}
		_, err = io.Copy(out, seg)
		seg.Close()
		if err != nil {
			out.Close()
			return fmt.Errorf("append segment %d: %w", i, err)
		}
		s.notify(job, model.StageConcatenating, float64(i+1)/float64(total))
	}
	return out.Close()
}

func (s *Service) notify(job Job, stage model.Stage, fraction float64) {
	if s.onUpdate == nil {
		return
	}
	s.onUpdate(model.Progress{Code: job.Code, Title: job.Title, Stage: stage, Fraction: fraction})
}
