// Package hls resolves the manifest hierarchy of an encrypted VOD asset
// (master playlist, rendition playlists, AES key) and decrypts media
// segments. It deliberately covers only the subset of HLS the platform
// serves: VOD playlists with a single AES-128 key per rendition.
package hls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/grafov/m3u8"
	"golang.org/x/time/rate"

	"github.com/chget/chplus-dl/internal/model"
)

// ErrSessionExpired indicates the streaming session backing the manifest
// URL is no longer valid. The caller re-issues a session and retries;
// segment progress is preserved.
var ErrSessionExpired = errors.New("streaming session expired")

// Variant is one rendition of the master playlist, in listed order.
type Variant struct {
	Resolution model.Resolution
	URI        string
}

// Segment is one media segment of a rendition. Sequence is the segment's
// media sequence number, carried from parse time; it doubles as the
// decryption IV source.
type Segment struct {
	Sequence uint64
	URI      string
}

// MediaManifest is a fully resolved rendition: its immutable segment list
// and the key resource shared by all segments.
type MediaManifest struct {
	Segments []Segment
	KeyURI   string
}

// Resolver fetches and parses manifests and keys. Manifest and key
// requests count as metadata traffic and go through the shared limiter.
type Resolver struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewResolver creates a resolver. A nil limiter disables throttling; a nil
// client uses a default with a timeout.
func NewResolver(client *http.Client, limiter *rate.Limiter) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Resolver{client: client, limiter: limiter}
}

// Master fetches the session's master playlist and returns its variants in
// listed order. A rejected session URL yields ErrSessionExpired.
func (r *Resolver) Master(ctx context.Context, indexURL string) ([]Variant, error) {
	body, base, err := r.fetch(ctx, indexURL)
	if err != nil {
		return nil, err
	}

	playlist, listType, err := m3u8.Decode(*bytes.NewBuffer(body), true)
	if err != nil {
		return nil, fmt.Errorf("parse master playlist: %w", err)
	}
	master, ok := playlist.(*m3u8.MasterPlaylist)
	if !ok || listType != m3u8.MASTER {
		return nil, fmt.Errorf("expected a master playlist at %s", indexURL)
	}

	var variants []Variant
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		res, err := model.ParseResolution(v.Resolution)
		if err != nil {
			// Audio-only or malformed entries carry no resolution
			res = model.Resolution{}
		}
		variants = append(variants, Variant{
			Resolution: res,
			URI:        resolveRef(base, v.URI),
		})
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("master playlist has no variants")
	}

	return variants, nil
}

// Media fetches and parses a rendition playlist.
func (r *Resolver) Media(ctx context.Context, variantURI string) (*MediaManifest, error) {
	body, base, err := r.fetch(ctx, variantURI)
	if err != nil {
		return nil, err
	}

	playlist, listType, err := m3u8.Decode(*bytes.NewBuffer(body), true)
	if err != nil {
		return nil, fmt.Errorf("parse media playlist: %w", err)
	}
	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok || listType != m3u8.MEDIA {
		return nil, fmt.Errorf("expected a media playlist at %s", variantURI)
	}

	manifest := &MediaManifest{}
	if media.Key != nil {
		manifest.KeyURI = resolveRef(base, media.Key.URI)
	}
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		if manifest.KeyURI == "" && seg.Key != nil {
			manifest.KeyURI = resolveRef(base, seg.Key.URI)
		}
		manifest.Segments = append(manifest.Segments, Segment{
			Sequence: seg.SeqId,
			URI:      resolveRef(base, seg.URI),
		})
	}
	if len(manifest.Segments) == 0 {
		return nil, fmt.Errorf("media playlist has no segments")
	}
	if manifest.KeyURI == "" {
		return nil, fmt.Errorf("media playlist has no encryption key")
	}

	return manifest, nil
}

// Key fetches the rendition's AES-128 key.
func (r *Resolver) Key(ctx context.Context, keyURI string) ([]byte, error) {
	body, _, err := r.fetch(ctx, keyURI)
	if err != nil {
		return nil, err
	}
	if len(body) != KeySize {
		return nil, &DecryptionError{Err: fmt.Errorf("key resource is %d bytes, want %d", len(body), KeySize)}
	}
	return body, nil
}

// SelectVariant picks the smallest variant satisfying target, scanning
// ascending by resolution. With no target, or when nothing qualifies, the
// first-listed variant (the canonical rendition) wins.
func SelectVariant(variants []Variant, target model.Resolution) Variant {
	if target.IsZero() || len(variants) == 0 {
		return first(variants)
	}

	ascending := make([]Variant, len(variants))
	copy(ascending, variants)
	sort.SliceStable(ascending, func(i, j int) bool {
		a, b := ascending[i].Resolution, ascending[j].Resolution
		return a.Width*a.Height < b.Width*b.Height
	})

	for _, v := range ascending {
		if v.Resolution.Meets(target) {
			return v
		}
	}
	return first(variants)
}

func first(variants []Variant) Variant {
	if len(variants) == 0 {
		return Variant{}
	}
	return variants[0]
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, *url.URL, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		return nil, nil, fmt.Errorf("%w: %s returned status %d", ErrSessionExpired, rawURL, resp.StatusCode)
	default:
		return nil, nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return body, resp.Request.URL, nil
}

// resolveRef resolves a possibly-relative manifest reference against the
// URL the playlist was served from.
func resolveRef(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil || base == nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}
