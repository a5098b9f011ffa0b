package hls

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chget/chplus-dl/internal/model"
)

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=800000,RESOLUTION=640x360
360p.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=2800000,RESOLUTION=1920x1080
1080p.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:5
#EXT-X-KEY:METHOD=AES-128,URI="enc.key"
#EXTINF:6.000,
seg0.ts
#EXTINF:6.000,
seg1.ts
#EXTINF:4.500,
seg2.ts
#EXT-X-ENDLIST
`

func newEdgeStub(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("session_id") != "live" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, masterPlaylist)
	})
	mux.HandleFunc("/1080p.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, mediaPlaylist)
	})
	mux.HandleFunc("/enc.key", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789abcdef"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestMasterResolve(t *testing.T) {
	srv := newEdgeStub(t)
	r := NewResolver(nil, nil)

	variants, err := r.Master(context.Background(), srv.URL+"/auth/index.m3u8?session_id=live")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(variants) != 2 {
		t.Fatalf("Expected 2 variants, got %d", len(variants))
	}
	if variants[0].Resolution != (model.Resolution{Width: 640, Height: 360}) {
		t.Errorf("Unexpected first variant %+v", variants[0])
	}
	if variants[1].URI != srv.URL+"/1080p.m3u8" {
		t.Errorf("Expected relative URI resolution, got %q", variants[1].URI)
	}
}

func TestMasterSessionExpired(t *testing.T) {
	srv := newEdgeStub(t)
	r := NewResolver(nil, nil)

	_, err := r.Master(context.Background(), srv.URL+"/auth/index.m3u8?session_id=stale")
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Expected ErrSessionExpired, got %v", err)
	}
}

func TestMediaResolve(t *testing.T) {
	srv := newEdgeStub(t)
	r := NewResolver(nil, nil)

	manifest, err := r.Media(context.Background(), srv.URL+"/1080p.m3u8")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(manifest.Segments) != 3 {
		t.Fatalf("Expected 3 segments, got %d", len(manifest.Segments))
	}
	// Sequence numbers carry the media-sequence base
	for i, seg := range manifest.Segments {
		if want := uint64(5 + i); seg.Sequence != want {
			t.Errorf("Segment %d sequence = %d, want %d", i, seg.Sequence, want)
		}
	}
	if manifest.Segments[2].URI != srv.URL+"/seg2.ts" {
		t.Errorf("Unexpected segment URI %q", manifest.Segments[2].URI)
	}
	if manifest.KeyURI != srv.URL+"/enc.key" {
		t.Errorf("Unexpected key URI %q", manifest.KeyURI)
	}
}

func TestKeyFetch(t *testing.T) {
	srv := newEdgeStub(t)
	r := NewResolver(nil, nil)

	key, err := r.Key(context.Background(), srv.URL+"/enc.key")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(key) != "0123456789abcdef" {
		t.Errorf("Unexpected key %q", key)
	}
}

func TestSelectVariant(t *testing.T) {
	variants := []Variant{
		{Resolution: model.Resolution{Width: 1920, Height: 1080}, URI: "1080p"},
		{Resolution: model.Resolution{Width: 640, Height: 360}, URI: "360p"},
		{Resolution: model.Resolution{Width: 1280, Height: 720}, URI: "720p"},
	}

	tests := []struct {
		name   string
		target model.Resolution
		want   string
	}{
		{"exact match", model.Resolution{Width: 1280, Height: 720}, "720p"},
		{"smallest qualifying", model.Resolution{Width: 600, Height: 300}, "360p"},
		{"none qualifies falls back to first-listed", model.Resolution{Width: 1280, Height: 1000}, "1080p"},
		{"no target defaults to first-listed", model.Resolution{}, "1080p"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectVariant(variants, tt.target); got.URI != tt.want {
				t.Errorf("SelectVariant = %q, want %q", got.URI, tt.want)
			}
		})
	}
}

func TestSelectVariantFallbackOrderIndependent(t *testing.T) {
	// 1280x1000 qualifies nothing even though 1280 width exists: both
	// dimensions must meet the target.
	variants := []Variant{
		{Resolution: model.Resolution{Width: 640, Height: 360}, URI: "default"},
		{Resolution: model.Resolution{Width: 1280, Height: 720}, URI: "720p"},
	}
	if got := SelectVariant(variants, model.Resolution{Width: 1280, Height: 1000}); got.URI != "default" {
		t.Errorf("Expected first-listed fallback, got %q", got.URI)
	}
}
