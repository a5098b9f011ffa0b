// Package api implements the Channel Plus metadata API client: channel
// resolution, video listing, title lookup, and per-video session issuance.
// These are plain request/response JSON calls; every call is throttled by a
// shared minimum inter-request delay to avoid remote rate limiting.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/chget/chplus-dl/internal/config"
	"github.com/chget/chplus-dl/internal/model"
	"github.com/chget/chplus-dl/internal/platform"
)

// Listing defaults matching the site frontend.
const (
	DefaultPerPage = 12
	DefaultSort    = "-display_date"
	releasedLayout = "2006-01-02 15:04:05"
)

// NameFormat is the output file stem pattern: release date, sanitized
// title, and the content code for disambiguation.
const NameFormat = "%s %s [%s]"

var (
	// ErrChannelNotFound indicates the query does not resolve to a channel.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrVideoNotFound indicates the content code has no downloadable video.
	ErrVideoNotFound = errors.New("video not found")
)

// Channel is one entry of the platform's channel listing.
type Channel struct {
	ID     int64
	Domain string
}

// Client is the metadata API client. It is safe for concurrent use; the
// embedded limiter serializes the minimum delay across callers.
type Client struct {
	profile *config.Profile
	client  *http.Client
	limiter *rate.Limiter
	origin  string
}

// NewClient creates a metadata client. If httpClient is nil a default
// client with a request timeout is used.
func NewClient(profile *config.Profile, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	origin := profile.SiteBase
	if !strings.Contains(origin, "://") {
		origin = "https://" + origin
	}
	return &Client{
		profile: profile,
		client:  httpClient,
		limiter: rate.NewLimiter(rate.Every(profile.RequestDelay), 1),
		origin:  strings.TrimSuffix(origin, "/"),
	}
}

// ResolveChannelID resolves a channel URL, bare domain, or channel path to
// a channel id. Queries on the primary site are matched against the channel
// listing; foreign domains are resolved through their site settings
// document. Returns ErrChannelNotFound when nothing matches.
func (c *Client) ResolveChannelID(ctx context.Context, query string) (model.ChannelID, error) {
	parsed, err := url.Parse(strings.TrimSpace(query))
	if err != nil {
		return "", fmt.Errorf("parse channel query: %w", err)
	}

	if parsed.Host == "" {
		parsed, err = url.Parse(c.origin + "/" + strings.Trim(parsed.Path, "/"))
		if err != nil {
			return "", fmt.Errorf("parse channel query: %w", err)
		}
	}

	if c.origin == parsed.Scheme+"://"+parsed.Host {
		target := strings.TrimSuffix(parsed.String(), "/")
		channels, err := c.ListChannels(ctx)
		if err != nil {
			return "", err
		}
		for _, ch := range channels {
			if strings.TrimSuffix(ch.Domain, "/") == target {
				return model.ChannelIDFromInt(ch.ID), nil
			}
		}
		return "", ErrChannelNotFound
	}

	// Foreign deployments publish their site id in a settings document
	settingsURL := strings.TrimSuffix(parsed.String(), "/") + "/site/settings.json"
	body, status, err := c.get(ctx, settingsURL)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", ErrChannelNotFound
	}
	id := gjson.GetBytes(body, "fanclub_site_id")
	if !id.Exists() {
		return "", ErrChannelNotFound
	}
	return model.ChannelIDFromInt(id.Int()), nil
}

// ListChannels fetches the platform-wide channel listing.
func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	body, status, err := c.get(ctx, c.profile.APIBase+"/content_providers/channels")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("channel listing returned status %d", status)
	}

	var channels []Channel
	for _, entry := range gjson.GetBytes(body, "data.content_providers").Array() {
		channels = append(channels, Channel{
			ID:     entry.Get("id").Int(),
			Domain: entry.Get("domain").String(),
		})
	}
	return channels, nil
}

// ChannelName fetches the channel's display name.
func (c *Client) ChannelName(ctx context.Context, id model.ChannelID) (string, error) {
	body, status, err := c.get(ctx, fmt.Sprintf("%s/fanclub_sites/%s/page_base_info", c.profile.APIBase, id))
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("channel info returned status %d", status)
	}

	name := gjson.GetBytes(body, "data.fanclub_site.fanclub_site_name")
	if !name.Exists() {
		return "", fmt.Errorf("channel info missing site name")
	}
	return name.String(), nil
}

// ListVideos returns the channel's public VOD content codes in display
// order, walking all listing pages.
func (c *Client) ListVideos(ctx context.Context, id model.ChannelID) ([]model.ContentCode, error) {
	var codes []model.ContentCode
	total := int64(-1)

	for page := 1; ; page++ {
		u := fmt.Sprintf("%s/fanclub_sites/%s/video_pages?vod_type=%d&page=%d&per_page=%d&sort=%s",
			c.profile.APIBase, id, 0, page, DefaultPerPage, DefaultSort)
		body, status, err := c.get(ctx, u)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("video listing returned status %d", status)
		}

		list := gjson.GetBytes(body, "data.video_pages.list").Array()
		for _, entry := range list {
			codes = append(codes, model.ContentCode(entry.Get("content_code").String()))
		}
		total = gjson.GetBytes(body, "data.video_pages.total").Int()

		if int64(len(codes)) >= total || len(list) == 0 {
			break
		}
	}

	log.Debugf("listed %d videos for channel %s", len(codes), id)
	return codes, nil
}

// ListVideosIncludingPrivate returns the channel's content codes from the
// views/comments aggregate, which includes videos the listing hides.
func (c *Client) ListVideosIncludingPrivate(ctx context.Context, id model.ChannelID) ([]model.ContentCode, error) {
	body, status, err := c.get(ctx, fmt.Sprintf("%s/fanclub_sites/%s/views_comments", c.profile.APIBase, id))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("aggregate listing returned status %d", status)
	}

	var codes []model.ContentCode
	for _, entry := range gjson.GetBytes(body, "data.video_aggregate_infos").Array() {
		codes = append(codes, model.ContentCode(entry.Get("content_code").String()))
	}
	return codes, nil
}

// SessionID issues a fresh streaming session for a video. Returns
// ErrVideoNotFound when the video does not exist or is not accessible.
func (c *Client) SessionID(ctx context.Context, code model.ContentCode) (model.SessionID, error) {
	u := fmt.Sprintf("%s/video_pages/%s/session_ids", c.profile.APIBase, code)
	body, status, err := c.post(ctx, u, "{}")
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: session request returned status %d", ErrVideoNotFound, status)
	}

	id := gjson.GetBytes(body, "data.session_id")
	if !id.Exists() || id.String() == "" {
		return "", fmt.Errorf("%w: session response missing id", ErrVideoNotFound)
	}
	return model.SessionID(id.String()), nil
}

// IndexURL is the streaming edge's master manifest location for a session.
func (c *Client) IndexURL(session model.SessionID) string {
	return fmt.Sprintf("%s?session_id=%s", c.profile.IndexURL, url.QueryEscape(session.String()))
}

// VideoName resolves a video's display title and output file stem. Private
// videos have no video page; the public status still carries the release
// date, and knownTitle (from a previous catalog run) substitutes for the
// hidden title.
func (c *Client) VideoName(ctx context.Context, code model.ContentCode, knownTitle string) (stem, title string, err error) {
	body, status, err := c.get(ctx, fmt.Sprintf("%s/video_pages/%s", c.profile.APIBase, code))
	if err != nil {
		return "", "", err
	}

	if status == http.StatusOK {
		page := gjson.GetBytes(body, "data.video_page")
		title = page.Get("title").String()
		stem = formatName(page.Get("released_at").String(), title, code)
		return stem, title, nil
	}

	// Private video: fall back to the public status for the release date
	body, status, err = c.get(ctx, fmt.Sprintf("%s/video_pages/%s/public_status", c.profile.APIBase, code))
	if err != nil {
		return "", "", err
	}
	if status != http.StatusOK {
		return "", "", fmt.Errorf("%w: public status returned status %d", ErrVideoNotFound, status)
	}

	title = knownTitle
	if title == "" {
		title = "private"
	}
	released := gjson.GetBytes(body, "data.video_page.released_at").String()
	return formatName(released, title, code), title, nil
}

func formatName(releasedAt, title string, code model.ContentCode) string {
	date := releasedAt
	if t, err := time.Parse(releasedLayout, releasedAt); err == nil {
		date = t.Format("2006-01-02")
	}
	return fmt.Sprintf(NameFormat, date, platform.SanitizeFilename(title), code)
}

func (c *Client) get(ctx context.Context, u string) ([]byte, int, error) {
	return c.do(ctx, http.MethodGet, u, "")
}

func (c *Client) post(ctx context.Context, u, body string) ([]byte, int, error) {
	return c.do(ctx, http.MethodPost, u, body)
}

func (c *Client) do(ctx context.Context, method, u, body string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Origin", c.origin)
	req.Header.Set("Fc_use_device", "null")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return data, resp.StatusCode, nil
}
