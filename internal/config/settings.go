package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values
const (
	DefaultSiteBase     = "nicochannel.jp"
	DefaultAuth0Domain  = "auth.sheeta.com"
	DefaultClientID     = "FCl2sWAtKGJSTdyY7I7nf2y9TIwBXxbU"
	DefaultPlatformID   = "CHPL"
	DefaultAudience     = "NCPPlatformAPI"
	DefaultAPIBase      = "https://api.nicochannel.jp/fc"
	DefaultIndexURL     = "https://hls-auth.cloud.stream.co.jp/auth/index.m3u8"
	DefaultOutputDir    = "output"
	DefaultFFmpegPath   = "ffmpeg"
	DefaultCodec        = "copy"
	DefaultRequestDelay = time.Second
	DefaultWorkers      = 4
	MaxWorkers          = 16
)

// Profile holds the site parameters and download defaults for one platform
// deployment. All fields are optional in the YAML file; zero values fall
// back to the defaults above.
type Profile struct {
	SiteBase    string `yaml:"site_base"`
	Auth0Domain string `yaml:"auth0_domain"`
	ClientID    string `yaml:"client_id"`
	PlatformID  string `yaml:"platform_id"`
	Audience    string `yaml:"audience"`
	APIBase     string `yaml:"api_base"`
	IndexURL    string `yaml:"video_index_url"`

	OutputDir    string        `yaml:"output_dir"`
	RequestDelay time.Duration `yaml:"request_delay"`
	Workers      int           `yaml:"workers"`

	FFmpegPath string `yaml:"ffmpeg_path"`
	VideoCodec string `yaml:"vcodec"`
	AudioCodec string `yaml:"acodec"`
}

// DefaultProfile returns a profile populated with the built-in defaults.
func DefaultProfile() *Profile {
	p := &Profile{}
	p.applyDefaults()
	return p
}

// LoadProfile reads a YAML profile from path. A missing file yields the
// default profile; a malformed file is an error.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultProfile(), nil
		}
		return nil, fmt.Errorf("read profile: %w", err)
	}

	p := &Profile{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	p.applyDefaults()

	return p, nil
}

func (p *Profile) applyDefaults() {
	if p.SiteBase == "" {
		p.SiteBase = DefaultSiteBase
	}
	if p.Auth0Domain == "" {
		p.Auth0Domain = DefaultAuth0Domain
	}
	if p.ClientID == "" {
		p.ClientID = DefaultClientID
	}
	if p.PlatformID == "" {
		p.PlatformID = DefaultPlatformID
	}
	if p.Audience == "" {
		p.Audience = DefaultAudience
	}
	if p.APIBase == "" {
		p.APIBase = DefaultAPIBase
	}
	if p.IndexURL == "" {
		p.IndexURL = DefaultIndexURL
	}
	if p.OutputDir == "" {
		p.OutputDir = DefaultOutputDir
	}
	if p.RequestDelay <= 0 {
		p.RequestDelay = DefaultRequestDelay
	}
	p.Workers = clampWorkers(p.Workers)
	if p.FFmpegPath == "" {
		p.FFmpegPath = DefaultFFmpegPath
	}
	if p.VideoCodec == "" {
		p.VideoCodec = DefaultCodec
	}
	if p.AudioCodec == "" {
		p.AudioCodec = DefaultCodec
	}
}

func clampWorkers(n int) int {
	if n <= 0 {
		return DefaultWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// RedirectURI is the login redirect registered for the site deployment.
func (p *Profile) RedirectURI() string {
	return fmt.Sprintf("%s/login/login-redirect", p.siteBaseURL())
}

// OpenIDConfigurationURL is the discovery document location for the
// deployment's Auth0 tenant.
func (p *Profile) OpenIDConfigurationURL() string {
	return fmt.Sprintf("%s/.well-known/openid-configuration", baseURL(p.Auth0Domain))
}

// TermsURL is the terms-of-service page passed through the authorize
// request's ext parameters.
func (p *Profile) TermsURL() string {
	return fmt.Sprintf("%s/terms__content_type___nfc_terms_of_services", p.siteBaseURL())
}

func (p *Profile) siteBaseURL() string {
	return baseURL(p.SiteBase)
}

// baseURL qualifies a bare host with https. Scheme-qualified values (used
// in tests and non-standard deployments) pass through untouched.
func baseURL(host string) string {
	if strings.Contains(host, "://") {
		return strings.TrimSuffix(host, "/")
	}
	return "https://" + host
}
