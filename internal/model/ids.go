package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ContentCode identifies a single video on the platform (e.g. "smXXXXXX").
type ContentCode string

// String returns the string representation of ContentCode.
func (c ContentCode) String() string {
	return string(c)
}

// ChannelID identifies a fan-club channel. The platform emits it both as a
// number and as a string; it is normalized to its decimal form here.
type ChannelID string

// String returns the string representation of ChannelID.
func (c ChannelID) String() string {
	return string(c)
}

// ChannelIDFromInt normalizes a numeric channel id.
func ChannelIDFromInt(id int64) ChannelID {
	return ChannelID(strconv.FormatInt(id, 10))
}

// SessionID is a short-lived, server-issued id authorizing one streaming
// instance of a specific video.
type SessionID string

// String returns the string representation of SessionID.
func (s SessionID) String() string {
	return string(s)
}

// Resolution is a video rendition size in pixels.
type Resolution struct {
	Width  int
	Height int
}

// String returns the resolution formatted as "WIDTHxHEIGHT".
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Meets reports whether both dimensions are at least as large as target.
func (r Resolution) Meets(target Resolution) bool {
	return r.Width >= target.Width && r.Height >= target.Height
}

// IsZero reports whether no resolution was set.
func (r Resolution) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

// ParseResolution parses a "WIDTHxHEIGHT" string such as "1920x1080".
func ParseResolution(s string) (Resolution, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return Resolution{}, fmt.Errorf("invalid resolution %q", s)
	}

	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution width %q", parts[0])
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution height %q", parts[1])
	}
	if width <= 0 || height <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution %q", s)
	}

	return Resolution{Width: width, Height: height}, nil
}
