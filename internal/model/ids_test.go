package model

import "testing"

func TestParseResolution(t *testing.T) {
	tests := []struct {
		input   string
		want    Resolution
		wantErr bool
	}{
		{"1920x1080", Resolution{1920, 1080}, false},
		{"640X360", Resolution{640, 360}, false},
		{" 1280x720 ", Resolution{1280, 720}, false},
		{"1080", Resolution{}, true},
		{"ax b", Resolution{}, true},
		{"0x720", Resolution{}, true},
		{"1920x1080x60", Resolution{}, true},
	}

	for _, tt := range tests {
		got, err := ParseResolution(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseResolution(%q): expected error, got %v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseResolution(%q): unexpected error %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseResolution(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestResolutionMeets(t *testing.T) {
	r := Resolution{1280, 720}

	if !r.Meets(Resolution{1280, 720}) {
		t.Error("Expected 1280x720 to meet 1280x720")
	}
	if !r.Meets(Resolution{640, 360}) {
		t.Error("Expected 1280x720 to meet 640x360")
	}
	if r.Meets(Resolution{1280, 1000}) {
		t.Error("Expected 1280x720 to not meet 1280x1000")
	}
	if r.Meets(Resolution{1920, 720}) {
		t.Error("Expected 1280x720 to not meet 1920x720")
	}
}

func TestChannelIDFromInt(t *testing.T) {
	if got := ChannelIDFromInt(42); got != ChannelID("42") {
		t.Errorf("Expected '42', got %q", got)
	}
}
