package model

import "testing"

func TestVideoStatusIsValid(t *testing.T) {
	valid := []VideoStatus{StatusPending, StatusDone, StatusSkipped}
	for _, vs := range valid {
		if !vs.IsValid() {
			t.Errorf("Expected %s to be valid", vs)
		}
	}

	invalid := []VideoStatus{"", "done", "Cancelled"}
	for _, vs := range invalid {
		if vs.IsValid() {
			t.Errorf("Expected %q to be invalid", vs)
		}
	}
}

func TestVideoStatusNeedsDownload(t *testing.T) {
	if !StatusPending.NeedsDownload() {
		t.Error("Expected Pending to need download")
	}
	if StatusDone.NeedsDownload() {
		t.Error("Expected Done to not need download")
	}
	if StatusSkipped.NeedsDownload() {
		t.Error("Expected Skipped to not need download")
	}
}
