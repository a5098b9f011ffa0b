package model

// VideoStatus represents the catalog status of one video in a channel job.
type VideoStatus string

const (
	// StatusPending means the video is queued for download.
	StatusPending VideoStatus = "Pending"

	// StatusDone means the video was downloaded successfully.
	StatusDone VideoStatus = "Done"

	// StatusSkipped means the user deselected the video; it is excluded
	// from the run without counting as a failure.
	StatusSkipped VideoStatus = "Skipped"
)

// String returns the string representation of VideoStatus.
func (vs VideoStatus) String() string {
	return string(vs)
}

// IsValid reports whether the value is one of the known statuses.
func (vs VideoStatus) IsValid() bool {
	return vs == StatusPending || vs == StatusDone || vs == StatusSkipped
}

// NeedsDownload reports whether the orchestrator should process the video.
func (vs VideoStatus) NeedsDownload() bool {
	return vs == StatusPending
}

// VideoEntry is one video row in a channel catalog.
type VideoEntry struct {
	Code   ContentCode `json:"id"`
	Title  string      `json:"title"`
	Status VideoStatus `json:"status"`
}
