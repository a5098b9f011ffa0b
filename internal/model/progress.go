package model

// Stage identifies which step of a video download a progress update
// refers to.
type Stage string

const (
	StageResolving     Stage = "Resolving"
	StageDownloading   Stage = "Downloading"
	StageConcatenating Stage = "Concatenating"
	StageTranscoding   Stage = "Transcoding"
	StageCleanup       Stage = "Cleanup"
	StageDone          Stage = "Done"
)

// Progress is one progress update for a single video. Fraction is in
// [0.0, 1.0] within the current stage.
type Progress struct {
	Code     ContentCode
	Title    string
	Stage    Stage
	Fraction float64
}

// VideoResult reports the outcome of one video at the end of a batch.
type VideoResult struct {
	Code  ContentCode
	Title string
	Err   error
}
