// Package transcode converts concatenated transport streams into their
// final container by shelling out to ffmpeg. A failed or interrupted
// conversion is not resumable; the input stream is left untouched so the
// caller can retry or keep the raw file.
package transcode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	FFmpegCommand  = "ffmpeg"
	FFprobeCommand = "ffprobe"

	// CodecCopy remuxes a stream without re-encoding.
	CodecCopy = "copy"

	FFprobeLogLevel     = "error"
	FFprobeShowEntries  = "format=duration"
	FFprobeOutputFormat = "csv=p=0"

	ProgressPipeTarget  = "pipe:2"
	progressTimePrefix  = "out_time_us="
	progressClockPrefix = "out_time="

	TaskIDPrefix = "transcode-"
)

// Error reports a failed ffmpeg run. Detail carries the last line ffmpeg
// wrote before exiting, which is usually the actual complaint.
type Error struct {
	InputPath string
	Detail    string
	Err       error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("transcode %s: %v (%s)", e.InputPath, e.Err, e.Detail)
	}
	return fmt.Sprintf("transcode %s: %v", e.InputPath, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Service runs ffmpeg conversions with fixed codec settings.
type Service struct {
	ffmpegPath string
	videoCodec string
	audioCodec string
	extraArgs  []string
}

// NewService creates a transcode service. Empty codec values default to
// stream copy; ffmpegPath defaults to looking up ffmpeg on PATH.
func NewService(ffmpegPath, videoCodec, audioCodec string, extraArgs []string) *Service {
	if ffmpegPath == "" {
		ffmpegPath = FFmpegCommand
	}
	if videoCodec == "" {
		videoCodec = CodecCopy
	}
	if audioCodec == "" {
		audioCodec = CodecCopy
	}
	return &Service{
		ffmpegPath: ffmpegPath,
		videoCodec: videoCodec,
		audioCodec: audioCodec,
		extraArgs:  extraArgs,
	}
}

// Check verifies the ffmpeg and ffprobe binaries are reachable before any
// download work is started.
func (s *Service) Check() error {
	if _, err := exec.LookPath(s.ffmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found (install it or point -ffmpeg at the binary): %w", err)
	}
	if _, err := exec.LookPath(s.ffprobePath()); err != nil {
		return fmt.Errorf("ffprobe not found next to ffmpeg: %w", err)
	}
	return nil
}

// Run converts inputPath into outputPath, reporting fractional progress
// through onProgress. A partial output file is removed on failure.
func (s *Service) Run(ctx context.Context, inputPath, outputPath string, onProgress func(float64)) error {
	taskID := generateTaskID()
	logger := log.WithField("task", taskID)

	duration, err := s.Duration(inputPath)
	if err != nil {
		// Without a duration the run still works, just without fractions
		logger.Warnf("Could not probe duration of %s: %v", inputPath, err)
		duration = 0
	}

	args := s.BuildArgs(inputPath, outputPath)
	logger.Debugf("Running %s %s", s.ffmpegPath, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &Error{InputPath: inputPath, Err: fmt.Errorf("create stderr pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		return &Error{InputPath: inputPath, Err: fmt.Errorf("start ffmpeg: %w", err)}
	}

	lastLine := make(chan string, 1)
	go func() {
		lastLine <- monitorProgress(stderr, duration, onProgress)
	}()

	// The pipe must be drained before Wait
	detail := <-lastLine
	err = cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		os.Remove(outputPath)
		return ctxErr
	}
	if err != nil {
		os.Remove(outputPath)
		return &Error{InputPath: inputPath, Detail: detail, Err: err}
	}

	if onProgress != nil {
		onProgress(1)
	}
	return nil
}

// BuildArgs builds the ffmpeg argument list for one conversion.
func (s *Service) BuildArgs(inputPath, outputPath string) []string {
	args := []string{
		"-y",
		"-i", inputPath,
		"-c:v", s.videoCodec,
		"-c:a", s.audioCodec,
	}
	args = append(args, s.extraArgs...)
	args = append(args,
		"-progress", ProgressPipeTarget,
		"-nostats",
		outputPath,
	)
	return args
}

// Duration probes the input's duration in seconds using ffprobe.
func (s *Service) Duration(inputPath string) (float64, error) {
	cmd := exec.Command(s.ffprobePath(),
		"-v", FFprobeLogLevel,
		"-show_entries", FFprobeShowEntries,
		"-of", FFprobeOutputFormat,
		inputPath)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("run ffprobe: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

// ffprobePath locates ffprobe next to a custom ffmpeg binary, or on PATH
// when ffmpeg itself comes from PATH.
func (s *Service) ffprobePath() string {
	dir := filepath.Dir(s.ffmpegPath)
	if dir == "." {
		return FFprobeCommand
	}
	return filepath.Join(dir, FFprobeCommand)
}

// monitorProgress reads ffmpeg's -progress output until EOF, emitting
// fractions against totalDuration. It returns the last non-empty line for
// error reporting.
func monitorProgress(r io.Reader, totalDuration float64, onProgress func(float64)) string {
	scanner := bufio.NewScanner(r)
	var lastLine string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lastLine = line
		}

		seconds, ok := parseOutTime(line)
		if !ok || totalDuration <= 0 || onProgress == nil {
			continue
		}
		fraction := seconds / totalDuration
		if fraction > 1 {
			fraction = 1
		}
		onProgress(fraction)
	}
	return lastLine
}

// parseOutTime extracts elapsed seconds from an ffmpeg progress line, in
// either the microsecond or the clock format.
func parseOutTime(line string) (float64, bool) {
	if rest, ok := strings.CutPrefix(line, progressTimePrefix); ok {
		micros, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return 0, false
		}
		return float64(micros) / 1e6, true
	}

	if rest, ok := strings.CutPrefix(line, progressClockPrefix); ok {
		parts := strings.Split(rest, ":")
		if len(parts) != 3 {
			return 0, false
		}
		hours, err1 := strconv.ParseFloat(parts[0], 64)
		minutes, err2 := strconv.ParseFloat(parts[1], 64)
		seconds, err3 := strconv.ParseFloat(parts[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return 0, false
		}
		return hours*3600 + minutes*60 + seconds, true
	}

	return 0, false
}

// generateTaskID returns a time-ordered id for log correlation.
func generateTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf(TaskIDPrefix+"%d", time.Now().UnixNano())
	}
	return TaskIDPrefix + id.String()
}
