// Command chplus-dl downloads VOD assets from Channel Plus style fan-club
// platforms: a single video by content code or URL, or a whole channel with
// a persisted catalog that survives interruptions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/chget/chplus-dl/internal/api"
	"github.com/chget/chplus-dl/internal/auth"
	"github.com/chget/chplus-dl/internal/channel"
	"github.com/chget/chplus-dl/internal/config"
	"github.com/chget/chplus-dl/internal/download"
	"github.com/chget/chplus-dl/internal/hls"
	"github.com/chget/chplus-dl/internal/model"
	"github.com/chget/chplus-dl/internal/platform"
	"github.com/chget/chplus-dl/internal/transcode"
)

const version = "1.0.0"

var (
	outputDir   = flag.String("o", "", "output directory")
	resolution  = flag.String("r", "1920x1080", "target resolution")
	continueAll = flag.Bool("c", false, "resume interrupted downloads without asking")
	private     = flag.Bool("p", false, "include private videos (channel only)")
	assumeYes   = flag.Bool("y", false, "skip all confirmations")
	doTranscode = flag.Bool("t", false, "transcode to mp4")
	vcodec      = flag.String("vcodec", "", "video codec for transcoding")
	acodec      = flag.String("acodec", "", "audio codec for transcoding")
	ffmpegPath  = flag.String("ffmpeg", "", "ffmpeg binary path")
	ffmpegOpts  = flag.String("ffmpeg-options", "", "extra ffmpeg options")
	workers     = flag.Int("w", 0, "parallel segment downloads")
	interactive = flag.Bool("select", false, "pick videos to download (channel only)")
	profilePath = flag.String("profile", "chplus-dl.yaml", "site profile file")
	verbose     = flag.Bool("verbose", false, "debug logging")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <channel URL | content code>\n\nFlags:\n", filepath.Base(os.Args[0]))
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println("chplus-dl " + version)
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	if err := run(flag.Arg(0)); err != nil {
		var authErr *auth.Error
		if errors.As(err, &authErr) {
			log.Fatalf("Authentication failed: %v", err)
		}
		log.Fatal(err)
	}
}

func run(input string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profile, err := config.LoadProfile(*profilePath)
	if err != nil {
		return err
	}
	applyFlagOverrides(profile)

	// Credentials come from the environment, optionally via an .env file
	_ = godotenv.Load()
	creds := auth.Credentials{
		Username: os.Getenv("CHPLUS_USERNAME"),
		Password: os.Getenv("CHPLUS_PASSWORD"),
	}
	if creds.Username == "" || creds.Password == "" {
		return fmt.Errorf("set CHPLUS_USERNAME and CHPLUS_PASSWORD (an .env file works too)")
	}

	target, err := model.ParseResolution(*resolution)
	if err != nil {
		log.Warn("Invalid resolution, downloading the highest available")
		target = model.Resolution{}
	}

	var transcoder *transcode.Service
	if *doTranscode {
		transcoder = transcode.NewService(profile.FFmpegPath, profile.VideoCodec, profile.AudioCodec, strings.Fields(*ffmpegOpts))
		if err := transcoder.Check(); err != nil {
			return err
		}
	}

	session := auth.NewSession(profile, creds, auth.NewFileTokenStore("."), nil)
	if err := session.Initialize(ctx); err != nil {
		return err
	}

	apiClient := api.NewClient(profile, &http.Client{
		Timeout:   30 * time.Second,
		Transport: &auth.Transport{Source: session},
	})
	resolver := hls.NewResolver(nil, rate.NewLimiter(rate.Every(profile.RequestDelay), 1))

	fetcher := download.NewService(resolver, apiClient, nil, profile.Workers)
	fetcher.SetUpdateCallback(newProgressPrinter().update)
	fetcher.SetTokenSource(session.Token)
	if transcoder != nil {
		fetcher.SetTranscoder(transcoder)
	}

	prompter := newConsolePrompter()

	channelID, err := apiClient.ResolveChannelID(ctx, input)
	if errors.Is(err, api.ErrChannelNotFound) {
		// Not a channel: treat the input as a single video
		return downloadVideo(ctx, apiClient, fetcher, prompter, profile, input, target)
	}
	if err != nil {
		return err
	}
	return downloadChannel(ctx, apiClient, fetcher, prompter, profile, channelID, target)
}

func downloadVideo(ctx context.Context, apiClient *api.Client, fetcher *download.Service, prompter *consolePrompter, profile *config.Profile, input string, target model.Resolution) error {
	code := contentCodeFromInput(input)
	stem, title, err := apiClient.VideoName(ctx, code, "")
	if err != nil {
		return err
	}

	output := filepath.Join(profile.OutputDir, stem)
	fresh := false
	if !*continueAll && !*assumeYes && download.HasResumeState(output+".ts") {
		fresh = !prompter.Confirm("Resume the interrupted download?", true)
	}

	log.Infof("Downloading %s", title)
	return fetcher.Download(ctx, download.Job{
		Code:      code,
		Title:     title,
		Output:    output,
		Target:    target,
		Fresh:     fresh,
		Transcode: *doTranscode,
	})
}

func downloadChannel(ctx context.Context, apiClient *api.Client, fetcher *download.Service, prompter *consolePrompter, profile *config.Profile, channelID model.ChannelID, target model.Resolution) error {
	name, err := apiClient.ChannelName(ctx, channelID)
	if err != nil {
		return err
	}
	log.Infof("Channel: %s", name)

	includePrivate := *private || *assumeYes
	if !includePrivate {
		includePrivate = prompter.Confirm("Download private videos as well?", false)
	}

	results, err := channel.NewOrchestrator(apiClient, fetcher, prompter).Run(ctx, channel.Options{
		ChannelID:      channelID,
		Dir:            filepath.Join(profile.OutputDir, platform.SanitizeFilename(name)),
		Target:         target,
		Transcode:      *doTranscode,
		IncludePrivate: includePrivate,
		AssumeYes:      *assumeYes,
		Interactive:    *interactive,
	})
	if err != nil {
		return err
	}

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d videos failed; rerun to retry them", failed, len(results))
	}
	log.Infof("Channel %s complete (%d videos downloaded)", name, len(results))
	return nil
}

func applyFlagOverrides(profile *config.Profile) {
	if *outputDir != "" {
		profile.OutputDir = *outputDir
	}
	if *workers > 0 {
		profile.Workers = *workers
		if profile.Workers > config.MaxWorkers {
			profile.Workers = config.MaxWorkers
		}
	}
	if *ffmpegPath != "" {
		profile.FFmpegPath = *ffmpegPath
	}
	if *vcodec != "" {
		profile.VideoCodec = *vcodec
	}
	if *acodec != "" {
		profile.AudioCodec = *acodec
	}
}

// contentCodeFromInput extracts the content code from a bare code or a
// video page URL.
func contentCodeFromInput(input string) model.ContentCode {
	input = strings.TrimSpace(input)
	parsed, err := url.Parse(input)
	if err != nil {
		return model.ContentCode(input)
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return model.ContentCode(input)
	}
	parts := strings.Split(path, "/")
	return model.ContentCode(parts[len(parts)-1])
}
