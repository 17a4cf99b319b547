package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	progressPrefix = "snatch-progress|"
	infoPrefix     = "snatch-info "

	progressTemplate = "download:" + progressPrefix +
		"%(progress.status)s|%(progress.downloaded_bytes)s|%(progress.total_bytes)s|" +
		"%(progress.total_bytes_estimate)s|%(progress._percent_str)s|%(progress._speed_str)s|%(progress._eta_str)s"

	infoTemplate = "after_move:" + infoPrefix + "%(.{title,uploader,channel,duration,filepath,_filename})j"
)

// YtDlp runs the yt-dlp binary
type YtDlp struct {
	binaryPath string
	runner     CommandRunner
	// Timeout bounds one extraction; 0 means no limit beyond ctx.
	Timeout time.Duration

	stat func(string) (os.FileInfo, error)
}

// NewYtDlp creates an extractor for the given binary. An empty path uses a
// yt-dlp.exe next to the working directory when present, else yt-dlp from PATH.
func NewYtDlp(binaryPath string) *YtDlp {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
		if _, err := os.Stat("yt-dlp.exe"); err == nil {
			binaryPath = "." + string(filepath.Separator) + "yt-dlp.exe"
		}
	}
	return &YtDlp{
		binaryPath: binaryPath,
		runner:     &SystemCommandRunner{},
		stat:       os.Stat,
	}
}

// NewYtDlpWithRunner creates an extractor with a custom command runner
func NewYtDlpWithRunner(binaryPath string, runner CommandRunner) *YtDlp {
	y := NewYtDlp(binaryPath)
	y.runner = runner
	return y
}

// BinaryPath returns the executable that will be run
func (y *YtDlp) BinaryPath() string {
	return y.binaryPath
}

// CookiesActive reports whether opts would send a cookie file
func (y *YtDlp) CookiesActive(opts Options) bool {
	if opts.CookieFile == "" {
		return false
	}
	_, err := y.stat(opts.CookieFile)
	return err == nil
}

// Command builds the full command line for url
func (y *YtDlp) Command(url string, opts Options) []string {
	args := []string{
		y.binaryPath,
		"--newline",
		"--progress",
		"--no-warnings",
		"--no-playlist",
		"--color", "never",
		"--progress-template", progressTemplate,
		"--print", infoTemplate,
	}

	if opts.OutputTemplate != "" {
		args = append(args, "-o", opts.OutputTemplate)
	}
	if opts.Format != "" {
		args = append(args, "-f", opts.Format)
	}
	if opts.MergeFormat != "" {
		args = append(args, "--merge-output-format", opts.MergeFormat)
	}
	if opts.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(opts.SocketTimeout/time.Second)))
	}
	if opts.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(opts.Retries))
	}
	if y.CookiesActive(opts) {
		args = append(args, "--cookies", opts.CookieFile)
	}

	return append(args, "--", url)
}

// Extract downloads url, reporting progress as yt-dlp prints it
func (y *YtDlp) Extract(ctx context.Context, url string, opts Options, progress ProgressFunc) (*Result, error) {
	if y.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.Timeout)
		defer cancel()
	}

	var info *mediaInfo
	var parseErr error
	onLine := func(line string) {
		switch {
		case strings.HasPrefix(line, progressPrefix):
			if p, ok := parseProgressLine(line); ok && progress != nil {
				progress(p)
			}
		case strings.HasPrefix(line, infoPrefix):
			var mi mediaInfo
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, infoPrefix)), &mi); err != nil {
				parseErr = fmt.Errorf("failed to parse media info: %w", err)
				return
			}
			info = &mi
		}
	}

	output, err := y.runner.RunWithOutputAndContext(ctx, y.Command(url, opts), onLine)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w", err)
	}
	if output.ExitCode != 0 {
		return nil, &ExitError{ExitCode: output.ExitCode, Stderr: output.Stderr}
	}
	if info == nil {
		if parseErr != nil {
			return nil, parseErr
		}
		return &Result{}, nil
	}

	return y.result(info, opts), nil
}

type mediaInfo struct {
	Title    string   `json:"title"`
	Uploader string   `json:"uploader"`
	Channel  string   `json:"channel"`
	Duration *float64 `json:"duration"`
	Filepath string   `json:"filepath"`
	Filename string   `json:"_filename"`
}

func (y *YtDlp) result(info *mediaInfo, opts Options) *Result {
	r := &Result{
		Title:   info.Title,
		Channel: info.Uploader,
	}
	if r.Channel == "" {
		r.Channel = info.Channel
	}
	if info.Duration != nil && *info.Duration >= 0 {
		r.Duration = time.Duration(*info.Duration * float64(time.Second))
		r.HasDuration = true
	}

	path := info.Filepath
	if path == "" {
		path = info.Filename
	}
	r.FinalPath = y.preferMerged(path, opts.MergeFormat)

	return r
}

// preferMerged swaps the extension for the merge container when the merger
// produced a sibling file with that extension.
func (y *YtDlp) preferMerged(path, mergeFormat string) string {
	if path == "" || mergeFormat == "" {
		return path
	}
	ext := filepath.Ext(path)
	if strings.EqualFold(ext, "."+mergeFormat) {
		return path
	}
	merged := strings.TrimSuffix(path, ext) + "." + mergeFormat
	if _, err := y.stat(merged); err == nil {
		return merged
	}
	return path
}

func parseProgressLine(line string) (Progress, bool) {
	fields := strings.Split(strings.TrimPrefix(line, progressPrefix), "|")
	if len(fields) != 7 {
		return Progress{}, false
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	p := Progress{
		Status:     fields[0],
		Downloaded: parseBytes(fields[1]),
		Total:      parseBytes(fields[2]),
		Percent:    naToEmpty(fields[4]),
		Speed:      naToEmpty(fields[5]),
		ETA:        naToEmpty(fields[6]),
	}
	if p.Total == 0 {
		p.Total = parseBytes(fields[3])
	}
	return p, true
}

func parseBytes(s string) int64 {
	if s == "" || s == "NA" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func naToEmpty(s string) string {
	if s == "NA" || s == "N/A" || s == "Unknown" {
		return ""
	}
	return s
}
