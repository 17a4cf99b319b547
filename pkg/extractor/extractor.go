// Package extractor downloads media by delegating to an external extractor.
package extractor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status values reported through ProgressFunc
const (
	StatusDownloading = "downloading"
	StatusFinished    = "finished"
	StatusError       = "error"
)

// Progress is one progress report from the extractor
type Progress struct {
	Status     string
	Downloaded int64
	// Total is zero when the size is unknown.
	Total   int64
	Percent string
	Speed   string
	ETA     string
}

// Fraction returns the completed share in [0, 1]. ok is false when neither
// a total size nor a percentage is known.
func (p Progress) Fraction() (fraction float64, ok bool) {
	switch {
	case p.Total > 0:
		fraction = float64(p.Downloaded) / float64(p.Total)
	case p.Percent != "":
		pct, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p.Percent), "%")), 64)
		if err != nil {
			return 0, false
		}
		fraction = pct / 100
	default:
		return 0, false
	}

	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return fraction, true
}

// ProgressFunc receives progress reports. It is called on the extracting
// goroutine.
type ProgressFunc func(Progress)

// Options controls one extraction
type Options struct {
	// OutputTemplate is the extractor's output path template.
	OutputTemplate string
	Format         string
	MergeFormat    string
	// CookieFile is used when non-empty and present on disk.
	CookieFile    string
	SocketTimeout time.Duration
	Retries       int
}

// DefaultFormat prefers H.264 video with AAC audio so the result plays everywhere
const DefaultFormat = "bestvideo[vcodec^=avc1]+bestaudio[ext=m4a]/bestvideo+bestaudio/best[ext=mp4]/best"

// DefaultOptions returns the stock options for a download directory
func DefaultOptions(downloadDir string) Options {
	return Options{
		OutputTemplate: downloadDir + "/%(title)s.%(ext)s",
		Format:         DefaultFormat,
		MergeFormat:    "mp4",
		SocketTimeout:  30 * time.Second,
		Retries:        3,
	}
}

// Result describes a finished download
type Result struct {
	FinalPath string
	Title     string
	Channel   string
	// Duration is zero when HasDuration is false.
	Duration    time.Duration
	HasDuration bool
}

// Extractor downloads a single URL
type Extractor interface {
	Extract(ctx context.Context, url string, opts Options, progress ProgressFunc) (*Result, error)
}

// ExitError is returned when the extractor process fails
type ExitError struct {
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	var lines []string
	for _, line := range strings.Split(e.Stderr, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "ERROR:") {
			lines = append(lines, line)
		}
	}
	if len(lines) > 0 {
		return strings.Join(lines, "\n")
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		return s
	}
	return fmt.Sprintf("extractor exited with code %d", e.ExitCode)
}
