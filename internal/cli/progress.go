// Package cli provides terminal output helpers: progress display for bulk
// module operations, colored result lines, and shell completion.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Color codes for terminal output
const (
	ColorReset = "\033[0m"
	ColorGreen = "\033[32m"
	ColorCyan  = "\033[36m"
)

// ProgressBar tracks a bulk operation across a fixed number of modules.
type ProgressBar struct {
	total     int
	current   int
	width     int
	prefix    string
	mu        sync.Mutex
	writer    io.Writer
	startTime time.Time
	colorize  bool
}

// NewProgressBar creates a progress bar sized to a module count.
func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{
		total:     total,
		width:     40,
		prefix:    prefix,
		writer:    os.Stderr,
		startTime: time.Now(),
		colorize:  isTerminal(),
	}
}

// SetWriter sets the output writer.
func (pb *ProgressBar) SetWriter(w io.Writer) *ProgressBar {
	pb.writer = w
	return pb
}

// DisableColor disables colored output.
func (pb *ProgressBar) DisableColor() *ProgressBar {
	pb.colorize = false
	return pb
}

// Increment advances the bar by one completed module.
func (pb *ProgressBar) Increment() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.current < pb.total {
		pb.current++
	}
	pb.render()
}

// Finish completes the bar and terminates its line.
func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.writer)
}

func (pb *ProgressBar) render() {
	if pb.total == 0 {
		return
	}
	percent := float64(pb.current) / float64(pb.total)
	filled := int(float64(pb.width) * percent)

	bar := strings.Repeat("=", filled) + strings.Repeat("-", pb.width-filled)
	if pb.colorize {
		if percent < 1.0 {
			bar = ColorCyan + bar + ColorReset
		} else {
			bar = ColorGreen + bar + ColorReset
		}
	}

	fmt.Fprintf(pb.writer, "\r%s [%s] %d/%d", pb.prefix, bar, pb.current, pb.total)
	if pb.current > 0 {
		fmt.Fprintf(pb.writer, " (%s)", time.Since(pb.startTime).Round(time.Second))
	}
}

// isTerminal reports whether stdout is attached to a terminal.
func isTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
