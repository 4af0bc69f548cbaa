package cli

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// ProgressIndicator provides visual feedback during long-running operations
type ProgressIndicator struct {
	bar *progressbar.ProgressBar
}

// NewProgressIndicator creates a bar for total steps. Nothing is drawn
// unless w is a terminal.
func NewProgressIndicator(w io.Writer, total int, message string) *ProgressIndicator {
	return &ProgressIndicator{bar: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetVisibility(IsTerminal(w)),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]"+message+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionClearOnFinish(),
	)}
}

// NewSpinner creates an indeterminate indicator for calls of unknown length
func NewSpinner(w io.Writer, message string) *ProgressIndicator {
	return &ProgressIndicator{bar: progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetVisibility(IsTerminal(w)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetDescription(message),
		progressbar.OptionClearOnFinish(),
	)}
}

// Increment advances the bar by one step
func (p *ProgressIndicator) Increment() {
	_ = p.bar.Add(1)
}

// SetMessage updates the description shown next to the bar
func (p *ProgressIndicator) SetMessage(message string) {
	p.bar.Describe(message)
}

// Complete finishes the bar and clears it from the terminal
func (p *ProgressIndicator) Complete() {
	_ = p.bar.Finish()
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w interface{}) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
