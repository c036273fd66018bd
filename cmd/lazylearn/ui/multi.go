package ui

import (
	"io"
	"os"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// MultiProgress renders one bar per document for concurrent runs.
type MultiProgress struct {
	progress *mpb.Progress
}

// NewMultiProgress creates a multi-bar container. Bars are discarded when
// stdout is not a terminal.
func NewMultiProgress() *MultiProgress {
	var out io.Writer = os.Stderr
	if !IsTerminal() {
		out = io.Discard
	}
	return &MultiProgress{progress: mpb.New(mpb.WithWidth(40), mpb.WithOutput(out))}
}

// AddBar adds a bar named name with total steps.
func (m *MultiProgress) AddBar(name string, total int64) *DocumentBar {
	bar := m.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 8}),
		),
	)
	return &DocumentBar{bar: bar}
}

// Wait waits for every bar to complete or abort.
func (m *MultiProgress) Wait() {
	m.progress.Wait()
}

// DocumentBar tracks one document through the pipeline.
type DocumentBar struct {
	bar *mpb.Bar
}

// Increment advances the bar by one step.
func (b *DocumentBar) Increment() {
	b.bar.Increment()
}

// Complete fills the bar.
func (b *DocumentBar) Complete() {
	b.bar.SetTotal(-1, true)
}

// Abort stops the bar, leaving it on screen.
func (b *DocumentBar) Abort() {
	b.bar.Abort(false)
}
