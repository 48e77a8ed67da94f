// Package render draws projected views onto an output surface.
package render

import (
	"github.com/straja-ai/desens/internal/present"
)

// Sink is a rendering surface. Each call replaces the corresponding display
// region; Error never clears previously rendered output.
type Sink interface {
	Result(present.ResultView) error
	FileDetails(string) error
	Report(present.ReportView, present.ReportDocument) error
	Error(error) error
}

// Discard drops everything.
type Discard struct{}

func (Discard) Result(present.ResultView) error                         { return nil }
func (Discard) FileDetails(string) error                                { return nil }
func (Discard) Report(present.ReportView, present.ReportDocument) error { return nil }
func (Discard) Error(error) error                                       { return nil }
