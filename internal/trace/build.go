// Package trace assembles rendered segments into a TraceRun and provides
// the stable content digest used for run comparison.
package trace

import (
	"strings"
	"time"

	"github.com/loomworks/loom/internal/model"
)

// Build joins rendered segments into the final trace text, in the order
// given (the orderer's output order), and aggregates per-segment messages
// with any pipeline-level messages.
//
// The labeled style wraps each segment body as "--- label ---\nbody";
// plain joins bodies untouched. Segments are separated by one blank line
// and the whole text is trimmed.
func Build(runID string, createdAt time.Time, style model.OutputStyle, segments []model.Segment, pipeline []model.Message) model.TraceRun {
	if !style.Valid() {
		style = model.OutputStyleLabeled
	}

	styled := make([]model.Segment, len(segments))
	parts := make([]string, len(segments))
	for i, seg := range segments {
		rendered := seg.Rendered
		if style == model.OutputStyleLabeled {
			rendered = "--- " + seg.Label + " ---\n" + seg.Rendered
		}
		seg.Rendered = rendered
		styled[i] = seg
		parts[i] = rendered
	}

	// Pipeline-level messages first, then each segment's own diagnostics in
	// segment order. Segments keep their copies so per-node context survives.
	messages := make([]model.Message, 0, len(pipeline))
	messages = append(messages, pipeline...)
	for _, seg := range styled {
		messages = append(messages, seg.Messages...)
	}

	return model.TraceRun{
		RunID:       runID,
		CreatedAt:   createdAt,
		OutputStyle: style,
		Text:        strings.TrimSpace(strings.Join(parts, "\n\n")),
		Segments:    styled,
		Messages:    messages,
	}
}
