package replay

import (
	"strings"

	"github.com/loomworks/loom/internal/model"
)

// Compare classifies two runs of the same logical row. Digest equality is
// the verdict; the line diff explains a drift verdict line by line.
func Compare(left, right model.RunRecord) model.RunComparison {
	verdict := model.VerdictDrift
	if left.OutputDigest == right.OutputDigest {
		verdict = model.VerdictStable
	}
	return model.RunComparison{
		Verdict: verdict,
		Left:    left.Summary(),
		Right:   right.Summary(),
		Diff:    DiffLines(left.Trace.Text, right.Trace.Text),
	}
}

// DiffLines aligns two texts line by line over the longer line count.
// A line present only in the right text is "missing-left", and vice versa.
func DiffLines(left, right string) []model.DiffLine {
	l := splitLines(left)
	r := splitLines(right)

	n := len(l)
	if len(r) > n {
		n = len(r)
	}

	diff := make([]model.DiffLine, 0, n)
	for i := 0; i < n; i++ {
		var line model.DiffLine
		switch {
		case i >= len(l):
			line = model.DiffLine{Right: r[i], Kind: model.DiffMissingLeft}
		case i >= len(r):
			line = model.DiffLine{Left: l[i], Kind: model.DiffMissingRight}
		case l[i] == r[i]:
			line = model.DiffLine{Left: l[i], Right: r[i], Kind: model.DiffSame}
		default:
			line = model.DiffLine{Left: l[i], Right: r[i], Kind: model.DiffChanged}
		}
		diff = append(diff, line)
	}
	return diff
}

// splitLines splits on newlines; empty text has zero lines, not one.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
