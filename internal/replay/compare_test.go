package replay

import (
	"reflect"
	"testing"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/trace"
)

func record(text string) model.RunRecord {
	return model.RunRecord{
		RunID:        "r-" + trace.Digest(text)[:8],
		OutputDigest: trace.Digest(text),
		Trace:        model.TraceRun{Text: text},
	}
}

func TestCompareStable(t *testing.T) {
	got := Compare(record("same\ntext"), record("same\ntext"))
	if got.Verdict != model.VerdictStable {
		t.Fatalf("verdict %q", got.Verdict)
	}
	for _, d := range got.Diff {
		if d.Kind != model.DiffSame {
			t.Fatalf("stable comparison must diff as same, got %q", d.Kind)
		}
	}
}

func TestCompareDrift(t *testing.T) {
	got := Compare(record("line one\nline two"), record("line one\nline 2"))
	if got.Verdict != model.VerdictDrift {
		t.Fatalf("verdict %q", got.Verdict)
	}
	want := []model.DiffLine{
		{Left: "line one", Right: "line one", Kind: model.DiffSame},
		{Left: "line two", Right: "line 2", Kind: model.DiffChanged},
	}
	if !reflect.DeepEqual(got.Diff, want) {
		t.Fatalf("diff mismatch:\n got %+v\nwant %+v", got.Diff, want)
	}
}

func TestDiffLinesMissingSides(t *testing.T) {
	got := DiffLines("a\nb\nc", "a")
	want := []model.DiffLine{
		{Left: "a", Right: "a", Kind: model.DiffSame},
		{Left: "b", Kind: model.DiffMissingRight},
		{Left: "c", Kind: model.DiffMissingRight},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v", got)
	}

	got = DiffLines("a", "a\nb")
	want = []model.DiffLine{
		{Left: "a", Right: "a", Kind: model.DiffSame},
		{Right: "b", Kind: model.DiffMissingLeft},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v", got)
	}
}

func TestDiffLinesEmptyTexts(t *testing.T) {
	if got := DiffLines("", ""); len(got) != 0 {
		t.Fatalf("two empty texts must produce an empty diff, got %+v", got)
	}
	got := DiffLines("", "only right")
	if len(got) != 1 || got[0].Kind != model.DiffMissingLeft {
		t.Fatalf("got %+v", got)
	}
}

func TestCompareSummariesCarried(t *testing.T) {
	l, r := record("x"), record("y")
	got := Compare(l, r)
	if got.Left.RunID != l.RunID || got.Right.RunID != r.RunID {
		t.Fatal("comparison must carry both run summaries")
	}
}
