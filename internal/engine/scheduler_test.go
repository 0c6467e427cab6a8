package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/model"
)

// countingRenderer renders instantly and tags the trace with the system
// node's content so tests can tell requests apart.
type countingRenderer struct {
	calls atomic.Int32
}

func (r *countingRenderer) Render(_ context.Context, in RenderInput) (model.TraceRun, error) {
	r.calls.Add(1)
	text := ""
	if len(in.Nodes) > 0 {
		text = in.Nodes[0].Content
	}
	return model.TraceRun{Text: text}, nil
}

// blockFirstRenderer blocks its first call until the context is cancelled;
// later calls render instantly.
type blockFirstRenderer struct {
	countingRenderer
	started chan struct{}
}

func (r *blockFirstRenderer) Render(ctx context.Context, in RenderInput) (model.TraceRun, error) {
	if r.calls.Add(1) == 1 {
		close(r.started)
		<-ctx.Done()
		return model.TraceRun{}, ctx.Err()
	}
	text := ""
	if len(in.Nodes) > 0 {
		text = in.Nodes[0].Content
	}
	return model.TraceRun{Text: text}, nil
}

func inputNamed(name string) RenderInput {
	return RenderInput{Nodes: []model.Node{{ID: "n1", Label: "S", Kind: model.NodeKindText, Content: name}}}
}

func await(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return Outcome{}
	}
}

func TestSchedulerDeliversResult(t *testing.T) {
	r := &countingRenderer{}
	s := NewScheduler(r, 10*time.Millisecond, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	out := await(t, s.Schedule(inputNamed("only")))
	require.NoError(t, out.Err)
	assert.Equal(t, "only", out.Trace.Text)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestSchedulerBurstCollapsesToLatest(t *testing.T) {
	r := &countingRenderer{}
	s := NewScheduler(r, 50*time.Millisecond, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	chans := make([]<-chan Outcome, 0, 5)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		chans = append(chans, s.Schedule(inputNamed(name)))
	}

	for _, ch := range chans[:4] {
		out := await(t, ch)
		assert.ErrorIs(t, out.Err, ErrSuperseded)
	}
	out := await(t, chans[4])
	require.NoError(t, out.Err)
	assert.Equal(t, "e", out.Trace.Text)
	assert.Equal(t, int32(1), r.calls.Load(), "burst must collapse into one render")
}

func TestSchedulerCancelsInflightRender(t *testing.T) {
	r := &blockFirstRenderer{started: make(chan struct{})}
	s := NewScheduler(r, 5*time.Millisecond, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	first := s.Schedule(inputNamed("stale"))
	select {
	case <-r.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first render never started")
	}

	second := s.Schedule(inputNamed("fresh"))

	out := await(t, first)
	assert.ErrorIs(t, out.Err, ErrSuperseded)

	out = await(t, second)
	require.NoError(t, out.Err)
	assert.Equal(t, "fresh", out.Trace.Text)
}

// failingRenderer always returns its error.
type failingRenderer struct{ err error }

func (r *failingRenderer) Render(context.Context, RenderInput) (model.TraceRun, error) {
	return model.TraceRun{}, r.err
}

func TestSchedulerDeliversRenderError(t *testing.T) {
	want := errors.New("boom")
	s := NewScheduler(&failingRenderer{err: want}, 10*time.Millisecond, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	out := await(t, s.Schedule(inputNamed("x")))
	assert.ErrorIs(t, out.Err, want)
	assert.False(t, errors.Is(out.Err, ErrSuperseded))
}

func TestSchedulerStopFailsPending(t *testing.T) {
	r := &countingRenderer{}
	s := NewScheduler(r, 10*time.Second, nil) // window longer than the test
	s.Start(context.Background())

	ch := s.Schedule(inputNamed("never"))
	s.Stop(context.Background())

	out := await(t, ch)
	require.Error(t, out.Err)
	assert.False(t, errors.Is(out.Err, ErrSuperseded))
	assert.Equal(t, int32(0), r.calls.Load())
}
