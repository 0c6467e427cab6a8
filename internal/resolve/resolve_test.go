package resolve

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/model"
)

// fakeCapability returns a canned value or error.
type fakeCapability struct {
	scheme string
	value  string
	err    error
	delay  time.Duration
}

func (f *fakeCapability) Scheme() string { return f.scheme }

func (f *fakeCapability) Resolve(ctx context.Context, target, probe string) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.value, f.err
}

func newTestResolver(t *testing.T, fallback bool, caps ...Capability) *Resolver {
	t.Helper()
	return NewResolver(NewRegistry(caps...), Config{OfflineFallback: fallback}, nil)
}

func messageByCode(msgs []model.Message, code string) (model.Message, bool) {
	for _, m := range msgs {
		if m.Code == code {
			return m, true
		}
	}
	return model.Message{}, false
}

func TestResolveStaticPassthrough(t *testing.T) {
	r := newTestResolver(t, true)
	res, err := r.Resolve(context.Background(), []model.Variable{
		{Name: "greeting", Type: model.VarTypeStatic, Value: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Values["greeting"])

	m, ok := messageByCode(res.Messages, model.CodeVariableStatic)
	require.True(t, ok)
	assert.Equal(t, model.SeverityInfo, m.Severity)
}

func TestResolveDynamicSuccess(t *testing.T) {
	r := newTestResolver(t, true, &fakeCapability{scheme: "chat", value: "[User]: hi"})
	res, err := r.Resolve(context.Background(), []model.Variable{
		{Name: "history", Type: model.VarTypeDynamic, Value: "20", Resolver: "chat://s1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "[User]: hi", res.Values["history"])

	m, ok := messageByCode(res.Messages, model.CodeVariableResolved)
	require.True(t, ok)
	assert.Equal(t, model.SeverityInfo, m.Severity)
	assert.Equal(t, "history", m.Details["name"])
	assert.Equal(t, len("[User]: hi"), m.Details["valueBytes"])
	assert.Equal(t, false, m.Details["truncated"])
	assert.Contains(t, m.Details, "durationMs")
}

func TestResolveMissingResolver(t *testing.T) {
	r := newTestResolver(t, true)
	res, err := r.Resolve(context.Background(), []model.Variable{
		{Name: "orphan", Type: model.VarTypeDynamic, Value: "x"},
	})
	require.NoError(t, err)

	m, ok := messageByCode(res.Messages, model.CodeVariableResolveFailed)
	require.True(t, ok)
	assert.Equal(t, model.SeverityWarn, m.Severity)
	assert.Equal(t, model.ErrCodeResolverMissing, m.Details["errorCode"])

	// A taxonomy failure leaves the variable unbound, so the renderer keeps
	// the placeholder and counts it missing. No local fallback applies.
	_, bound := res.Values["orphan"]
	assert.False(t, bound)
	_, ok = messageByCode(res.Messages, model.CodeLocalFallback)
	assert.False(t, ok)
}

func TestResolveUnknownScheme(t *testing.T) {
	r := newTestResolver(t, true)
	res, err := r.Resolve(context.Background(), []model.Variable{
		{Name: "v", Type: model.VarTypeDynamic, Value: "x", Resolver: "gopher://whatever"},
	})
	require.NoError(t, err)

	m, ok := messageByCode(res.Messages, model.CodeVariableResolveFailed)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeUnsupportedScheme, m.Details["errorCode"])
}

func TestResolveMalformedResolverURI(t *testing.T) {
	r := newTestResolver(t, true)
	res, err := r.Resolve(context.Background(), []model.Variable{
		{Name: "v", Type: model.VarTypeDynamic, Value: "x", Resolver: "no-scheme-here"},
	})
	require.NoError(t, err)

	m, ok := messageByCode(res.Messages, model.CodeVariableResolveFailed)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeInvalidURL, m.Details["errorCode"])
}

func TestResolveTransportFailureFallsBack(t *testing.T) {
	r := newTestResolver(t, true, &fakeCapability{scheme: "db", err: Errf(model.ErrCodeConnectFailed, "refused")})
	res, err := r.Resolve(context.Background(), []model.Variable{
		{Name: "rows", Type: model.VarTypeDynamic, Value: "q", Resolver: "db://ds1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "[rows]", res.Values["rows"])
	m, ok := messageByCode(res.Messages, model.CodeLocalFallback)
	require.True(t, ok)
	assert.Equal(t, model.SeverityWarn, m.Severity)
}

func TestResolveTaxonomyFailureStaysUnboundWithFallbackOn(t *testing.T) {
	r := newTestResolver(t, true)
	res, err := r.Resolve(context.Background(), []model.Variable{
		{Name: "x", Type: model.VarTypeDynamic, Value: "q", Resolver: "nosuch://id"},
	})
	require.NoError(t, err)

	_, bound := res.Values["x"]
	assert.False(t, bound)
	m, ok := messageByCode(res.Messages, model.CodeVariableResolveFailed)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeUnsupportedScheme, m.Details["errorCode"])
	_, ok = messageByCode(res.Messages, model.CodeLocalFallback)
	assert.False(t, ok)
}

func TestResolveFallbackDisabledLeavesVariableUnbound(t *testing.T) {
	r := newTestResolver(t, false, &fakeCapability{scheme: "db", err: Errf(model.ErrCodeConnectFailed, "refused")})
	res, err := r.Resolve(context.Background(), []model.Variable{
		{Name: "rows", Type: model.VarTypeDynamic, Value: "q", Resolver: "db://ds1"},
	})
	require.NoError(t, err)

	_, bound := res.Values["rows"]
	assert.False(t, bound)
	_, ok := messageByCode(res.Messages, model.CodeLocalFallback)
	assert.False(t, ok)
	_, ok = messageByCode(res.Messages, model.CodeVariableResolveFailed)
	assert.True(t, ok)
}

func TestResolveOneFailureDoesNotAffectOthers(t *testing.T) {
	r := newTestResolver(t, true,
		&fakeCapability{scheme: "good", value: "ok"},
		&fakeCapability{scheme: "bad", err: Errf(model.ErrCodeConnectFailed, "boom")},
	)
	res, err := r.Resolve(context.Background(), []model.Variable{
		{Name: "a", Type: model.VarTypeDynamic, Value: "q", Resolver: "good://t"},
		{Name: "b", Type: model.VarTypeDynamic, Value: "q", Resolver: "bad://t"},
		{Name: "c", Type: model.VarTypeStatic, Value: "lit"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Values["a"])
	assert.Equal(t, "[b]", res.Values["b"])
	assert.Equal(t, "lit", res.Values["c"])
}

func TestResolveClampsOnRuneBoundary(t *testing.T) {
	// 3-byte runes that do not divide the byte limit evenly.
	long := strings.Repeat("世", MaxValueBytes/3+10)
	r := newTestResolver(t, true, &fakeCapability{scheme: "big", value: long})

	res, err := r.Resolve(context.Background(), []model.Variable{
		{Name: "v", Type: model.VarTypeDynamic, Value: "q", Resolver: "big://t"},
	})
	require.NoError(t, err)

	got := res.Values["v"]
	assert.LessOrEqual(t, len(got), MaxValueBytes)
	assert.True(t, strings.HasSuffix(got, "世"), "clamp must not split a rune")

	m, ok := messageByCode(res.Messages, model.CodeVariableResolved)
	require.True(t, ok)
	assert.Equal(t, true, m.Details["truncated"])
	assert.Equal(t, len(got), m.Details["valueBytes"])
}

func TestResolveTimeoutClassifiesAsConnectFailed(t *testing.T) {
	slow := &fakeCapability{scheme: "slow", value: "late", delay: time.Second}
	r := NewResolver(NewRegistry(slow), Config{Timeout: 10 * time.Millisecond, OfflineFallback: true}, nil)

	res, err := r.Resolve(context.Background(), []model.Variable{
		{Name: "v", Type: model.VarTypeDynamic, Value: "q", Resolver: "slow://t"},
	})
	require.NoError(t, err)

	m, ok := messageByCode(res.Messages, model.CodeVariableResolveFailed)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeConnectFailed, m.Details["errorCode"])
}

func TestResolveMessagesInInputOrder(t *testing.T) {
	r := newTestResolver(t, true, &fakeCapability{scheme: "s", value: "v"})
	res, err := r.Resolve(context.Background(), []model.Variable{
		{Name: "z", Type: model.VarTypeStatic, Value: "1"},
		{Name: "a", Type: model.VarTypeDynamic, Value: "q", Resolver: "s://t"},
		{Name: "m", Type: model.VarTypeStatic, Value: "2"},
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Messages), 3)
	assert.Equal(t, "z", res.Messages[0].Details["name"])
	assert.Equal(t, "a", res.Messages[1].Details["name"])
	assert.Equal(t, "m", res.Messages[2].Details["name"])
}

func TestDisabledCapability(t *testing.T) {
	r := newTestResolver(t, true, Disabled("neo4j"))
	res, err := r.Resolve(context.Background(), []model.Variable{
		{Name: "v", Type: model.VarTypeDynamic, Value: "q", Resolver: "neo4j://ds1"},
	})
	require.NoError(t, err)

	m, ok := messageByCode(res.Messages, model.CodeVariableResolveFailed)
	require.True(t, ok)
	assert.Equal(t, model.ErrCodeFeatureNotEnabled, m.Details["errorCode"])
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, model.ErrCodeReadonlyRequired, CodeOf(Errf(model.ErrCodeReadonlyRequired, "nope")))
	assert.Equal(t, model.ErrCodeConnectFailed, CodeOf(context.DeadlineExceeded))
	assert.Equal(t, model.ErrCodeUnknown, CodeOf(assert.AnError))
}

func TestClampValueShortStringsUntouched(t *testing.T) {
	got, truncated := clampValue("short", MaxValueBytes)
	assert.Equal(t, "short", got)
	assert.False(t, truncated)
}
