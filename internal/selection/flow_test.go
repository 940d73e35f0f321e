package selection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmfield/internal/auth"
	"farmfield/internal/fields"
	"farmfield/internal/geo"
)

// scriptedPrompter answers with queued choices, then with a fixed one, and
// records what it was shown.
type scriptedPrompter struct {
	choices []string
	choice  string
	err     error
	onAsk   func()
	asked   int
	offered []fields.Summary
}

func (p *scriptedPrompter) Choose(ctx context.Context, options []fields.Summary) (string, error) {
	p.asked++
	p.offered = options
	if p.onAsk != nil {
		p.onAsk()
	}
	if len(p.choices) > 0 {
		next := p.choices[0]
		p.choices = p.choices[1:]
		return next, p.err
	}
	return p.choice, p.err
}

// fakeSource serves fixed results and counts boundary fetches.
type fakeSource struct {
	mu        sync.Mutex
	summaries []fields.Summary
	listErr   error
	boundary  *fields.Boundary
	byID      map[string]*fields.Boundary
	fetchErr  error
	fetches   int
	onFetch   func(ctx context.Context)
}

func (f *fakeSource) ListAvailableFields(ctx context.Context, source fields.Source) ([]fields.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.summaries, f.listErr
}

func (f *fakeSource) FetchBoundary(ctx context.Context, source fields.Source, fieldID string) (*fields.Boundary, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.onFetch != nil {
		f.onFetch(ctx)
	}
	if b, ok := f.byID[fieldID]; ok {
		return b, f.fetchErr
	}
	return f.boundary, f.fetchErr
}

var squareRing = []geo.LatLon{
	{Lat: 45.000, Lon: 7.000},
	{Lat: 45.000, Lon: 7.001},
	{Lat: 45.001, Lon: 7.001},
	{Lat: 45.001, Lon: 7.000},
}

func liveSource() *fakeSource {
	return &fakeSource{
		summaries: []fields.Summary{{ID: "f1", Name: "One", Source: fields.SourceLive}},
		boundary:  &fields.Boundary{FieldID: "f1", Name: "One", Source: fields.SourceLive, Ring: squareRing},
	}
}

type transitions []string

func (tr *transitions) record(from, to State) {
	*tr = append(*tr, from.String()+"->"+to.String())
}

func TestRun_SampleReady(t *testing.T) {
	var seen transitions
	prompter := &scriptedPrompter{choice: "sample-nebraska-pivot"}
	flow := New(fields.NewClient(fields.Config{}, nil), prompter, Config{
		Projector:    geo.Projector{Padding: geo.DefaultPadding},
		OnTransition: seen.record,
	})

	outcome := flow.Run(context.Background(), fields.SourceSample)

	require.Equal(t, ResultReady, outcome.Result)
	require.NotNil(t, outcome.Field)
	assert.False(t, outcome.Metadata.Defaulted)
	assert.Equal(t, "sample-nebraska-pivot", outcome.Metadata.FieldID)
	assert.Len(t, prompter.offered, 3)

	projected := outcome.Field.Projected
	require.NotNil(t, projected)
	assert.Len(t, projected.LocalRing, len(outcome.Field.Boundary.Ring))
	assert.InDelta(t, projected.Extent.Width+2*geo.DefaultPadding, outcome.Field.Width, 1e-9)

	assert.Equal(t, transitions{
		"idle->listing",
		"listing->selected",
		"selected->fetching",
		"fetching->ready",
	}, seen)
}

func TestRun_SampleFailureFallsBackToDefault(t *testing.T) {
	catalog, err := fields.LoadCatalog(strings.NewReader(`{"fields": [
		{"id": "flat", "name": "Flat", "boundary": [{"lat": 45, "lon": 7}, {"lat": 45, "lon": 7.001}]}
	]}`))
	require.NoError(t, err)

	var seen transitions
	flow := New(fields.NewClient(fields.Config{}, nil, fields.WithCatalog(catalog)),
		&scriptedPrompter{choice: "flat"}, Config{OnTransition: seen.record})

	outcome := flow.Run(context.Background(), fields.SourceSample)

	require.Equal(t, ResultReady, outcome.Result)
	assert.True(t, outcome.Metadata.Defaulted)
	assert.Equal(t, "Open Field", outcome.Field.Name)
	assert.Equal(t, 120.0, outcome.Field.Width)
	assert.Equal(t, 80.0, outcome.Field.Height)
	assert.Nil(t, outcome.Field.Projected)

	var geomErr *geo.GeometryError
	assert.True(t, errors.As(outcome.Metadata.Cause, &geomErr))
	assert.Equal(t, "fetching->failed", seen[len(seen)-2])
	assert.Equal(t, "failed->ready", seen[len(seen)-1])
}

func TestRun_SampleListingFailureFallsBackToDefault(t *testing.T) {
	source := &fakeSource{listErr: errors.New("catalog unreadable")}
	flow := New(source, &scriptedPrompter{}, Config{
		DefaultField: DefaultField{Name: "Paddock", Width: 50, Height: 40},
	})

	outcome := flow.Run(context.Background(), fields.SourceSample)
	require.Equal(t, ResultReady, outcome.Result)
	assert.True(t, outcome.Metadata.Defaulted)
	assert.Equal(t, "Paddock", outcome.Field.Name)
	assert.Zero(t, source.fetches)
}

func TestRun_LiveCancelledAtListing(t *testing.T) {
	var seen transitions
	source := liveSource()
	flow := New(source, &scriptedPrompter{err: ErrCancelled}, Config{OnTransition: seen.record})

	outcome := flow.Run(context.Background(), fields.SourceLive)

	assert.Equal(t, ResultCancelled, outcome.Result)
	assert.Nil(t, outcome.Field)
	assert.Zero(t, source.fetches, "no boundary request after cancel")
	assert.Equal(t, transitions{"idle->listing", "listing->cancelled"}, seen)
}

func TestRun_ContextCancelledWhileChoosing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := liveSource()
	prompter := &scriptedPrompter{choice: "f1", onAsk: cancel}
	outcome := New(source, prompter, Config{}).Run(ctx, fields.SourceLive)

	assert.Equal(t, ResultCancelled, outcome.Result)
	assert.Zero(t, source.fetches)
}

func TestRun_ContextCancelledBeforeListing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := New(liveSource(), &scriptedPrompter{choice: "f1"}, Config{}).Run(ctx, fields.SourceSample)
	assert.Equal(t, ResultCancelled, outcome.Result, "cancellation is not a sample failure")
}

func TestRun_CancelledDuringFetchDiscardsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fetchCtxErr error
	source := liveSource()
	source.onFetch = func(fetchCtx context.Context) {
		cancel()
		fetchCtxErr = fetchCtx.Err()
	}

	var seen transitions
	outcome := New(source, &scriptedPrompter{choice: "f1"}, Config{OnTransition: seen.record}).Run(ctx, fields.SourceLive)

	assert.Equal(t, ResultCancelled, outcome.Result)
	assert.Nil(t, outcome.Field)
	assert.NoError(t, fetchCtxErr, "an in-flight fetch is not interrupted")
	assert.Equal(t, 1, source.fetches)
	assert.Equal(t, "fetching->cancelled", seen[len(seen)-1])
}

func TestRun_LiveFetchFailureAborts(t *testing.T) {
	source := liveSource()
	source.fetchErr = &auth.NetworkError{Op: "fetch boundary", StatusCode: 503}

	var seen transitions
	outcome := New(source, &scriptedPrompter{choice: "f1"}, Config{OnTransition: seen.record}).Run(context.Background(), fields.SourceLive)

	require.Equal(t, ResultAborted, outcome.Result)
	assert.Nil(t, outcome.Field)
	var netErr *auth.NetworkError
	assert.True(t, errors.As(outcome.Err, &netErr))
	assert.Equal(t, "fetching->failed", seen[len(seen)-1])
}

func TestRun_LiveDegenerateBoundaryLetsUserChooseAgain(t *testing.T) {
	source := liveSource()
	source.summaries = append(source.summaries, fields.Summary{ID: "f2", Name: "Two", Source: fields.SourceLive})
	source.byID = map[string]*fields.Boundary{
		"f1": {FieldID: "f1", Name: "One", Source: fields.SourceLive, Ring: squareRing[:2]},
		"f2": {FieldID: "f2", Name: "Two", Source: fields.SourceLive, Ring: squareRing},
	}

	var seen transitions
	prompter := &scriptedPrompter{choices: []string{"f1", "f2"}}
	outcome := New(source, prompter, Config{OnTransition: seen.record}).Run(context.Background(), fields.SourceLive)

	require.Equal(t, ResultReady, outcome.Result)
	assert.Equal(t, "Two", outcome.Field.Name)
	assert.Equal(t, "f2", outcome.Metadata.FieldID)
	assert.False(t, outcome.Metadata.Defaulted)
	assert.Equal(t, 2, prompter.asked)
	assert.Equal(t, 2, source.fetches)
	require.Len(t, prompter.offered, 1, "the unusable field is not offered again")
	assert.Equal(t, "f2", prompter.offered[0].ID)
	assert.Contains(t, seen, "fetching->listing")
	assert.Equal(t, "fetching->ready", seen[len(seen)-1])
}

func TestRun_LiveCancelAfterDegenerateBoundary(t *testing.T) {
	source := liveSource()
	source.summaries = append(source.summaries, fields.Summary{ID: "f2", Name: "Two", Source: fields.SourceLive})
	source.boundary = &fields.Boundary{FieldID: "f1", Ring: squareRing[:2]}

	prompter := &scriptedPrompter{choices: []string{"f1"}}
	prompter.onAsk = func() {
		if prompter.asked == 2 {
			prompter.err = ErrCancelled
		}
	}
	outcome := New(source, prompter, Config{}).Run(context.Background(), fields.SourceLive)

	assert.Equal(t, ResultCancelled, outcome.Result)
	assert.Equal(t, 1, source.fetches)
}

func TestRun_LiveLastDegenerateBoundaryAborts(t *testing.T) {
	source := liveSource()
	source.boundary = &fields.Boundary{FieldID: "f1", Ring: squareRing[:2]}

	prompter := &scriptedPrompter{choice: "f1"}
	outcome := New(source, prompter, Config{}).Run(context.Background(), fields.SourceLive)

	require.Equal(t, ResultAborted, outcome.Result)
	assert.Equal(t, 1, prompter.asked)
	var geomErr *geo.GeometryError
	assert.True(t, errors.As(outcome.Err, &geomErr))
}

func TestRun_LiveNetworkFailureDoesNotReprompt(t *testing.T) {
	source := liveSource()
	source.summaries = append(source.summaries, fields.Summary{ID: "f2", Name: "Two", Source: fields.SourceLive})
	source.fetchErr = &auth.NetworkError{Op: "fetch boundary", StatusCode: 503}

	prompter := &scriptedPrompter{choice: "f1"}
	outcome := New(source, prompter, Config{}).Run(context.Background(), fields.SourceLive)

	require.Equal(t, ResultAborted, outcome.Result)
	assert.Equal(t, 1, prompter.asked)
}

func TestFlow_Default(t *testing.T) {
	flow := New(liveSource(), &scriptedPrompter{}, Config{})

	outcome := flow.Default(fields.SourceSample, "", ErrCancelled)

	require.Equal(t, ResultReady, outcome.Result)
	assert.Equal(t, "Open Field", outcome.Field.Name)
	assert.Equal(t, 120.0, outcome.Field.Width)
	assert.Equal(t, 80.0, outcome.Field.Height)
	assert.Nil(t, outcome.Field.Projected)
	assert.True(t, outcome.Metadata.Defaulted)
	assert.ErrorIs(t, outcome.Metadata.Cause, ErrCancelled)
}

func TestRun_LiveListingFailureAborts(t *testing.T) {
	source := &fakeSource{listErr: &auth.AuthError{Reason: auth.ReasonInvalidGrant}}

	outcome := New(source, &scriptedPrompter{}, Config{}).Run(context.Background(), fields.SourceLive)

	require.Equal(t, ResultAborted, outcome.Result)
	assert.True(t, errors.Is(outcome.Err, auth.ErrReauthorizationRequired))
}

func TestRun_LiveEmptyListAborts(t *testing.T) {
	outcome := New(&fakeSource{}, &scriptedPrompter{}, Config{}).Run(context.Background(), fields.SourceLive)

	require.Equal(t, ResultAborted, outcome.Result)
	assert.ErrorIs(t, outcome.Err, ErrNoFields)
}

func TestRun_LiveReady(t *testing.T) {
	source := liveSource()
	outcome := New(source, &scriptedPrompter{choice: "f1"}, Config{}).Run(context.Background(), fields.SourceLive)

	require.Equal(t, ResultReady, outcome.Result)
	assert.Equal(t, "One", outcome.Field.Name)
	assert.InDelta(t, 78.7, outcome.Field.Width, 0.1)
	assert.InDelta(t, 111.3, outcome.Field.Height, 0.1)
	assert.Equal(t, fields.SourceLive, outcome.Metadata.Source)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.Equal(t, "aborted", ResultAborted.String())
}
