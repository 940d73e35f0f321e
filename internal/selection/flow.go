package selection

import (
	"context"
	"errors"

	"farmfield/internal/fields"
	"farmfield/internal/geo"
	"farmfield/pkg/logging"
)

const subsystem = "Selection"

// ErrCancelled is returned by a Prompter when the user backs out.
var ErrCancelled = errors.New("selection cancelled")

// ErrNoFields means the source offered nothing to choose from.
var ErrNoFields = errors.New("no fields available")

// Prompter lets the user pick a field. It returns the chosen field ID, or
// ErrCancelled.
type Prompter interface {
	Choose(ctx context.Context, options []fields.Summary) (string, error)
}

// FieldSource lists fields and fetches boundaries.
type FieldSource interface {
	ListAvailableFields(ctx context.Context, source fields.Source) ([]fields.Summary, error)
	FetchBoundary(ctx context.Context, source fields.Source, fieldID string) (*fields.Boundary, error)
}

// DefaultField is the rectangle used when a sample selection cannot resolve.
type DefaultField struct {
	Name   string
	Width  float64
	Height float64
}

// Field is what the simulation receives.
type Field struct {
	Name string

	// Width and Height are the play area in metres.
	Width  float64
	Height float64

	// Projected and Boundary are nil for the default field.
	Projected *geo.ProjectedField
	Boundary  *fields.Boundary
}

// Metadata describes how a Ready field was obtained.
type Metadata struct {
	FieldID   string
	Source    fields.Source
	Defaulted bool

	// Cause is the failure that led to the default field.
	Cause error
}

// Outcome ends a session. Field and Metadata are set for ResultReady, Err
// for ResultAborted.
type Outcome struct {
	Result   Result
	Field    *Field
	Metadata Metadata
	Err      error
}

// Config configures a Flow.
type Config struct {
	Projector    geo.Projector
	DefaultField DefaultField

	// OnTransition observes every state change.
	OnTransition func(from, to State)
}

// Flow runs selection sessions. It keeps no per-session state, so one Flow
// may run several sessions.
type Flow struct {
	source   FieldSource
	prompter Prompter
	cfg      Config
}

// New creates a Flow.
func New(source FieldSource, prompter Prompter, cfg Config) *Flow {
	if cfg.DefaultField.Name == "" {
		cfg.DefaultField = DefaultField{Name: "Open Field", Width: 120, Height: 80}
	}
	return &Flow{source: source, prompter: prompter, cfg: cfg}
}

type session struct {
	flow   *Flow
	source fields.Source
	state  State
}

func (s *session) move(to State) {
	from := s.state
	s.state = to
	logging.Debug(subsystem, "Selection %s -> %s", from, to)
	if s.flow.cfg.OnTransition != nil {
		s.flow.cfg.OnTransition(from, to)
	}
}

// Run executes one session against source. Cancelling ctx while the user is
// choosing ends the session as Cancelled without fetching anything. A fetch
// already under way is allowed to finish and its result is discarded.
//
// A field whose boundary is unusable is dropped from the offer and the user
// chooses again. Only when no field is left does the failure policy apply.
func (f *Flow) Run(ctx context.Context, source fields.Source) Outcome {
	s := &session{flow: f, source: source, state: StateIdle}

	s.move(StateListing)
	summaries, err := f.source.ListAvailableFields(ctx, source)
	if err == nil && len(summaries) == 0 {
		err = ErrNoFields
	}
	if err != nil {
		if ctx.Err() != nil {
			return s.cancelled()
		}
		return s.failed("", err)
	}

	for {
		fieldID, err := f.prompter.Choose(ctx, summaries)
		if err != nil || ctx.Err() != nil {
			if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
				return s.cancelled()
			}
			return s.failed("", err)
		}

		s.move(StateSelected)
		logging.Info(subsystem, "Field %s selected from %s source", fieldID, source)

		s.move(StateFetching)
		field, err := f.resolve(ctx, source, fieldID)
		if ctx.Err() != nil {
			logging.Info(subsystem, "Session cancelled during fetch, discarding field %s", fieldID)
			return s.cancelled()
		}
		if err == nil {
			s.move(StateReady)
			return Outcome{
				Result:   ResultReady,
				Field:    field,
				Metadata: Metadata{FieldID: fieldID, Source: source},
			}
		}

		var geomErr *geo.GeometryError
		if !errors.As(err, &geomErr) {
			return s.failed(fieldID, err)
		}
		remaining, dropped := without(summaries, fieldID)
		if !dropped || len(remaining) == 0 {
			return s.failed(fieldID, err)
		}
		logging.Warn(subsystem, "Field %s has an unusable boundary (%v), choose another field", fieldID, err)
		summaries = remaining
		s.move(StateListing)
	}
}

// resolve fetches and projects one field. The fetch is detached from ctx so
// a request already sent is not torn down by cancellation.
func (f *Flow) resolve(ctx context.Context, source fields.Source, fieldID string) (*Field, error) {
	boundary, err := f.source.FetchBoundary(context.WithoutCancel(ctx), source, fieldID)
	if err != nil {
		return nil, err
	}
	projected, err := f.cfg.Projector.Project(boundary.Ring)
	if err != nil {
		return nil, err
	}
	return &Field{
		Name:      boundary.Name,
		Width:     projected.FieldW,
		Height:    projected.FieldH,
		Projected: projected,
		Boundary:  boundary,
	}, nil
}

// Default returns a Ready outcome carrying the configured default field.
// cause records why no real field was used.
func (f *Flow) Default(source fields.Source, fieldID string, cause error) Outcome {
	def := f.cfg.DefaultField
	return Outcome{
		Result: ResultReady,
		Field:  &Field{Name: def.Name, Width: def.Width, Height: def.Height},
		Metadata: Metadata{
			FieldID:   fieldID,
			Source:    source,
			Defaulted: true,
			Cause:     cause,
		},
	}
}

func without(summaries []fields.Summary, fieldID string) ([]fields.Summary, bool) {
	out := make([]fields.Summary, 0, len(summaries))
	for _, s := range summaries {
		if s.ID != fieldID {
			out = append(out, s)
		}
	}
	return out, len(out) < len(summaries)
}

func (s *session) cancelled() Outcome {
	s.move(StateCancelled)
	return Outcome{Result: ResultCancelled}
}

func (s *session) failed(fieldID string, err error) Outcome {
	s.move(StateFailed)

	if s.source != fields.SourceSample {
		logging.Error(subsystem, err, "Field selection aborted")
		return Outcome{Result: ResultAborted, Err: err}
	}

	logging.Warn(subsystem, "Sample field unavailable (%v), using %s", err, s.flow.cfg.DefaultField.Name)
	s.move(StateReady)
	return s.flow.Default(s.source, fieldID, err)
}
