// Package dialogue drives the add-event conversation: six free-text steps
// followed by a confirmation, expressed as a looplab/fsm machine that is
// rebuilt from the stored session on every update.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/looplab/fsm"

	"github.com/m3rciful/eventbot/core/logger"
	"github.com/m3rciful/eventbot/core/telegram/state"
	"github.com/m3rciful/eventbot/internal/events"
)

// Dialogue states, in the order the user walks through them.
const (
	StateFillSummary     state.State = "fill_summary"
	StateFillLongURL     state.State = "fill_long_url"
	StateFillLocation    state.State = "fill_location"
	StateFillDescription state.State = "fill_description"
	StateFillDateStart   state.State = "fill_date_start"
	StateFillDateEnd     state.State = "fill_date_end"
	StateConfirmation    state.State = "confirmation"
)

// Session field names.
const (
	FieldSummary     = "summary"
	FieldLongURL     = "long_url"
	FieldLocation    = "location"
	FieldDescription = "description"
	FieldDateStart   = "date_start"
	FieldDateEnd     = "date_end"
)

// Machine events.
const (
	EventStart   = "start"
	EventNext    = "next"
	EventCancel  = "cancel"
	EventConfirm = "confirm"
	EventReject  = "reject"
)

var (
	// ErrNotFilling is returned by Fill outside of the fill_* states.
	ErrNotFilling = errors.New("dialogue: no field is being filled")
	// ErrNotConfirming is returned by Draft outside of the confirmation state.
	ErrNotConfirming = errors.New("dialogue: not awaiting confirmation")
	// ErrInvalidDate is returned by Fill when date validation is on and the input does not parse.
	ErrInvalidDate = errors.New("dialogue: invalid date")
)

// Step binds a fill state to the field it collects.
type Step struct {
	State state.State
	Field string
}

// Steps lists the fill states in entry order.
var Steps = []Step{
	{StateFillSummary, FieldSummary},
	{StateFillLongURL, FieldLongURL},
	{StateFillLocation, FieldLocation},
	{StateFillDescription, FieldDescription},
	{StateFillDateStart, FieldDateStart},
	{StateFillDateEnd, FieldDateEnd},
}

// Options tunes input handling.
type Options struct {
	// ValidateDates rejects date steps that do not parse as a date.
	ValidateDates bool
}

// FieldValue is one collected answer.
type FieldValue struct {
	Field string
	Value string
}

// Form is the add-event dialogue of one user.
type Form struct {
	machine *fsm.FSM
	data    map[string]string
	opts    Options
}

// Restore rebuilds the form from a stored session. A nil session yields an idle form.
func Restore(sess *state.Session, opts Options) *Form {
	sess = sess.Clone()
	return &Form{
		machine: newMachine(sess.State),
		data:    sess.Data,
		opts:    opts,
	}
}

func newMachine(initial state.State) *fsm.FSM {
	if initial == "" {
		initial = state.StateIdle
	}
	active := []string{string(StateConfirmation)}
	evts := fsm.Events{
		{Name: EventStart, Src: []string{string(state.StateIdle)}, Dst: string(Steps[0].State)},
	}
	for i, step := range Steps {
		dst := StateConfirmation
		if i+1 < len(Steps) {
			dst = Steps[i+1].State
		}
		evts = append(evts, fsm.EventDesc{Name: EventNext, Src: []string{string(step.State)}, Dst: string(dst)})
		active = append(active, string(step.State))
	}
	evts = append(evts,
		fsm.EventDesc{Name: EventCancel, Src: active, Dst: string(state.StateIdle)},
		fsm.EventDesc{Name: EventConfirm, Src: []string{string(StateConfirmation)}, Dst: string(state.StateIdle)},
		fsm.EventDesc{Name: EventReject, Src: []string{string(StateConfirmation)}, Dst: string(state.StateIdle)},
	)

	return fsm.NewFSM(string(initial), evts, fsm.Callbacks{
		"enter_state": func(ctx context.Context, e *fsm.Event) {
			logger.Dialogue.LogAttrs(ctx, slog.LevelDebug, "transition",
				slog.String("event", "dialogue."+e.Event),
				slog.String("src", e.Src),
				slog.String("step", e.Dst),
			)
		},
	})
}

// State returns the current step.
func (f *Form) State() state.State {
	return state.State(f.machine.Current())
}

// Start begins a fresh collection. Only valid while idle.
func (f *Form) Start(ctx context.Context) error {
	if err := f.machine.Event(ctx, EventStart); err != nil {
		return fmt.Errorf("dialogue start: %w", err)
	}
	f.data = make(map[string]string, len(Steps))
	return nil
}

// Fill stores text verbatim under the current step's field and advances.
// It returns the new state.
func (f *Form) Fill(ctx context.Context, text string) (state.State, error) {
	field, ok := FieldOf(f.State())
	if !ok {
		return f.State(), ErrNotFilling
	}
	if f.opts.ValidateDates && (field == FieldDateStart || field == FieldDateEnd) {
		if _, err := ParseDate(text, time.Local); err != nil {
			return f.State(), err
		}
	}
	if err := f.machine.Event(ctx, EventNext); err != nil {
		return f.State(), fmt.Errorf("dialogue next: %w", err)
	}
	f.data[field] = text
	return f.State(), nil
}

// Values returns the collected answers in entry order, skipping unanswered steps.
func (f *Form) Values() []FieldValue {
	out := make([]FieldValue, 0, len(Steps))
	for _, step := range Steps {
		if v, ok := f.data[step.Field]; ok {
			out = append(out, FieldValue{Field: step.Field, Value: v})
		}
	}
	return out
}

// Draft returns the event awaiting confirmation.
func (f *Form) Draft() (events.NewEvent, error) {
	if f.State() != StateConfirmation {
		return events.NewEvent{}, ErrNotConfirming
	}
	return events.NewEvent{
		Summary:     f.data[FieldSummary],
		LongURL:     f.data[FieldLongURL],
		Location:    f.data[FieldLocation],
		Description: f.data[FieldDescription],
		DateStart:   f.data[FieldDateStart],
		DateEnd:     f.data[FieldDateEnd],
	}, nil
}

// Confirm ends the dialogue after the draft was stored.
func (f *Form) Confirm(ctx context.Context) error {
	return f.finish(ctx, EventConfirm)
}

// Reject ends the dialogue from the confirmation step without storing.
func (f *Form) Reject(ctx context.Context) error {
	return f.finish(ctx, EventReject)
}

// Cancel aborts the dialogue from any non-idle state.
func (f *Form) Cancel(ctx context.Context) error {
	return f.finish(ctx, EventCancel)
}

func (f *Form) finish(ctx context.Context, event string) error {
	if err := f.machine.Event(ctx, event); err != nil {
		return fmt.Errorf("dialogue %s: %w", event, err)
	}
	f.data = make(map[string]string)
	return nil
}

// Session snapshots the form for storage.
func (f *Form) Session() *state.Session {
	sess := state.NewSession()
	sess.State = f.State()
	for k, v := range f.data {
		sess.Data[k] = v
	}
	return sess
}

// FieldOf returns the field collected in st.
func FieldOf(st state.State) (string, bool) {
	for _, step := range Steps {
		if step.State == st {
			return step.Field, true
		}
	}
	return "", false
}
