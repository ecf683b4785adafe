package dialogue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/eventbot/core/telegram/state"
	"github.com/m3rciful/eventbot/internal/events"
)

var meetupAnswers = []string{
	"Meetup",
	"http://x.test/e1",
	"Room 5",
	"desc",
	"2025-01-01 10:00:00",
	"2025-01-01 12:00:00",
}

func fillAll(t *testing.T, f *Form, answers []string) {
	t.Helper()
	ctx := context.Background()
	for i, a := range answers {
		next, err := f.Fill(ctx, a)
		require.NoError(t, err, "step %d", i)
		if i+1 < len(Steps) {
			assert.Equal(t, Steps[i+1].State, next)
		} else {
			assert.Equal(t, StateConfirmation, next)
		}
	}
}

func TestFormWalksAllSteps(t *testing.T) {
	ctx := context.Background()
	f := Restore(nil, Options{})
	require.Equal(t, state.StateIdle, f.State())
	require.NoError(t, f.Start(ctx))
	require.Equal(t, StateFillSummary, f.State())

	fillAll(t, f, meetupAnswers)

	values := f.Values()
	require.Len(t, values, 6)
	for i, v := range values {
		assert.Equal(t, Steps[i].Field, v.Field)
		assert.Equal(t, meetupAnswers[i], v.Value)
	}

	draft, err := f.Draft()
	require.NoError(t, err)
	assert.Equal(t, events.NewEvent{
		Summary:     "Meetup",
		LongURL:     "http://x.test/e1",
		Location:    "Room 5",
		Description: "desc",
		DateStart:   "2025-01-01 10:00:00",
		DateEnd:     "2025-01-01 12:00:00",
	}, draft)

	require.NoError(t, f.Confirm(ctx))
	assert.Equal(t, state.StateIdle, f.State())
	assert.Empty(t, f.Values())
}

func TestFormSurvivesSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := Restore(nil, Options{})
	require.NoError(t, f.Start(ctx))

	for _, a := range meetupAnswers[:3] {
		_, err := f.Fill(ctx, a)
		require.NoError(t, err)
		f = Restore(f.Session(), Options{})
	}
	assert.Equal(t, StateFillDescription, f.State())
	assert.Len(t, f.Values(), 3)
}

func TestCancelFromEveryActiveState(t *testing.T) {
	ctx := context.Background()
	for stop := 0; stop <= len(Steps); stop++ {
		f := Restore(nil, Options{})
		require.NoError(t, f.Start(ctx))
		for _, a := range meetupAnswers[:stop] {
			_, err := f.Fill(ctx, a)
			require.NoError(t, err)
		}
		require.NoError(t, f.Cancel(ctx), "after %d answers", stop)
		assert.Equal(t, state.StateIdle, f.State())
		assert.Empty(t, f.Session().Data)

		require.NoError(t, f.Start(ctx))
		assert.Empty(t, f.Values(), "fresh collection after cancel")
	}
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	f := Restore(nil, Options{})

	assert.Error(t, f.Cancel(ctx), "cancel is not accepted while idle")
	_, err := f.Fill(ctx, "x")
	assert.ErrorIs(t, err, ErrNotFilling)
	_, err = f.Draft()
	assert.ErrorIs(t, err, ErrNotConfirming)

	require.NoError(t, f.Start(ctx))
	assert.Error(t, f.Start(ctx), "start is only accepted while idle")
	assert.Error(t, f.Confirm(ctx))
	assert.Error(t, f.Reject(ctx))
}

func TestDatesAreVerbatimByDefault(t *testing.T) {
	ctx := context.Background()
	f := Restore(nil, Options{})
	require.NoError(t, f.Start(ctx))
	answers := append([]string(nil), meetupAnswers...)
	answers[4] = "next friday-ish"
	fillAll(t, f, answers)

	draft, err := f.Draft()
	require.NoError(t, err)
	assert.Equal(t, "next friday-ish", draft.DateStart)
}

func TestValidateDatesRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	f := Restore(&state.Session{State: StateFillDateStart, Data: map[string]string{}}, Options{ValidateDates: true})

	st, err := f.Fill(ctx, "next friday-ish")
	assert.ErrorIs(t, err, ErrInvalidDate)
	assert.Equal(t, StateFillDateStart, st)

	st, err = f.Fill(ctx, "2025-01-01 10:00:00")
	require.NoError(t, err)
	assert.Equal(t, StateFillDateEnd, st)
}

func TestRejectClearsDraft(t *testing.T) {
	ctx := context.Background()
	f := Restore(nil, Options{})
	require.NoError(t, f.Start(ctx))
	fillAll(t, f, meetupAnswers)

	require.NoError(t, f.Reject(ctx))
	assert.Equal(t, state.StateIdle, f.State())
	assert.Empty(t, f.Values())
}
