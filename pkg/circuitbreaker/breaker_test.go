package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("oracle", Config{FailureThreshold: 2, Timeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := cb.Execute(ctx, func() error { return errUpstream })
		require.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("oracle", Config{
		FailureThreshold: 1,
		Timeout:          time.Minute,
		OnStateChange:    func(_ string, _ State, to State) { transitions = append(transitions, to) },
	})
	clock := time.Now()
	cb.now = func() time.Time { return clock }

	_ = cb.Execute(context.Background(), func() error { return errUpstream })
	assert.Equal(t, StateOpen, cb.State())

	clock = clock.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	errSchema := errors.New("bad json")
	cb := NewCircuitBreaker("oracle", Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, errSchema) },
	})
	_ = cb.Execute(context.Background(), func() error { return errSchema })
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Counts().TotalSuccesses)
}

func TestExecuteWithResult(t *testing.T) {
	cb := NewCircuitBreaker("index", Config{})
	v, err := ExecuteWithResult(context.Background(), cb, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
