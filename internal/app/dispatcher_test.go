package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type scriptedSource struct {
	mu    sync.Mutex
	calls int
	steps []service.DispatchStats
	err   error
}

func (s *scriptedSource) DispatchDue(context.Context) (service.DispatchStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return service.DispatchStats{}, s.err
	}
	if len(s.steps) == 0 {
		return service.DispatchStats{}, nil
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	return next, nil
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestDispatch_DrainsFullBatches(t *testing.T) {
	src := &scriptedSource{steps: []service.DispatchStats{
		{Claimed: 2, Sent: 2},
		{Claimed: 2, Sent: 1, Cancelled: 1},
		{Claimed: 1, Sent: 1},
	}}
	d := NewReminderDispatcher(src, time.Hour, zap.NewNop())

	d.dispatch(context.Background())

	// три непустых прохода и один пустой
	assert.Equal(t, 4, src.Calls())
}

func TestDispatch_StopsOnFailedDelivery(t *testing.T) {
	src := &scriptedSource{steps: []service.DispatchStats{
		{Claimed: 2, Sent: 1, Failed: 1},
		{Claimed: 1, Sent: 1},
	}}
	d := NewReminderDispatcher(src, time.Hour, zap.NewNop())

	d.dispatch(context.Background())

	assert.Equal(t, 1, src.Calls())
}

func TestDispatch_StopsOnError(t *testing.T) {
	src := &scriptedSource{err: errors.New("connection refused")}
	d := NewReminderDispatcher(src, time.Hour, zap.NewNop())

	d.dispatch(context.Background())

	assert.Equal(t, 1, src.Calls())
}

func TestReminderDispatcher_StartStop(t *testing.T) {
	src := &scriptedSource{}
	d := NewReminderDispatcher(src, 10*time.Millisecond, zap.NewNop())

	d.Start(context.Background())
	assert.Eventually(t, func() bool { return src.Calls() >= 3 }, time.Second, 5*time.Millisecond)

	d.Stop()
	calls := src.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, src.Calls())

	// повторный Stop не блокируется
	d.Stop()
}

func TestReminderDispatcher_StopsOnContextCancel(t *testing.T) {
	src := &scriptedSource{}
	d := NewReminderDispatcher(src, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()

	select {
	case <-d.done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestReminderDispatcher_StopWithoutStart(t *testing.T) {
	d := NewReminderDispatcher(&scriptedSource{}, time.Second, zap.NewNop())
	d.Stop()
}
