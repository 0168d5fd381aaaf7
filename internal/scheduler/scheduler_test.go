package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now int64 }

func (f *fakeClock) MonotonicMillis() int64            { return f.now }
func (f *fakeClock) RandomBytes(n int) ([]byte, error) { return make([]byte, n), nil }

func TestScheduleOnceFiresAfterDelayAndNotAgain(t *testing.T) {
	clock := &fakeClock{now: 0}
	s := New(clock, nil)

	calls := 0
	s.ScheduleOnce(100*time.Millisecond, func() { calls++ })

	clock.now = 50
	s.Tick(clock.now)
	s.Run()
	require.Equal(t, 0, calls)

	clock.now = 100
	s.Tick(clock.now)
	s.Run()
	require.Equal(t, 1, calls)
	require.Equal(t, 0, s.TaskCount())

	clock.now = 1000
	s.Tick(clock.now)
	s.Run()
	require.Equal(t, 1, calls)
}

func TestScheduleEveryReschedules(t *testing.T) {
	clock := &fakeClock{now: 0}
	s := New(clock, nil)

	calls := 0
	s.ScheduleEvery(10*time.Millisecond, func() { calls++ })

	for _, now := range []int64{10, 20, 30} {
		clock.now = now
		s.Tick(clock.now)
		s.Run()
	}
	require.Equal(t, 3, calls)
	require.Equal(t, 1, s.TaskCount())
}

func TestCancelPreventsDispatch(t *testing.T) {
	clock := &fakeClock{now: 0}
	s := New(clock, nil)

	calls := 0
	id := s.ScheduleOnce(10*time.Millisecond, func() { calls++ })
	require.True(t, s.Cancel(id))
	require.False(t, s.Cancel(id))

	clock.now = 10
	s.Tick(clock.now)
	s.Run()
	require.Equal(t, 0, calls)
}

func TestCancelAllClearsTasks(t *testing.T) {
	clock := &fakeClock{now: 0}
	s := New(clock, nil)
	s.ScheduleEvery(10*time.Millisecond, func() {})
	s.ScheduleOnce(10*time.Millisecond, func() {})
	require.Equal(t, 2, s.TaskCount())

	s.CancelAll()
	require.Equal(t, 0, s.TaskCount())
}

func TestTickDoesNotDoubleQueueAPendingTask(t *testing.T) {
	clock := &fakeClock{now: 0}
	s := New(clock, nil)

	calls := 0
	s.ScheduleOnce(10*time.Millisecond, func() { calls++ })

	clock.now = 10
	s.Tick(clock.now)
	s.Tick(clock.now) // already pending, must not requeue
	s.Run()
	require.Equal(t, 1, calls)
}
