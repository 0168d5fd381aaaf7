// Package scheduler implements a cooperative periodic/one-shot task queue,
// driven by an external tick rather than its own goroutine-per-task timers.
// pkg/hap runs its tick loop; no transport schedules tasks on it, so BLE
// procedure/idle deadlines are not enforced through it, and timed-write
// expiry and broadcast-key lifetime are checked inline by the transports.
package scheduler

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"

	"github.com/srg/hapd/internal/platform"
)

// TaskID identifies a scheduled task for cancellation. The zero value is
// never assigned, mirroring the invalid-ID sentinel of the scheduler this
// package is adapted from.
type TaskID uint32

// dueQueueCapacity bounds how many fired-but-not-yet-dispatched task IDs
// Tick may buffer before Run catches up; each ID is 4 bytes.
const dueQueueCapacity = 256 * 4

type task struct {
	id         TaskID
	fn         func()
	nextRunMS  int64
	intervalMS int64 // 0 for one-shot
	pending    bool  // queued in due but not yet dispatched by Run
}

// Scheduler holds the set of scheduled tasks and the due-task queue that
// decouples Tick (called from a timer goroutine) from Run (called from the
// single-threaded reactor loop that actually invokes callbacks).
type Scheduler struct {
	mu     sync.Mutex
	sys    platform.System
	log    *logrus.Entry
	tasks  map[TaskID]*task
	nextID TaskID
	due    *ringbuffer.RingBuffer
}

// New creates an empty scheduler. sys supplies the monotonic clock used to
// compute deadlines; log defaults to the standard logger if nil.
func New(sys platform.System, log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{
		sys:   sys,
		log:   log.WithField("component", "scheduler"),
		tasks: map[TaskID]*task{},
		due:   ringbuffer.New(dueQueueCapacity),
	}
}

func (s *Scheduler) allocateID() TaskID {
	if s.nextID == 0 {
		s.nextID = 1
	}
	id := s.nextID
	s.nextID++
	if s.nextID == 0 {
		s.nextID = 1
	}
	return id
}

// ScheduleEvery registers fn to run every interval, starting one interval
// from now.
func (s *Scheduler) ScheduleEvery(interval time.Duration, fn func()) TaskID {
	return s.schedule(interval, interval, fn)
}

// ScheduleOnce registers fn to run once after delay.
func (s *Scheduler) ScheduleOnce(delay time.Duration, fn func()) TaskID {
	return s.schedule(delay, 0, fn)
}

func (s *Scheduler) schedule(delay, interval time.Duration, fn func()) TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.allocateID()
	s.tasks[id] = &task{
		id:         id,
		fn:         fn,
		nextRunMS:  s.sys.MonotonicMillis() + delay.Milliseconds(),
		intervalMS: interval.Milliseconds(),
	}
	return id
}

// Cancel removes a scheduled task, reporting whether it was still pending.
// A task already queued in the due buffer does not fire: Run finds it
// missing and skips its callback.
func (s *Scheduler) Cancel(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	delete(s.tasks, id)
	return ok
}

// CancelAll clears every scheduled task.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = map[TaskID]*task{}
}

// TaskCount reports how many tasks are currently scheduled.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Tick finds tasks due as of nowMS and queues their IDs for Run to
// dispatch. It never calls a task's callback itself, so it is safe to call
// from a dedicated timer goroutine while Run executes on the reactor's
// single mutex-guarded thread.
func (s *Scheduler) Tick(nowMS int64) {
	s.mu.Lock()
	var fired []TaskID
	for id, t := range s.tasks {
		if t.pending || nowMS < t.nextRunMS {
			continue
		}
		t.pending = true
		fired = append(fired, id)
	}
	s.mu.Unlock()

	for _, id := range fired {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(id))
		if _, err := s.due.Write(buf[:]); err != nil {
			s.log.WithField("task", id).Warn("scheduler: due queue full, retrying next tick")
			s.mu.Lock()
			if t, ok := s.tasks[id]; ok {
				t.pending = false
			}
			s.mu.Unlock()
		}
	}
}

// Run dispatches every task currently queued in the due buffer, rescheduling
// periodic tasks and removing one-shot ones. Call it from the single
// reactor thread that owns the rest of the core's mutable state.
func (s *Scheduler) Run() {
	for {
		var buf [4]byte
		n, err := s.due.TryRead(buf[:])
		if n < len(buf) {
			if !errors.Is(err, ringbuffer.ErrIsEmpty) && err != nil {
				s.log.WithError(err).Warn("scheduler: due queue read failed")
			}
			return
		}
		id := TaskID(binary.LittleEndian.Uint32(buf[:]))

		s.mu.Lock()
		t, ok := s.tasks[id]
		if ok {
			if t.intervalMS > 0 {
				t.nextRunMS = s.sys.MonotonicMillis() + t.intervalMS
				t.pending = false
			} else {
				delete(s.tasks, id)
			}
		}
		s.mu.Unlock()

		if ok {
			t.fn()
		}
	}
}

// RunLoop ticks and dispatches every interval until ctx is cancelled,
// meant to be started via internal/groutine.Go as the scheduler's named
// goroutine.
func (s *Scheduler) RunLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(s.sys.MonotonicMillis())
			s.Run()
		}
	}
}
