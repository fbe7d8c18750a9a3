package voiceagent

import (
	"sort"
	"sync"
	"time"
)

// Task is a scheduled callback that can be cancelled.
type Task interface {
	// Stop cancels the task. It reports whether the task was still pending.
	Stop() bool
}

// Scheduler runs callbacks after a delay or on an interval. Callbacks must not
// block; the session only uses them to post events onto its queue.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
	Every(d time.Duration, f func()) Task
}

// SystemScheduler uses wall-clock timers.
type SystemScheduler struct{}

func (SystemScheduler) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}

func (SystemScheduler) Every(d time.Duration, f func()) Task {
	t := &tickerTask{ticker: time.NewTicker(d), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				f()
			}
		}
	}()
	return t
}

type tickerTask struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTask) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}

// ManualScheduler is driven by Advance instead of wall time. Useful for
// exercising reconnect and keep-alive timing without sleeping.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*manualTask
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

type manualTask struct {
	s        *ManualScheduler
	seq      int
	due      time.Duration
	interval time.Duration
	f        func()
	stopped  bool
}

func (t *manualTask) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (s *ManualScheduler) add(d, interval time.Duration, f func()) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTask{s: s, seq: s.seq, due: s.now + d, interval: interval, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) Task {
	return s.add(d, 0, f)
}

func (s *ManualScheduler) Every(d time.Duration, f func()) Task {
	return s.add(d, d, f)
}

// Advance moves the clock forward and runs every task that falls due, in due
// order. Callbacks run on the caller's goroutine.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.nextDueLocked(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = next.due
		if next.interval > 0 {
			next.due += next.interval
		} else {
			next.stopped = true
		}
		f := next.f
		s.mu.Unlock()
		f()
	}
}

func (s *ManualScheduler) nextDueLocked(limit time.Duration) *manualTask {
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.stopped {
			live = append(live, t)
		}
	}
	s.tasks = live
	sort.SliceStable(s.tasks, func(i, j int) bool {
		if s.tasks[i].due == s.tasks[j].due {
			return s.tasks[i].seq < s.tasks[j].seq
		}
		return s.tasks[i].due < s.tasks[j].due
	})
	if len(s.tasks) == 0 || s.tasks[0].due > limit {
		return nil
	}
	return s.tasks[0]
}

// Pending returns the number of live tasks.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}
