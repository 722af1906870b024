package orchestrator

import (
	"runtime"
	"sync"
)

// Executor runs fn and returns once it has finished. Every OS
// introspection call and every Presenter call goes through it.
type Executor interface {
	Do(fn func())
}

// MainThread runs functions on a single goroutine locked to its OS
// thread. Calls from inside fn must not re-enter Do.
type MainThread struct {
	work chan func()
	quit chan struct{}
	once sync.Once
}

// NewMainThread starts the executor goroutine.
func NewMainThread() *MainThread {
	m := &MainThread{work: make(chan func()), quit: make(chan struct{})}
	started := make(chan struct{})
	go m.loop(started)
	<-started
	return m
}

func (m *MainThread) loop(started chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	close(started)
	for {
		select {
		case fn := <-m.work:
			fn()
		case <-m.quit:
			return
		}
	}
}

// Do runs fn on the locked thread. After Close, fn runs on the caller.
func (m *MainThread) Do(fn func()) {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case m.work <- wrapped:
		<-done
	case <-m.quit:
		fn()
	}
}

// Close stops the executor goroutine.
func (m *MainThread) Close() {
	m.once.Do(func() { close(m.quit) })
}

// Serial runs functions on the caller's goroutine, one at a time.
type Serial struct {
	mu sync.Mutex
}

func (s *Serial) Do(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}
