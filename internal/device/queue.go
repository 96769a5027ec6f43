package device

import "sync"

// Queue executes submitted kernels strictly in issue order, asynchronously
// with respect to the submitting goroutine. Cross-queue ordering exists only
// through Marker and Barrier.
type Queue struct {
	tasks chan task
	done  sync.WaitGroup
}

type task struct {
	run  func()
	mark *Event
	wait []*Event
}

// Event is a completion token recorded by Marker and awaited by Barrier.
type Event struct {
	ch chan struct{}
}

func newEvent() *Event { return &Event{ch: make(chan struct{})} }

// Wait blocks until the event has been signaled.
func (e *Event) Wait() { <-e.ch }

func NewQueue() *Queue {
	q := &Queue{tasks: make(chan task, 64)}
	q.done.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.done.Done()
	for t := range q.tasks {
		for _, e := range t.wait {
			e.Wait()
		}
		if t.run != nil {
			t.run()
		}
		if t.mark != nil {
			close(t.mark.ch)
		}
	}
}

// Submit enqueues a kernel execution.
func (q *Queue) Submit(kernel func()) {
	q.tasks <- task{run: kernel}
}

// Marker enqueues a marker and returns its event. The event fires once all
// previously submitted work on this queue has completed.
func (q *Queue) Marker() *Event {
	e := newEvent()
	q.tasks <- task{mark: e}
	return e
}

// Barrier makes all later work on this queue wait for the given events,
// establishing a happens-before edge from the queues that recorded them.
func (q *Queue) Barrier(events ...*Event) {
	q.tasks <- task{wait: events}
}

// Sync blocks until everything submitted so far has executed.
func (q *Queue) Sync() {
	q.Marker().Wait()
}

// Close drains and stops the queue.
func (q *Queue) Close() {
	q.Sync()
	close(q.tasks)
	q.done.Wait()
}
