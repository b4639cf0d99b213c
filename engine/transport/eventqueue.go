package transport

import (
	"sync"

	"github.com/xiaonanln/fpsworld/engine/consts"
	"github.com/xiaonanln/fpsworld/engine/gwlog"
)

// EventQueue is the FIFO that network goroutines push into and Poll drains.
// It is safe for concurrent use.
type EventQueue struct {
	lock     sync.Mutex
	events   []Event
	head     int
	lastWarn int
}

// Push appends an event
func (q *EventQueue) Push(evt Event) {
	q.lock.Lock()
	q.events = append(q.events, evt)
	n := len(q.events) - q.head
	if n >= consts.TRANSPORT_EVENT_QUEUE_WARN_LEN && n%consts.TRANSPORT_EVENT_QUEUE_WARN_LEN == 0 && n != q.lastWarn {
		q.lastWarn = n
		gwlog.Warnf("transport: event queue length = %d", n)
	}
	q.lock.Unlock()
}

// Pop removes the oldest event; ok is false when the queue is empty
func (q *EventQueue) Pop() (evt Event, ok bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.head >= len(q.events) {
		return Event{}, false
	}
	evt = q.events[q.head]
	q.events[q.head] = Event{}
	q.head++
	if q.head == len(q.events) {
		q.events = q.events[:0]
		q.head = 0
	}
	return evt, true
}

// Poll pops an event, returning an EventNothing event when empty
func (q *EventQueue) Poll() Event {
	if evt, ok := q.Pop(); ok {
		return evt
	}
	return Event{Kind: EventNothing}
}

// Len returns the number of pending events
func (q *EventQueue) Len() int {
	q.lock.Lock()
	n := len(q.events) - q.head
	q.lock.Unlock()
	return n
}
