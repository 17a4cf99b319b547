package events

import (
	"sync"

	"github.com/shaneisley/snatch/pkg/logging"
)

// Queue is a multi-producer, single-consumer FIFO. Publish never blocks.
// A zero capacity means unbounded; a positive capacity drops the oldest
// evictable item when full. Items the keep predicate protects are never
// dropped, so the queue may exceed its capacity when holding only those.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	dropped  uint64
	keep     func(T) bool
	onDrop   func(T)
}

// NewQueue creates a queue with the given capacity (0 = unbounded)
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{capacity: capacity}
}

// Publish appends item to the tail of the queue
func (q *Queue[T]) Publish(item T) {
	q.mu.Lock()
	var (
		victim  T
		evicted bool
	)
	if q.capacity > 0 && len(q.items) >= q.capacity {
		for i, candidate := range q.items {
			if q.keep != nil && q.keep(candidate) {
				continue
			}
			victim = candidate
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			q.dropped++
			evicted = true
			break
		}
	}
	q.items = append(q.items, item)
	onDrop := q.onDrop
	q.mu.Unlock()

	if evicted && onDrop != nil {
		onDrop(victim)
	}
}

// DrainAll removes and returns every queued item in publish order.
// It returns nil when the queue is empty.
func (q *Queue[T]) DrainAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many items were evicted because the queue was full
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Channel carries worker events to the consumer.
type Channel = Queue[Event]

// NewChannel creates an event channel. With a positive capacity only Log
// and Progress events are evicted; every state-changing event is delivered.
// Evictions are logged at warn level.
func NewChannel(capacity int, logger *logging.Logger) *Channel {
	ch := NewQueue[Event](capacity)
	ch.keep = func(e Event) bool { return !Droppable(e) }
	if logger != nil {
		ch.onDrop = func(e Event) {
			logger.Warn("event queue full, dropped oldest event",
				"capacity", capacity,
				"event", eventName(e))
		}
	}
	return ch
}

// Droppable reports whether e may be evicted from a full channel
func Droppable(e Event) bool {
	switch e.(type) {
	case Log, Progress:
		return true
	default:
		return false
	}
}

func eventName(e Event) string {
	switch e.(type) {
	case Log:
		return "log"
	case Progress:
		return "progress"
	case DurationKnown:
		return "duration_known"
	case ButtonState:
		return "button_state"
	case ResetUI:
		return "reset_ui"
	case FlashSignal:
		return "flash_signal"
	case RunningFlagChanged:
		return "running_flag_changed"
	case CaptionExtracted:
		return "caption_extracted"
	case BackoffRequested:
		return "backoff_requested"
	case JobCompleted:
		return "job_completed"
	default:
		return "unknown"
	}
}
