package pipeline

import (
	"fmt"
	"sync"

	"github.com/banshee-data/findfoci/internal/findfoci"
)

// Kind enumerates the notifications sent to listeners.
type Kind int

const (
	// Ready is sent once when a worker starts accepting parameter sets.
	Ready Kind = iota
	// Running is sent when a run starts recomputing stages.
	Running
	// BackgroundLevel carries the background level in Message.Value.
	BackgroundLevel
	// SortIndexOk carries the sort index in Message.SortIndex.
	SortIndexOk
	// SortIndexSensitiveToNegativeValues is sent instead of SortIndexOk when
	// the sort index sums intensities and the image has negative values.
	SortIndexSensitiveToNegativeValues
	// Done is sent after a successful run; Message.Result is set.
	Done
	// Failed is sent when a stage fails; the cached result is kept.
	Failed
	// Error carries an unexpected fault in Message.Err.
	Error
	// Finished is sent once when the worker exits.
	Finished
)

var kindNames = []string{
	"ready", "running", "background_level", "sort_index_ok",
	"sort_index_sensitive_to_negative_values", "done", "failed", "error", "finished",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Message is a single notification.
type Message struct {
	Kind      Kind
	Value     float64
	SortIndex findfoci.SortIndex
	Err       error
	Result    *Result
}

func (m Message) String() string {
	switch m.Kind {
	case BackgroundLevel:
		return fmt.Sprintf("%s(%g)", m.Kind, m.Value)
	case SortIndexOk, SortIndexSensitiveToNegativeValues:
		return fmt.Sprintf("%s(%s)", m.Kind, m.SortIndex)
	case Error, Failed:
		if m.Err != nil {
			return fmt.Sprintf("%s(%v)", m.Kind, m.Err)
		}
	}
	return m.Kind.String()
}

// Listener receives notifications. Notify is called on the worker
// goroutine and should return quickly.
type Listener interface {
	Notify(Message)
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(Message)

// Notify calls f(m).
func (f ListenerFunc) Notify(m Message) { f(m) }

// Notifier fans messages out to registered listeners.
type Notifier struct {
	mu        sync.RWMutex
	listeners []Listener
}

// Add registers l.
func (n *Notifier) Add(l Listener) {
	n.mu.Lock()
	n.listeners = append(n.listeners, l)
	n.mu.Unlock()
}

func (n *Notifier) emit(m Message) {
	if n == nil {
		return
	}
	n.mu.RLock()
	ls := n.listeners
	n.mu.RUnlock()
	for _, l := range ls {
		l.Notify(m)
	}
}
