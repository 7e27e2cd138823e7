// Package notify is the process-wide channel for ephemeral user-facing
// notices: the request pipeline announces forced logouts through it, the
// inactivity monitor its warnings, and the UI layer renders whatever arrives.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level classifies a notice for display purposes.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Default display durations per level, mirrored from the dashboard toasts.
const (
	DefaultSuccessDuration = 3 * time.Second
	DefaultErrorDuration   = 5 * time.Second
	DefaultWarningDuration = 4 * time.Second
	DefaultInfoDuration    = 3 * time.Second
)

// Notice is a single ephemeral message for the user.
type Notice struct {
	ID       string
	Level    Level
	Message  string
	Duration time.Duration
}

// noticeBuffer bounds each subscriber channel; publishing never blocks.
const noticeBuffer = 32

// Notifier broadcasts notices to any number of subscribers.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]chan Notice
	next int
}

// New creates a Notifier with no subscribers.
func New() *Notifier {
	return &Notifier{subs: make(map[int]chan Notice)}
}

// Subscribe registers an observer for future notices. The returned cancel
// function is idempotent.
func (n *Notifier) Subscribe() (<-chan Notice, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan Notice, noticeBuffer)
	n.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Success publishes a success notice. Zero duration selects the default.
func (n *Notifier) Success(message string, duration time.Duration) {
	n.publish(LevelSuccess, message, duration, DefaultSuccessDuration)
}

// Error publishes an error notice.
func (n *Notifier) Error(message string, duration time.Duration) {
	n.publish(LevelError, message, duration, DefaultErrorDuration)
}

// Warning publishes a warning notice.
func (n *Notifier) Warning(message string, duration time.Duration) {
	n.publish(LevelWarning, message, duration, DefaultWarningDuration)
}

// Info publishes an info notice.
func (n *Notifier) Info(message string, duration time.Duration) {
	n.publish(LevelInfo, message, duration, DefaultInfoDuration)
}

func (n *Notifier) publish(level Level, message string, duration, fallback time.Duration) {
	if duration <= 0 {
		duration = fallback
	}
	notice := Notice{
		ID:       uuid.New().String(),
		Level:    level,
		Message:  message,
		Duration: duration,
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- notice:
		default: // a stalled subscriber must not stall the pipeline
		}
	}
}
