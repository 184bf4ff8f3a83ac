package notifications

import (
	"slices"
	"sync"
)

type Notification struct {
	AppName   string `json:"app_name"`
	Summary   string `json:"summary"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// List is a newest-first notification list capped at a fixed size.
type List struct {
	mu    sync.RWMutex
	items []Notification
	max   int
}

func NewList(maxItems int) *List {
	if maxItems < 1 {
		maxItems = 1
	}

	return &List{max: maxItems}
}

// Add inserts n at the head and drops the oldest entries beyond the cap.
func (l *List) Add(n Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = slices.Insert(l.items, 0, n)
	if len(l.items) > l.max {
		l.items = l.items[:l.max]
	}
}

// Items returns a copy of the list, newest first.
func (l *List) Items() []Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return slices.Clone(l.items)
}

func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.items)
}

func (l *List) Clear() {
	l.mu.Lock()
	l.items = nil
	l.mu.Unlock()
}

// ClearApp removes every notification from app.
func (l *List) ClearApp(app string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = slices.DeleteFunc(l.items, func(n Notification) bool {
		return n.AppName == app
	})
}

// Remove deletes notifications matching app and timestamp. Entries sharing
// both values are indistinguishable and go together.
func (l *List) Remove(app string, timestamp int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = slices.DeleteFunc(l.items, func(n Notification) bool {
		return n.AppName == app && n.Timestamp == timestamp
	})
}
