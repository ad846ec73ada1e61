// Package notify carries transient user notifications (toasts and loading
// indicators) from the pipeline to whatever UI is attached. Delivery is
// fire-and-forget: notifiers never block and never fail the caller.
package notify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Notifier receives one-shot user-visible notices.
type Notifier interface {
	Toast(message string)
	ShowLoading(text string)
	HideLoading()
}

// Notice is a recorded toast.
type Notice struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Toast(string)       {}
func (Discard) ShowLoading(string) {}
func (Discard) HideLoading()       {}

// Writer prints toasts to a terminal stream.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriter creates a notifier printing to out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) Toast(message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "💬 %s\n", message)
}

func (w *Writer) ShowLoading(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "⏳ %s\n", text)
}

func (w *Writer) HideLoading() {}

// Log forwards notifications to a logger at info level.
type Log struct {
	Logger logrus.FieldLogger
}

func (l Log) Toast(message string) {
	l.Logger.WithField("component", "notify").Info(message)
}

func (l Log) ShowLoading(text string) {
	l.Logger.WithField("component", "notify").Debug(text)
}

func (l Log) HideLoading() {}

// Buffer keeps the most recent toasts in memory so that a polling UI can
// pick them up. It is also what tests use to assert on notifications.
type Buffer struct {
	mu      sync.Mutex
	max     int
	notices []Notice
	loading int
}

// NewBuffer creates a buffer holding at most max notices.
func NewBuffer(max int) *Buffer {
	if max < 1 {
		max = 1
	}
	return &Buffer{max: max}
}

func (b *Buffer) Toast(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, Notice{Message: message, At: time.Now()})
	if len(b.notices) > b.max {
		b.notices = b.notices[len(b.notices)-b.max:]
	}
}

func (b *Buffer) ShowLoading(string) {
	b.mu.Lock()
	b.loading++
	b.mu.Unlock()
}

func (b *Buffer) HideLoading() {
	b.mu.Lock()
	if b.loading > 0 {
		b.loading--
	}
	b.mu.Unlock()
}

// Notices returns a copy of the buffered toasts, oldest first.
func (b *Buffer) Notices() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notice, len(b.notices))
	copy(out, b.notices)
	return out
}

// Messages returns just the toast texts, oldest first.
func (b *Buffer) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.notices))
	for i, n := range b.notices {
		out[i] = n.Message
	}
	return out
}

// Loading reports whether a loading indicator is currently shown.
func (b *Buffer) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading > 0
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Toast(message string) {
	for _, n := range m {
		n.Toast(message)
	}
}

func (m Multi) ShowLoading(text string) {
	for _, n := range m {
		n.ShowLoading(text)
	}
}

func (m Multi) HideLoading() {
	for _, n := range m {
		n.HideLoading()
	}
}
