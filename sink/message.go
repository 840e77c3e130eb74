package sink

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Message is a run-time message emitted by a template.
type Message struct {
	Content  string
	Location Location
	// Terminate is set when the template asked for processing to stop. The engine
	// stops after the listener returns; the listener cannot prevent it.
	Terminate bool
	Time      time.Time
}

// MessageListener observes messages.
type MessageListener interface {
	Message(m Message)
}

// MessageListenerFunc adapts a function to the MessageListener interface.
type MessageListenerFunc func(m Message)

// Message calls f.
func (f MessageListenerFunc) Message(m Message) { f(m) }

// MessageLog collects messages in emission order.
type MessageLog struct {
	mu       sync.Mutex
	messages []Message
}

// Message appends m.
func (l *MessageLog) Message(m Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, m)
}

// Messages returns a copy of the collected messages.
func (l *MessageLog) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.messages...)
}

// WriterListener prints messages.
type WriterListener struct {
	Out io.Writer
}

// Message prints m with its location.
func (w *WriterListener) Message(m Message) {
	terminate := "no"
	if m.Terminate {
		terminate = "yes"
	}
	fmt.Fprintf(w.Out, "MESSAGE terminate=%s\n", terminate)
	if loc := m.Location.String(); loc != "" {
		fmt.Fprintf(w.Out, "From instruction at %s\n", loc)
	}
	fmt.Fprintf(w.Out, ">>%s\n", m.Content)
}
