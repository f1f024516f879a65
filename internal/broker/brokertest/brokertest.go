// Package brokertest provides in-memory stand-ins for the Kafka reader and
// writer.
package brokertest

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"
)

// ErrInjected is returned by writes that were told to fail.
var ErrInjected = errors.New("injected broker failure")

// Writer records written messages. FailAt, when set, fails the message with
// that zero-based index within the next WriteMessages call; the other
// messages in the call are still recorded, as a partially failed batch is.
type Writer struct {
	mu       sync.Mutex
	messages []kafka.Message
	failAt   int
	err      error
	closed   bool
	calls    int
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{failAt: -1}
}

// FailAt arms a single failure at index i of the next write.
func (w *Writer) FailAt(i int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failAt = i
}

// FailAll makes every write return err until cleared with nil.
func (w *Writer) FailAll(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

// WriteMessages implements broker.Writer.
func (w *Writer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.err != nil {
		return w.err
	}
	if w.failAt >= 0 && w.failAt < len(msgs) {
		errs := make(kafka.WriteErrors, len(msgs))
		for i, m := range msgs {
			if i == w.failAt {
				errs[i] = ErrInjected
				continue
			}
			w.messages = append(w.messages, m)
		}
		w.failAt = -1
		return errs
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

// Messages returns a copy of everything written so far.
func (w *Writer) Messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.messages...)
}

// Calls reports how many WriteMessages calls were made.
func (w *Writer) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

// Closed reports whether Close was called.
func (w *Writer) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close implements broker.Writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// Reader is a single partition consumer. Push appends records; FetchMessage
// blocks until one is available.
type Reader struct {
	topic   string
	records chan kafka.Message

	mu        sync.Mutex
	next      int64
	committed []int64
	commitErr error
	closed    bool
}

// NewReader returns a reader over an empty partition of topic.
func NewReader(topic string) *Reader {
	return &Reader{topic: topic, records: make(chan kafka.Message, 1024)}
}

// Push appends a record with value and returns its offset.
func (r *Reader) Push(value []byte, headers ...kafka.Header) int64 {
	r.mu.Lock()
	off := r.next
	r.next++
	r.mu.Unlock()
	r.records <- kafka.Message{Topic: r.topic, Partition: 0, Offset: off, Value: value, Headers: headers}
	return off
}

// FailCommits makes CommitMessages return err until cleared with nil.
func (r *Reader) FailCommits(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitErr = err
}

// FetchMessage implements broker.Reader.
func (r *Reader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.records:
		return m, nil
	}
}

// CommitMessages implements broker.Reader.
func (r *Reader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.commitErr != nil {
		return r.commitErr
	}
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

// Committed returns the committed offsets in commit order.
func (r *Reader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

// Closed reports whether Close was called.
func (r *Reader) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close implements broker.Reader.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
