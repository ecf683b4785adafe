package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// writeOp is either a line to write or, when ack is set, a flush request.
type writeOp struct {
	line []byte
	ack  chan error
}

// asyncWriter moves encoding off the hot path: Write only queues the line
// and a single goroutine copies queued lines to every output.
type asyncWriter struct {
	ops     chan writeOp
	done    chan struct{}
	closing sync.Once

	mu  sync.Mutex
	err error
	out *bufio.Writer
}

func newAsyncWriter(outputs []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 << 10
	}
	live := outputs[:0:0]
	for _, w := range outputs {
		if w != nil {
			live = append(live, w)
		}
	}
	w := &asyncWriter{
		ops:  make(chan writeOp, 256),
		done: make(chan struct{}),
		out:  bufio.NewWriterSize(io.MultiWriter(live...), bufSize),
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for op := range w.ops {
		if op.ack != nil {
			op.ack <- w.out.Flush()
			continue
		}
		if _, err := w.out.Write(op.line); err != nil {
			w.fail(err)
			continue
		}
		// Lines are flushed as soon as the queue drains.
		if len(w.ops) == 0 {
			if err := w.out.Flush(); err != nil {
				w.fail(err)
			}
		}
	}
	if err := w.out.Flush(); err != nil {
		w.fail(err)
	}
}

// Write queues a copy of line. It blocks only while the queue is full.
func (w *asyncWriter) Write(line []byte) error {
	if err := w.Err(); err != nil {
		return err
	}
	if len(line) == 0 {
		return nil
	}
	w.ops <- writeOp{line: append([]byte(nil), line...)}
	return nil
}

// Flush returns once every line queued before the call reached the outputs.
func (w *asyncWriter) Flush() error {
	select {
	case <-w.done:
		return w.Err()
	default:
	}
	ack := make(chan error, 1)
	w.ops <- writeOp{ack: ack}
	return errors.Join(<-ack, w.Err())
}

// Close drains the queue and stops the writer goroutine.
func (w *asyncWriter) Close() error {
	w.closing.Do(func() { close(w.ops) })
	<-w.done
	return w.Err()
}

// Err reports the first write error.
func (w *asyncWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *asyncWriter) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
