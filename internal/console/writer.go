package console

import (
	"fmt"
	"io"
	"sync"
)

// WriterFacade fans log output out to a swappable set of writers, so logs can
// be redirected above the readline prompt while a chat is running.
type WriterFacade struct {
	delegates []io.Writer
	mutex     sync.RWMutex
}

func NewWriterFacade(delegates ...io.Writer) *WriterFacade {
	return &WriterFacade{delegates: delegates}
}

func (w *WriterFacade) Write(p []byte) (n int, err error) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	for i, d := range w.delegates {
		var nn int
		if nn, err = d.Write(p); err != nil {
			return n, err
		}
		if i == 0 {
			n = nn
		} else if n != nn {
			return n, fmt.Errorf("the previous writer wrote %d, but the current one wrote %d bytes", n, nn)
		}
	}
	return n, nil
}

// Set replaces the delegates and returns the previous ones.
func (w *WriterFacade) Set(next ...io.Writer) (previous []io.Writer) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	previous = w.delegates
	w.delegates = next
	return previous
}
