package streamclient

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/pkg/sse"
)

// Stream is a lazy, finite, non-restartable sequence of events from one
// connection.
//
// Next and Close may be called from different goroutines. Once Close has
// returned no further events are delivered.
type Stream struct {
	body   io.ReadCloser
	header http.Header
	cancel func()
	logger *zap.Logger

	// mu serializes reads against the final release of the parser.
	mu     sync.Mutex
	reader *sse.Reader

	closed    atomic.Bool
	closeOnce sync.Once
}

func newStream(body io.ReadCloser, header http.Header, cancel func(), logger *zap.Logger) *Stream {
	return &Stream{
		body:   body,
		header: header,
		cancel: cancel,
		logger: logger,
		reader: sse.NewReader(body),
	}
}

// Header returns the response headers the stream was opened with.
func (s *Stream) Header() http.Header {
	return s.header
}

// Next returns the next event. It returns io.EOF when the server ended the
// stream cleanly, an error wrapping ErrTransport when reading failed, and
// ErrClosed once Close has been called.
func (s *Stream) Next() (*sse.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrClosed
	}

	ev, err := s.reader.Next()
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if ev == nil {
		return nil, io.EOF
	}
	return ev, nil
}

// Close cancels the request and releases the connection. It is safe to call
// more than once; only the first call has an effect.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		err = s.body.Close()

		// A blocked Next returns once the body is closed.
		s.mu.Lock()
		s.reader.Close()
		s.mu.Unlock()

		s.logger.Debug("event stream closed")
	})
	return err
}
