package transport

import (
	"errors"
	"io"
	"sync"

	"github.com/AtDexters-Lab/sim-protocol/internal/iface"
)

var _ iface.Stream = (*PipeStream)(nil)

// PipeStream joins a reader and a writer, typically the stdin and stdout of
// a backend launched as a frontend subprocess.
type PipeStream struct {
	r io.ReadCloser
	w io.WriteCloser

	closeOnce sync.Once
	closeErr  error
}

func NewPipeStream(r io.ReadCloser, w io.WriteCloser) *PipeStream {
	return &PipeStream{r: r, w: w}
}

func (s *PipeStream) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *PipeStream) Write(p []byte) (int, error) { return s.w.Write(p) }

// Close closes both halves. Closing an *os.File backed by a pipe unblocks a
// pending Read.
func (s *PipeStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.r.Close(), s.w.Close())
	})
	return s.closeErr
}
