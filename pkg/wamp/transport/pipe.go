package transport

import (
	"context"
	"io"
	"sync"
)

const pipeBufferSize = 64

// PipeTransport is one end of an in-memory connection created by Pipe.
type PipeTransport struct {
	in     <-chan []byte
	out    chan<- []byte
	closed chan struct{}
	once   *sync.Once
}

// Pipe returns two connected in-memory transports. Frames sent on one end are
// received on the other in order. Closing either end closes both; frames
// already buffered are still delivered before Recv reports io.EOF.
func Pipe() (*PipeTransport, *PipeTransport) {
	ab := make(chan []byte, pipeBufferSize)
	ba := make(chan []byte, pipeBufferSize)
	closed := make(chan struct{})
	once := &sync.Once{}

	a := &PipeTransport{in: ba, out: ab, closed: closed, once: once}
	b := &PipeTransport{in: ab, out: ba, closed: closed, once: once}
	return a, b
}

func (p *PipeTransport) Send(ctx context.Context, frame []byte) error {
	select {
	case <-p.closed:
		return io.ErrClosedPipe
	default:
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case p.out <- buf:
		return nil
	case <-p.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PipeTransport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-p.in:
		return frame, nil
	default:
	}

	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.closed:
		select {
		case frame := <-p.in:
			return frame, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *PipeTransport) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// Closed is closed once either end of the pipe has been closed.
func (p *PipeTransport) Closed() <-chan struct{} {
	return p.closed
}
