package stream

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Process reads body until a terminal event, a read failure or context
// cancellation, sending every event on the Chunks channel in arrival order.
// The channel is closed and the body released on every exit path. A
// cancelled context ends the stream silently: no further chunks are sent.
func (p *Parser) Process(body io.ReadCloser) {
	defer close(p.chunks)

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := body.Close(); err != nil {
				p.logger.Debug("failed to close response body", "error", err)
			}
		})
	}
	defer release()

	// Unblock a pending Read when the context is cancelled.
	stop := context.AfterFunc(p.ctx, release)
	defer stop()

	decoder := NewDecoder()
	buf := make([]byte, p.readSize)

	for {
		if p.ctx.Err() != nil {
			return
		}

		n, err := body.Read(buf)
		if n > 0 {
			for _, frame := range decoder.Write(buf[:n]) {
				event, ok := Classify(frame)
				if !ok {
					p.logger.Debug("ignoring frame", "frame", frame)
					continue
				}

				p.logger.Debug("stream event", "kind", event.Kind, "bytes", len(event.Text))
				if !p.send(Chunk{Event: event}) {
					return
				}
				if event.Terminal() {
					return
				}
			}
		}

		if err == nil {
			continue
		}
		if p.ctx.Err() != nil {
			return
		}

		if errors.Is(err, io.EOF) {
			if dropped := decoder.Close(); dropped != "" {
				p.logger.Debug("dropping unterminated frame", "bytes", len(dropped))
			}
			err = ErrUnterminated
		}
		p.send(Chunk{Err: &TransportError{Err: err}})
		return
	}
}

func (p *Parser) send(chunk Chunk) bool {
	if p.ctx.Err() != nil {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.chunks <- chunk:
		return true
	}
}
