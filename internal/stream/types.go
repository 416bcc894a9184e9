package stream

import (
	"context"
	"log/slog"

	"github.com/markis/coach/internal/logger"
)

const defaultReadSize = 4096

// Chunk is one step of a processed stream: a classified event, or the
// terminal error that ended the stream.
type Chunk struct {
	Event Event
	Err   error
}

// Parser turns a response body into chunks delivered on a channel.
type Parser struct {
	ctx      context.Context
	chunks   chan Chunk
	logger   *slog.Logger
	readSize int
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for frame tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// WithReadSize sets the size of the buffer handed to each body read.
func WithReadSize(size int) Option {
	return func(p *Parser) {
		if size > 0 {
			p.readSize = size
		}
	}
}

func NewParser(ctx context.Context, opts ...Option) *Parser {
	p := &Parser{
		ctx:      ctx,
		chunks:   make(chan Chunk),
		logger:   logger.Nop(),
		readSize: defaultReadSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Parser) Chunks() <-chan Chunk {
	return p.chunks
}
