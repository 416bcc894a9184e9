package stream

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Delimiter separates frames in the decoded text of a stream.
const Delimiter = "\n\n"

// Decoder turns an arbitrarily chunked byte stream into complete text
// frames. Chunks are UTF-8 decoded as one continuous stream, so a rune split
// across two chunks is decoded once both halves have arrived.
//
// A Decoder is not safe for concurrent use. Use one Decoder per stream.
type Decoder struct {
	utf8 transform.Transformer

	// raw holds the trailing bytes of an incomplete rune.
	raw []byte
	dst []byte

	// pending is the text received since the last delimiter.
	pending string
}

// NewDecoder returns a Decoder with an empty pending buffer.
func NewDecoder() *Decoder {
	return &Decoder{utf8: unicode.UTF8.NewDecoder()}
}

// Write appends chunk to the pending buffer and returns the frames it
// completed, in arrival order and with surrounding whitespace trimmed. The
// text after the last delimiter stays pending.
func (d *Decoder) Write(chunk []byte) []string {
	d.pending += d.decode(chunk, false)
	if !strings.Contains(d.pending, Delimiter) {
		return nil
	}

	parts := strings.Split(d.pending, Delimiter)
	d.pending = parts[len(parts)-1]

	frames := make([]string, 0, len(parts)-1)
	for _, part := range parts[:len(parts)-1] {
		frames = append(frames, strings.TrimSpace(part))
	}
	return frames
}

// Close ends the stream. A frame that was never terminated by a delimiter is
// incomplete and is not emitted; Close returns it so callers can report it.
// The Decoder is reset and may be reused for a new stream.
func (d *Decoder) Close() string {
	dropped := d.pending + d.decode(nil, true)
	d.pending = ""
	d.raw = d.raw[:0]
	d.utf8.Reset()
	return dropped
}

func (d *Decoder) decode(p []byte, atEOF bool) string {
	d.raw = append(d.raw, p...)
	if len(d.raw) == 0 {
		return ""
	}

	var out strings.Builder
	for {
		// Each invalid byte may expand to a 3 byte replacement rune.
		if need := 3*len(d.raw) + utf8.UTFMax; len(d.dst) < need {
			d.dst = make([]byte, need)
		}

		nDst, nSrc, err := d.utf8.Transform(d.dst, d.raw, atEOF)
		out.Write(d.dst[:nDst])
		d.raw = d.raw[nSrc:]

		// ErrShortSrc means the tail is a partial rune; keep it for the next chunk.
		if err != transform.ErrShortDst || len(d.raw) == 0 {
			break
		}
	}
	return out.String()
}
