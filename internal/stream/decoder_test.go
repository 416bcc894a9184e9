package stream_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/markis/coach/internal/stream"
)

// feed writes each chunk to a fresh decoder and returns every frame emitted.
func feed(chunks ...[]byte) []string {
	d := stream.NewDecoder()
	var frames []string
	for _, c := range chunks {
		frames = append(frames, d.Write(c)...)
	}
	return frames
}

var _ = Describe("Decoder", func() {
	Describe("Write", func() {
		It("emits frames terminated by a blank line", func() {
			frames := feed([]byte("data: first\n\ndata: second\n\n"))
			Expect(frames).To(Equal([]string{"data: first", "data: second"}))
		})

		It("keeps an unterminated frame pending", func() {
			d := stream.NewDecoder()
			Expect(d.Write([]byte("data: first\n\ndata: sec"))).To(Equal([]string{"data: first"}))
			Expect(d.Write([]byte("ond\n\n"))).To(Equal([]string{"data: second"}))
			Expect(d.Close()).To(BeEmpty())
		})

		It("trims whitespace around each frame", func() {
			frames := feed([]byte("\r\n  data: padded  \n\n"))
			Expect(frames).To(Equal([]string{"data: padded"}))
		})

		It("emits empty frames for consecutive delimiters", func() {
			frames := feed([]byte("data: a\n\n\n\ndata: b\n\n"))
			Expect(frames).To(Equal([]string{"data: a", "", "data: b"}))
		})

		It("finds a delimiter split across two chunks", func() {
			frames := feed([]byte("data: a\n"), []byte("\ndata: b\n"), []byte("\n"))
			Expect(frames).To(Equal([]string{"data: a", "data: b"}))
		})

		It("decodes a multi-byte rune split across chunks", func() {
			raw := []byte("data: café 🌍\n\n")
			// Split inside the four byte globe emoji.
			cut := len("data: café ") + 2
			frames := feed(raw[:cut], raw[cut:])
			Expect(frames).To(Equal([]string{"data: café 🌍"}))
		})

		It("replaces invalid UTF-8 with the replacement rune", func() {
			frames := feed([]byte("data: a\xffb\n\n"))
			Expect(frames).To(Equal([]string{"data: a�b"}))
		})

		Context("chunking invariance", func() {
			input := []byte("data: Hello\n\n: heartbeat\n\ndata:  wörld ✓\n\n\n\ndata: [DONE]\n\ndata: trailing")

			It("emits the same frames for every two-chunk split", func() {
				expected := feed(input)
				Expect(expected).To(HaveLen(5))

				for i := 0; i <= len(input); i++ {
					Expect(feed(input[:i], input[i:])).To(Equal(expected), "split at byte %d", i)
				}
			})

			It("emits the same frames when fed one byte at a time", func() {
				chunks := make([][]byte, len(input))
				for i := range input {
					chunks[i] = input[i : i+1]
				}
				Expect(feed(chunks...)).To(Equal(feed(input)))
			})
		})
	})

	Describe("Close", func() {
		It("drops and returns a frame that never saw a delimiter", func() {
			d := stream.NewDecoder()
			Expect(d.Write([]byte("data: done\n\ndata: part"))).To(HaveLen(1))

			Expect(d.Close()).To(Equal("data: part"))
			Expect(d.Close()).To(BeEmpty())
		})

		It("returns nothing when the stream ended on a delimiter", func() {
			d := stream.NewDecoder()
			d.Write([]byte("data: done\n\n"))
			Expect(d.Close()).To(BeEmpty())
		})

		It("flushes a dangling partial rune into the dropped text", func() {
			d := stream.NewDecoder()
			Expect(d.Write([]byte{'x', 0xE2, 0x9C})).To(BeEmpty())

			dropped := d.Close()
			Expect(dropped).To(HavePrefix("x"))
			Expect(dropped).To(ContainSubstring("\uFFFD"))
		})

		It("resets the decoder for reuse", func() {
			d := stream.NewDecoder()
			d.Write([]byte("data: old"))
			d.Close()

			Expect(d.Write([]byte("data: new\n\n"))).To(Equal([]string{"data: new"}))
		})
	})
})
