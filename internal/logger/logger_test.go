package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/markis/coach/internal/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("creates a default text logger", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Info("hello", "key", "value")

			output := buf.String()
			Expect(output).To(ContainSubstring("hello"))
			Expect(output).To(ContainSubstring("key=value"))
		})

		It("respects debug level", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithDebug(true))
			l.Debug("debug msg")

			Expect(buf.String()).To(ContainSubstring("debug msg"))
		})

		It("filters debug when not enabled", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithDebug(false))
			l.Debug("hidden")

			Expect(buf.String()).To(BeEmpty())
		})

		It("parses level names", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithLevel("warn"))
			l.Info("quiet")
			l.Warn("loud")

			Expect(buf.String()).NotTo(ContainSubstring("quiet"))
			Expect(buf.String()).To(ContainSubstring("loud"))
		})

		It("ignores unknown level names", func() {
			l := logger.New(logger.WithLevel("chatty"))
			Expect(l.Handler().Enabled(context.Background(), slog.LevelInfo)).To(BeTrue())
			Expect(l.Handler().Enabled(context.Background(), slog.LevelDebug)).To(BeFalse())
		})

		It("creates a JSON logger", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
			l.Info("structured", "count", 42)

			var parsed map[string]any
			err := json.Unmarshal(buf.Bytes(), &parsed)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed["msg"]).To(Equal("structured"))
			Expect(parsed["count"]).To(BeNumerically("==", 42))
		})

		It("prefers JSON over pretty output", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithJSON(true))
			l.Info("structured")

			Expect(json.Valid(bytes.TrimSpace(buf.Bytes()))).To(BeTrue())
		})

		It("creates a pretty logger", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true))
			l.Info("pretty output", "session", "abc")

			Expect(buf.String()).To(ContainSubstring("pretty output"))
			Expect(buf.String()).To(ContainSubstring("abc"))
		})

		DescribeTable("selects the handler by format name",
			func(format string, match func(string)) {
				var buf bytes.Buffer
				l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithFormat(format))
				l.Info("formatted", "key", "value")
				match(buf.String())
			},
			Entry("text", "text", func(out string) {
				Expect(out).To(ContainSubstring("level=INFO"))
				Expect(out).To(ContainSubstring("msg=formatted"))
			}),
			Entry("json", "json", func(out string) {
				Expect(json.Valid(bytes.TrimSpace([]byte(out)))).To(BeTrue())
			}),
			Entry("pretty", "pretty", func(out string) {
				Expect(out).To(ContainSubstring("formatted"))
				Expect(out).NotTo(ContainSubstring("msg="))
				Expect(json.Valid(bytes.TrimSpace([]byte(out)))).To(BeFalse())
			}),
			Entry("unknown names keep the current handler", "fancy", func(out string) {
				Expect(out).NotTo(ContainSubstring("msg="))
			}),
		)

		It("includes the source location when asked", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithSource(true))
			l.Info("located")

			var parsed map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &parsed)).To(Succeed())
			Expect(parsed).To(HaveKey("source"))
		})

		It("supports multiple writers", func() {
			var buf1, buf2 bytes.Buffer
			l := logger.New(logger.WithWriters(&buf1, &buf2))
			l.Info("multi")

			Expect(buf1.String()).To(ContainSubstring("multi"))
			Expect(buf2.String()).To(ContainSubstring("multi"))
		})
	})

	Describe("Nop", func() {
		It("discards all output", func() {
			l := logger.Nop()
			Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
			Expect(func() {
				l.With("key", "value").WithGroup("group").Info("msg")
			}).NotTo(Panic())
		})
	})

	Describe("With", func() {
		It("binds fields to child logger", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
			child := l.With("session", "1234")
			child.Info("started")

			lines := strings.TrimSpace(buf.String())
			var parsed map[string]any
			err := json.Unmarshal([]byte(lines), &parsed)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed["session"]).To(Equal("1234"))
			Expect(parsed["msg"]).To(Equal("started"))
		})
	})
})
