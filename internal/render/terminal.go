package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/cli/go-gh/v2/pkg/markdown"

	"github.com/markis/coach/internal/transcript"
)

const defaultWrap = 120

var (
	assistantLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant>")
	userLabel      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you>")
)

// UserPrompt is printed before reading a line in interactive mode.
func UserPrompt() string {
	return userLabel + " "
}

// TerminalRenderer prints assistant turns as they grow. Plain text is written
// as soon as it arrives; markdown is buffered and rendered up to the last
// paragraph break, with the remainder rendered when the turn closes.
type TerminalRenderer struct {
	out       io.Writer
	markdown  *glamour.TermRenderer
	plainText bool

	mu     sync.Mutex
	buffer strings.Builder
	// turn is the index of the turn being rendered; offset is how much of
	// its text has been consumed.
	turn    int
	offset  int
	labeled bool
}

func NewTerminalRenderer(out io.Writer, usePlainText bool, wrap int) *TerminalRenderer {
	if wrap <= 0 {
		wrap = defaultWrap
	}

	var md *glamour.TermRenderer
	if !usePlainText {
		var err error
		md, err = glamour.NewTermRenderer(
			markdown.WithWrap(wrap),
			glamour.WithAutoStyle(),
		)
		if err != nil {
			usePlainText = true
		}
	}

	return &TerminalRenderer{
		out:       out,
		markdown:  md,
		plainText: usePlainText,
	}
}

// Update renders whatever is new in turns since the previous call. User
// turns are not echoed.
func (t *TerminalRenderer) Update(turns []transcript.Turn) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for t.turn < len(turns) {
		turn := turns[t.turn]
		if turn.Role != transcript.RoleAssistant {
			t.turn++
			continue
		}

		if !t.labeled {
			if _, err := fmt.Fprintln(t.out, assistantLabel); err != nil {
				return err
			}
			t.labeled = true
		}

		if t.offset > len(turn.Text) {
			// The text was replaced rather than extended.
			t.offset = 0
		}
		t.buffer.WriteString(turn.Text[t.offset:])
		t.offset = len(turn.Text)

		if turn.Open {
			return t.flushToBreakPoint()
		}

		if err := t.flushAll(); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(t.out); err != nil {
			return err
		}
		t.turn++
		t.offset = 0
		t.labeled = false
	}

	return nil
}

func (t *TerminalRenderer) flushToBreakPoint() error {
	content := t.buffer.String()
	if t.plainText {
		return t.flushAll()
	}

	if idx := findMarkdownBreakPoint(content); idx > 0 {
		if err := t.renderContent(content[:idx]); err != nil {
			return err
		}
		// Reset buffer with remaining content
		remaining := content[idx:]
		t.buffer.Reset()
		t.buffer.WriteString(remaining)
	}
	return nil
}

func (t *TerminalRenderer) flushAll() error {
	remaining := t.buffer.String()
	t.buffer.Reset()
	if remaining == "" {
		return nil
	}
	return t.renderContent(remaining)
}

func (t *TerminalRenderer) renderContent(content string) error {
	if t.plainText {
		_, err := fmt.Fprint(t.out, content)
		return err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if strings.HasPrefix(content, "#") {
		if _, err := fmt.Fprintln(t.out); err != nil {
			return err
		}
	}

	mdContent, err := t.markdown.Render(content)
	if err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}

	_, err = fmt.Fprintln(t.out, strings.TrimSpace(mdContent))
	return err
}

func findMarkdownBreakPoint(content string) int {
	const marker string = "\n\n"
	lastBreak := -1
	idx := strings.LastIndex(content, marker)
	if idx > lastBreak {
		lastBreak = idx + len(marker)
	}
	return lastBreak
}
