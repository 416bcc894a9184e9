package args

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/markis/coach/internal/config"
)

// ErrHelp is returned when the user asked for help; usage has been printed.
var ErrHelp = errors.New("help requested")

// Arguments represents the command-line arguments structure.
type Arguments struct {
	Prompts      []string
	Command      string
	Endpoint     string
	UsePlainText bool
	Debug        bool
	JSONLogs     bool
	Interactive  bool

	helped bool
}

// Query joins the collected prompts into the text sent to the service.
func (a Arguments) Query() string {
	return strings.Join(a.Prompts, "\n\n")
}

// ParseArgs parses command-line arguments and stdin input, returning an Arguments struct.
// Piped stdin becomes a prompt. With no prompt and a terminal on stdin the
// session is interactive.
func ParseArgs(cfg config.Config, argv []string) (Arguments, error) {
	stdinIsTerminal := term.IsTerminal(int(os.Stdin.Fd()))

	var stdin io.Reader
	if !stdinIsTerminal {
		stdin = os.Stdin
	}

	args, err := parse(cfg, argv, stdin)
	if err != nil {
		return Arguments{}, err
	}
	if args.helped {
		return Arguments{}, ErrHelp
	}

	if len(args.Prompts) == 0 {
		if !stdinIsTerminal {
			return Arguments{}, errors.New("no prompt provided")
		}
		args.Interactive = true
	}

	return args, nil
}

func parse(cfg config.Config, argv []string, stdin io.Reader) (Arguments, error) {
	args := Arguments{}
	rootCmd := NewRootCommand(cfg, &args)
	// A nil slice makes cobra fall back to os.Args.
	if argv == nil {
		argv = []string{}
	}
	rootCmd.SetArgs(argv)

	// Read from stdin if available
	if stdin != nil {
		prompt, err := readPrompt(stdin)
		if err != nil {
			return Arguments{}, err
		}
		if prompt != "" {
			args.Prompts = append(args.Prompts, prompt)
		}
	}

	// Execute the command
	if err := rootCmd.Execute(); err != nil {
		return Arguments{}, err
	}

	return args, nil
}

// NewRootCommand builds the cobra command tree. Executing it fills args.
// Every configured prompt becomes a subcommand whose text follows any
// positional input.
func NewRootCommand(cfg config.Config, args *Arguments) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "coach [command] [flags] [prompt]",
		Short: "Ask the coach a question and stream the answer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			// Handle direct prompts (when no command is specified)
			if len(cmdArgs) > 0 {
				args.Prompts = append(args.Prompts, cmdArgs[0])
			}
			return nil
		},
		SilenceErrors: true, // We'll handle error reporting
		SilenceUsage:  true, // We'll handle usage display
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&args.Endpoint, "endpoint", cfg.Endpoint, "The chat endpoint URL")
	rootCmd.PersistentFlags().BoolVar(&args.UsePlainText, "plain", shouldUsePlainText(cfg), "Disable markdown rendering")
	rootCmd.PersistentFlags().BoolVar(&args.Debug, "debug", cfg.Log.Level == "debug", "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&args.JSONLogs, "json-logs", cfg.Log.Format == "json", "Write logs as JSON")

	defaultHelp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, s []string) {
		args.helped = true
		defaultHelp(cmd, s)
	})

	// Add predefined commands
	for name, prompt := range cfg.Prompts {
		cmd := &cobra.Command{
			Use:   name + " [input]",
			Short: summarizePrompt(prompt),
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, cmdArgs []string) error {
				args.Command = name
				if len(cmdArgs) > 0 {
					args.Prompts = append(args.Prompts, cmdArgs[0])
				}
				args.Prompts = append(args.Prompts, prompt)
				return nil
			},
		}
		rootCmd.AddCommand(cmd)
	}

	return rootCmd
}

func readPrompt(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max buffer
	var buf strings.Builder
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// shouldUsePlainText determines if plain text output should be used based on environment and terminal settings.
func shouldUsePlainText(cfg config.Config) bool {
	// Check if the rendering format is set to plain
	if cfg.Render.Format == "plain" {
		return true
	}

	// Check if output is being redirected
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return true
	}

	// Check for NO_COLOR environment variable
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return true
	}

	// Check for TERM=dumb
	if term := os.Getenv("TERM"); term == "dumb" {
		return true
	}

	return false
}

func summarizePrompt(prompt string) string {
	// Trim and limit the length of the prompt summary
	summary := strings.TrimSpace(prompt)
	if len(summary) > 60 {
		summary = summary[:57] + "..."
	}
	return summary
}
