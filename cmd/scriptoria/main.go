package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"scriptoria/internal/domain"
)

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "key":
		err = runKey(ctx, args)
	case "style":
		err = runStyle(ctx, args)
	case "homework":
		err = runHomework(ctx, args)
	case "humanize":
		err = runHumanize(ctx, args)
	case "history":
		err = runHistory(ctx, args)
	case "doctor":
		err = runDoctor(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'scriptoria --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, failureLine(os.Args[1], err))
		os.Exit(exitCode(err))
	}
}

// Exit codes.
const (
	exitFailure  = 1
	exitUsage    = 2
	exitSession  = 3
	exitCanceled = 130
)

// exitCode maps failures to process exit codes. A user abort is reported as
// canceled even though the stream also failed with a transport error.
func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return exitCanceled
	case errors.Is(err, domain.ErrInvalidInput):
		return exitUsage
	case domain.IsSessionFailure(err):
		return exitSession
	default:
		return exitFailure
	}
}

// failureLine formats the single line printed for a failed command.
func failureLine(cmd string, err error) string {
	if errors.Is(err, context.Canceled) {
		return cmd + ": canceled"
	}
	return fmt.Sprintf("%s: [%s] %v", cmd, domain.ErrorCodeOf(err), err)
}

func showUsage() {
	fmt.Println(`scriptoria - ghostwriting in your own style, streamed from Gemini

USAGE:
    scriptoria COMMAND [FLAGS]

COMMANDS:
    key set API_KEY       Store the Gemini API key
    key clear             Remove the stored API key
    key status            Show where the API key comes from
    key rotate            Re-encrypt the stored key under
                          SCRIPTORIA_NEW_STORE_KEY
    style --answers FILE  Analyse four writing samples (YAML: vibe, argument,
                          howto, cancel) and store the style profile
    style show            Print the stored style profile
    homework --topic T    Generate text in your style
                          [--math] [--subject S] [--type X] [--details D]
                          [--file PATH]... [--copy]
    humanize [--index N]  Rewrite a history entry to read as human (default 0)
                          [--copy]
    history [list]        List recent results, newest first
    history show N        Render a stored result [--copy]
    history clear         Remove all history
    doctor                Run health checks on your setup

FLAGS:
    -h, --help            Show this help message
    --config PATH         Config file path (default: ~/.scriptoria/config.yaml)
    --copy                Also copy the result to the clipboard

CONFIGURATION:
    Environment: SCRIPTORIA_* variables override the config file
    SCRIPTORIA_GEMINI_API_KEY   API key (takes precedence over the stored key)
    SCRIPTORIA_STORE_KEY        Passphrase that encrypts the stored key

Thinking is streamed to stderr and the answer to stdout; press Ctrl-C to
cancel a running request.

EXIT CODES:
    1 failure, 2 bad input, 3 failed model call, 130 canceled`)
}

// configPath returns the --config flag value, $SCRIPTORIA_CONFIG, or the
// default location under the home directory.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("SCRIPTORIA_CONFIG"); p != "" {
		return p
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.scriptoria/config.yaml"
	}
	return "config.yaml"
}
