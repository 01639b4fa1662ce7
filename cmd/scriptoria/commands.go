package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"scriptoria/internal/domain"
	"scriptoria/internal/usecase"
)

const renderWidth = 80

func runKey(ctx context.Context, args []string) error {
	a, err := parseArgs(args)
	if err != nil {
		return err
	}
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	switch a.arg(0) {
	case "set":
		if err := app.creds.Save(ctx, a.arg(1)); err != nil {
			return err
		}
		fmt.Println("API key saved.")
		if app.cfg.Store.Passphrase == "" {
			fmt.Fprintln(os.Stderr, "note: SCRIPTORIA_STORE_KEY is not set, the key is stored unencrypted")
		}
	case "clear":
		if err := app.creds.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("API key removed.")
	case "rotate":
		newPass := os.Getenv("SCRIPTORIA_NEW_STORE_KEY")
		if err := app.creds.Rotate(ctx, newPass); err != nil {
			return err
		}
		if newPass == "" {
			fmt.Println("API key decrypted and stored in plaintext.")
		} else {
			fmt.Println("API key re-encrypted. Set SCRIPTORIA_STORE_KEY to the new passphrase.")
		}
	case "status", "":
		src, err := app.creds.Source(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("API key source: %s\n", src)
	default:
		return fmt.Errorf("%w: unknown key subcommand %q", domain.ErrInvalidInput, a.arg(0))
	}
	return nil
}

func runStyle(ctx context.Context, args []string) error {
	a, err := parseArgs(args)
	if err != nil {
		return err
	}
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if a.arg(0) == "show" {
		return showStyle(ctx, app)
	}

	path := a.get("answers")
	if path == "" {
		return fmt.Errorf("%w: --answers FILE is required", domain.ErrInvalidInput)
	}
	answers, err := loadAnswers(path)
	if err != nil {
		return err
	}

	obs, done := terminalObserver(false)
	fmt.Fprintln(os.Stderr, "Analysing writing samples...")
	analysis, err := app.style.Analyze(ctx, answers, obs)
	done()
	if err != nil {
		return err
	}

	fmt.Println(renderMarkdown(profileMarkdown(&analysis.StyleProfile), renderWidth))
	fmt.Println("Style profile saved.")
	return nil
}

func showStyle(ctx context.Context, app *app) error {
	p, err := app.style.Profile(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		fmt.Println("No style profile yet. Run 'scriptoria style --answers FILE'.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println(renderMarkdown(profileMarkdown(p), renderWidth))
	return nil
}

func profileMarkdown(p *domain.StyleProfile) string {
	var b strings.Builder
	b.WriteString("# Style profile\n")
	for _, s := range []struct{ title, body string }{
		{"Diction", p.Diction},
		{"Syntax", p.Syntax},
		{"Rhythm", p.Rhythm},
		{"Tone", p.Tone},
		{"Humanisms", p.Humanisms},
	} {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", s.title, s.body)
	}
	return b.String()
}

// loadAnswers reads the four style samples from a YAML file.
func loadAnswers(path string) (domain.StyleAnswers, error) {
	var answers domain.StyleAnswers
	data, err := os.ReadFile(path)
	if err != nil {
		return answers, fmt.Errorf("%w: read answers: %v", domain.ErrInvalidInput, err)
	}
	if err := yaml.Unmarshal(data, &answers); err != nil {
		return answers, fmt.Errorf("%w: parse answers: %v", domain.ErrInvalidInput, err)
	}
	return answers, nil
}

// taskFromArgs builds a homework task from command flags.
func taskFromArgs(a *cmdArgs) (usecase.HomeworkTask, error) {
	task := usecase.HomeworkTask{
		Kind:     usecase.TaskText,
		Topic:    a.get("topic"),
		Subject:  a.get("subject"),
		TaskType: a.get("type"),
		Details:  a.get("details"),
	}
	if a.enabled("math") {
		task.Kind = usecase.TaskMath
	}
	if strings.TrimSpace(task.Topic) == "" {
		return task, fmt.Errorf("%w: --topic is required", domain.ErrInvalidInput)
	}
	files, err := usecase.LoadAttachments(a.all("file"))
	if err != nil {
		return task, err
	}
	task.Attachments = files
	return task, nil
}

func runHomework(ctx context.Context, args []string) error {
	a, err := parseArgs(args, "math", "copy")
	if err != nil {
		return err
	}
	task, err := taskFromArgs(a)
	if err != nil {
		return err
	}
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if ok, err := app.style.HasProfile(ctx); err == nil && !ok {
		fmt.Fprintln(os.Stderr, "note: no style profile yet, using a standard academic tone")
	}

	obs, done := terminalObserver(true)
	text, err := app.homework.Generate(ctx, task, obs)
	done()
	if err == nil && a.enabled("copy") {
		copyResult(os.Stderr, text)
	}
	return err
}

func runHumanize(ctx context.Context, args []string) error {
	a, err := parseArgs(args, "copy")
	if err != nil {
		return err
	}
	index, err := a.intValue("index", 0)
	if err != nil {
		return err
	}
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	entry, err := app.history.Get(ctx, index)
	if err != nil {
		return err
	}

	obs, done := terminalObserver(true)
	text, err := app.homework.Humanize(ctx, entry.Content, usecase.TaskFromHistory(entry), obs)
	done()
	if err != nil {
		fmt.Fprintln(os.Stderr, "humanization failed, history entry left unchanged")
		return err
	}
	if a.enabled("copy") {
		copyResult(os.Stderr, text)
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	a, err := parseArgs(args, "copy")
	if err != nil {
		return err
	}
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	switch a.arg(0) {
	case "", "list":
		entries, err := app.history.List(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No history yet.")
			return nil
		}
		for i, e := range entries {
			fmt.Printf("%2d  %-10s  %s\n", i, e.Timestamp, historyTitle(e))
		}
	case "show":
		index := 0
		if s := a.arg(1); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("%w: history index must be a number", domain.ErrInvalidInput)
			}
			index = n
		}
		e, err := app.history.Get(ctx, index)
		if err != nil {
			return err
		}
		fmt.Println(renderMarkdown("# "+historyTitle(e)+"\n\n"+e.Content, renderWidth))
		if a.enabled("copy") {
			copyResult(os.Stderr, e.Content)
		}
	case "clear":
		if err := app.history.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("History cleared.")
	default:
		return fmt.Errorf("%w: unknown history subcommand %q", domain.ErrInvalidInput, a.arg(0))
	}
	return nil
}

func historyTitle(e domain.HistoryEntry) string {
	parts := []string{e.Topic}
	if e.Subject != "" {
		parts = append(parts, e.Subject)
	}
	if e.TaskType != "" {
		parts = append(parts, e.TaskType)
	}
	return strings.Join(parts, " / ")
}
