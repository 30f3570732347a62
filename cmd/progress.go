package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/regcascade/internal/batch"
	"github.com/zjrosen/regcascade/internal/invoker"
	"github.com/zjrosen/regcascade/internal/presentation"
	"github.com/zjrosen/regcascade/internal/pubsub"
)

var (
	skippedStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#636E72", Dark: "#777777"})
	succeededStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00897B", Dark: "#26DE81"})
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D63031", Dark: "#FF6B6B"}).Bold(true)
)

// reportProgress prints invocation events to w until the returned stop
// function is called.
func reportProgress(ctx context.Context, w io.Writer, sub pubsub.Subscriber[invoker.Event]) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	events := sub.Subscribe(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range events {
			if line := progressLine(ev); line != "" {
				_, _ = fmt.Fprintln(w, line)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func progressLine(ev pubsub.Event[invoker.Event]) string {
	p := ev.Payload
	switch ev.Type {
	case pubsub.InvocationStarted:
		return fmt.Sprintf("%s  %s %s -> %s", ev.Timestamp.Format(time.TimeOnly), p.Job, p.Dialect, p.Output)
	case pubsub.InvocationSkipped:
		return skippedStyle.Render(fmt.Sprintf("%s  %s skipped, %s exists", ev.Timestamp.Format(time.TimeOnly), p.Job, p.Output))
	case pubsub.InvocationSucceeded:
		return succeededStyle.Render(fmt.Sprintf("%s  %s %s done in %s", ev.Timestamp.Format(time.TimeOnly), p.Job, p.Dialect, p.Duration.Round(time.Millisecond)))
	case pubsub.InvocationFailed:
		return failedStyle.Render(fmt.Sprintf("%s  %s %s failed (exit %d)", ev.Timestamp.Format(time.TimeOnly), p.Job, p.Dialect, p.ExitCode))
	}
	return ""
}

// printResults writes one line per job, or JSON, and returns an error when
// any job failed.
func printResults(w io.Writer, results []batch.Result, asJSON bool) error {
	if asJSON {
		if err := presentation.NewFormatter(w).FormatResults(presentation.FromResults(results)); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			name := r.Job
			if name == "" {
				name = r.Path
			}
			switch {
			case r.Err != nil:
				_, _ = fmt.Fprintf(w, "%s %s: %v\n", failedStyle.Render("failed   "), name, r.Err)
			case r.Outcome.Status == invoker.StatusSkipped:
				_, _ = fmt.Fprintf(w, "%s %s\n", skippedStyle.Render("skipped  "), name)
			default:
				_, _ = fmt.Fprintf(w, "%s %s\n", succeededStyle.Render("succeeded"), name)
			}
		}
	}

	s := batch.Summarize(results)
	if !asJSON && len(results) > 1 {
		_, _ = fmt.Fprintf(w, "%d succeeded, %d skipped, %d failed\n", s.Succeeded, s.Skipped, s.Failed)
	}
	if s.Failed > 0 {
		return fmt.Errorf("%d of %d job(s) failed", s.Failed, len(results))
	}
	return nil
}
