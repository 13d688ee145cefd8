package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/labexam-backend/internal/examclient"
	"github.com/stemsi/labexam-backend/internal/lockdown"
	"github.com/stemsi/labexam-backend/internal/logger"
	"github.com/stemsi/labexam-backend/internal/model"
	"golang.org/x/sync/errgroup"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Server     string
	DeviceFile string
	LogLevel   string

	log zerolog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "examclient",
		Short: "Lab exam workstation client",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.log = logger.New(os.Stderr, opts.LogLevel, "pretty")
			return nil
		},
	}

	home, _ := os.UserHomeDir()
	cmd.PersistentFlags().StringVar(&opts.Server, "server", envOr("LABEXAM_SERVER", "http://localhost:8080"), "exam server base URL")
	cmd.PersistentFlags().StringVar(&opts.DeviceFile, "device-file", filepath.Join(home, ".labexam", "device"), "where the registered device id is kept")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level")

	cmd.AddCommand(newRegisterCommand(opts))
	cmd.AddCommand(newExamsCommand(opts))
	cmd.AddCommand(newTakeCommand(opts))

	return cmd
}

// client builds an examclient with the stored device id, if any.
func (o *rootOptions) client() *examclient.Client {
	var clientOpts []examclient.Option
	if raw, err := os.ReadFile(o.DeviceFile); err == nil {
		if id, err := uuid.Parse(strings.TrimSpace(string(raw))); err == nil {
			clientOpts = append(clientOpts, examclient.WithDeviceID(id))
		}
	}
	return examclient.New(o.Server, clientOpts...)
}

// ─── register ───────────────────────────────────────────────────────────────

func newRegisterCommand(opts *rootOptions) *cobra.Command {
	var hostname, mac string

	cmd := &cobra.Command{
		Use:          "register",
		Short:        "Register this workstation and wait for admin approval",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if hostname == "" {
				h, err := os.Hostname()
				if err != nil {
					return fmt.Errorf("hostname: %w", err)
				}
				hostname = h
			}

			res, err := opts.client().Register(cmd.Context(), hostname, mac)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(opts.DeviceFile), 0o700); err != nil {
				return fmt.Errorf("create device dir: %w", err)
			}
			if err := os.WriteFile(opts.DeviceFile, []byte(res.DeviceID.String()+"\n"), 0o600); err != nil {
				return fmt.Errorf("store device id: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "device %s (%s): %s\n", res.DeviceID, hostname, res.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&hostname, "hostname", "", "hostname to register (default: os hostname)")
	cmd.Flags().StringVar(&mac, "mac", "", "MAC address")

	return cmd
}

// ─── exams ──────────────────────────────────────────────────────────────────

func newExamsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "exams",
		Short:        "List published exams (approved devices only)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			exams, err := opts.client().ListExams(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range exams {
				fmt.Fprintf(out, "%s  %-40s %3d min  %d questions\n", e.ExamCode, e.Title, e.DurationMinutes, e.QuestionCount)
			}
			return nil
		},
	}
}

// ─── take ───────────────────────────────────────────────────────────────────

func newTakeCommand(opts *rootOptions) *cobra.Command {
	var code, roll string

	cmd := &cobra.Command{
		Use:          "take",
		Short:        "Start or resume an exam and answer it on the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return take(ctx, opts, code, roll, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "exam code")
	cmd.Flags().StringVar(&roll, "roll", "", "participant roll number")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("roll")

	return cmd
}

// answerBook is the locally held copy of the participant's answers.
type answerBook struct {
	mu      sync.Mutex
	answers map[uuid.UUID]int
}

func (b *answerBook) set(id uuid.UUID, idx int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answers[id] = idx
}

func (b *answerBook) list() []model.AnswerInput {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.AnswerInput, 0, len(b.answers))
	for id, idx := range b.answers {
		idx := idx
		out = append(out, model.AnswerInput{QuestionID: id, SelectedIdx: &idx})
	}
	return out
}

func take(ctx context.Context, opts *rootOptions, code, roll string, in io.Reader, out io.Writer) error {
	c := opts.client()

	started, err := c.Start(ctx, roll, code)
	if err != nil {
		return err
	}
	verb := "Started"
	if started.Resuming {
		verb = "Resumed"
	}
	fmt.Fprintf(out, "%s %s, deadline %s\n", verb, started.ExamCode, started.Deadline.Local().Format("15:04:05"))

	content, err := c.Content(ctx)
	if err != nil {
		return err
	}

	book := &answerBook{answers: map[uuid.UUID]int{}}
	for _, q := range content.Questions {
		if q.SelectedIdx != nil {
			book.set(q.ID, *q.SelectedIdx)
		}
	}

	coord := lockdown.NewCoordinator(lockdown.Options{}, opts.log)
	if err := coord.Enter(); err != nil {
		return err
	}
	hb := lockdown.NewHeartbeater(coord, c, lockdown.HeartbeaterConfig{Answers: book.list}, opts.log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		result *model.SubmitResult
		once   sync.Once
	)
	finish := func(r *model.SubmitResult) {
		once.Do(func() { result = r; cancel() })
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		r, err := hb.Run(gctx)
		if err != nil {
			return ignoreCanceled(err)
		}
		fmt.Fprintln(out, "\nTime is up. Your answers were submitted.")
		finish(r)
		return nil
	})
	g.Go(func() error {
		if err := answer(gctx, c, content.Questions, book, readLines(gctx, in), out); err != nil {
			return ignoreCanceled(err)
		}
		r, err := hb.Finish(gctx)
		if err != nil {
			return ignoreCanceled(err)
		}
		finish(r)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if result == nil {
		return ctx.Err()
	}
	fmt.Fprintf(out, "Score: %d/%d (%.1f%%)\n", result.Score, result.Total, result.Percentage)
	return nil
}

// answer walks the questions, autosaving each choice, until the participant
// types "submit", input ends or ctx is done.
func answer(ctx context.Context, c *examclient.Client, questions []model.QuestionForStudent,
	book *answerBook, lines <-chan string, out io.Writer) error {
	for i := 0; i < len(questions); {
		q := questions[i]
		fmt.Fprintf(out, "\n%d. %s\n", q.Position, q.Text)
		for j, opt := range q.Options {
			fmt.Fprintf(out, "   [%d] %s\n", j+1, opt)
		}
		fmt.Fprint(out, "answer (number, enter to skip, 'submit' to finish): ")

		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "":
			i++
			continue
		case strings.EqualFold(line, "submit"):
			return nil
		}

		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(q.Options) {
			fmt.Fprintln(out, "invalid choice")
			continue
		}
		idx := n - 1
		if _, err := c.Save(ctx, q.ID, &idx); err != nil {
			if examclient.IsCode(err, "SESSION_EXPIRED") || examclient.IsCode(err, "ALREADY_SUBMITTED") {
				return nil
			}
			fmt.Fprintln(out, "save failed, will be sent with the final submit:", err)
		}
		book.set(q.ID, idx)
		i++
	}
	return nil
}

// readLines feeds stdin lines until input ends or ctx is done.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
