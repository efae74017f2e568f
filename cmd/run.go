package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/roundtable/config"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/notify"
	"github.com/hupe1980/roundtable/orchestrator"
)

type runOptions struct {
	topic        string
	participants []string
	maxTurns     int
	routing      string
	resolution   string
	profiles     string
	mock         bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one session to completion and print the transcript",
		Long: "run creates a session, drives it to completion and prints the transcript, the summary and the proposed follow-up items. " +
			"Include \"user\" in --participants to take human turns from stdin.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.topic, "topic", "", "conversation topic")
	cmd.Flags().StringSliceVar(&opts.participants, "participants", nil, "ordered participant IDs (\"user\" for the human)")
	cmd.Flags().IntVar(&opts.maxTurns, "max-turns", 6, "maximum number of official turns")
	cmd.Flags().StringVar(&opts.routing, "routing", string(core.RoutingRoundRobin), "speaker selection: round-robin or smart")
	cmd.Flags().StringVar(&opts.resolution, "resolution", string(core.ResolutionPropose), "resolution mode: auto, propose or none")
	cmd.Flags().StringVar(&opts.profiles, "profiles", "", "agent profile file (overrides profiles.path)")
	cmd.Flags().BoolVar(&opts.mock, "mock", false, "use the scripted mock backend")
	_ = cmd.MarkFlagRequired("topic")
	_ = cmd.MarkFlagRequired("participants")
	return cmd
}

func runSession(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	routing := core.RoutingMode(opts.routing)
	if !routing.Valid() {
		return fmt.Errorf("unknown routing mode %q", opts.routing)
	}
	resolutionMode := core.ResolutionMode(opts.resolution)
	if !resolutionMode.Valid() {
		return fmt.Errorf("unknown resolution mode %q", opts.resolution)
	}

	cfg, err := config.Load(root.configPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	closeNotice := notify.Func(func(_ context.Context, channel, message string) error {
		_, err := fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", channel, message)
		return err
	})
	a, err := wireApp(cfg, io.Discard, wireOptions{
		forceMock:    opts.mock,
		profilesPath: opts.profiles,
		notifier:     closeNotice,
	})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := a.rt.CreateSession(ctx, opts.topic, opts.participants, opts.maxTurns, func(s *core.Session) {
		s.RoutingMode = routing
		s.ResolutionMode = resolutionMode
	})
	if err != nil {
		return err
	}

	r := newRenderer(out, a.profiles.Profiles(sess.Participants))
	r.header(sess)

	orch := a.rt.Orchestrator()
	events, unsubscribe := orch.Subscribe(sess.ID)
	var lines <-chan string
	if slices.Contains(sess.Participants, core.UserActorID) {
		lines = readLines(cmd.InOrStdin())
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		follow(ctx, orch, r, sess.ID, events, lines)
	}()

	runErr := a.rt.Run(ctx, sess.ID)
	unsubscribe()
	<-done
	if runErr != nil {
		return runErr
	}

	final, err := a.rt.Store().Get(context.WithoutCancel(ctx), sess.ID)
	if err != nil {
		return err
	}
	r.summary(final.Metadata.Summary)
	r.resolution(final.Metadata.Resolution)
	return nil
}

// follow prints the live feed and answers human turns from lines. It
// returns when events is closed.
func follow(ctx context.Context, orch *orchestrator.Orchestrator, r *renderer, sessionID string, events <-chan orchestrator.Event, lines <-chan string) {
	waiting := false
	for {
		var input <-chan string
		if waiting {
			input = lines
		}
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case orchestrator.EventMessage:
				if ev.Message != nil {
					r.message(*ev.Message)
				}
			case orchestrator.EventTurnSkipped:
				r.skipped(ev.TurnNumber, ev.ActorID, ev.Reason)
			case orchestrator.EventLoopState:
				waiting = ev.State == orchestrator.StateWaitingForUser
				if waiting && lines != nil {
					r.prompt(ev.TurnNumber)
				}
			}
		case line, ok := <-input:
			if !ok {
				lines = nil
				continue
			}
			waiting = false
			if _, err := orch.SubmitUserMessage(ctx, sessionID, line); err != nil {
				r.note(fmt.Sprintf("input rejected: %v", err))
			}
		}
	}
}

func readLines(in io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				out <- line
			}
		}
	}()
	return out
}
