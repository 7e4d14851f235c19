package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/ergochat/readline"
	"github.com/spf13/cobra"

	"github.com/nikhilthomas300/myCompanion/client"
	"github.com/nikhilthomas300/myCompanion/internal/render"
	"github.com/nikhilthomas300/myCompanion/store"
)

var chatThread string

var promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)

const chatHelp = `Commands:
  /reset                       start a new conversation
  /transcript                  show the whole conversation
  /feedback <id> <kind>        like, dislike or copy a message
  /review <action> [notes]     approve, reject or modify a pending tool result
  /help                        show this help
  /quit                        exit

Ctrl-C while the agent is answering stops the run.`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatThread, "thread", "", "Continue an existing thread ID")
}

// chatSession is one interactive conversation.
type chatSession struct {
	out    io.Writer
	client *client.Client
	store  *store.Store
	r      *render.Renderer
}

// turnBuffer is how many published states a turn may fall behind before
// the oldest are dropped. The stream writer only needs the newest.
const turnBuffer = 64

func runChat(cmd *cobra.Command, args []string) error {
	cfg, logger, c, err := setup()
	if err != nil {
		return err
	}
	r, err := newRenderer(cfg)
	if err != nil {
		return err
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:          promptStyle.Render("you") + " › ",
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	opts := []store.Option{store.WithLogger(logger)}
	if chatThread != "" {
		opts = append(opts, store.WithThreadID(chatThread))
	}
	s := &chatSession{
		out:    cmd.OutOrStdout(),
		client: c,
		store:  store.New(c, opts...),
		r:      r,
	}
	defer s.store.Close()

	fmt.Fprintf(s.out, "Connected to %s (thread %s). Type /help for commands.\n",
		c.BaseURL(), s.store.State().ThreadID)

	for {
		line, err := rl.ReadLine()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := s.command(cmd.Context(), line); quit {
				return nil
			}
			continue
		}
		s.send(cmd.Context(), line)
	}
}

// send runs one turn, streaming the reply as it arrives. SIGINT during the
// turn stops the run instead of exiting.
func (s *chatSession) send(ctx context.Context, text string) {
	stream := render.NewStream(s.out, s.r, s.store.State())
	id, states := s.store.Subscribe(turnBuffer)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for st := range states {
			stream.Update(st)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sig:
			s.store.StopStreaming()
		case <-done:
		}
	}()

	err := s.store.Send(ctx, text)
	s.store.Unsubscribe(id)
	<-drained
	stream.Finish()

	st := s.store.State()
	switch {
	case errors.Is(err, store.ErrBusy):
		fmt.Fprintln(s.out, s.r.Error("the agent is still answering"))
	case st.Error != "":
		fmt.Fprintln(s.out, s.r.Error(st.Error))
	case err != nil:
		fmt.Fprintln(s.out, s.r.Error(err.Error()))
	}
	for _, a := range st.Artifacts {
		fmt.Fprintln(s.out, s.r.Artifact(a))
	}
}

// command handles a slash command and reports whether the session should
// end.
func (s *chatSession) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(s.out, chatHelp)
	case "/reset":
		s.store.Reset()
		fmt.Fprintf(s.out, "New conversation (thread %s).\n", s.store.State().ThreadID)
	case "/transcript":
		fmt.Fprint(s.out, s.r.Transcript(s.store.State()))
	case "/feedback":
		if len(fields) != 3 {
			fmt.Fprintln(s.out, "usage: /feedback <message-id> <like|dislike|copy>")
			return false
		}
		kind, err := client.ParseFeedbackKind(fields[2])
		if err == nil {
			err = s.client.SubmitFeedback(ctx, fields[1], kind)
		}
		s.report(err, "feedback recorded")
	case "/review":
		if len(fields) < 2 {
			fmt.Fprintln(s.out, "usage: /review <approve|reject|modify> [notes]")
			return false
		}
		action, err := client.ParseHumanAction(fields[1])
		if err == nil {
			err = s.client.SubmitHumanAction(ctx, action, strings.Join(fields[2:], " "))
		}
		s.report(err, "review sent")
	default:
		fmt.Fprintf(s.out, "unknown command %s, try /help\n", fields[0])
	}
	return false
}

func (s *chatSession) report(err error, ok string) {
	if err != nil {
		fmt.Fprintln(s.out, s.r.Error(err.Error()))
		return
	}
	fmt.Fprintln(s.out, ok)
}
