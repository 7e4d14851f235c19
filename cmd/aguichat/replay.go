package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nikhilthomas300/myCompanion/chatmodel"
	"github.com/nikhilthomas300/myCompanion/internal/render"
	"github.com/nikhilthomas300/myCompanion/internal/sse"
	"github.com/nikhilthomas300/myCompanion/protocol"
)

var (
	replayJSON   bool
	replayFollow bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file|->",
	Short: "Reconstruct a conversation from a recorded event stream",
	Long: `replay reads a captured text/event-stream body, for example one saved
with curl -N, and folds its events the same way a live run does.

With --follow the file is watched and events are shown as they are
appended, until the run finishes or the command is interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		r, err := newRenderer(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		out := cmd.OutOrStdout()
		rp := newReplayer(logger)

		switch {
		case replayFollow:
			if args[0] == "-" {
				return errors.New("--follow needs a file, not stdin")
			}
			var stream *render.Stream
			if !replayJSON {
				stream = render.NewStream(out, r, rp.state)
			}
			err = followFile(ctx, args[0], rp, func(st chatmodel.State) {
				if stream != nil {
					stream.Update(st)
				}
			})
			if stream != nil {
				stream.Finish()
			}
			if err != nil {
				return err
			}
		default:
			in := io.Reader(cmd.InOrStdin())
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			if err := rp.readAll(in); err != nil {
				return err
			}
			if !replayJSON {
				fmt.Fprint(out, r.Transcript(rp.state))
			}
		}

		if rp.dropped > 0 {
			logger.Warn("skipped malformed events", "count", rp.dropped)
		}
		if replayJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rp.state)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Output the final state as JSON")
	replayCmd.Flags().BoolVarP(&replayFollow, "follow", "f", false, "Watch the file for appended events")
}

// replayer folds a recorded stream into a conversation without a server.
// It starts in the loading state, as a live run does after a send.
type replayer struct {
	rec     *chatmodel.Reconciler
	buf     *chatmodel.RunBuffers
	logger  *slog.Logger
	dec     sse.Decoder
	state   chatmodel.State
	dropped int
}

func newReplayer(logger *slog.Logger) *replayer {
	st := chatmodel.NewState("")
	st.Loading = true
	return &replayer{
		rec:    chatmodel.NewReconciler(logger),
		buf:    chatmodel.NewRunBuffers(),
		logger: logger,
		state:  st,
	}
}

// feed decodes chunk and applies every event it completes. It reports
// whether any event was applied.
func (rp *replayer) feed(chunk string) bool {
	return rp.apply(rp.dec.Feed(chunk))
}

// flush applies a trailing frame that was not followed by a blank line.
func (rp *replayer) flush() bool {
	return rp.apply(rp.dec.Flush())
}

func (rp *replayer) apply(frames []string) bool {
	applied := false
	for _, frame := range frames {
		payload, ok := sse.Payload(frame)
		if !ok {
			continue
		}
		ev, err := protocol.ParseEvent(payload)
		if err != nil {
			rp.dropped++
			rp.logger.Warn("skipping malformed event", "error", err)
			continue
		}
		if rp.state.ThreadID == "" {
			if started, ok := ev.(protocol.RunStartedEvent); ok {
				rp.state.ThreadID = started.ThreadID
			}
		}
		rp.state = rp.rec.Apply(rp.state, rp.buf, ev)
		applied = true
	}
	return applied
}

// readAll replays a complete stream. A stream that ends without a terminal
// event leaves the conversation settled, as a live run does.
func (rp *replayer) readAll(r io.Reader) error {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			rp.feed(string(chunk[:n]))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
	}
	rp.flush()
	rp.state.Loading = false
	return nil
}

var errRunComplete = errors.New("run complete")

// followFile replays path and keeps reading as it grows. onChange is
// called after every chunk that applied at least one event. It returns
// once the run reaches a terminal event or ctx is done.
func followFile(ctx context.Context, path string, rp *replayer, onChange func(chatmodel.State)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan string)

	g.Go(func() error {
		defer close(chunks)
		buf := make([]byte, 4096)
		drain := func() error {
			for {
				n, err := f.Read(buf)
				if n > 0 {
					select {
					case chunks <- string(buf[:n]):
					case <-gctx.Done():
						return nil
					}
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
			}
		}

		if err := drain(); err != nil {
			return err
		}
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
					return fmt.Errorf("%s was removed while following", path)
				}
				if ev.Has(fsnotify.Write) {
					if err := drain(); err != nil {
						return err
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
	})

	g.Go(func() error {
		for chunk := range chunks {
			if rp.feed(chunk) {
				onChange(rp.state)
			}
			if !rp.state.Loading {
				return errRunComplete
			}
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, errRunComplete) {
		return nil
	}
	if err != nil {
		return err
	}
	if rp.flush() {
		onChange(rp.state)
	}
	rp.state.Loading = false
	return nil
}
