package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilthomas300/myCompanion/chatmodel"
	"github.com/nikhilthomas300/myCompanion/client"
	"github.com/nikhilthomas300/myCompanion/internal/logging"
	"github.com/nikhilthomas300/myCompanion/internal/render"
	"github.com/nikhilthomas300/myCompanion/store"
)

func resetFlags() {
	configPath, baseURL, verbose = "", "", false
	sendJSON, sendThread = false, ""
	replayJSON, replayFollow = false, false
	reviewNotes, chatThread = "", ""
}

// execute runs the root command with an isolated config directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("AGUI_BASE_URL", "")
	t.Setenv("AGUI_LOG_LEVEL", "error")
	resetFlags()
	t.Cleanup(resetFlags)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeState(t *testing.T, s string) chatmodel.State {
	t.Helper()
	var st chatmodel.State
	require.NoError(t, json.Unmarshal([]byte(s), &st))
	return st
}

func assertRecordedRun(t *testing.T, st chatmodel.State) {
	t.Helper()
	assert.Equal(t, "thread_1", st.ThreadID)
	assert.Equal(t, "run_1", st.RunID)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)

	require.Len(t, st.Messages, 1)
	assert.Equal(t, "m1", st.Messages[0].ID)
	assert.Equal(t, "Hello", st.Messages[0].Content)

	require.Len(t, st.ToolInvocations, 1)
	inv := st.ToolInvocations[0]
	assert.Equal(t, "lookup_policy", inv.Name)
	assert.Equal(t, chatmodel.ToolStatusSucceeded, inv.Status)
	assert.Equal(t, map[string]any{"topic": "leave"}, inv.Args)
	require.NotNil(t, inv.Output)
	assert.Equal(t, "PolicyCard", inv.Output.ComponentID)
	assert.Equal(t, map[string]any{"days": float64(20)}, inv.Output.Props)
}

func TestReplay_JSON(t *testing.T) {
	out, err := execute(t, "replay", "--json", "testdata/run.sse")
	require.NoError(t, err)
	assertRecordedRun(t, decodeState(t, out))
}

func TestReplay_Transcript(t *testing.T) {
	out, err := execute(t, "replay", "testdata/run.sse")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "lookup_policy")
}

func TestReplay_MissingFile(t *testing.T) {
	_, err := execute(t, "replay", filepath.Join(t.TempDir(), "nope.sse"))
	require.Error(t, err)
}

func TestReplayer_ChunkBoundaries(t *testing.T) {
	data, err := os.ReadFile("testdata/run.sse")
	require.NoError(t, err)

	for _, size := range []int{1, 3, 7, 64, len(data)} {
		t.Run(fmt.Sprintf("chunk=%d", size), func(t *testing.T) {
			rp := newReplayer(logging.Nop())
			for i := 0; i < len(data); i += size {
				rp.feed(string(data[i:min(i+size, len(data))]))
			}
			rp.flush()
			assertRecordedRun(t, rp.state)
			assert.Equal(t, 1, rp.dropped)
		})
	}
}

func TestReplayer_StreamWithoutTerminalEventSettles(t *testing.T) {
	rp := newReplayer(logging.Nop())
	err := rp.readAll(strings.NewReader(
		"data: {\"type\":\"TEXT_MESSAGE_START\",\"messageId\":\"m1\",\"role\":\"assistant\"}\n\n" +
			"data: {\"type\":\"TEXT_MESSAGE_CONTENT\",\"messageId\":\"m1\",\"delta\":\"partial\"}"))
	require.NoError(t, err)
	assert.False(t, rp.state.Loading)
	require.Len(t, rp.state.Messages, 1)
	assert.Equal(t, "partial", rp.state.Messages[0].Content)
}

func TestFollowFile_AppliesAppendedEvents(t *testing.T) {
	data, err := os.ReadFile("testdata/run.sse")
	require.NoError(t, err)
	split := bytes.Index(data, []byte(`"delta":"lo"`))
	require.Positive(t, split)

	path := filepath.Join(t.TempDir(), "live.sse")
	require.NoError(t, os.WriteFile(path, data[:split], 0o644))

	rp := newReplayer(logging.Nop())
	changes := make(chan chatmodel.State, 64)
	done := make(chan error, 1)
	go func() {
		done <- followFile(context.Background(), path, rp, func(st chatmodel.State) {
			select {
			case changes <- st:
			default:
			}
		})
	}()

	// Wait until the first part has been applied before appending.
	require.Eventually(t, func() bool {
		select {
		case st := <-changes:
			return len(st.Messages) == 1
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write(data[split:])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("follow did not stop after RUN_FINISHED")
	}
	assertRecordedRun(t, rp.state)
}

func TestFollowFile_StopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.sse")
	require.NoError(t, os.WriteFile(path,
		[]byte("data: {\"type\":\"RUN_STARTED\",\"threadId\":\"t\",\"runId\":\"r\"}\n\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	rp := newReplayer(logging.Nop())
	done := make(chan error, 1)
	go func() {
		done <- followFile(ctx, path, rp, func(chatmodel.State) {})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop on cancel")
	}
	assert.False(t, rp.state.Loading)
	assert.Equal(t, "r", rp.state.RunID)
}

func TestSchema(t *testing.T) {
	out, err := execute(t, "schema")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))
	assert.Contains(t, out, "TOOL_CALL_RESULT")
}

// agentServer serves the recorded run for every POST to the run path.
func agentServer(t *testing.T) *httptest.Server {
	t.Helper()
	data, err := os.ReadFile("testdata/run.sse")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /ag-ui/run", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write(data)
	})
	mux.HandleFunc("GET /ag-ui/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok","protocol":"ag-ui"}`)
	})
	mux.HandleFunc("POST /feedback", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"received"}`)
	})
	mux.HandleFunc("POST /human-action", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"approve"}`)
	})
	mux.HandleFunc("POST /interrupt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"interrupted"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSend_JSON(t *testing.T) {
	srv := agentServer(t)

	out, err := execute(t, "--base-url", srv.URL, "send", "--json", "--thread", "thread_1", "what", "is", "the", "policy?")
	require.NoError(t, err)

	st := decodeState(t, out)
	require.Len(t, st.Messages, 2)
	assert.Equal(t, chatmodel.RoleUser, st.Messages[0].Role)
	assert.Equal(t, "what is the policy?", st.Messages[0].Content)
	assert.Equal(t, "Hello", st.Messages[1].Content)
	assert.Equal(t, "thread_1", st.ThreadID)
	assert.False(t, st.Loading)
}

func TestSend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := execute(t, "--base-url", srv.URL, "send", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestAuxiliaryCommands(t *testing.T) {
	srv := agentServer(t)

	out, err := execute(t, "--base-url", srv.URL, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "ok (ag-ui)")

	out, err = execute(t, "--base-url", srv.URL, "feedback", "m1", "like")
	require.NoError(t, err)
	assert.Contains(t, out, "feedback recorded")

	_, err = execute(t, "--base-url", srv.URL, "feedback", "m1", "meh")
	require.Error(t, err)

	out, err = execute(t, "--base-url", srv.URL, "review", "approve", "--notes", "looks right")
	require.NoError(t, err)
	assert.Contains(t, out, "review sent: approve")

	out, err = execute(t, "--base-url", srv.URL, "interrupt", "user", "left")
	require.NoError(t, err)
	assert.Contains(t, out, "interrupt sent")
}

func TestInvalidBaseURL(t *testing.T) {
	_, err := execute(t, "--base-url", "localhost:8000", "health")
	require.Error(t, err)
}

func newTestSession(t *testing.T, srv *httptest.Server) (*chatSession, *bytes.Buffer) {
	t.Helper()
	c, err := client.NewClient(srv.URL, client.WithLogger(logging.Nop()))
	require.NoError(t, err)
	r, err := render.New(render.Options{Width: 80})
	require.NoError(t, err)

	var out bytes.Buffer
	s := &chatSession{
		out:    &out,
		client: c,
		store:  store.New(c, store.WithLogger(logging.Nop()), store.WithThreadID("thread_1")),
		r:      r,
	}
	t.Cleanup(s.store.Close)
	return s, &out
}

func TestChatSession_SendStreamsReply(t *testing.T) {
	s, out := newTestSession(t, agentServer(t))

	s.send(context.Background(), "hi")

	assert.Contains(t, out.String(), "Hello")
	assert.Contains(t, out.String(), "lookup_policy")
	assert.Equal(t, 1, strings.Count(out.String(), "Hello"))
	st := s.store.State()
	assert.False(t, st.Loading)
	assert.Len(t, st.Messages, 2)
}

func TestChatSession_Commands(t *testing.T) {
	s, out := newTestSession(t, agentServer(t))
	ctx := context.Background()

	assert.False(t, s.command(ctx, "/help"))
	assert.Contains(t, out.String(), "/reset")

	s.send(ctx, "hi")
	out.Reset()
	assert.False(t, s.command(ctx, "/transcript"))
	assert.Contains(t, out.String(), "Hello")

	assert.False(t, s.command(ctx, "/feedback m1 copy"))
	assert.Contains(t, out.String(), "feedback recorded")

	assert.False(t, s.command(ctx, "/review modify shorter please"))
	assert.Contains(t, out.String(), "review sent")

	out.Reset()
	assert.False(t, s.command(ctx, "/feedback m1"))
	assert.Contains(t, out.String(), "usage")

	assert.False(t, s.command(ctx, "/reset"))
	st := s.store.State()
	assert.Empty(t, st.Messages)
	assert.NotEqual(t, "thread_1", st.ThreadID)

	out.Reset()
	assert.False(t, s.command(ctx, "/nope"))
	assert.Contains(t, out.String(), "unknown command")

	assert.True(t, s.command(ctx, "/quit"))
}

func TestMarkdownStyleFromConfig(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("markdown_style: notty\n"), 0o644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("markdown_style: neon\n"), 0o644))

	out, err := execute(t, "--config", good, "replay", "testdata/run.sse")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello")

	_, err = execute(t, "--config", bad, "replay", "testdata/run.sse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "markdown_style")
}
