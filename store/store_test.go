package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilthomas300/myCompanion/chatmodel"
	"github.com/nikhilthomas300/myCompanion/client"
	"github.com/nikhilthomas300/myCompanion/protocol"
)

// agentServer serves one scripted response per run request and records the
// decoded request bodies.
type agentServer struct {
	*httptest.Server
	requests chan protocol.RunAgentInput
}

func newAgentServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *agentServer {
	t.Helper()
	s := &agentServer{requests: make(chan protocol.RunAgentInput, 8)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in protocol.RunAgentInput
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		s.requests <- in
		handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func streamFrames(w http.ResponseWriter, frames ...string) {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	for _, f := range frames {
		fmt.Fprintf(w, "data: %s\n\n", f)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func newStore(t *testing.T, srv *agentServer) *Store {
	t.Helper()
	c, err := client.NewClient(srv.URL)
	require.NoError(t, err)
	s := New(c)
	t.Cleanup(s.Close)
	return s
}

// recorder collects every published state.
type recorder struct {
	states []chatmodel.State
	mu     sync.Mutex
}

func (r *recorder) OnStateChange(st chatmodel.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *recorder) snapshot() []chatmodel.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chatmodel.State(nil), r.states...)
}

var helloFrames = []string{
	`{"type":"RUN_STARTED","threadId":"th","runId":"r"}`,
	`{"type":"TEXT_MESSAGE_START","messageId":"m1","role":"assistant"}`,
	`{"type":"TEXT_MESSAGE_CONTENT","messageId":"m1","delta":"Hel"}`,
	`{"type":"TEXT_MESSAGE_CONTENT","messageId":"m1","delta":"lo"}`,
	`{"type":"TEXT_MESSAGE_END","messageId":"m1"}`,
	`{"type":"RUN_FINISHED","threadId":"th","runId":"r"}`,
}

func TestSend_HelloScenario(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w, helloFrames...)
	})
	st := newStore(t, srv)
	rec := &recorder{}
	st.AddObserver(rec)
	threadID := st.State().ThreadID

	require.NoError(t, st.Send(context.Background(), "Hi"))

	final := st.State()
	require.Len(t, final.Messages, 2)
	assert.Equal(t, chatmodel.RoleUser, final.Messages[0].Role)
	assert.Equal(t, "Hi", final.Messages[0].Content)
	assert.True(t, strings.HasPrefix(final.Messages[0].ID, "user_"))
	assert.Equal(t, chatmodel.Message{ID: "m1", Role: chatmodel.RoleAssistant, Content: "Hello"}, final.Messages[1])
	assert.False(t, final.Loading)
	assert.Empty(t, final.Error)
	assert.Equal(t, threadID, final.ThreadID)

	states := rec.snapshot()
	require.Len(t, states, 1+len(helloFrames), "one publish for the user message and one per event")
	assert.True(t, states[0].Loading)
	assert.Len(t, states[0].Messages, 1)
	assert.Equal(t, "Hel", states[3].Messages[1].Content)

	req := <-srv.requests
	assert.True(t, strings.HasPrefix(threadID, "thread_"))
	assert.Equal(t, threadID, req.ThreadID)
	assert.True(t, strings.HasPrefix(req.RunID, "run_"))
	require.Len(t, req.Messages, 1)
	assert.Equal(t, final.Messages[0].ID, req.Messages[0].ID)
	assert.Equal(t, "Hi", req.Messages[0].Content.Text())
}

func TestSend_HistoryAndAgentStateCarriedForward(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		streamFrames(w,
			fmt.Sprintf(`{"type":"TEXT_MESSAGE_CONTENT","messageId":"a%d","delta":"answer %d"}`, n, n),
			fmt.Sprintf(`{"type":"STATE_SNAPSHOT","snapshot":{"turn":%d}}`, n),
			`{"type":"RUN_FINISHED"}`,
		)
	})
	st := newStore(t, srv)

	require.NoError(t, st.Send(context.Background(), "one"))
	require.NoError(t, st.Send(context.Background(), "two"))

	first := <-srv.requests
	second := <-srv.requests
	assert.True(t, len(first.State) == 0 || string(first.State) == "null", "first run sends no agent state")
	assert.JSONEq(t, `{"turn":1}`, string(second.State))
	require.Len(t, second.Messages, 3)
	assert.Equal(t, "a1", second.Messages[1].ID)
	assert.Equal(t, "assistant", second.Messages[1].Role)
	assert.Equal(t, "two", second.Messages[2].Content.Text())
	assert.Equal(t, first.ThreadID, second.ThreadID)
	assert.NotEqual(t, first.RunID, second.RunID)

	assert.Len(t, st.State().Messages, 4)
}

func TestSend_NonSuccessStatus(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	})
	st := newStore(t, srv)

	err := st.Send(context.Background(), "Hi")
	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)

	final := st.State()
	assert.False(t, final.Loading)
	assert.Contains(t, final.Error, "HTTP 502")
	require.Len(t, final.Messages, 1, "only the optimistic user message")
	assert.Equal(t, chatmodel.RoleUser, final.Messages[0].Role)
	assert.Empty(t, final.ToolInvocations)
}

func TestSend_ErrorClearedByNextSend(t *testing.T) {
	fail := true
	var mu sync.Mutex
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		f := fail
		fail = false
		mu.Unlock()
		if f {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		streamFrames(w, `{"type":"RUN_FINISHED"}`)
	})
	st := newStore(t, srv)

	require.Error(t, st.Send(context.Background(), "first"))
	assert.NotEmpty(t, st.State().Error)

	require.NoError(t, st.Send(context.Background(), "second"))
	assert.Empty(t, st.State().Error)
}

func TestSend_StreamEndsWithoutRunFinished(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w, `{"type":"TEXT_MESSAGE_CONTENT","messageId":"m1","delta":"cut"}`)
	})
	st := newStore(t, srv)

	require.NoError(t, st.Send(context.Background(), "Hi"))
	final := st.State()
	assert.False(t, final.Loading)
	assert.Empty(t, final.Error)
	assert.Equal(t, "cut", final.Messages[1].Content)
}

func TestSend_RunErrorFailsRunningTools(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w,
			`{"type":"TOOL_CALL_START","toolCallId":"t1","toolCallName":"leave.request"}`,
			`{"type":"TOOL_CALL_START","toolCallId":"t2","toolCallName":"policy.showCard"}`,
			`{"type":"TOOL_CALL_END","toolCallId":"t2"}`,
			`{"type":"RUN_ERROR","message":"model overloaded"}`,
		)
	})
	st := newStore(t, srv)

	require.NoError(t, st.Send(context.Background(), "Hi"))
	final := st.State()
	assert.False(t, final.Loading)
	assert.Equal(t, "model overloaded", final.Error)
	require.Len(t, final.ToolInvocations, 2)
	assert.Equal(t, chatmodel.ToolStatusFailed, final.ToolInvocations[0].Status)
	assert.Equal(t, chatmodel.ToolStatusSucceeded, final.ToolInvocations[1].Status)
}

func TestSend_MalformedPayloadDropped(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w,
			`{"type":"TEXT_MESSAGE_CONTENT","messageId":"m1","delta":"ok"}`,
			`{"type":"TEXT_MESSAGE_CONTENT","messageId":"m1","delta":`,
			`{"type":"RUN_FINISHED"}`,
		)
	})
	st := newStore(t, srv)

	require.NoError(t, st.Send(context.Background(), "Hi"))
	final := st.State()
	assert.Empty(t, final.Error)
	assert.Equal(t, "ok", final.Messages[1].Content)
}

func TestSend_NoOps(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w, `{"type":"TEXT_MESSAGE_CONTENT","messageId":"m1","delta":"first"}`)
		<-r.Context().Done()
	})
	st := newStore(t, srv)
	rec := &recorder{}
	st.AddObserver(rec)

	assert.ErrorIs(t, st.Send(context.Background(), "  \n\t"), ErrEmptyMessage)
	assert.Empty(t, rec.snapshot())

	errCh := make(chan error, 1)
	go func() { errCh <- st.Send(context.Background(), "Hi") }()
	require.Eventually(t, func() bool { return st.State().Loading }, 5*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, st.Send(context.Background(), "again"), ErrBusy)

	st.StopStreaming()
	require.NoError(t, <-errCh)
	for _, m := range st.State().Messages {
		assert.NotEqual(t, "again", m.Content)
	}
}

// waitFor returns an observer that closes the returned channel the first
// time pred holds.
func waitFor(pred func(chatmodel.State) bool) (Observer, <-chan struct{}) {
	ch := make(chan struct{})
	var once sync.Once
	return ObserverFunc(func(st chatmodel.State) {
		if pred(st) {
			once.Do(func() { close(ch) })
		}
	}), ch
}

func TestStopStreaming_MidStream(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w,
			`{"type":"TEXT_MESSAGE_START","messageId":"m1"}`,
			`{"type":"TEXT_MESSAGE_CONTENT","messageId":"m1","delta":"partial"}`,
		)
		<-r.Context().Done()
	})
	st := newStore(t, srv)
	obs, seen := waitFor(func(s chatmodel.State) bool {
		m, ok := s.Message("m1")
		return ok && m.Content == "partial"
	})
	st.AddObserver(obs)

	errCh := make(chan error, 1)
	go func() { errCh <- st.Send(context.Background(), "Hi") }()

	select {
	case <-seen:
	case <-time.After(5 * time.Second):
		t.Fatal("partial message never published")
	}
	st.StopStreaming()
	st.StopStreaming()

	require.NoError(t, <-errCh)
	final := st.State()
	assert.False(t, final.Loading)
	assert.Empty(t, final.Error)
	require.Len(t, final.Messages, 2)
	assert.Equal(t, "partial", final.Messages[1].Content)
}

func TestSend_ContextCanceled(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w, `{"type":"TEXT_MESSAGE_CONTENT","messageId":"m1","delta":"x"}`)
		<-r.Context().Done()
	})
	st := newStore(t, srv)
	obs, seen := waitFor(func(s chatmodel.State) bool { return len(s.Messages) == 2 })
	st.AddObserver(obs)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- st.Send(ctx, "Hi") }()

	<-seen
	cancel()

	require.NoError(t, <-errCh)
	final := st.State()
	assert.False(t, final.Loading)
	assert.Empty(t, final.Error)
}

func TestReset(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w, helloFrames...)
	})
	st := newStore(t, srv)
	require.NoError(t, st.Send(context.Background(), "Hi"))
	before := st.State()

	st.Reset()

	after := st.State()
	assert.Empty(t, after.Messages)
	assert.Empty(t, after.ToolInvocations)
	assert.False(t, after.Loading)
	assert.NotEqual(t, before.ThreadID, after.ThreadID)
	assert.True(t, strings.HasPrefix(after.ThreadID, "thread_"))
}

func TestReset_MidStreamDiscardsLateEvents(t *testing.T) {
	release := make(chan struct{})
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w, `{"type":"TEXT_MESSAGE_CONTENT","messageId":"m1","delta":"early"}`)
		select {
		case <-release:
			streamFrames(w, `{"type":"TEXT_MESSAGE_CONTENT","messageId":"m1","delta":" late"}`)
		case <-r.Context().Done():
		}
	})
	st := newStore(t, srv)
	obs, seen := waitFor(func(s chatmodel.State) bool { return len(s.Messages) == 2 })
	st.AddObserver(obs)

	errCh := make(chan error, 1)
	go func() { errCh <- st.Send(context.Background(), "Hi") }()
	<-seen

	st.Reset()
	close(release)

	require.NoError(t, <-errCh)
	final := st.State()
	assert.Empty(t, final.Messages)
	assert.False(t, final.Loading)
	assert.Empty(t, final.Error)
}

func TestSubscribe_DropsOldest(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w, helloFrames...)
	})
	st := newStore(t, srv)
	id, ch := st.Subscribe(1)

	require.NoError(t, st.Send(context.Background(), "Hi"))

	latest := <-ch
	assert.False(t, latest.Loading)
	assert.Equal(t, "Hello", latest.Messages[1].Content)

	st.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
}

func TestSubscribe_AfterCloseIsClosed(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {})
	st := newStore(t, srv)
	st.Close()

	_, ch := st.Subscribe(4)
	_, open := <-ch
	assert.False(t, open)
}

func TestState_IsDeepCopy(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w,
			`{"type":"TOOL_CALL_START","toolCallId":"t1","toolCallName":"x"}`,
			`{"type":"TOOL_CALL_ARGS","toolCallId":"t1","delta":"{\"k\":\"v\"}"}`,
			`{"type":"RUN_FINISHED"}`,
		)
	})
	st := newStore(t, srv)
	require.NoError(t, st.Send(context.Background(), "Hi"))

	snap := st.State()
	snap.ToolInvocations[0].Args["k"] = "mutated"
	snap.Messages[0].Content = "mutated"

	again := st.State()
	assert.Equal(t, "v", again.ToolInvocations[0].Args["k"])
	assert.Equal(t, "Hi", again.Messages[0].Content)
}
