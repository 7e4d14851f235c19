// Package client is the HTTP side of an AG-UI conversation: it opens
// streaming runs and calls the agent's auxiliary endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/nikhilthomas300/myCompanion/internal/logging"
	"github.com/nikhilthomas300/myCompanion/protocol"
)

// maxErrorBody bounds how much of a failed response is kept in StatusError.
const maxErrorBody = 4096

// Client talks to one agent server.
type Client struct {
	http    *http.Client
	logger  *slog.Logger
	baseURL string
	config  ClientConfig
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	config := defaultClientConfig()
	for _, opt := range opts {
		opt(&config)
	}
	hc := config.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &Client{
		http:    hc,
		logger:  logging.OrNop(config.Logger),
		baseURL: strings.TrimRight(baseURL, "/"),
		config:  config,
	}, nil
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) buildURL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// Run posts input to the run endpoint and starts streaming its events.
// A non-2xx answer returns *StatusError and a network failure
// *TransportError; in both cases no events are produced. Canceling ctx or
// calling Run.Cancel aborts the stream.
func (c *Client) Run(ctx context.Context, input protocol.RunAgentInput) (*Run, error) {
	if input.Messages == nil {
		input.Messages = []protocol.Message{}
	}
	if input.Tools == nil {
		input.Tools = []protocol.Tool{}
	}
	if input.Context == nil {
		input.Context = []protocol.Context{}
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := c.newRequest(ctx, http.MethodPost, c.config.RunPath, input)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	c.logger.Debug("opening run", "threadId", input.ThreadID, "runId", input.RunID, "messages", len(input.Messages))
	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, &TransportError{Op: "request", Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The body must be read before the request context is canceled.
		se := statusError(resp)
		resp.Body.Close()
		cancel()
		return nil, se
	}

	run := newRun(ctx, cancel, input.ThreadID, input.RunID, c.config.EventBufferSize, c.logger)
	go run.stream(resp.Body)
	return run, nil
}

// HealthStatus is the body of the health endpoint.
type HealthStatus struct {
	Status   string `json:"status"`
	Protocol string `json:"protocol,omitempty"`
}

// Health queries the agent's health endpoint.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.doJSON(ctx, http.MethodGet, c.config.HealthPath, nil, &hs)
	return hs, err
}

// Interrupt asks the agent to stop work in progress.
func (c *Client) Interrupt(ctx context.Context, reason string) error {
	body := struct {
		Reason string `json:"reason,omitempty"`
	}{Reason: reason}
	return c.doJSON(ctx, http.MethodPost, c.config.InterruptPath, body, nil)
}

// FeedbackKind is a reaction to an assistant message.
type FeedbackKind string

const (
	FeedbackLike    FeedbackKind = "like"
	FeedbackDislike FeedbackKind = "dislike"
	FeedbackCopy    FeedbackKind = "copy"
)

// ParseFeedbackKind validates a feedback kind.
func ParseFeedbackKind(s string) (FeedbackKind, error) {
	switch k := FeedbackKind(s); k {
	case FeedbackLike, FeedbackDislike, FeedbackCopy:
		return k, nil
	default:
		return "", fmt.Errorf("unknown feedback kind %q (want like, dislike or copy)", s)
	}
}

// SubmitFeedback records a reaction to a message.
func (c *Client) SubmitFeedback(ctx context.Context, messageID string, kind FeedbackKind) error {
	body := struct {
		MessageID string       `json:"message_id"`
		Feedback  FeedbackKind `json:"feedback"`
	}{MessageID: messageID, Feedback: kind}
	return c.doJSON(ctx, http.MethodPost, c.config.FeedbackPath, body, nil)
}

// HumanAction is a reviewer decision on a tool result that required a human.
type HumanAction string

const (
	HumanApprove HumanAction = "approve"
	HumanReject  HumanAction = "reject"
	HumanModify  HumanAction = "modify"
)

// ParseHumanAction validates a human action.
func ParseHumanAction(s string) (HumanAction, error) {
	switch a := HumanAction(s); a {
	case HumanApprove, HumanReject, HumanModify:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q (want approve, reject or modify)", s)
	}
}

// SubmitHumanAction sends a reviewer decision and clears a pending interrupt.
func (c *Client) SubmitHumanAction(ctx context.Context, action HumanAction, notes string) error {
	body := struct {
		Action HumanAction `json:"action"`
		Notes  string      `json:"notes,omitempty"`
	}{Action: action, Notes: notes}
	return c.doJSON(ctx, http.MethodPost, c.config.HumanActionPath, body, nil)
}

// doJSON performs a bounded request/response call. out may be nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: "request", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: "decode", Cause: err}
	}
	return nil
}

func statusError(resp *http.Response) *StatusError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
