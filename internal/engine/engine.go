// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/openai"
	"github.com/jeranaias/chatstream/internal/scroll"
	"github.com/jeranaias/chatstream/internal/stream"
	"github.com/jeranaias/chatstream/internal/util"
)

// DefaultChunkSize is the read buffer size for response bodies.
const DefaultChunkSize = 4096

// Causes recorded on a send's context when it is stopped from outside.
var (
	ErrCanceled    = errors.New("send canceled")
	ErrSuperseded  = errors.New("superseded by a newer send")
	ErrReadTimeout = errors.New("no data received from server before the read timeout")
)

// =============================================================================
// STATE
// =============================================================================

// State is the driver's position in a send.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is how a send ended.
type Status int

const (
	// StatusSkipped: the input was empty and nothing was sent.
	StatusSkipped Status = iota
	// StatusCompleted: the server ended the stream.
	StatusCompleted
	// StatusFailed: a transport, protocol or timeout error was turned into an error turn.
	StatusFailed
	// StatusCanceled: Cancel or the caller's context stopped the send.
	StatusCanceled
	// StatusSuperseded: a newer send replaced this one.
	StatusSuperseded
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	case StatusSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Result reports the outcome of one Send.
type Result struct {
	Status  Status
	Session model.Session

	// Deltas is the number of fragments folded into the transcript.
	Deltas int
	// Ignored counts lines that were neither deltas nor control lines.
	Ignored int
	// Sentinel is true when the stream ended with an explicit [DONE].
	Sentinel bool
	// StreamErr is the last error the server sent inside the stream.
	StreamErr error

	TTFT     time.Duration
	Duration time.Duration

	// Err is set for StatusFailed and holds the cause for canceled sends.
	Err error
}

// =============================================================================
// ENGINE
// =============================================================================

// Streamer opens a streaming completion. *openai.Client implements it.
type Streamer interface {
	OpenStream(ctx context.Context, ep config.Endpoint, messages []openai.ChatMessage) (io.ReadCloser, error)
}

// Options configures an Engine.
type Options struct {
	// ReadTimeout bounds the wait for the response headers and for each
	// chunk after them. Zero disables the bound.
	ReadTimeout time.Duration

	// ChunkSize is the body read buffer size (default: 4096).
	ChunkSize int

	// SendHistory sends the whole transcript instead of only the new message.
	SendHistory bool

	// Scroll, when set, is reset to following on every send.
	Scroll *scroll.Controller

	Log *logrus.Entry
}

// OptionsFromConfig maps the stream section of the configuration onto
// engine options.
func OptionsFromConfig(cfg config.StreamConfig, ctrl *scroll.Controller, log *logrus.Entry) Options {
	return Options{
		ReadTimeout: time.Duration(cfg.ReadTimeoutSecs) * time.Second,
		ChunkSize:   cfg.ChunkSize,
		SendHistory: cfg.SendHistory,
		Scroll:      ctrl,
		Log:         log,
	}
}

// Engine drives sends against a single conversation. At most one send is
// active: starting a new one stops the previous read loop, and the
// conversation's session generation discards anything it still delivers.
type Engine struct {
	conv   *model.Conversation
	client Streamer
	opts   Options
	log    *logrus.Entry

	// startMu orders send setup so sessions and contexts are paired.
	startMu sync.Mutex

	mu     sync.Mutex
	state  State
	seq    uint64
	cancel context.CancelCauseFunc
}

// New creates an engine for conv.
func New(conv *model.Conversation, client Streamer, opts Options) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		conv:   conv,
		client: client,
		opts:   opts,
		log:    log.WithField("component", "engine"),
	}
}

// Conversation returns the transcript the engine writes to.
func (e *Engine) Conversation() *model.Conversation {
	return e.conv
}

// State returns the state of the active send.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Busy reports whether a send is in flight.
func (e *Engine) Busy() bool {
	s := e.State()
	return s == StateSending || s == StateStreaming
}

// Cancel stops the in-flight send, if any. The partial reply stays in the
// transcript and no error turn is added. It reports whether a send was
// running.
func (e *Engine) Cancel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return false
	}
	e.cancel(ErrCanceled)
	return true
}

func (e *Engine) setState(id uint64, s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seq == id {
		e.state = s
	}
}

// =============================================================================
// SEND
// =============================================================================

// Send appends text as a user turn and streams the reply into the
// conversation. It blocks until the stream ends and never returns a Go
// error: failures become an assistant error turn and are described in
// the Result. Empty or whitespace-only text is ignored.
func (e *Engine) Send(ctx context.Context, text string, ep config.Endpoint) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Status: StatusSkipped}
	}
	start := time.Now()

	e.startMu.Lock()
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel(ErrSuperseded)
	}
	e.seq++
	id := e.seq
	ctx, cancel := context.WithCancelCause(ctx)
	e.cancel = cancel
	e.state = StateSending
	e.mu.Unlock()

	session := e.conv.ApplyUserMessage(text)
	if e.opts.Scroll != nil {
		e.opts.Scroll.OnUserMessage()
	}
	messages := e.requestMessages(text)
	e.startMu.Unlock()

	defer e.finish(id, cancel)

	log := e.log.WithFields(logrus.Fields{
		"session":  session.ID,
		"endpoint": ep.Name,
		"model":    ep.Model,
	})
	log.Debug("Send started")

	res := e.run(ctx, cancel, id, session, ep, messages, log)
	res.Session = session
	res.Duration = time.Since(start)

	log.WithFields(logrus.Fields{
		"status":   res.Status,
		"deltas":   res.Deltas,
		"ignored":  res.Ignored,
		"duration": res.Duration.Round(time.Millisecond),
	}).Info("Send finished")
	return res
}

func (e *Engine) finish(id uint64, cancel context.CancelCauseFunc) {
	cancel(nil)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seq == id {
		e.state = StateIdle
		e.cancel = nil
	}
}

func (e *Engine) requestMessages(text string) []openai.ChatMessage {
	if !e.opts.SendHistory {
		return []openai.ChatMessage{{Role: string(model.RoleUser), Content: text}}
	}
	history := e.conv.History()
	out := make([]openai.ChatMessage, 0, len(history))
	for _, m := range history {
		out = append(out, openai.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

type chunk struct {
	data []byte
	err  error
}

func (e *Engine) run(ctx context.Context, cancel context.CancelCauseFunc, id uint64, session model.Session, ep config.Endpoint, messages []openai.ChatMessage, log *logrus.Entry) Result {
	var res Result
	start := time.Now()

	body, err := e.open(ctx, cancel, ep, messages)
	if err != nil {
		if ctx.Err() != nil {
			return e.interrupted(ctx, id, session, res, log)
		}
		return e.fail(id, session, res, err, log)
	}
	defer body.Close()

	e.setState(id, StateStreaming)
	chunks := e.readChunks(ctx, body)
	dec := stream.NewDecoder()

	apply := func(lines []string) (done, stale bool) {
		for _, line := range lines {
			r := stream.ParseLine(line)
			switch r.Kind {
			case stream.KindDone:
				res.Sentinel = true
				return true, false
			case stream.KindDelta:
				if !e.conv.ApplyDelta(session, r.Delta) {
					return false, true
				}
				if res.Deltas == 0 {
					res.TTFT = time.Since(start)
				}
				res.Deltas++
			case stream.KindIgnored:
				res.Ignored++
				if errors.Is(r.Err, stream.ErrServerReported) {
					res.StreamErr = r.Err
					log.WithError(r.Err).Warn("Server reported an error mid-stream")
					continue
				}
				log.WithError(r.Err).Debug("Skipping unparseable line")
			}
		}
		return false, false
	}

	for {
		var timeout <-chan time.Time
		var timer *time.Timer
		if e.opts.ReadTimeout > 0 {
			timer = time.NewTimer(e.opts.ReadTimeout)
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return e.interrupted(ctx, id, session, res, log)

		case <-timeout:
			return e.fail(id, session, res, ErrReadTimeout, log)

		case c := <-chunks:
			stopTimer(timer)
			if len(c.data) > 0 {
				done, stale := apply(dec.Decode(c.data))
				if stale {
					return e.interrupted(ctx, id, session, res, log)
				}
				if done {
					return e.complete(session, res, log)
				}
			}
			if c.err == nil {
				continue
			}
			if ctx.Err() != nil {
				return e.interrupted(ctx, id, session, res, log)
			}
			if !errors.Is(c.err, io.EOF) {
				return e.fail(id, session, res, openai.ReadError(c.err), log)
			}
			if rest := dec.Discard(); rest != "" {
				log.WithField("residual", util.TruncateWidth(rest, 80)).Debug("Dropped unterminated last line")
			}
			return e.complete(session, res, log)
		}
	}
}

// open issues the request. The wait for response headers is bounded by
// the read timeout, which cancels the whole send when it fires.
func (e *Engine) open(ctx context.Context, cancel context.CancelCauseFunc, ep config.Endpoint, messages []openai.ChatMessage) (io.ReadCloser, error) {
	if e.opts.ReadTimeout > 0 {
		timer := time.AfterFunc(e.opts.ReadTimeout, func() { cancel(ErrReadTimeout) })
		defer timer.Stop()
	}
	return e.client.OpenStream(ctx, ep, messages)
}

// readChunks pumps body into a channel until it fails or ctx ends. Closing
// the body unblocks a pending Read.
func (e *Engine) readChunks(ctx context.Context, body io.Reader) <-chan chunk {
	out := make(chan chunk)
	size := e.opts.ChunkSize
	go func() {
		for {
			buf := make([]byte, size)
			n, err := body.Read(buf)
			c := chunk{data: buf[:n], err: err}
			if n == 0 && err == nil {
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// =============================================================================
// OUTCOMES
// =============================================================================

func (e *Engine) complete(session model.Session, res Result, log *logrus.Entry) Result {
	e.conv.CloseSession(session)
	res.Status = StatusCompleted
	if res.Deltas == 0 {
		entry := log.WithField("ignored", res.Ignored)
		if res.StreamErr != nil {
			entry = entry.WithError(res.StreamErr)
		}
		entry.Warn("Stream ended without any content")
	}
	return res
}

// fail records err as an error turn. Nothing is added if the session has
// already been replaced.
func (e *Engine) fail(id uint64, session model.Session, res Result, err error, log *logrus.Entry) Result {
	e.setState(id, StateError)
	res.Status = StatusFailed
	res.Err = err
	if e.conv.AppendError(session, ErrorText(err)) {
		log.WithError(err).Warn("Send failed")
	}
	return res
}

// interrupted resolves a send whose context ended early.
func (e *Engine) interrupted(ctx context.Context, id uint64, session model.Session, res Result, log *logrus.Entry) Result {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrReadTimeout):
		return e.fail(id, session, res, ErrReadTimeout, log)
	case errors.Is(cause, context.DeadlineExceeded):
		return e.fail(id, session, res, openai.ErrTimeout, log)
	case errors.Is(cause, ErrSuperseded), !e.conv.IsCurrent(session):
		res.Status = StatusSuperseded
		res.Err = ErrSuperseded
		log.Debug("Send superseded")
		return res
	default:
		e.conv.CloseSession(session)
		res.Status = StatusCanceled
		res.Err = cause
		log.Debug("Send canceled")
		return res
	}
}

// ErrorText is the content of the assistant turn that reports err.
func ErrorText(err error) string {
	return "Error: " + err.Error()
}
