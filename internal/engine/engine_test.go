// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/openai"
	"github.com/jeranaias/chatstream/internal/scroll"
	"github.com/jeranaias/chatstream/internal/stream"
)

// =============================================================================
// HELPERS
// =============================================================================

func deltaLine(s string) string {
	b, _ := json.Marshal(s)
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%s}}]}`+"\n", b)
}

// streamHandler writes each chunk and flushes it so the client sees the
// chosen boundaries.
func streamHandler(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			fmt.Fprint(w, c)
			flusher.Flush()
			time.Sleep(2 * time.Millisecond)
		}
	}
}

// stallHandler sends the given chunks, then holds the connection open
// until the client goes away.
func stallHandler(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			fmt.Fprint(w, c)
		}
		flusher.Flush()
		<-r.Context().Done()
	}
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *model.Conversation) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	opts.Log = logrus.NewEntry(logger)
	conv := model.NewConversation()
	return New(conv, openai.NewClient(), opts), conv
}

func testEndpoint(url string) config.Endpoint {
	ep := config.DefaultEndpoint()
	ep.ServerURL = url
	return ep
}

func lastRequestMessage(r *http.Request) string {
	var req openai.ChatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}

// =============================================================================
// STREAMING
// =============================================================================

func TestSend_DeltaSplitAcrossChunks(t *testing.T) {
	server := httptest.NewServer(streamHandler(
		`data: {"choices":[{"delta":{"content":"Hel`,
		`lo"}}]}`+"\n",
		"data: [DONE]\n",
	))
	defer server.Close()

	eng, conv := newTestEngine(t, Options{})
	res := eng.Send(context.Background(), "Hi", testEndpoint(server.URL))

	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, res.Sentinel)
	assert.Equal(t, 1, res.Deltas)

	turns := conv.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, "Hi", turns[0].Content)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Hello", turns[1].Content)
	assert.False(t, turns[1].IsError)

	_, open := conv.Current()
	assert.False(t, open, "session must be closed after the stream ends")
	assert.Equal(t, StateIdle, eng.State())
}

func TestSend_ChunkBoundaryIndependence(t *testing.T) {
	body := deltaLine("The ") + deltaLine("quick ") + "\n" + deltaLine("brown 🦊 ") + deltaLine("jumps ✓") + "data: [DONE]\n"
	want := "The quick brown 🦊 jumps ✓"

	for _, size := range []int{1, 2, 3, 5, 7, 16, len(body)} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			var pieces []string
			for i := 0; i < len(body); i += size {
				end := i + size
				if end > len(body) {
					end = len(body)
				}
				pieces = append(pieces, body[i:end])
			}
			server := httptest.NewServer(streamHandler(pieces...))
			defer server.Close()

			eng, conv := newTestEngine(t, Options{ChunkSize: size})
			res := eng.Send(context.Background(), "go", testEndpoint(server.URL))
			require.Equal(t, StatusCompleted, res.Status)

			last, ok := conv.Last()
			require.True(t, ok)
			assert.Equal(t, want, last.Content)
		})
	}
}

func TestSend_MalformedLinesSkipped(t *testing.T) {
	server := httptest.NewServer(streamHandler(
		": keep-alive\n",
		deltaLine("A"),
		"\n\n",
		"data: {not json at all}\n",
		"event: ping\n",
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n",
		deltaLine("B"),
		"data: [DONE]\n",
	))
	defer server.Close()

	eng, conv := newTestEngine(t, Options{})
	res := eng.Send(context.Background(), "x", testEndpoint(server.URL))

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 2, res.Deltas)
	assert.Equal(t, 1, res.Ignored)
	last, _ := conv.Last()
	assert.Equal(t, "AB", last.Content)
}

func TestSend_SentinelStopsReading(t *testing.T) {
	server := httptest.NewServer(streamHandler(
		deltaLine("kept"),
		"data: [DONE]\n",
		deltaLine(" dropped"),
	))
	defer server.Close()

	eng, conv := newTestEngine(t, Options{})
	res := eng.Send(context.Background(), "x", testEndpoint(server.URL))

	assert.True(t, res.Sentinel)
	last, _ := conv.Last()
	assert.Equal(t, "kept", last.Content)
}

func TestSend_EOFWithoutSentinel(t *testing.T) {
	server := httptest.NewServer(streamHandler(
		deltaLine("one"),
		`{"message":{"content":" two"}}`,
	))
	defer server.Close()

	eng, conv := newTestEngine(t, Options{})
	res := eng.Send(context.Background(), "x", testEndpoint(server.URL))

	assert.Equal(t, StatusCompleted, res.Status)
	assert.False(t, res.Sentinel)
	last, _ := conv.Last()
	assert.Equal(t, "one", last.Content, "unterminated last line is dropped")
}

func TestSend_ZeroDeltasAddsNoTurn(t *testing.T) {
	server := httptest.NewServer(streamHandler(": ping\n", "\n", "data: [DONE]\n"))
	defer server.Close()

	eng, conv := newTestEngine(t, Options{})
	res := eng.Send(context.Background(), "x", testEndpoint(server.URL))

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 0, res.Deltas)
	assert.Equal(t, 1, conv.Len())
}

func TestSend_ServerErrorInStreamIsReported(t *testing.T) {
	server := httptest.NewServer(streamHandler(
		`data: {"error":{"message":"model requires more memory"}}`+"\n",
		"data: [DONE]\n",
	))
	defer server.Close()

	logger, hook := test.NewNullLogger()
	eng := New(model.NewConversation(), openai.NewClient(), Options{Log: logrus.NewEntry(logger)})
	res := eng.Send(context.Background(), "x", testEndpoint(server.URL))

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 0, res.Deltas)
	require.ErrorIs(t, res.StreamErr, stream.ErrServerReported)
	assert.Contains(t, res.StreamErr.Error(), "model requires more memory")

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "Server reported an error mid-stream" {
			warned = true
		}
	}
	assert.True(t, warned, "mid-stream server error must be logged at warn")
}

func TestSend_LlamaCppNativeFraming(t *testing.T) {
	server := httptest.NewServer(streamHandler(
		`data: {"content":"Hel","stop":false}`+"\n",
		`data: {"content":"lo","stop":false}`+"\n",
		`data: {"content":"","stop":true}`+"\n",
	))
	defer server.Close()

	eng, conv := newTestEngine(t, Options{})
	res := eng.Send(context.Background(), "x", testEndpoint(server.URL))

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 2, res.Deltas)
	assert.Equal(t, 0, res.Ignored)
	last, _ := conv.Last()
	assert.Equal(t, "Hello", last.Content)
}

func TestSend_EmptyInputIsNoop(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	eng, conv := newTestEngine(t, Options{})
	for _, in := range []string{"", "   ", "\n\t"} {
		res := eng.Send(context.Background(), in, testEndpoint(server.URL))
		assert.Equal(t, StatusSkipped, res.Status)
	}
	assert.Equal(t, 0, conv.Len())
	assert.Equal(t, int32(0), requests.Load())
}

// =============================================================================
// FAILURES
// =============================================================================

func TestSend_StatusErrorBecomesErrorTurn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"model crashed"}}`)
	}))
	defer server.Close()

	eng, conv := newTestEngine(t, Options{})
	res := eng.Send(context.Background(), "Hi", testEndpoint(server.URL))

	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, openai.IsStatus(res.Err))

	turns := conv.Snapshot()
	require.Len(t, turns, 2)
	assert.True(t, turns[1].IsError)
	assert.True(t, strings.HasPrefix(turns[1].Content, "Error: "))
	assert.Contains(t, turns[1].Content, "500")
	assert.Contains(t, turns[1].Content, "model crashed")
	assert.Equal(t, StateIdle, eng.State())
}

func TestSend_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	eng, conv := newTestEngine(t, Options{})
	res := eng.Send(context.Background(), "Hi", testEndpoint(url))

	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, openai.IsConnection(res.Err))
	last, _ := conv.Last()
	assert.True(t, last.IsError)
}

func TestSend_NetworkDropKeepsPartialReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, deltaLine("Hel"))
		w.(http.Flusher).Flush()
		time.Sleep(20 * time.Millisecond)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}))
	defer server.Close()

	eng, conv := newTestEngine(t, Options{})
	res := eng.Send(context.Background(), "Hi", testEndpoint(server.URL))

	assert.Equal(t, StatusFailed, res.Status)
	turns := conv.Snapshot()
	require.Len(t, turns, 3)
	assert.Equal(t, "Hel", turns[1].Content)
	assert.False(t, turns[1].IsError)
	assert.True(t, turns[2].IsError)
	assert.Contains(t, turns[2].Content, "connection lost")
}

func TestSend_ReadTimeoutBetweenChunks(t *testing.T) {
	server := httptest.NewServer(stallHandler(deltaLine("partial")))
	defer server.Close()

	eng, conv := newTestEngine(t, Options{ReadTimeout: 100 * time.Millisecond})
	res := eng.Send(context.Background(), "Hi", testEndpoint(server.URL))

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrReadTimeout)
	turns := conv.Snapshot()
	require.Len(t, turns, 3)
	assert.Equal(t, "partial", turns[1].Content)
	assert.Equal(t, ErrorText(ErrReadTimeout), turns[2].Content)
}

func TestSend_ReadTimeoutBeforeHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	eng, conv := newTestEngine(t, Options{ReadTimeout: 100 * time.Millisecond})
	res := eng.Send(context.Background(), "Hi", testEndpoint(server.URL))

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrReadTimeout)
	last, _ := conv.Last()
	assert.True(t, last.IsError)
}

// =============================================================================
// CANCELLATION AND SUPERSEDE
// =============================================================================

func TestCancel_KeepsPartialReplyWithoutErrorTurn(t *testing.T) {
	server := httptest.NewServer(stallHandler(deltaLine("partial")))
	defer server.Close()

	eng, conv := newTestEngine(t, Options{})
	assert.False(t, eng.Cancel(), "nothing to cancel yet")

	done := make(chan Result, 1)
	go func() { done <- eng.Send(context.Background(), "Hi", testEndpoint(server.URL)) }()

	require.Eventually(t, func() bool { return conv.Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateStreaming, eng.State())
	assert.True(t, eng.Busy())
	assert.True(t, eng.Cancel())

	res := <-done
	assert.Equal(t, StatusCanceled, res.Status)
	assert.ErrorIs(t, res.Err, ErrCanceled)

	turns := conv.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, "partial", turns[1].Content)
	assert.False(t, eng.Busy())
	assert.False(t, eng.Cancel())
}

func TestSend_CallerContextCanceled(t *testing.T) {
	server := httptest.NewServer(stallHandler(deltaLine("partial")))
	defer server.Close()

	eng, conv := newTestEngine(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for conv.Len() < 2 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	res := eng.Send(ctx, "Hi", testEndpoint(server.URL))
	assert.Equal(t, StatusCanceled, res.Status)
	last, _ := conv.Last()
	assert.False(t, last.IsError)
}

func TestSend_NewSendSupersedesPrevious(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if lastRequestMessage(r) == "first" {
			stallHandler(deltaLine("stale"))(w, r)
			return
		}
		streamHandler(deltaLine("fresh"), "data: [DONE]\n")(w, r)
	}))
	defer server.Close()

	eng, conv := newTestEngine(t, Options{})
	ep := testEndpoint(server.URL)

	first := make(chan Result, 1)
	go func() { first <- eng.Send(context.Background(), "first", ep) }()
	require.Eventually(t, func() bool { return conv.Len() == 2 }, 2*time.Second, 5*time.Millisecond)

	second := eng.Send(context.Background(), "second", ep)
	assert.Equal(t, StatusCompleted, second.Status)

	res := <-first
	assert.Equal(t, StatusSuperseded, res.Status)

	turns := conv.Snapshot()
	require.Len(t, turns, 4)
	assert.Equal(t, "stale", turns[1].Content)
	assert.Equal(t, "second", turns[2].Content)
	assert.Equal(t, "fresh", turns[3].Content)
	for _, turn := range turns {
		assert.False(t, turn.IsError)
	}
	assert.Equal(t, StateIdle, eng.State())
}

// =============================================================================
// REQUEST CONTENT
// =============================================================================

func TestSend_RequestMessages(t *testing.T) {
	var got atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		got.Store(req.Messages)
		if req.Messages[len(req.Messages)-1].Content == "fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		streamHandler(deltaLine("ok"), "data: [DONE]\n")(w, r)
	}))
	defer server.Close()
	ep := testEndpoint(server.URL)

	t.Run("latest only", func(t *testing.T) {
		eng, _ := newTestEngine(t, Options{})
		eng.Send(context.Background(), "one", ep)
		eng.Send(context.Background(), "two", ep)
		assert.Equal(t, []openai.ChatMessage{{Role: "user", Content: "two"}}, got.Load())
	})

	t.Run("with history", func(t *testing.T) {
		eng, _ := newTestEngine(t, Options{SendHistory: true})
		eng.Send(context.Background(), "one", ep)
		eng.Send(context.Background(), "fail", ep)
		eng.Send(context.Background(), "two", ep)
		assert.Equal(t, []openai.ChatMessage{
			{Role: "user", Content: "one"},
			{Role: "assistant", Content: "ok"},
			{Role: "user", Content: "fail"},
			{Role: "user", Content: "two"},
		}, got.Load(), "error turns are not sent back")
	})
}

func TestSend_ResetsScrollToFollowing(t *testing.T) {
	server := httptest.NewServer(streamHandler("data: [DONE]\n"))
	defer server.Close()

	ctl := scroll.NewController(2)
	ctl.OnUserScroll(0, 10, 100)
	require.Equal(t, scroll.Held, ctl.State())

	eng, _ := newTestEngine(t, Options{Scroll: ctl})
	eng.Send(context.Background(), "Hi", testEndpoint(server.URL))
	assert.Equal(t, scroll.Following, ctl.State())
}

func TestStateAndStatusStrings(t *testing.T) {
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "superseded", StatusSuperseded.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.Equal(t, "Error: boom", ErrorText(fmt.Errorf("boom")))
}

func TestOptionsFromConfig(t *testing.T) {
	ctl := scroll.NewController(0)
	opts := OptionsFromConfig(config.StreamConfig{ReadTimeoutSecs: 30, ChunkSize: 512, SendHistory: true}, ctl, nil)
	assert.Equal(t, 30*time.Second, opts.ReadTimeout)
	assert.Equal(t, 512, opts.ChunkSize)
	assert.True(t, opts.SendHistory)
	assert.Same(t, ctl, opts.Scroll)
}
