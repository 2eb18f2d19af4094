package stream

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/persona-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/persona-chat/backend/internal/service/chat"
)

type fakeSubmitter struct {
	delay   time.Duration
	snap    chat.Snapshot
	err     error
	missing bool
	submits int
}

func (f *fakeSubmitter) Snapshot(_ context.Context, sessionID string) (chat.Snapshot, error) {
	if f.missing {
		return chat.Snapshot{}, chatService.ErrSessionNotFound
	}
	return chat.Snapshot{SessionID: sessionID, State: chat.StateChatting}, nil
}

func (f *fakeSubmitter) Submit(ctx context.Context, sessionID, text string) (chat.Snapshot, error) {
	f.submits++
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return chat.Snapshot{}, ctx.Err()
	}
	return f.snap, f.err
}

func serve(t *testing.T, sub Submitter, heartbeat time.Duration, target string) *httptest.ResponseRecorder {
	t.Helper()
	h := New(sub, nil)
	h.heartbeat = heartbeat

	r := chi.NewRouter()
	h.RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, target, nil))
	return resp
}

func events(t *testing.T, body string) []string {
	t.Helper()
	var names []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	require.NoError(t, scanner.Err())
	return names
}

func TestStreamPendingHeartbeatRender(t *testing.T) {
	sub := &fakeSubmitter{
		delay: 60 * time.Millisecond,
		snap: chat.Snapshot{
			SessionID:  "s1",
			State:      chat.StateChatting,
			Transcript: []chat.Turn{chat.UserTurn("Hello"), chat.AssistantTurn("Well, hello there.")},
		},
	}

	resp := serve(t, sub, 10*time.Millisecond, "/stream/s1?message=Hello")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))

	names := events(t, resp.Body.String())
	require.GreaterOrEqual(t, len(names), 3)
	assert.Equal(t, EventPending, names[0])
	assert.Contains(t, names, EventHeartbeat)
	assert.Equal(t, EventRender, names[len(names)-1])
	assert.Contains(t, resp.Body.String(), "Well, hello there.")
}

func TestStreamErrorThenRender(t *testing.T) {
	sub := &fakeSubmitter{
		snap: chat.Snapshot{SessionID: "s1", State: chat.StateChatting, Transcript: []chat.Turn{}},
		err:  errors.New("error calling the model endpoint: deadline exceeded"),
	}

	resp := serve(t, sub, time.Second, "/stream/s1?message=Hello")
	assert.Equal(t, []string{EventPending, EventError, EventRender}, events(t, resp.Body.String()))
}

func TestStreamUnknownSessionIsNotFound(t *testing.T) {
	sub := &fakeSubmitter{missing: true}

	resp := serve(t, sub, time.Second, "/stream/missing?message=Hello")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Body.String(), chatService.ErrSessionNotFound.Error())
	assert.Empty(t, events(t, resp.Body.String()))
	assert.Zero(t, sub.submits)
}

func TestStreamSubmitErrorWithoutSnapshot(t *testing.T) {
	sub := &fakeSubmitter{err: chatService.ErrSessionNotFound}

	resp := serve(t, sub, time.Second, "/stream/s1?message=Hello")
	assert.Equal(t, []string{EventPending, EventError}, events(t, resp.Body.String()))
}

func TestStreamRequiresMessage(t *testing.T) {
	resp := serve(t, &fakeSubmitter{}, time.Second, "/stream/s1")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
