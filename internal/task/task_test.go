package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/skytap/internal/fetcher"
	"github.com/ppiankov/skytap/internal/record"
	"github.com/ppiankov/skytap/internal/source"
	"github.com/ppiankov/skytap/internal/store"
)

type fakeCursors struct {
	mu      sync.Mutex
	cursor  string
	getErr  error
	setErr  error
	commits []string
}

func (c *fakeCursors) GetCursor(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", c.getErr
	}
	if c.cursor == "" {
		return "", store.ErrNotFound
	}
	return c.cursor, nil
}

func (c *fakeCursors) SetCursor(_ context.Context, createdAt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.cursor = createdAt
	c.commits = append(c.commits, createdAt)
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	err     error
	records []record.Record
}

func (s *fakeSink) Emit(_ context.Context, records []record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	return nil
}

type fakeSource struct {
	mu       sync.Mutex
	startErr error
	postErr  error
	pending  []source.Post
	started  bool
	stopped  int
}

func (s *fakeSource) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = s.startErr == nil
	return s.startErr
}

func (s *fakeSource) Posts() ([]source.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.postErr != nil {
		return nil, s.postErr
	}
	out := s.pending
	s.pending = nil
	return out, nil
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
}

func (s *fakeSource) push(posts ...source.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, posts...)
}

func post(n, createdAt string) source.Post {
	return source.Post{
		AuthorHandle: "user" + n + ".bsky.social",
		URI:          "at://did:plc:user" + n + "/app.bsky.feed.post/" + n,
		CID:          "cid" + n,
		CreatedAt:    createdAt,
		Text:         "post " + n,
		Langs:        []string{},
	}
}

func newTestTask(cursors *fakeCursors, snk *fakeSink, src *fakeSource) (*Task, *fetcher.Options) {
	var seen fetcher.Options
	tk := New(Options{
		Cursors: cursors,
		Sink:    snk,
		Factory: record.NewFactory("bluesky", nil),
		Fetcher: fetcher.Options{SearchTerm: "golang"},
		NewSource: func(o fetcher.Options) (PostSource, error) {
			seen = o
			return src, nil
		},
	})
	return tk, &seen
}

func TestStart_RestoresCursor(t *testing.T) {
	cursors := &fakeCursors{cursor: "2024-05-01T10:00:00.000Z"}
	src := &fakeSource{}
	tk, seen := newTestTask(cursors, &fakeSink{}, src)

	require.NoError(t, tk.Start(context.Background()))
	defer tk.Stop()

	assert.Equal(t, "2024-05-01T10:00:00.000Z", seen.Cursor)
	assert.Equal(t, "golang", seen.SearchTerm)
	assert.True(t, src.started)
}

func TestStart_NoCursor(t *testing.T) {
	tk, seen := newTestTask(&fakeCursors{}, &fakeSink{}, &fakeSource{})

	require.NoError(t, tk.Start(context.Background()))
	defer tk.Stop()

	assert.Empty(t, seen.Cursor)
}

func TestStart_UnreadableCursorIgnored(t *testing.T) {
	tk, seen := newTestTask(&fakeCursors{cursor: "garbage"}, &fakeSink{}, &fakeSource{})

	require.NoError(t, tk.Start(context.Background()))
	defer tk.Stop()

	assert.Empty(t, seen.Cursor)
}

func TestStart_CursorStoreError(t *testing.T) {
	tk, _ := newTestTask(&fakeCursors{getErr: errors.New("disk gone")}, &fakeSink{}, &fakeSource{})
	assert.Error(t, tk.Start(context.Background()))
}

func TestStart_LoginFailure(t *testing.T) {
	authErr := &source.AuthError{Op: "login", StatusCode: 401}
	tk, _ := newTestTask(&fakeCursors{}, &fakeSink{}, &fakeSource{startErr: authErr})

	err := tk.Start(context.Background())
	var got *source.AuthError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 401, got.StatusCode)

	_, err = tk.Poll(context.Background())
	assert.Error(t, err, "poll before a successful start")
}

func TestPoll_EmitsAndCommits(t *testing.T) {
	cursors := &fakeCursors{}
	snk := &fakeSink{}
	src := &fakeSource{}
	tk, _ := newTestTask(cursors, snk, src)
	require.NoError(t, tk.Start(context.Background()))
	defer tk.Stop()

	n, err := tk.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, cursors.commits)

	bad := post("x", "2024-05-01T10:00:00.500Z")
	bad.CreatedAt = "never"
	src.push(post("1", "2024-05-01T10:00:00.000Z"), bad, post("2", "2024-05-01T10:00:01.000Z"))

	n, err = tk.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, snk.records, 2)
	assert.Equal(t, "cid1", snk.records[0].Value.ID.CID)
	assert.Equal(t, "cid2", snk.records[1].Value.ID.CID)
	assert.Equal(t, map[string]string{"createdAt": "2024-05-01T10:00:01.000Z"}, snk.records[1].Offset)
	assert.Nil(t, snk.records[1].Partition)
	assert.Equal(t, []string{"2024-05-01T10:00:01.000Z"}, cursors.commits)
}

func TestPoll_LatchedErrorSurfaces(t *testing.T) {
	refreshErr := &source.AuthError{Op: "refresh", StatusCode: 500}
	src := &fakeSource{}
	tk, _ := newTestTask(&fakeCursors{}, &fakeSink{}, src)
	require.NoError(t, tk.Start(context.Background()))
	defer tk.Stop()

	src.push(post("1", "2024-05-01T10:00:00.000Z"))
	src.mu.Lock()
	src.postErr = refreshErr
	src.mu.Unlock()

	for range 2 {
		_, err := tk.Poll(context.Background())
		assert.ErrorIs(t, err, refreshErr)
	}
}

func TestPoll_SinkErrorSkipsCommit(t *testing.T) {
	cursors := &fakeCursors{}
	src := &fakeSource{}
	tk, _ := newTestTask(cursors, &fakeSink{err: errors.New("broker down")}, src)
	require.NoError(t, tk.Start(context.Background()))
	defer tk.Stop()

	src.push(post("1", "2024-05-01T10:00:00.000Z"))
	_, err := tk.Poll(context.Background())
	assert.Error(t, err)
	assert.Empty(t, cursors.commits)
}

func TestPoll_CommitError(t *testing.T) {
	src := &fakeSource{}
	tk, _ := newTestTask(&fakeCursors{setErr: errors.New("read-only")}, &fakeSink{}, src)
	require.NoError(t, tk.Start(context.Background()))
	defer tk.Stop()

	src.push(post("1", "2024-05-01T10:00:00.000Z"))
	n, err := tk.Poll(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_StopsOnCancelAndStopsSource(t *testing.T) {
	cursors := &fakeCursors{}
	snk := &fakeSink{}
	src := &fakeSource{}
	tk, _ := newTestTask(cursors, snk, src)
	require.NoError(t, tk.Start(context.Background()))

	src.push(post("1", "2024-05-01T10:00:00.000Z"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tk.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		cursors.mu.Lock()
		defer cursors.mu.Unlock()
		return len(cursors.commits) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, 1, src.stopped)
}

func TestRun_ReturnsPollError(t *testing.T) {
	src := &fakeSource{postErr: errors.New("session expired")}
	tk, _ := newTestTask(&fakeCursors{}, &fakeSink{}, src)
	require.NoError(t, tk.Start(context.Background()))

	err := tk.Run(context.Background(), time.Millisecond)
	assert.ErrorContains(t, err, "session expired")

	tk.Stop()
	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, 1, src.stopped)
}
