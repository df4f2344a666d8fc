package task

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/skytap/internal/fetcher"
	"github.com/ppiankov/skytap/internal/record"
	"github.com/ppiankov/skytap/internal/source"
	"github.com/ppiankov/skytap/internal/store"
)

func apiPost(n, createdAt string) map[string]any {
	return map[string]any{
		"author": map[string]any{"handle": "user" + n + ".bsky.social"},
		"uri":    "at://did:plc:user" + n + "/app.bsky.feed.post/" + n,
		"cid":    "cid" + n,
		"record": map[string]any{"createdAt": createdAt, "text": "post " + n, "langs": []string{"en"}},
	}
}

// fakeBluesky serves a fixed result set and honours the since filter the
// way the real endpoint does: inclusive, newest first.
func fakeBluesky(t *testing.T, posts []map[string]any) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/com.atproto.server.createSession":
			_ = json.NewEncoder(w).Encode(map[string]string{"accessJwt": "a", "refreshJwt": "r"})
		case "/app.bsky.feed.searchPosts":
			var since time.Time
			if s := r.URL.Query().Get("since"); s != "" {
				since, _ = time.Parse(time.RFC3339Nano, s)
			}
			page := []any{}
			for i := len(posts) - 1; i >= 0; i-- {
				rec := posts[i]["record"].(map[string]any)
				at, _ := time.Parse(time.RFC3339Nano, rec["createdAt"].(string))
				if !at.Before(since) {
					page = append(page, posts[i])
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"posts": page})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestPipeline_ResumesFromStoredCursor(t *testing.T) {
	ts := fakeBluesky(t, []map[string]any{
		apiPost("1", "2024-05-01T10:00:00.000Z"),
		apiPost("2", "2024-05-01T10:00:01.000Z"),
		apiPost("3", "2024-05-01T10:00:02.000Z"),
	})

	st, err := store.Open(filepath.Join(t.TempDir(), "skytap.db"))
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	require.NoError(t, st.SetCursor(ctx, "2024-05-01T10:00:00.000Z"))

	tk := New(Options{
		Cursors: st,
		Sink:    st,
		Factory: record.NewFactory("bluesky", nil),
		Fetcher: fetcher.Options{
			Credential:      source.Credential{Identifier: "alice", Password: "pw"},
			SearchTerm:      "bluesky",
			PollInterval:    time.Hour,
			InitialDelay:    fetcher.NoInitialDelay,
			RateLimit:       fetcher.Unlimited,
			RefreshInterval: time.Hour,
			APIURL:          ts.URL,
		},
	})
	require.NoError(t, tk.Start(ctx))
	defer tk.Stop()

	total := 0
	require.Eventually(t, func() bool {
		n, err := tk.Poll(ctx)
		if err != nil {
			t.Errorf("poll: %v", err)
			return false
		}
		total += n
		return total == 2
	}, 3*time.Second, 10*time.Millisecond)

	cursor, err := st.GetCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T10:00:02.000Z", cursor)

	recent, err := st.Recent(ctx, "bluesky", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "cid3", recent[0].CID)
	assert.Equal(t, "cid2", recent[1].CID)
}
