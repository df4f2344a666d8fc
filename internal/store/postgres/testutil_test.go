package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ppiankov/skytap/internal/record"
	"github.com/ppiankov/skytap/internal/source"
)

// setupTestStore starts a PostgreSQL container, applies the embedded
// migrations and returns a store bound to it.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	st, err := Open(ctx, dsn)
	require.NoError(t, err, "failed to open store")
	t.Cleanup(func() { _ = st.Close() })

	return st
}

func testRecord(t *testing.T, topic, n, createdAt string) record.Record {
	t.Helper()
	rec, err := record.NewFactory(topic, nil).Create(source.Post{
		AuthorHandle:      "user" + n + ".bsky.social",
		AuthorDisplayName: "User " + n,
		URI:               "at://did:plc:user" + n + "/app.bsky.feed.post/" + n,
		CID:               "cid" + n,
		CreatedAt:         createdAt,
		Text:              "post " + n,
		Langs:             []string{"en"},
	})
	require.NoError(t, err)
	return rec
}
