package schedulerhook

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/studybuddy/internal/canvasclient"
	"github.com/antigravity-dev/studybuddy/internal/lmssync"
	"github.com/antigravity-dev/studybuddy/internal/models"
	"github.com/antigravity-dev/studybuddy/internal/ports"
	"github.com/antigravity-dev/studybuddy/internal/store"
)

type fakeKB struct {
	jobID     string
	ingestErr error
	calls     int
}

func (f *fakeKB) Retrieve(ctx context.Context, filterCourseID, query string, numberOfResults int) ([]ports.RetrievalRow, error) {
	return nil, nil
}

func (f *fakeKB) Ingest(ctx context.Context, sourceKey, clientToken string) (string, error) {
	f.calls++
	if f.ingestErr != nil {
		return "", f.ingestErr
	}
	return f.jobID, nil
}

func openTestDB(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRun_NoConnectionsIsNoOp(t *testing.T) {
	db := openTestDB(t)
	hook := &Hook{
		Store:  db,
		Syncer: &lmssync.Syncer{Canvas: canvasclient.New("test/1.0")},
		KB:     &fakeKB{},
	}

	result, err := hook.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.UsersSucceeded)
	require.False(t, result.KBStarted)
}

func TestRun_ContinuesPastOneUserFailure(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.PutCanvasConnection(context.Background(), models.CanvasConnection{
		UserID: "u1", CanvasBaseURL: "http://127.0.0.1:1", AccessToken: "tok", UpdatedAt: "2026-07-30T00:00:00Z",
	}))
	require.NoError(t, db.PutCanvasConnection(context.Background(), models.CanvasConnection{
		UserID: "u2", CanvasBaseURL: "http://127.0.0.1:1", AccessToken: "tok", UpdatedAt: "2026-07-30T00:00:00Z",
	}))

	hook := &Hook{
		Store:   db,
		Syncer:  &lmssync.Syncer{Canvas: canvasclient.New("test/1.0"), Store: db, SuppressKBTrigger: true},
		KB:      &fakeKB{},
		NowFunc: func() time.Time { return time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) },
	}

	result, err := hook.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.UsersSucceeded)
	require.Equal(t, 2, result.UsersFailed)
	require.Len(t, result.UserErrors, 2)
}
