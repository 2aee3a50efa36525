// Package schedulerhook runs the scheduled LMS sync sweep (spec §4.H's
// component L), grounded directly on
// original_source/backend/runtime.py's _handle_scheduled_canvas_sync: it
// iterates every stored connection, invokes lmssync.Syncer.Sync for each,
// tallies totals, and continues past individual per-user failures.
package schedulerhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/antigravity-dev/studybuddy/internal/fsrs"
	"github.com/antigravity-dev/studybuddy/internal/lmssync"
	"github.com/antigravity-dev/studybuddy/internal/models"
	"github.com/antigravity-dev/studybuddy/internal/ports"
	"github.com/antigravity-dev/studybuddy/internal/store"
)

// Result is the aggregate outcome of one scheduled sweep across all users.
type Result struct {
	UsersSucceeded        int
	UsersFailed           int
	CoursesUpserted       int
	ItemsUpserted         int
	MaterialsUpserted     int
	MaterialsMirrored     int
	FailedCourseIDsByUser map[string][]string
	UserErrors            map[string]string
	KBStarted             bool
	KBJobID               string
	KBError               string
}

// Hook runs the scheduled sync for every connection in Store.
type Hook struct {
	Store   *store.Store
	Syncer  *lmssync.Syncer
	KB      ports.KBClient
	NowFunc func() time.Time
}

func (h *Hook) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

// Run executes the scheduled sweep (spec §4.H's scheduled entrypoint).
func (h *Hook) Run(ctx context.Context) (Result, error) {
	connections, err := h.Store.ListAllCanvasConnections(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("schedulerhook: list connections: %w", err)
	}

	result := Result{
		FailedCourseIDsByUser: map[string][]string{},
		UserErrors:            map[string]string{},
	}
	updatedAt := fsrs.FormatRFC3339UTC(h.now())

	for _, conn := range connections {
		userResult, err := h.syncOne(ctx, conn, updatedAt)
		if err != nil {
			result.UsersFailed++
			result.UserErrors[conn.UserID] = err.Error()
			continue
		}
		result.UsersSucceeded++
		result.CoursesUpserted += userResult.CoursesUpserted
		result.ItemsUpserted += userResult.ItemsUpserted
		result.MaterialsUpserted += userResult.MaterialsUpserted
		result.MaterialsMirrored += userResult.MaterialsMirrored
		if len(userResult.FailedCourseIDs) > 0 {
			sorted := append([]string(nil), userResult.FailedCourseIDs...)
			sort.Strings(sorted)
			result.FailedCourseIDsByUser[conn.UserID] = sorted
		}
	}

	if result.MaterialsMirrored > 0 && h.KB != nil {
		token := aggregateClientToken(updatedAt)
		jobID, err := h.KB.Ingest(ctx, "canvas-scheduled-sync", token)
		if err != nil {
			result.KBError = "unable to start KB ingestion"
		} else {
			result.KBStarted = true
			result.KBJobID = jobID
		}
	}

	return result, nil
}

// syncOne runs one user's sync, converting a panic (a stand-in for the
// original's bare "except Exception") into an error so one user's failure
// never aborts the sweep.
func (h *Hook) syncOne(ctx context.Context, conn models.CanvasConnection, updatedAt string) (res lmssync.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("schedulerhook: panic syncing user %s: %v", conn.UserID, r)
		}
	}()
	return h.Syncer.Sync(ctx, conn.UserID, conn, updatedAt)
}

// aggregateClientToken derives a deterministic-per-sweep client token so a
// retried scheduled invocation with the same updatedAt does not double-submit
// the aggregate KB job.
func aggregateClientToken(updatedAt string) string {
	sum := sha256.Sum256([]byte("canvas-scheduled-sync:" + updatedAt))
	return hex.EncodeToString(sum[:])
}
