package temporal

import (
	"context"

	"github.com/antigravity-dev/studybuddy/internal/ingest"
	"github.com/antigravity-dev/studybuddy/internal/schedulerhook"
)

// Activities wires the task handlers the workflows call into, so the
// workflow functions themselves stay pure orchestration (spec §4.G's "the
// core owns the topology" split between handler and orchestrator).
type Activities struct {
	Ingest        *ingest.Handlers
	SchedulerHook *schedulerhook.Hook
}

func (a *Activities) ExtractActivity(ctx context.Context, in ingest.ExtractInput) (ingest.ExtractOutput, error) {
	return a.Ingest.Extract(ctx, in)
}

func (a *Activities) StartOCRActivity(ctx context.Context, textractKey string) (ingest.StartOCROutput, error) {
	return a.Ingest.StartOCR(ctx, textractKey)
}

func (a *Activities) PollOCRActivity(ctx context.Context, jobID string) (ingest.PollOCROutput, error) {
	return a.Ingest.PollOCR(ctx, jobID)
}

func (a *Activities) FinalizeActivity(ctx context.Context, in ingest.FinalizeInput) (ingest.FinalizeOutput, error) {
	return a.Ingest.Finalize(ctx, in)
}

func (a *Activities) ScheduledSyncActivity(ctx context.Context) (ScheduledSyncWorkflowResult, error) {
	result, err := a.SchedulerHook.Run(ctx)
	if err != nil {
		return ScheduledSyncWorkflowResult{}, err
	}
	return ScheduledSyncWorkflowResult{
		UsersSucceeded:        result.UsersSucceeded,
		UsersFailed:           result.UsersFailed,
		CoursesUpserted:       result.CoursesUpserted,
		ItemsUpserted:         result.ItemsUpserted,
		MaterialsUpserted:     result.MaterialsUpserted,
		MaterialsMirrored:     result.MaterialsMirrored,
		FailedCourseIDsByUser: result.FailedCourseIDsByUser,
		UserErrors:            result.UserErrors,
		KBStarted:             result.KBStarted,
		KBJobID:               result.KBJobID,
		KBError:               result.KBError,
	}, nil
}
