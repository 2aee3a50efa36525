package temporal

import (
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/antigravity-dev/studybuddy/internal/ingest"
	"github.com/antigravity-dev/studybuddy/internal/schedulerhook"
)

const TaskQueue = "studybuddy-task-queue"

// StartWorker connects to Temporal and starts the studybuddy task queue
// worker, registering the ingest and scheduled-sync workflows along with
// the activities they call.
func StartWorker(hostPort string, ingestHandlers *ingest.Handlers, hook *schedulerhook.Hook) error {
	c, err := client.Dial(client.Options{
		HostPort: hostPort,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	w := worker.New(c, TaskQueue, worker.Options{})

	acts := &Activities{Ingest: ingestHandlers, SchedulerHook: hook}

	w.RegisterWorkflow(IngestWorkflow)
	w.RegisterWorkflow(ScheduledSyncWorkflow)

	w.RegisterActivity(acts.ExtractActivity)
	w.RegisterActivity(acts.StartOCRActivity)
	w.RegisterActivity(acts.PollOCRActivity)
	w.RegisterActivity(acts.FinalizeActivity)
	w.RegisterActivity(acts.ScheduledSyncActivity)

	log.Printf("temporal worker started on %s", TaskQueue)
	return w.Run(worker.InterruptCh())
}
