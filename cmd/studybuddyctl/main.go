// Command studybuddyctl is the operator CLI: mint a calendar token, run one
// user's LMS sync, submit a document-ingestion job, or inspect its status,
// all against the same state database and Temporal cluster the server uses.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/antigravity-dev/studybuddy/internal/caltoken"
	"github.com/antigravity-dev/studybuddy/internal/canvasclient"
	"github.com/antigravity-dev/studybuddy/internal/config"
	"github.com/antigravity-dev/studybuddy/internal/fsrs"
	"github.com/antigravity-dev/studybuddy/internal/lmssync"
	"github.com/antigravity-dev/studybuddy/internal/models"
	"github.com/antigravity-dev/studybuddy/internal/objectstore"
	"github.com/antigravity-dev/studybuddy/internal/store"
	"github.com/antigravity-dev/studybuddy/internal/temporal"
)

var configPath string

func loadStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(config.ExpandHome(cfg.StateDBPath))
}

func loadObjectStore(ctx context.Context, cfg *config.Config) (*objectstore.Local, error) {
	// The operator CLI only ever runs against a local/dev deployment's
	// filesystem-backed object store; a GCS-backed production deployment
	// mints uploads through the HTTP API instead.
	return objectstore.NewLocal(cfg.ObjectStoreDir)
}

func newMintTokenCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "mint-token",
		Short: "Mint a calendar feed token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			st, err := loadStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			minter := &caltoken.Minter{Store: st, Config: cfg}
			record, err := minter.Mint(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Printf("token:      %s\n", record.Token)
			fmt.Printf("userId:     %s\n", record.UserID)
			fmt.Printf("createdAt:  %s\n", record.CreatedAt)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to mint a token for")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newRunSyncCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "run-sync",
		Short: "Run one user's LMS sync pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			st, err := loadStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			obj, err := loadObjectStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			conn, err := st.GetCanvasConnection(cmd.Context(), userID)
			if err != nil {
				return err
			}

			syncer := &lmssync.Syncer{
				Canvas: canvasclient.New(cfg.CanvasUserAgent),
				Store:  st,
				Object: obj,
				Limits: lmssync.Limits{
					MaxFileBytes:               cfg.CanvasMaxFileBytes,
					MaxFilesPerCourse:          cfg.CanvasMaxFilesPerCourse,
					MaxFilesTotal:              cfg.CanvasMaxFilesTotal,
					AllowedMaterialContentType: cfg.CanvasAllowedMaterialContentType,
				},
				SuppressKBTrigger: true,
			}
			result, err := syncer.Sync(cmd.Context(), userID, conn, fsrs.FormatRFC3339UTC(time.Now().UTC()))
			if err != nil {
				return err
			}
			fmt.Printf("courses upserted:   %d\n", result.CoursesUpserted)
			fmt.Printf("items upserted:     %d\n", result.ItemsUpserted)
			fmt.Printf("materials upserted: %d\n", result.MaterialsUpserted)
			fmt.Printf("materials mirrored: %d\n", result.MaterialsMirrored)
			if len(result.FailedCourseIDs) > 0 {
				fmt.Printf("failed courses:     %v\n", result.FailedCourseIDs)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to sync")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newRunIngestCmd() *cobra.Command {
	var courseID, sourceDocID, bucket, key string
	var threshold int
	cmd := &cobra.Command{
		Use:   "run-ingest",
		Short: "Submit a document-ingestion workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			st, err := loadStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			temporalClient, err := client.Dial(client.Options{HostPort: cfg.TemporalHostPort})
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			jobID := "job-" + uuid.New().String()
			job := models.IngestJob{JobID: jobID, SourceDocID: sourceDocID, CourseID: courseID, SourceKey: key, Status: models.IngestRunning}
			if err := st.PutIngestJob(cmd.Context(), job); err != nil {
				return err
			}

			submitter := &temporal.IngestSubmitter{Client: temporalClient}
			in := temporal.IngestWorkflowInput{JobID: jobID, SourceDocID: sourceDocID, CourseID: courseID, Bucket: bucket, Key: key, Threshold: threshold}
			if err := submitter.SubmitIngestWorkflow(cmd.Context(), in); err != nil {
				return err
			}
			fmt.Printf("jobId: %s\n", jobID)
			return nil
		},
	}
	cmd.Flags().StringVar(&courseID, "course", "", "course id")
	cmd.Flags().StringVar(&sourceDocID, "source-doc", "", "source document id")
	cmd.Flags().StringVar(&bucket, "bucket", "", "object store bucket")
	cmd.Flags().StringVar(&key, "key", "", "object store key")
	cmd.Flags().IntVar(&threshold, "threshold", 200, "minimum extracted character count before falling back to OCR")
	cmd.MarkFlagRequired("course")
	cmd.MarkFlagRequired("source-doc")
	cmd.MarkFlagRequired("key")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var jobID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a document-ingestion job's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			st, err := loadStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			job, err := st.GetIngestJob(cmd.Context(), jobID)
			if err != nil {
				return err
			}

			statusColor := color.New(color.FgGreen)
			if job.Status == models.IngestFailed {
				statusColor = color.New(color.FgRed)
			} else if job.Status == models.IngestRunning {
				statusColor = color.New(color.FgYellow)
			}

			fmt.Printf("jobId:       %s\n", job.JobID)
			fmt.Print("status:      ")
			statusColor.Println(string(job.Status))
			fmt.Printf("textLength:  %d\n", job.TextLength)
			fmt.Printf("usedOCR:     %v\n", job.UsedTextract)
			if job.Error != "" {
				fmt.Printf("error:       %s\n", job.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "ingest job id")
	cmd.MarkFlagRequired("job")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:   "studybuddyctl",
		Short: "Operator CLI for the studybuddy server",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "studybuddy.toml", "path to config file")

	root.AddCommand(newMintTokenCmd(), newRunSyncCmd(), newRunIngestCmd(), newStatusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
