package temporal

// IngestWorkflowInput starts one document's extraction/ingestion pipeline
// (spec §4.G). Bucket/Key address the source object; SourceDocID/CourseID
// identify the owning IngestJob row.
type IngestWorkflowInput struct {
	JobID       string
	SourceDocID string
	CourseID    string
	Bucket      string
	Key         string
	Threshold   int
}

// IngestWorkflowResult mirrors ingest.FinalizeOutput -- the workflow's
// terminal, serializable result.
type IngestWorkflowResult struct {
	JobID        string
	Status       string
	TextLength   int
	UsedTextract bool
	UpdatedAt    string
	Error        string
}

// ScheduledSyncWorkflowResult mirrors schedulerhook.Result for the cron-
// triggered LMS sync sweep (spec §4.H's scheduled entrypoint).
type ScheduledSyncWorkflowResult struct {
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
