package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"
)

// ReindexInput holds the workflow parameters.
type ReindexInput struct {
	DocsDir string
}

// ReindexOutput holds the workflow result.
type ReindexOutput struct {
	Processed   int
	Failed      int
	TotalChunks int
	Errors      []string
}

// ReindexWorkflow rebuilds the corpus index from a documents directory.
// Each document is removed and re-ingested in its own activity; a failed
// document is recorded and the batch continues, so one bad file never
// aborts a full reindex.
func ReindexWorkflow(ctx workflow.Context, input ReindexInput) (*ReindexOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var paths []string
	if err := workflow.ExecuteActivity(ctx, ListDocumentsActivity, input.DocsDir).Get(ctx, &paths); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	output := &ReindexOutput{}
	for _, path := range paths {
		var result ReindexDocumentResult
		if err := workflow.ExecuteActivity(ctx, ReindexDocumentActivity, path).Get(ctx, &result); err != nil {
			output.Failed++
			output.Errors = append(output.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		output.Processed++
		output.TotalChunks += result.Chunks
	}

	return output, nil
}
