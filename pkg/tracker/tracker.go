package tracker

import (
	"context"

	"github.com/testcraft/testcraft/pkg/models"
)

// Client talks to the work-item tracker (Azure DevOps). Stories flow in,
// approved test cases flow out as Test Case work items.
type Client interface {
	// FetchUserStories pulls the user stories of a project.
	FetchUserStories(ctx context.Context, project string) ([]models.UserStory, error)

	// CreateTestCase creates a Test Case work item for an approved case and
	// returns the new work-item ID.
	CreateTestCase(ctx context.Context, project string, tc models.GeneratedTestCase) (string, error)

	// UpdateWorkItemState sets the state of an existing work item.
	UpdateWorkItemState(ctx context.Context, workItemID, state string) error
}
