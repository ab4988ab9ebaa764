package llm

import (
	"context"

	"github.com/testcraft/testcraft/pkg/models"
)

// Suggester produces free-form review notes for a user story: missing
// acceptance criteria, risky areas, scenarios worth covering. The output is
// advisory text for the reviewer, never structured test cases.
type Suggester interface {
	Suggest(ctx context.Context, story models.UserStory) (string, error)
}
