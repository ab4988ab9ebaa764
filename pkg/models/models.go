package models

import (
	"fmt"
	"time"
)

// UserStory is a work item pulled from the tracker (Azure DevOps).
// Description and AcceptanceCriteria arrive as HTML-laden rich text;
// the generator cleans them before use.
type UserStory struct {
	ID                 string `json:"id"`      // Work-item ID as a string
	Project            string `json:"project"` // Azure DevOps project the story belongs to
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	AcceptanceCriteria string `json:"acceptanceCriteria,omitempty"`
	AssignedTo         string `json:"assignedTo,omitempty"`
	Priority           int    `json:"priority,omitempty"`
	State              string `json:"state,omitempty"`
}

// TestDataConfig holds operator-supplied test account data. Optional input
// to generation; absent sections are simply omitted from prerequisites.
type TestDataConfig struct {
	Username    string   `json:"username,omitempty"`
	Password    string   `json:"password,omitempty"`
	PortalURL   string   `json:"portalUrl,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// EnvironmentConfig describes the target test environment. Optional.
type EnvironmentConfig struct {
	OperatingSystem string `json:"operatingSystem,omitempty"`
	Browser         string `json:"browser,omitempty"`
	Device          string `json:"device,omitempty"`
}

// AiConfiguration selects which test-case types and target platforms the
// generator expands. When no configuration was saved for a project the
// generator falls back to positive+negative+edge on the web platform.
type AiConfiguration struct {
	IncludePositiveTests      bool `json:"includePositiveTests"`
	IncludeNegativeTests      bool `json:"includeNegativeTests"`
	IncludeEdgeCaseTests      bool `json:"includeEdgeCaseTests"`
	IncludeSecurityTests      bool `json:"includeSecurityTests"`
	IncludePerformanceTests   bool `json:"includePerformanceTests"`
	IncludeUITests            bool `json:"includeUiTests"`
	IncludeUsabilityTests     bool `json:"includeUsabilityTests"`
	IncludeAPITests           bool `json:"includeApiTests"`
	IncludeCompatibilityTests bool `json:"includeCompatibilityTests"`

	EnableWebPortalTests bool `json:"enableWebPortalTests"`
	EnableMobileAppTests bool `json:"enableMobileAppTests"`
	EnableAPITests       bool `json:"enableApiTests"`
}

// TestStep is one structured step of a test case procedure.
type TestStep struct {
	StepNumber     int    `json:"stepNumber"`
	Action         string `json:"action"`
	ExpectedResult string `json:"expectedResult"`
}

// RenderSteps produces the flattened numbered string form of structured
// steps. Both representations of a test case must stay in sync, so this is
// the only place the rendering convention lives.
func RenderSteps(steps []TestStep) []string {
	rendered := make([]string, len(steps))
	for i, s := range steps {
		rendered[i] = fmt.Sprintf("%d. %s", s.StepNumber, s.Action)
	}
	return rendered
}

// GeneratedTestCase is the output of the synthesis engine. The engine emits
// it with an empty ID; storage assigns the ID on insert.
type GeneratedTestCase struct {
	ID                  string     `json:"id,omitempty"`
	StoryID             string     `json:"storyId"`
	Project             string     `json:"project,omitempty"`
	Title               string     `json:"title"`
	Objective           string     `json:"objective"`
	Prerequisites       string     `json:"prerequisites"`
	TestSteps           []string   `json:"testSteps"`
	TestStepsStructured []TestStep `json:"testStepsStructured"`
	ExpectedResult      string     `json:"expectedResult"`
	TestPassword        string     `json:"testPassword"`
	RequiredPermissions string     `json:"requiredPermissions"`
	Priority            string     `json:"priority"`
	Category            string     `json:"category"`
	Platform            string     `json:"platform"` // web, mobile or api
	Status              string     `json:"status"`
	WorkItemID          string     `json:"workItemId,omitempty"` // set once pushed to the tracker
	CreatedAt           time.Time  `json:"createdAt,omitempty"`
	UpdatedAt           time.Time  `json:"updatedAt,omitempty"`
}

// Test case lifecycle. The generator always emits pending; review moves a
// case to approved or rejected; the push worker moves approved to synced.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusSynced   = "synced"
)

// Keys for per-project operator configs stored as raw JSON.
const (
	ConfigKindTestData    = "testdata"
	ConfigKindEnvironment = "environment"
	ConfigKindAI          = "ai"
)

// PushJob is a unit of tracker-sync work dequeued by the push worker.
type PushJob struct {
	ID         string    `json:"id"`
	Project    string    `json:"project"`
	CaseIDs    []string  `json:"caseIds"`
	Priority   uint8     `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// PushJobMessage is the structure published to RabbitMQ.
type PushJobMessage struct {
	ID         string    `json:"id"`
	Project    string    `json:"project"`
	CaseIDs    []string  `json:"caseIds"`
	Priority   uint8     `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
