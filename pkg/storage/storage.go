package storage

import (
	"context"
	"errors"
	"io"

	"github.com/testcraft/testcraft/pkg/models"
)

// Sentinel errors surfaced by Store implementations.
var (
	// ErrNotFound means the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition means a status update was rejected because the
	// record is not in a state the transition is allowed from.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store defines the interface for persisting stories, generated test cases,
// per-project operator configs and export artifacts.
type Store interface {
	// UpsertStories inserts or refreshes user stories pulled from the tracker.
	UpsertStories(ctx context.Context, stories []models.UserStory) error

	// GetStories lists the stored stories for a project.
	GetStories(ctx context.Context, project string) ([]models.UserStory, error)

	// GetStory retrieves a single story, or ErrNotFound.
	GetStory(ctx context.Context, storyID string) (*models.UserStory, error)

	// SaveTestCases persists freshly generated cases, assigning IDs and
	// timestamps. The returned slice carries the storage-assigned fields.
	SaveTestCases(ctx context.Context, cases []models.GeneratedTestCase) ([]models.GeneratedTestCase, error)

	// GetTestCases lists cases filtered by project and optionally by story
	// and/or status (empty filter values match everything).
	GetTestCases(ctx context.Context, project, storyID, status string) ([]models.GeneratedTestCase, error)

	// GetTestCase retrieves a single case, or ErrNotFound.
	GetTestCase(ctx context.Context, caseID string) (*models.GeneratedTestCase, error)

	// UpdateTestCaseStatus moves a case from one status to another.
	// Returns ErrInvalidTransition when the case is not in fromStatus,
	// ErrNotFound when it does not exist.
	UpdateTestCaseStatus(ctx context.Context, caseID, fromStatus, toStatus string) error

	// MarkSynced records the tracker work-item ID and moves an approved
	// case to synced.
	MarkSynced(ctx context.Context, caseID, workItemID string) error

	// DeleteTestCase removes a case. Returns ErrNotFound when absent.
	DeleteTestCase(ctx context.Context, caseID string) error

	// CountTestCasesByStatus counts cases for a project in a given status.
	CountTestCasesByStatus(ctx context.Context, project, status string) (int, error)

	// GetProjectConfig returns the raw JSON payload for a project config
	// kind (testdata, environment, ai), or nil when none was saved.
	GetProjectConfig(ctx context.Context, project, kind string) ([]byte, error)

	// PutProjectConfig stores or replaces a project config payload.
	PutProjectConfig(ctx context.Context, project, kind string, payload []byte) error

	// StoreArtifact uploads a binary artifact (e.g. a CSV export) and
	// returns its URL.
	StoreArtifact(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error)

	// Close releases any resources held by the store (e.g., DB connections).
	Close() error
}
