package persistent

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"time"

	"github.com/testcraft/testcraft/pkg/models"
	"github.com/testcraft/testcraft/pkg/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Ensure Store implements storage.Store interface at compile time
var _ storage.Store = (*Store)(nil)

const (
	upsertStorySQL = `
		INSERT INTO user_stories (
			story_id, project, title, description, acceptance_criteria,
			assigned_to, priority, state, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (story_id) DO UPDATE SET
			project = EXCLUDED.project,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			acceptance_criteria = EXCLUDED.acceptance_criteria,
			assigned_to = EXCLUDED.assigned_to,
			priority = EXCLUDED.priority,
			state = EXCLUDED.state,
			updated_at = NOW();
	`
	getStoriesSQL = `
		SELECT story_id, project, title, description, acceptance_criteria,
		       assigned_to, priority, state
		FROM user_stories
		WHERE project = $1
		ORDER BY story_id ASC;
	`
	getStorySQL = `
		SELECT story_id, project, title, description, acceptance_criteria,
		       assigned_to, priority, state
		FROM user_stories
		WHERE story_id = $1;
	`
	insertTestCaseSQL = `
		INSERT INTO test_cases (
			case_id, story_id, project, title, objective, prerequisites,
			steps, expected_result, test_password, required_permissions,
			priority, category, platform, status, work_item_id,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16
		);
	`
	testCaseColumns = `
		case_id, story_id, project, title, objective, prerequisites,
		steps, expected_result, test_password, required_permissions,
		priority, category, platform, status, work_item_id,
		created_at, updated_at
	`
	updateStatusSQL = `
		UPDATE test_cases
		SET status = $3, updated_at = NOW()
		WHERE case_id = $1 AND status = $2;
	`
	markSyncedSQL = `
		UPDATE test_cases
		SET status = $3, work_item_id = $2, updated_at = NOW()
		WHERE case_id = $1 AND status = $4;
	`
	deleteTestCaseSQL = `DELETE FROM test_cases WHERE case_id = $1;`
	countByStatusSQL  = `SELECT COUNT(*) FROM test_cases WHERE project = $1 AND status = $2;`

	getProjectConfigSQL = `SELECT payload FROM project_configs WHERE project = $1 AND kind = $2;`
	putProjectConfigSQL = `
		INSERT INTO project_configs (project, kind, payload, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (project, kind) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = NOW();
	`

	// SQL for creating the tables (for reference)
	/*
		-- Run this manually or via migrations after connecting to the DB:
		CREATE TABLE IF NOT EXISTS user_stories (
			story_id VARCHAR(64) PRIMARY KEY,
			project VARCHAR(255) NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			acceptance_criteria TEXT,
			assigned_to VARCHAR(255),
			priority INT,
			state VARCHAR(64),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_user_stories_project ON user_stories (project);

		CREATE TABLE IF NOT EXISTS test_cases (
			case_id VARCHAR(36) PRIMARY KEY,          -- UUID
			story_id VARCHAR(64) NOT NULL,
			project VARCHAR(255) NOT NULL,
			title TEXT NOT NULL,
			objective TEXT,
			prerequisites TEXT,
			steps JSONB,                               -- structured steps
			expected_result TEXT,
			test_password VARCHAR(255),
			required_permissions TEXT,
			priority VARCHAR(16),
			category VARCHAR(32),
			platform VARCHAR(16),
			status VARCHAR(16) NOT NULL,
			work_item_id VARCHAR(64),
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_test_cases_project ON test_cases (project);
		CREATE INDEX IF NOT EXISTS idx_test_cases_story ON test_cases (story_id);
		CREATE INDEX IF NOT EXISTS idx_test_cases_status ON test_cases (status);

		CREATE TABLE IF NOT EXISTS project_configs (
			project VARCHAR(255) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (project, kind)
		);
	*/
)

// Store implements the storage.Store interface using PostgreSQL and MinIO.
type Store struct {
	db          *pgxpool.Pool
	minioClient *minio.Client
	bucketName  string
	logger      *slog.Logger
}

// NewStore creates a new persistent store instance.
func NewStore(pgDSN, minioEndpoint, minioAccessKey, minioSecretKey, bucketName string, useSSL bool, logger *slog.Logger) (*Store, error) {
	// --- Connect to PostgreSQL ---
	dbpool, err := pgxpool.New(context.Background(), pgDSN)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := dbpool.Ping(context.Background()); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	logger.Info("PostgreSQL connection pool established")

	// --- Connect to MinIO ---
	minioClient, err := minio.New(minioEndpoint, &minio.Options{Creds: credentials.NewStaticV4(minioAccessKey, minioSecretKey, ""), Secure: useSSL})
	if err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}
	logger.Info("MinIO client initialized", slog.String("endpoint", minioEndpoint))

	// --- Ensure MinIO Bucket Exists ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = minioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
	if err != nil {
		exists, errBucketExists := minioClient.BucketExists(ctx, bucketName)
		if errBucketExists == nil && exists {
			logger.Info("MinIO bucket already exists", slog.String("bucket", bucketName))
		} else {
			dbpool.Close()
			return nil, fmt.Errorf("failed to make/verify MinIO bucket '%s': %w", bucketName, err)
		}
	} else {
		logger.Info("Successfully created MinIO bucket", slog.String("bucket", bucketName))
	}

	return &Store{db: dbpool, minioClient: minioClient, bucketName: bucketName, logger: logger}, nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	s.logger.Info("Closing persistent storage connections")
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// UpsertStories refreshes the local copy of tracker stories.
func (s *Store) UpsertStories(ctx context.Context, stories []models.UserStory) error {
	for _, story := range stories {
		if story.ID == "" || story.Project == "" {
			return fmt.Errorf("invalid story data: missing id or project")
		}
		_, err := s.db.Exec(ctx, upsertStorySQL,
			story.ID,
			story.Project,
			story.Title,
			sql.NullString{String: story.Description, Valid: story.Description != ""},
			sql.NullString{String: story.AcceptanceCriteria, Valid: story.AcceptanceCriteria != ""},
			sql.NullString{String: story.AssignedTo, Valid: story.AssignedTo != ""},
			sql.NullInt32{Int32: int32(story.Priority), Valid: story.Priority != 0},
			sql.NullString{String: story.State, Valid: story.State != ""},
		)
		if err != nil {
			return fmt.Errorf("failed to upsert story %s: %w", story.ID, err)
		}
	}
	s.logger.Info("Upserted stories", slog.Int("count", len(stories)))
	return nil
}

func scanStory(row pgx.Row) (*models.UserStory, error) {
	var story models.UserStory
	var description, criteria, assignedTo, state sql.NullString
	var priority sql.NullInt32
	err := row.Scan(
		&story.ID, &story.Project, &story.Title, &description, &criteria,
		&assignedTo, &priority, &state,
	)
	if err != nil {
		return nil, err
	}
	story.Description = description.String
	story.AcceptanceCriteria = criteria.String
	story.AssignedTo = assignedTo.String
	story.Priority = int(priority.Int32)
	story.State = state.String
	return &story, nil
}

// GetStories lists the stored stories for a project.
func (s *Store) GetStories(ctx context.Context, project string) ([]models.UserStory, error) {
	rows, err := s.db.Query(ctx, getStoriesSQL, project)
	if err != nil {
		return nil, fmt.Errorf("failed to query stories for project %s: %w", project, err)
	}
	defer rows.Close()

	stories := []models.UserStory{}
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			s.logger.Error("Failed to scan story row", slog.String("error", err.Error()))
			continue
		}
		stories = append(stories, *story)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating story rows: %w", err)
	}
	return stories, nil
}

// GetStory retrieves a single story.
func (s *Store) GetStory(ctx context.Context, storyID string) (*models.UserStory, error) {
	story, err := scanStory(s.db.QueryRow(ctx, getStorySQL, storyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query story %s: %w", storyID, err)
	}
	return story, nil
}

// SaveTestCases persists generated cases, assigning UUIDs and timestamps.
// The generator emits cases without IDs; this is the single ID authority.
func (s *Store) SaveTestCases(ctx context.Context, cases []models.GeneratedTestCase) ([]models.GeneratedTestCase, error) {
	saved := make([]models.GeneratedTestCase, 0, len(cases))
	now := time.Now().UTC()
	for _, tc := range cases {
		if tc.StoryID == "" {
			return nil, fmt.Errorf("cannot save test case without story linkage")
		}
		tc.ID = uuid.NewString()
		tc.CreatedAt = now
		tc.UpdatedAt = now

		stepsJSON, err := json.Marshal(tc.TestStepsStructured)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal steps for case %s: %w", tc.ID, err)
		}

		_, err = s.db.Exec(ctx, insertTestCaseSQL,
			tc.ID, tc.StoryID, tc.Project, tc.Title, tc.Objective, tc.Prerequisites,
			stepsJSON, tc.ExpectedResult, tc.TestPassword, tc.RequiredPermissions,
			tc.Priority, tc.Category, tc.Platform, tc.Status,
			sql.NullString{String: tc.WorkItemID, Valid: tc.WorkItemID != ""},
			now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert test case %s: %w", tc.ID, err)
		}
		saved = append(saved, tc)
	}
	s.logger.Info("Saved generated test cases", slog.Int("count", len(saved)))
	return saved, nil
}

func scanTestCase(row pgx.Row) (*models.GeneratedTestCase, error) {
	var tc models.GeneratedTestCase
	var stepsJSON []byte
	var workItemID sql.NullString
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(
		&tc.ID, &tc.StoryID, &tc.Project, &tc.Title, &tc.Objective, &tc.Prerequisites,
		&stepsJSON, &tc.ExpectedResult, &tc.TestPassword, &tc.RequiredPermissions,
		&tc.Priority, &tc.Category, &tc.Platform, &tc.Status, &workItemID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	tc.WorkItemID = workItemID.String
	tc.CreatedAt = createdAt.Time
	tc.UpdatedAt = updatedAt.Time
	if stepsJSON != nil && string(stepsJSON) != "null" {
		if err := json.Unmarshal(stepsJSON, &tc.TestStepsStructured); err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps for case %s: %w", tc.ID, err)
		}
	}
	// The flattened list is always re-derived so the two views cannot drift.
	tc.TestSteps = models.RenderSteps(tc.TestStepsStructured)
	return &tc, nil
}

// GetTestCases lists cases filtered by project and optional story/status.
func (s *Store) GetTestCases(ctx context.Context, project, storyID, status string) ([]models.GeneratedTestCase, error) {
	query := `SELECT ` + testCaseColumns + ` FROM test_cases WHERE project = $1`
	args := []interface{}{project}
	if storyID != "" {
		args = append(args, storyID)
		query += fmt.Sprintf(" AND story_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at ASC, case_id ASC LIMIT 500;"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query test cases: %w", err)
	}
	defer rows.Close()

	cases := []models.GeneratedTestCase{}
	for rows.Next() {
		tc, err := scanTestCase(rows)
		if err != nil {
			s.logger.Error("Failed to scan test case row", slog.String("error", err.Error()))
			continue
		}
		cases = append(cases, *tc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating test case rows: %w", err)
	}
	return cases, nil
}

// GetTestCase retrieves a single case.
func (s *Store) GetTestCase(ctx context.Context, caseID string) (*models.GeneratedTestCase, error) {
	query := `SELECT ` + testCaseColumns + ` FROM test_cases WHERE case_id = $1;`
	tc, err := scanTestCase(s.db.QueryRow(ctx, query, caseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query test case %s: %w", caseID, err)
	}
	return tc, nil
}

// UpdateTestCaseStatus performs a guarded transition: the row must currently
// be in fromStatus or the update affects nothing and the caller gets
// ErrInvalidTransition (or ErrNotFound when the case does not exist at all).
func (s *Store) UpdateTestCaseStatus(ctx context.Context, caseID, fromStatus, toStatus string) error {
	if caseID == "" {
		return fmt.Errorf("cannot update status for empty case ID")
	}
	cmdTag, err := s.db.Exec(ctx, updateStatusSQL, caseID, fromStatus, toStatus)
	if err != nil {
		return fmt.Errorf("failed to execute status update for case %s: %w", caseID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		if _, err := s.GetTestCase(ctx, caseID); err != nil {
			return err // ErrNotFound or a query failure
		}
		return storage.ErrInvalidTransition
	}
	s.logger.Info("Updated test case status",
		slog.String("case_id", caseID),
		slog.String("from", fromStatus),
		slog.String("to", toStatus))
	return nil
}

// MarkSynced records the tracker work item and moves an approved case to synced.
func (s *Store) MarkSynced(ctx context.Context, caseID, workItemID string) error {
	cmdTag, err := s.db.Exec(ctx, markSyncedSQL, caseID, workItemID, models.StatusSynced, models.StatusApproved)
	if err != nil {
		return fmt.Errorf("failed to mark case %s synced: %w", caseID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		if _, err := s.GetTestCase(ctx, caseID); err != nil {
			return err
		}
		return storage.ErrInvalidTransition
	}
	s.logger.Info("Marked test case synced", slog.String("case_id", caseID), slog.String("work_item_id", workItemID))
	return nil
}

// DeleteTestCase removes a case.
func (s *Store) DeleteTestCase(ctx context.Context, caseID string) error {
	cmdTag, err := s.db.Exec(ctx, deleteTestCaseSQL, caseID)
	if err != nil {
		return fmt.Errorf("failed to delete test case %s: %w", caseID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	s.logger.Info("Deleted test case", slog.String("case_id", caseID))
	return nil
}

// CountTestCasesByStatus counts cases for a project in a given status.
func (s *Store) CountTestCasesByStatus(ctx context.Context, project, status string) (int, error) {
	var count int
	if err := s.db.QueryRow(ctx, countByStatusSQL, project, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count test cases: %w", err)
	}
	return count, nil
}

// GetProjectConfig returns the raw JSON payload, or nil when none was saved.
func (s *Store) GetProjectConfig(ctx context.Context, project, kind string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, getProjectConfigSQL, project, kind).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query %s config for project %s: %w", kind, project, err)
	}
	return payload, nil
}

// PutProjectConfig stores or replaces a project config payload.
func (s *Store) PutProjectConfig(ctx context.Context, project, kind string, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("config payload for %s/%s is not valid JSON", project, kind)
	}
	if _, err := s.db.Exec(ctx, putProjectConfigSQL, project, kind, payload); err != nil {
		return fmt.Errorf("failed to store %s config for project %s: %w", kind, project, err)
	}
	s.logger.Info("Stored project config", slog.String("project", project), slog.String("kind", kind))
	return nil
}

// StoreArtifact uploads data to the configured MinIO bucket.
func (s *Store) StoreArtifact(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	if s.bucketName == "" {
		return "", fmt.Errorf("minio bucket name is not configured")
	}
	uploadInfo, err := s.minioClient.PutObject(ctx, s.bucketName, objectName, reader, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact '%s': %w", objectName, err)
	}
	s.logger.Info("Stored artifact", slog.String("bucket", uploadInfo.Bucket), slog.String("key", uploadInfo.Key), slog.Int64("size", uploadInfo.Size))
	artifactURL := url.URL{Scheme: "http", Host: s.minioClient.EndpointURL().Host, Path: path.Join(s.bucketName, objectName)}
	if opts := s.minioClient.EndpointURL(); opts.Scheme == "https" {
		artifactURL.Scheme = "https"
	}
	return artifactURL.String(), nil
}
