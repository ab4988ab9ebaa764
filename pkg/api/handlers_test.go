package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testcraft/testcraft/pkg/config"
	"github.com/testcraft/testcraft/pkg/models"
	"github.com/testcraft/testcraft/pkg/queue"
	"github.com/testcraft/testcraft/pkg/storage"
)

// --- mocks ---

type mockStore struct {
	UpsertStoriesFunc          func(ctx context.Context, stories []models.UserStory) error
	GetStoriesFunc             func(ctx context.Context, project string) ([]models.UserStory, error)
	GetStoryFunc               func(ctx context.Context, storyID string) (*models.UserStory, error)
	SaveTestCasesFunc          func(ctx context.Context, cases []models.GeneratedTestCase) ([]models.GeneratedTestCase, error)
	GetTestCasesFunc           func(ctx context.Context, project, storyID, status string) ([]models.GeneratedTestCase, error)
	GetTestCaseFunc            func(ctx context.Context, caseID string) (*models.GeneratedTestCase, error)
	UpdateTestCaseStatusFunc   func(ctx context.Context, caseID, fromStatus, toStatus string) error
	MarkSyncedFunc             func(ctx context.Context, caseID, workItemID string) error
	DeleteTestCaseFunc         func(ctx context.Context, caseID string) error
	CountTestCasesByStatusFunc func(ctx context.Context, project, status string) (int, error)
	GetProjectConfigFunc       func(ctx context.Context, project, kind string) ([]byte, error)
	PutProjectConfigFunc       func(ctx context.Context, project, kind string, payload []byte) error
	StoreArtifactFunc          func(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error)
}

func (m *mockStore) UpsertStories(ctx context.Context, stories []models.UserStory) error {
	if m.UpsertStoriesFunc == nil {
		return nil
	}
	return m.UpsertStoriesFunc(ctx, stories)
}
func (m *mockStore) GetStories(ctx context.Context, project string) ([]models.UserStory, error) {
	if m.GetStoriesFunc == nil {
		return nil, nil
	}
	return m.GetStoriesFunc(ctx, project)
}
func (m *mockStore) GetStory(ctx context.Context, storyID string) (*models.UserStory, error) {
	if m.GetStoryFunc == nil {
		return nil, storage.ErrNotFound
	}
	return m.GetStoryFunc(ctx, storyID)
}
func (m *mockStore) SaveTestCases(ctx context.Context, cases []models.GeneratedTestCase) ([]models.GeneratedTestCase, error) {
	if m.SaveTestCasesFunc == nil {
		saved := make([]models.GeneratedTestCase, len(cases))
		for i, tc := range cases {
			tc.ID = fmt.Sprintf("case-%d", i+1)
			saved[i] = tc
		}
		return saved, nil
	}
	return m.SaveTestCasesFunc(ctx, cases)
}
func (m *mockStore) GetTestCases(ctx context.Context, project, storyID, status string) ([]models.GeneratedTestCase, error) {
	if m.GetTestCasesFunc == nil {
		return nil, nil
	}
	return m.GetTestCasesFunc(ctx, project, storyID, status)
}
func (m *mockStore) GetTestCase(ctx context.Context, caseID string) (*models.GeneratedTestCase, error) {
	if m.GetTestCaseFunc == nil {
		return nil, storage.ErrNotFound
	}
	return m.GetTestCaseFunc(ctx, caseID)
}
func (m *mockStore) UpdateTestCaseStatus(ctx context.Context, caseID, fromStatus, toStatus string) error {
	if m.UpdateTestCaseStatusFunc == nil {
		return nil
	}
	return m.UpdateTestCaseStatusFunc(ctx, caseID, fromStatus, toStatus)
}
func (m *mockStore) MarkSynced(ctx context.Context, caseID, workItemID string) error {
	if m.MarkSyncedFunc == nil {
		return nil
	}
	return m.MarkSyncedFunc(ctx, caseID, workItemID)
}
func (m *mockStore) DeleteTestCase(ctx context.Context, caseID string) error {
	if m.DeleteTestCaseFunc == nil {
		return nil
	}
	return m.DeleteTestCaseFunc(ctx, caseID)
}
func (m *mockStore) CountTestCasesByStatus(ctx context.Context, project, status string) (int, error) {
	if m.CountTestCasesByStatusFunc == nil {
		return 0, nil
	}
	return m.CountTestCasesByStatusFunc(ctx, project, status)
}
func (m *mockStore) GetProjectConfig(ctx context.Context, project, kind string) ([]byte, error) {
	if m.GetProjectConfigFunc == nil {
		return nil, nil
	}
	return m.GetProjectConfigFunc(ctx, project, kind)
}
func (m *mockStore) PutProjectConfig(ctx context.Context, project, kind string, payload []byte) error {
	if m.PutProjectConfigFunc == nil {
		return nil
	}
	return m.PutProjectConfigFunc(ctx, project, kind, payload)
}
func (m *mockStore) StoreArtifact(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	if m.StoreArtifactFunc == nil {
		return "http://minio.local/bucket/" + objectName, nil
	}
	return m.StoreArtifactFunc(ctx, objectName, reader, size, contentType)
}
func (m *mockStore) Close() error { return nil }

type mockQueue struct {
	EnqueuePushFunc func(project string, caseIDs []string, priority uint8) (string, error)
	QueueSizeFunc   func(project string) (int, error)
}

func (m *mockQueue) EnqueuePush(project string, caseIDs []string, priority uint8) (string, error) {
	if m.EnqueuePushFunc == nil {
		return "job-1", nil
	}
	return m.EnqueuePushFunc(project, caseIDs, priority)
}
func (m *mockQueue) NextPush(project string) (*models.PushJob, queue.AckNacker, error) {
	return nil, nil, nil
}
func (m *mockQueue) QueueSize(project string) (int, error) {
	if m.QueueSizeFunc == nil {
		return 0, nil
	}
	return m.QueueSizeFunc(project)
}
func (m *mockQueue) Close() error { return nil }

type mockTracker struct {
	FetchUserStoriesFunc func(ctx context.Context, project string) ([]models.UserStory, error)
}

func (m *mockTracker) FetchUserStories(ctx context.Context, project string) ([]models.UserStory, error) {
	return m.FetchUserStoriesFunc(ctx, project)
}
func (m *mockTracker) CreateTestCase(ctx context.Context, project string, tc models.GeneratedTestCase) (string, error) {
	return "", errors.New("not implemented")
}
func (m *mockTracker) UpdateWorkItemState(ctx context.Context, workItemID, state string) error {
	return nil
}

type mockSuggester struct {
	SuggestFunc func(ctx context.Context, story models.UserStory) (string, error)
}

func (m *mockSuggester) Suggest(ctx context.Context, story models.UserStory) (string, error) {
	return m.SuggestFunc(ctx, story)
}

type mockNotifier struct {
	tracked []string
}

func (m *mockNotifier) Track(project string) { m.tracked = append(m.tracked, project) }

// --- helpers ---

func testConfig() *config.Config {
	return &config.Config{RequestTimeout: 15 * time.Second, AzureProject: "WebShop"}
}

func newTestAPI(store *mockStore, q *mockQueue, tc *mockTracker, sg *mockSuggester, notifier *mockNotifier) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if store == nil {
		store = &mockStore{}
	}
	if q == nil {
		q = &mockQueue{}
	}
	api := NewAPI(store, q, tc, sg, notifier, logger, testConfig())
	return SetupRouter(api, testConfig())
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = strings.NewReader("{}")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func storedStory() *models.UserStory {
	return &models.UserStory{
		ID:                 "1042",
		Project:            "WebShop",
		Title:              "User Login",
		Description:        "<div>Customers log in.</div>",
		AcceptanceCriteria: "AC1: Valid credentials log the user in.",
	}
}

// --- tests ---

func TestPing(t *testing.T) {
	handler := newTestAPI(nil, nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestHandleSyncStories(t *testing.T) {
	var upserted []models.UserStory
	store := &mockStore{
		UpsertStoriesFunc: func(_ context.Context, stories []models.UserStory) error {
			upserted = stories
			return nil
		},
	}
	tracker := &mockTracker{
		FetchUserStoriesFunc: func(_ context.Context, project string) ([]models.UserStory, error) {
			assert.Equal(t, "WebShop", project)
			return []models.UserStory{*storedStory()}, nil
		},
	}
	handler := newTestAPI(store, nil, tracker, nil, nil)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/stories/sync", map[string]string{"project": "WebShop"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, upserted, 1)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["synced"])
}

func TestHandleSyncStories_TrackerDown(t *testing.T) {
	tracker := &mockTracker{
		FetchUserStoriesFunc: func(context.Context, string) ([]models.UserStory, error) {
			return nil, errors.New("connection refused")
		},
	}
	handler := newTestAPI(nil, nil, tracker, nil, nil)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/stories/sync", map[string]string{"project": "WebShop"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleSyncStories_DefaultProject(t *testing.T) {
	var fetched string
	tracker := &mockTracker{
		FetchUserStoriesFunc: func(_ context.Context, project string) ([]models.UserStory, error) {
			fetched = project
			return nil, nil
		},
	}
	handler := newTestAPI(nil, nil, tracker, nil, nil)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/stories/sync", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "WebShop", fetched, "falls back to the configured project")
}

func TestHandleGetStory_NotFound(t *testing.T) {
	handler := newTestAPI(&mockStore{}, nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stories/9999", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSuggest(t *testing.T) {
	store := &mockStore{
		GetStoryFunc: func(_ context.Context, id string) (*models.UserStory, error) {
			require.Equal(t, "1042", id)
			return storedStory(), nil
		},
	}
	sg := &mockSuggester{
		SuggestFunc: func(_ context.Context, story models.UserStory) (string, error) {
			assert.Equal(t, "User Login", story.Title)
			return "- Add a lockout scenario.", nil
		},
	}
	handler := newTestAPI(store, nil, nil, sg, nil)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/stories/1042/suggest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "- Add a lockout scenario.", resp["suggestion"])
}

func TestHandleGenerate_DefaultConfig(t *testing.T) {
	store := &mockStore{
		GetStoriesFunc: func(_ context.Context, project string) ([]models.UserStory, error) {
			return []models.UserStory{*storedStory()}, nil
		},
	}
	handler := newTestAPI(store, nil, nil, nil, nil)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/generate", map[string]interface{}{"project": "WebShop"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var cases []models.GeneratedTestCase
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cases))
	// Default configuration: positive, negative and edge case on web.
	require.Len(t, cases, 3)
	for _, tc := range cases {
		assert.NotEmpty(t, tc.ID, "storage-assigned IDs must round-trip")
		assert.Equal(t, models.StatusPending, tc.Status)
		assert.Equal(t, "web", tc.Platform)
	}
}

func TestHandleGenerate_UsesStoredAiConfig(t *testing.T) {
	aiPayload, _ := json.Marshal(models.AiConfiguration{
		IncludePositiveTests: true,
		EnableAPITests:       true,
	})
	store := &mockStore{
		GetStoryFunc: func(_ context.Context, id string) (*models.UserStory, error) {
			return storedStory(), nil
		},
		GetProjectConfigFunc: func(_ context.Context, project, kind string) ([]byte, error) {
			if kind == models.ConfigKindAI {
				return aiPayload, nil
			}
			return nil, nil
		},
	}
	handler := newTestAPI(store, nil, nil, nil, nil)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/generate", map[string]interface{}{
		"project":  "WebShop",
		"storyIds": []string{"1042"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var cases []models.GeneratedTestCase
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cases))
	require.Len(t, cases, 1)
	assert.Equal(t, "Positive Test Case (API): User Login", cases[0].Title)
	assert.Equal(t, "api", cases[0].Platform)
}

func TestHandleGenerate_UnknownStory(t *testing.T) {
	handler := newTestAPI(&mockStore{}, nil, nil, nil, nil)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/generate", map[string]interface{}{
		"project":  "WebShop",
		"storyIds": []string{"missing"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGenerate_NoStories(t *testing.T) {
	handler := newTestAPI(&mockStore{}, nil, nil, nil, nil)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/generate", map[string]interface{}{"project": "Empty"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReviewTestCase(t *testing.T) {
	t.Run("approve succeeds", func(t *testing.T) {
		store := &mockStore{
			UpdateTestCaseStatusFunc: func(_ context.Context, caseID, from, to string) error {
				assert.Equal(t, models.StatusPending, from)
				assert.Equal(t, models.StatusApproved, to)
				return nil
			},
		}
		handler := newTestAPI(store, nil, nil, nil, nil)
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/testcases/c1/approve", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("reject succeeds", func(t *testing.T) {
		store := &mockStore{
			UpdateTestCaseStatusFunc: func(_ context.Context, caseID, from, to string) error {
				assert.Equal(t, models.StatusRejected, to)
				return nil
			},
		}
		handler := newTestAPI(store, nil, nil, nil, nil)
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/testcases/c1/reject", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("conflict when not pending", func(t *testing.T) {
		store := &mockStore{
			UpdateTestCaseStatusFunc: func(context.Context, string, string, string) error {
				return storage.ErrInvalidTransition
			},
		}
		handler := newTestAPI(store, nil, nil, nil, nil)
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/testcases/c1/approve", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		store := &mockStore{
			UpdateTestCaseStatusFunc: func(context.Context, string, string, string) error {
				return storage.ErrNotFound
			},
		}
		handler := newTestAPI(store, nil, nil, nil, nil)
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/testcases/c1/approve", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandlePushTestCases(t *testing.T) {
	approved := &models.GeneratedTestCase{ID: "c1", Status: models.StatusApproved}
	store := &mockStore{
		GetTestCaseFunc: func(_ context.Context, caseID string) (*models.GeneratedTestCase, error) {
			return approved, nil
		},
	}
	var enqueued []string
	var gotPriority uint8
	q := &mockQueue{
		EnqueuePushFunc: func(project string, caseIDs []string, priority uint8) (string, error) {
			enqueued = caseIDs
			gotPriority = priority
			return "job-42", nil
		},
	}
	notifier := &mockNotifier{}
	handler := newTestAPI(store, q, nil, nil, notifier)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/testcases/push", map[string]interface{}{
		"project": "WebShop",
		"caseIds": []string{"c1"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"c1"}, enqueued)
	assert.Equal(t, uint8(defaultPushPriority), gotPriority)
	assert.Equal(t, []string{"WebShop"}, notifier.tracked)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-42", resp["job_id"])
}

func TestHandlePushTestCases_RejectsUnapproved(t *testing.T) {
	store := &mockStore{
		GetTestCaseFunc: func(_ context.Context, caseID string) (*models.GeneratedTestCase, error) {
			return &models.GeneratedTestCase{ID: caseID, Status: models.StatusPending}, nil
		},
	}
	handler := newTestAPI(store, &mockQueue{}, nil, nil, nil)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/testcases/push", map[string]interface{}{
		"project": "WebShop",
		"caseIds": []string{"c1"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleGetQueueStatus(t *testing.T) {
	store := &mockStore{
		CountTestCasesByStatusFunc: func(_ context.Context, project, status string) (int, error) {
			if status == models.StatusApproved {
				return 4, nil
			}
			return 0, nil
		},
	}
	q := &mockQueue{QueueSizeFunc: func(string) (int, error) { return 2, nil }}
	handler := newTestAPI(store, q, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queues/WebShop/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Project     string         `json:"project"`
		PendingJobs int            `json:"pending_jobs"`
		Cases       map[string]int `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "WebShop", resp.Project)
	assert.Equal(t, 2, resp.PendingJobs)
	assert.Equal(t, 4, resp.Cases[models.StatusApproved])
}

func TestHandleImportTestCases(t *testing.T) {
	store := &mockStore{
		GetStoriesFunc: func(_ context.Context, project string) ([]models.UserStory, error) {
			return []models.UserStory{*storedStory()}, nil
		},
	}
	handler := newTestAPI(store, nil, nil, nil, nil)

	csvContent := "story_id,title,steps\n" +
		"1042,Imported case,Open portal | Log in\n" +
		"9999,Unknown story case,Step\n"

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("project", "WebShop"))
	part, err := mw.CreateFormFile(csvFileFieldName, "cases.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csvContent))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/testcases/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Imported  int `json:"imported"`
		RowErrors []struct {
			Line  int    `json:"line"`
			Error string `json:"error"`
		} `json:"rowErrors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Imported)
	require.Len(t, resp.RowErrors, 1)
	assert.Equal(t, 3, resp.RowErrors[0].Line)
	assert.Contains(t, resp.RowErrors[0].Error, "unknown story")
}

func TestHandleExportTestCases(t *testing.T) {
	var uploadedName string
	var uploadedBody []byte
	store := &mockStore{
		GetTestCasesFunc: func(_ context.Context, project, storyID, status string) ([]models.GeneratedTestCase, error) {
			return []models.GeneratedTestCase{{
				ID:      "c1",
				StoryID: "1042",
				Title:   "Positive Test Case (Web Portal): User Login",
				TestStepsStructured: []models.TestStep{
					{StepNumber: 1, Action: "Open portal"},
				},
				Priority: "High",
				Platform: "web",
			}}, nil
		},
		StoreArtifactFunc: func(_ context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
			uploadedName = objectName
			uploadedBody, _ = io.ReadAll(reader)
			assert.Equal(t, "text/csv", contentType)
			return "http://minio.local/testcase-exports/" + objectName, nil
		},
	}
	handler := newTestAPI(store, nil, nil, nil, nil)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/testcases/export", map[string]string{"project": "WebShop"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, uploadedName, "exports/WebShop/")
	assert.Contains(t, string(uploadedBody), "Positive Test Case (Web Portal): User Login")

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["url"], "exports/WebShop/")
}

func TestHandleExportTestCases_Empty(t *testing.T) {
	handler := newTestAPI(&mockStore{}, nil, nil, nil, nil)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/testcases/export", map[string]string{"project": "Empty"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleProjectConfig(t *testing.T) {
	t.Run("put and get ai config", func(t *testing.T) {
		var stored []byte
		store := &mockStore{
			PutProjectConfigFunc: func(_ context.Context, project, kind string, payload []byte) error {
				assert.Equal(t, "WebShop", project)
				assert.Equal(t, models.ConfigKindAI, kind)
				stored = payload
				return nil
			},
			GetProjectConfigFunc: func(context.Context, string, string) ([]byte, error) {
				return stored, nil
			},
		}
		handler := newTestAPI(store, nil, nil, nil, nil)

		rec := doJSON(t, handler, http.MethodPut, "/api/v1/projects/WebShop/config/ai", models.AiConfiguration{
			IncludePositiveTests: true,
			EnableWebPortalTests: true,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/WebShop/config/ai", nil)
		getRec := httptest.NewRecorder()
		handler.ServeHTTP(getRec, req)
		require.Equal(t, http.StatusOK, getRec.Code)

		var cfg models.AiConfiguration
		require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &cfg))
		assert.True(t, cfg.IncludePositiveTests)
	})

	t.Run("unknown kind", func(t *testing.T) {
		handler := newTestAPI(&mockStore{}, nil, nil, nil, nil)
		rec := doJSON(t, handler, http.MethodPut, "/api/v1/projects/WebShop/config/bogus", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("payload with unknown fields rejected", func(t *testing.T) {
		handler := newTestAPI(&mockStore{}, nil, nil, nil, nil)
		rec := doJSON(t, handler, http.MethodPut, "/api/v1/projects/WebShop/config/testdata", map[string]string{
			"userName": "wrong-casing-field",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get missing config", func(t *testing.T) {
		handler := newTestAPI(&mockStore{}, nil, nil, nil, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/WebShop/config/environment", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleGetTestTypes(t *testing.T) {
	handler := newTestAPI(nil, nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/testtypes", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var types []struct {
		Name     string `json:"name"`
		Priority string `json:"priority"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &types))
	require.Len(t, types, 9)
	assert.Equal(t, "Positive", types[0].Name)
}
