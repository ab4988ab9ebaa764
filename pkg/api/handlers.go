package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httperrors "github.com/testcraft/testcraft/errors"
	"github.com/testcraft/testcraft/pkg/config"
	"github.com/testcraft/testcraft/pkg/generator"
	"github.com/testcraft/testcraft/pkg/importer"
	"github.com/testcraft/testcraft/pkg/llm"
	"github.com/testcraft/testcraft/pkg/models"
	"github.com/testcraft/testcraft/pkg/queue"
	"github.com/testcraft/testcraft/pkg/storage"
	"github.com/testcraft/testcraft/pkg/tracker"

	"github.com/go-chi/chi/v5"
)

const (
	maxUploadMemory     = 32 << 20 // 32 MB
	csvFileFieldName    = "file"
	defaultPushPriority = 5
)

// PushNotifier is told about projects that have pending push jobs so the
// background worker starts polling their queues.
type PushNotifier interface {
	Track(project string)
}

type API struct {
	Store     storage.Store
	Queue     queue.Manager
	Tracker   tracker.Client
	Suggester llm.Suggester
	Notifier  PushNotifier
	Logger    *slog.Logger
	Config    *config.Config
}

func NewAPI(store storage.Store, qm queue.Manager, tc tracker.Client, sg llm.Suggester, notifier PushNotifier, logger *slog.Logger, cfg *config.Config) *API {
	return &API{Store: store, Queue: qm, Tracker: tc, Suggester: sg, Notifier: notifier, Logger: logger, Config: cfg}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// HandleSyncStories pulls the project's user stories from the tracker and
// refreshes the local copies.
func (a *API) HandleSyncStories(w http.ResponseWriter, r *http.Request) {
	logger := a.Logger.With(slog.String("handler", "HandleSyncStories"))
	var req struct {
		Project string `json:"project"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.BadRequest(w, logger, err, "Invalid JSON request body")
		return
	}
	defer r.Body.Close()
	if req.Project == "" {
		req.Project = a.Config.AzureProject
	}
	if req.Project == "" {
		httperrors.BadRequest(w, logger, nil, "Missing required field: project")
		return
	}
	logger = logger.With(slog.String("project", req.Project))

	stories, err := a.Tracker.FetchUserStories(r.Context(), req.Project)
	if err != nil {
		httperrors.BadGateway(w, logger, err, "Failed to fetch stories from the tracker")
		return
	}
	if err := a.Store.UpsertStories(r.Context(), stories); err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to store synced stories")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"project": req.Project,
		"synced":  len(stories),
	})
}

// HandleGetStories lists the stored stories for a project.
func (a *API) HandleGetStories(w http.ResponseWriter, r *http.Request) {
	logger := a.Logger.With(slog.String("handler", "HandleGetStories"))
	project := r.URL.Query().Get("project")
	if project == "" {
		httperrors.BadRequest(w, logger, nil, "Missing required query parameter: project")
		return
	}

	stories, err := a.Store.GetStories(r.Context(), project)
	if err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to retrieve stories")
		return
	}
	respondJSON(w, http.StatusOK, stories)
}

// HandleGetStory returns a single stored story.
func (a *API) HandleGetStory(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyId")
	logger := a.Logger.With(slog.String("handler", "HandleGetStory"), slog.String("story_id", storyID))

	story, err := a.Store.GetStory(r.Context(), storyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httperrors.NotFound(w, logger, nil, fmt.Sprintf("Story '%s' not found", storyID))
			return
		}
		httperrors.InternalServerError(w, logger, err, "Failed to retrieve story")
		return
	}
	respondJSON(w, http.StatusOK, story)
}

// HandleSuggest asks the language model for review notes on a story.
func (a *API) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyId")
	logger := a.Logger.With(slog.String("handler", "HandleSuggest"), slog.String("story_id", storyID))

	story, err := a.Store.GetStory(r.Context(), storyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httperrors.NotFound(w, logger, nil, fmt.Sprintf("Story '%s' not found", storyID))
			return
		}
		httperrors.InternalServerError(w, logger, err, "Failed to retrieve story")
		return
	}

	suggestion, err := a.Suggester.Suggest(r.Context(), *story)
	if err != nil {
		httperrors.BadGateway(w, logger, err, "Failed to get suggestions from the language model")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"storyId":    storyID,
		"suggestion": suggestion,
	})
}

// HandleGenerate expands stories into test cases using the project's saved
// configuration and persists the result.
func (a *API) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	logger := a.Logger.With(slog.String("handler", "HandleGenerate"))
	var req struct {
		Project  string   `json:"project"`
		StoryIDs []string `json:"storyIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.BadRequest(w, logger, err, "Invalid JSON request body")
		return
	}
	defer r.Body.Close()
	if req.Project == "" {
		httperrors.BadRequest(w, logger, nil, "Missing required field: project")
		return
	}
	logger = logger.With(slog.String("project", req.Project))

	var stories []models.UserStory
	if len(req.StoryIDs) == 0 {
		all, err := a.Store.GetStories(r.Context(), req.Project)
		if err != nil {
			httperrors.InternalServerError(w, logger, err, "Failed to retrieve stories")
			return
		}
		stories = all
	} else {
		for _, id := range req.StoryIDs {
			story, err := a.Store.GetStory(r.Context(), id)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					httperrors.NotFound(w, logger, nil, fmt.Sprintf("Story '%s' not found", id))
					return
				}
				httperrors.InternalServerError(w, logger, err, "Failed to retrieve story")
				return
			}
			stories = append(stories, *story)
		}
	}
	if len(stories) == 0 {
		httperrors.BadRequest(w, logger, nil, fmt.Sprintf("Project '%s' has no stories to generate from", req.Project))
		return
	}

	testData, err := loadConfig[models.TestDataConfig](r, a, req.Project, models.ConfigKindTestData)
	if err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to load test data configuration")
		return
	}
	env, err := loadConfig[models.EnvironmentConfig](r, a, req.Project, models.ConfigKindEnvironment)
	if err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to load environment configuration")
		return
	}
	aiCfg, err := loadConfig[models.AiConfiguration](r, a, req.Project, models.ConfigKindAI)
	if err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to load generation configuration")
		return
	}

	var generated []models.GeneratedTestCase
	for _, story := range stories {
		generated = append(generated, generator.Generate(story, testData, env, aiCfg)...)
	}

	saved, err := a.Store.SaveTestCases(r.Context(), generated)
	if err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to persist generated test cases")
		return
	}
	logger.Info("Generated test cases",
		slog.Int("stories", len(stories)),
		slog.Int("cases", len(saved)))
	respondJSON(w, http.StatusCreated, saved)
}

// loadConfig unmarshals a stored project config, or returns nil when the
// project never saved one so the generator applies its defaults.
func loadConfig[T any](r *http.Request, a *API, project, kind string) (*T, error) {
	payload, err := a.Store.GetProjectConfig(r.Context(), project, kind)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	var cfg T
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return nil, fmt.Errorf("stored %s config is not valid: %w", kind, err)
	}
	return &cfg, nil
}

// HandleGetTestCases lists cases filtered by project and optional story/status.
func (a *API) HandleGetTestCases(w http.ResponseWriter, r *http.Request) {
	logger := a.Logger.With(slog.String("handler", "HandleGetTestCases"))
	project := r.URL.Query().Get("project")
	if project == "" {
		httperrors.BadRequest(w, logger, nil, "Missing required query parameter: project")
		return
	}

	cases, err := a.Store.GetTestCases(r.Context(), project, r.URL.Query().Get("storyId"), r.URL.Query().Get("status"))
	if err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to retrieve test cases")
		return
	}
	respondJSON(w, http.StatusOK, cases)
}

// HandleGetTestCase returns a single case.
func (a *API) HandleGetTestCase(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseId")
	logger := a.Logger.With(slog.String("handler", "HandleGetTestCase"), slog.String("case_id", caseID))

	tc, err := a.Store.GetTestCase(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httperrors.NotFound(w, logger, nil, fmt.Sprintf("Test case '%s' not found", caseID))
			return
		}
		httperrors.InternalServerError(w, logger, err, "Failed to retrieve test case")
		return
	}
	respondJSON(w, http.StatusOK, tc)
}

// HandleDeleteTestCase removes a case.
func (a *API) HandleDeleteTestCase(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseId")
	logger := a.Logger.With(slog.String("handler", "HandleDeleteTestCase"), slog.String("case_id", caseID))

	if err := a.Store.DeleteTestCase(r.Context(), caseID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httperrors.NotFound(w, logger, nil, fmt.Sprintf("Test case '%s' not found", caseID))
			return
		}
		httperrors.InternalServerError(w, logger, err, "Failed to delete test case")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleApproveTestCase moves a pending case to approved.
func (a *API) HandleApproveTestCase(w http.ResponseWriter, r *http.Request) {
	a.reviewTestCase(w, r, models.StatusApproved)
}

// HandleRejectTestCase moves a pending case to rejected.
func (a *API) HandleRejectTestCase(w http.ResponseWriter, r *http.Request) {
	a.reviewTestCase(w, r, models.StatusRejected)
}

func (a *API) reviewTestCase(w http.ResponseWriter, r *http.Request, toStatus string) {
	caseID := chi.URLParam(r, "caseId")
	logger := a.Logger.With(
		slog.String("handler", "reviewTestCase"),
		slog.String("case_id", caseID),
		slog.String("to_status", toStatus))

	err := a.Store.UpdateTestCaseStatus(r.Context(), caseID, models.StatusPending, toStatus)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httperrors.NotFound(w, logger, nil, fmt.Sprintf("Test case '%s' not found", caseID))
		case errors.Is(err, storage.ErrInvalidTransition):
			httperrors.Conflict(w, logger, err, fmt.Sprintf("Test case '%s' is not pending review", caseID))
		default:
			httperrors.InternalServerError(w, logger, err, "Failed to update test case status")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": caseID, "status": toStatus})
}

// HandlePushTestCases enqueues approved cases for asynchronous sync to the
// tracker and answers 202 with the job ID.
func (a *API) HandlePushTestCases(w http.ResponseWriter, r *http.Request) {
	logger := a.Logger.With(slog.String("handler", "HandlePushTestCases"))
	var req struct {
		Project  string   `json:"project"`
		CaseIDs  []string `json:"caseIds"`
		Priority uint8    `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.BadRequest(w, logger, err, "Invalid JSON request body")
		return
	}
	defer r.Body.Close()
	if req.Project == "" {
		httperrors.BadRequest(w, logger, nil, "Missing required field: project")
		return
	}
	if len(req.CaseIDs) == 0 {
		httperrors.BadRequest(w, logger, nil, "Missing required field: caseIds")
		return
	}
	logger = logger.With(slog.String("project", req.Project))

	// Validate up front so a stale ID fails the request, not the worker.
	for _, caseID := range req.CaseIDs {
		tc, err := a.Store.GetTestCase(r.Context(), caseID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httperrors.NotFound(w, logger, nil, fmt.Sprintf("Test case '%s' not found", caseID))
				return
			}
			httperrors.InternalServerError(w, logger, err, "Failed to verify test case")
			return
		}
		if tc.Status != models.StatusApproved {
			httperrors.Conflict(w, logger, nil, fmt.Sprintf("Test case '%s' is %s, only approved cases can be pushed", caseID, tc.Status))
			return
		}
	}

	priority := req.Priority
	if priority == 0 {
		priority = defaultPushPriority
	}
	jobID, err := a.Queue.EnqueuePush(req.Project, req.CaseIDs, priority)
	if err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to enqueue push job")
		return
	}
	if a.Notifier != nil {
		a.Notifier.Track(req.Project)
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": jobID,
		"cases":  len(req.CaseIDs),
	})
}

// HandleGetQueueStatus reports the push queue depth and case counts.
func (a *API) HandleGetQueueStatus(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	logger := a.Logger.With(slog.String("handler", "HandleGetQueueStatus"), slog.String("project", project))

	size, err := a.Queue.QueueSize(project)
	if err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to inspect push queue")
		return
	}
	counts := map[string]int{}
	for _, status := range []string{models.StatusPending, models.StatusApproved, models.StatusSynced} {
		n, err := a.Store.CountTestCasesByStatus(r.Context(), project, status)
		if err != nil {
			httperrors.InternalServerError(w, logger, err, "Failed to count test cases")
			return
		}
		counts[status] = n
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"project":      project,
		"pending_jobs": size,
		"cases":        counts,
	})
}

// HandleImportTestCases ingests a CSV of test cases. Rows referencing
// unknown stories are reported as row errors, never silently dropped.
func (a *API) HandleImportTestCases(w http.ResponseWriter, r *http.Request) {
	logger := a.Logger.With(slog.String("handler", "HandleImportTestCases"))
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		httperrors.BadRequest(w, logger, err, "Failed to parse multipart form")
		return
	}
	project := r.FormValue("project")
	if project == "" {
		httperrors.BadRequest(w, logger, nil, "Missing required form field: project")
		return
	}
	logger = logger.With(slog.String("project", project))

	file, _, err := r.FormFile(csvFileFieldName)
	if err != nil {
		httperrors.BadRequest(w, logger, err, fmt.Sprintf("Missing uploaded file field '%s'", csvFileFieldName))
		return
	}
	defer file.Close()

	stories, err := a.Store.GetStories(r.Context(), project)
	if err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to load project stories")
		return
	}
	known := make(map[string]bool, len(stories))
	for _, s := range stories {
		known[s.ID] = true
	}

	cases, rowErrors, err := importer.Parse(file, project, func(id string) bool { return known[id] })
	if err != nil {
		httperrors.BadRequest(w, logger, err, "Failed to parse CSV file")
		return
	}

	var saved []models.GeneratedTestCase
	if len(cases) > 0 {
		saved, err = a.Store.SaveTestCases(r.Context(), cases)
		if err != nil {
			httperrors.InternalServerError(w, logger, err, "Failed to persist imported test cases")
			return
		}
	}
	logger.Info("Imported test cases", slog.Int("imported", len(saved)), slog.Int("rejected_rows", len(rowErrors)))

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"imported":  len(saved),
		"rowErrors": rowErrors,
		"cases":     saved,
	})
}

// HandleExportTestCases renders the project's cases as CSV, uploads the file
// to object storage and returns its URL.
func (a *API) HandleExportTestCases(w http.ResponseWriter, r *http.Request) {
	logger := a.Logger.With(slog.String("handler", "HandleExportTestCases"))
	var req struct {
		Project string `json:"project"`
		Status  string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.BadRequest(w, logger, err, "Invalid JSON request body")
		return
	}
	defer r.Body.Close()
	if req.Project == "" {
		httperrors.BadRequest(w, logger, nil, "Missing required field: project")
		return
	}
	logger = logger.With(slog.String("project", req.Project))

	cases, err := a.Store.GetTestCases(r.Context(), req.Project, "", req.Status)
	if err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to retrieve test cases")
		return
	}
	if len(cases) == 0 {
		httperrors.NotFound(w, logger, nil, fmt.Sprintf("No test cases to export for project '%s'", req.Project))
		return
	}

	var buf bytes.Buffer
	if err := importer.Write(&buf, cases); err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to render CSV export")
		return
	}

	objectName := fmt.Sprintf("exports/%s/testcases_%s.csv", req.Project, time.Now().UTC().Format("20060102T150405Z"))
	url, err := a.Store.StoreArtifact(r.Context(), objectName, &buf, int64(buf.Len()), "text/csv")
	if err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to upload CSV export")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"url":   url,
		"cases": len(cases),
	})
}

// HandleGetProjectConfig returns a stored project config payload.
func (a *API) HandleGetProjectConfig(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	kind := chi.URLParam(r, "kind")
	logger := a.Logger.With(slog.String("handler", "HandleGetProjectConfig"), slog.String("project", project), slog.String("kind", kind))

	if !validConfigKind(kind) {
		httperrors.BadRequest(w, logger, nil, fmt.Sprintf("Unknown config kind '%s'", kind))
		return
	}

	payload, err := a.Store.GetProjectConfig(r.Context(), project, kind)
	if err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to retrieve project config")
		return
	}
	if payload == nil {
		httperrors.NotFound(w, logger, nil, fmt.Sprintf("No %s config saved for project '%s'", kind, project))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// HandlePutProjectConfig validates and stores a project config payload.
func (a *API) HandlePutProjectConfig(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	kind := chi.URLParam(r, "kind")
	logger := a.Logger.With(slog.String("handler", "HandlePutProjectConfig"), slog.String("project", project), slog.String("kind", kind))

	if !validConfigKind(kind) {
		httperrors.BadRequest(w, logger, nil, fmt.Sprintf("Unknown config kind '%s'", kind))
		return
	}

	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httperrors.BadRequest(w, logger, err, "Invalid JSON request body")
		return
	}
	defer r.Body.Close()

	// Reject payloads that do not fit the kind's shape.
	var shapeErr error
	switch kind {
	case models.ConfigKindTestData:
		shapeErr = strictUnmarshal(payload, &models.TestDataConfig{})
	case models.ConfigKindEnvironment:
		shapeErr = strictUnmarshal(payload, &models.EnvironmentConfig{})
	case models.ConfigKindAI:
		shapeErr = strictUnmarshal(payload, &models.AiConfiguration{})
	}
	if shapeErr != nil {
		httperrors.BadRequest(w, logger, shapeErr, fmt.Sprintf("Payload is not a valid %s config", kind))
		return
	}

	if err := a.Store.PutProjectConfig(r.Context(), project, kind, payload); err != nil {
		httperrors.InternalServerError(w, logger, err, "Failed to store project config")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"project": project, "kind": kind})
}

func strictUnmarshal(payload []byte, target interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

func validConfigKind(kind string) bool {
	switch kind {
	case models.ConfigKindTestData, models.ConfigKindEnvironment, models.ConfigKindAI:
		return true
	}
	return false
}

// HandleGetTestTypes exposes the generation catalog so clients can render
// the configuration screen without hardcoding the type list.
func (a *API) HandleGetTestTypes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, generator.Catalog())
}
