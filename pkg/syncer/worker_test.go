package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testcraft/testcraft/pkg/models"
	"github.com/testcraft/testcraft/pkg/queue"
	"github.com/testcraft/testcraft/pkg/storage"
)

type mockQueue struct {
	EnqueuePushFunc func(project string, caseIDs []string, priority uint8) (string, error)
	NextPushFunc    func(project string) (*models.PushJob, queue.AckNacker, error)
	QueueSizeFunc   func(project string) (int, error)
}

func (m *mockQueue) EnqueuePush(project string, caseIDs []string, priority uint8) (string, error) {
	return m.EnqueuePushFunc(project, caseIDs, priority)
}
func (m *mockQueue) NextPush(project string) (*models.PushJob, queue.AckNacker, error) {
	return m.NextPushFunc(project)
}
func (m *mockQueue) QueueSize(project string) (int, error) { return m.QueueSizeFunc(project) }
func (m *mockQueue) Close() error                          { return nil }

type mockStore struct {
	GetTestCaseFunc func(ctx context.Context, caseID string) (*models.GeneratedTestCase, error)
	MarkSyncedFunc  func(ctx context.Context, caseID, workItemID string) error
}

func (m *mockStore) GetTestCase(ctx context.Context, caseID string) (*models.GeneratedTestCase, error) {
	return m.GetTestCaseFunc(ctx, caseID)
}
func (m *mockStore) MarkSynced(ctx context.Context, caseID, workItemID string) error {
	return m.MarkSyncedFunc(ctx, caseID, workItemID)
}

type mockTracker struct {
	CreateTestCaseFunc func(ctx context.Context, project string, tc models.GeneratedTestCase) (string, error)
}

func (m *mockTracker) FetchUserStories(ctx context.Context, project string) ([]models.UserStory, error) {
	return nil, errors.New("not implemented")
}
func (m *mockTracker) CreateTestCase(ctx context.Context, project string, tc models.GeneratedTestCase) (string, error) {
	return m.CreateTestCaseFunc(ctx, project, tc)
}
func (m *mockTracker) UpdateWorkItemState(ctx context.Context, workItemID, state string) error {
	return nil
}

type mockAckNacker struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockAckNacker) Ack() error { m.acked = true; return nil }
func (m *mockAckNacker) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func approvedCase(id string) *models.GeneratedTestCase {
	return &models.GeneratedTestCase{
		ID:      id,
		Project: "WebShop",
		Title:   "Positive Test Case (Web Portal): User Login",
		Status:  models.StatusApproved,
	}
}

func TestProcessJob_SyncsApprovedCases(t *testing.T) {
	var synced []string
	store := &mockStore{
		GetTestCaseFunc: func(_ context.Context, caseID string) (*models.GeneratedTestCase, error) {
			return approvedCase(caseID), nil
		},
		MarkSyncedFunc: func(_ context.Context, caseID, workItemID string) error {
			synced = append(synced, caseID+":"+workItemID)
			return nil
		},
	}
	tc := &mockTracker{
		CreateTestCaseFunc: func(_ context.Context, project string, c models.GeneratedTestCase) (string, error) {
			assert.Equal(t, "WebShop", project)
			return "wi-" + c.ID, nil
		},
	}
	ack := &mockAckNacker{}

	w := NewWorker(&mockQueue{}, store, tc, testLogger(), 0)
	w.processJob(context.Background(), &models.PushJob{
		ID: "job-1", Project: "WebShop", CaseIDs: []string{"c1", "c2"},
	}, ack)

	assert.Equal(t, []string{"c1:wi-c1", "c2:wi-c2"}, synced)
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestProcessJob_SkipsNonApprovedAndMissing(t *testing.T) {
	var created []string
	store := &mockStore{
		GetTestCaseFunc: func(_ context.Context, caseID string) (*models.GeneratedTestCase, error) {
			switch caseID {
			case "missing":
				return nil, storage.ErrNotFound
			case "pending":
				c := approvedCase(caseID)
				c.Status = models.StatusPending
				return c, nil
			default:
				return approvedCase(caseID), nil
			}
		},
		MarkSyncedFunc: func(context.Context, string, string) error { return nil },
	}
	tc := &mockTracker{
		CreateTestCaseFunc: func(_ context.Context, _ string, c models.GeneratedTestCase) (string, error) {
			created = append(created, c.ID)
			return "wi-1", nil
		},
	}
	ack := &mockAckNacker{}

	w := NewWorker(&mockQueue{}, store, tc, testLogger(), 0)
	w.processJob(context.Background(), &models.PushJob{
		ID: "job-1", Project: "WebShop", CaseIDs: []string{"missing", "pending", "ok"},
	}, ack)

	assert.Equal(t, []string{"ok"}, created)
	assert.True(t, ack.acked, "skips must not block the job")
}

func TestProcessJob_TrackerFailureRequeues(t *testing.T) {
	store := &mockStore{
		GetTestCaseFunc: func(_ context.Context, caseID string) (*models.GeneratedTestCase, error) {
			return approvedCase(caseID), nil
		},
		MarkSyncedFunc: func(context.Context, string, string) error {
			t.Fatal("MarkSynced must not be called when the tracker fails")
			return nil
		},
	}
	tc := &mockTracker{
		CreateTestCaseFunc: func(context.Context, string, models.GeneratedTestCase) (string, error) {
			return "", errors.New("tracker unavailable")
		},
	}
	ack := &mockAckNacker{}

	w := NewWorker(&mockQueue{}, store, tc, testLogger(), 0)
	w.processJob(context.Background(), &models.PushJob{
		ID: "job-1", Project: "WebShop", CaseIDs: []string{"c1"},
	}, ack)

	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
}

func TestProcessJob_MarkSyncedFailureStillAcks(t *testing.T) {
	store := &mockStore{
		GetTestCaseFunc: func(_ context.Context, caseID string) (*models.GeneratedTestCase, error) {
			return approvedCase(caseID), nil
		},
		MarkSyncedFunc: func(context.Context, string, string) error {
			return errors.New("db down")
		},
	}
	tc := &mockTracker{
		CreateTestCaseFunc: func(context.Context, string, models.GeneratedTestCase) (string, error) {
			return "wi-1", nil
		},
	}
	ack := &mockAckNacker{}

	w := NewWorker(&mockQueue{}, store, tc, testLogger(), 0)
	w.processJob(context.Background(), &models.PushJob{
		ID: "job-1", Project: "WebShop", CaseIDs: []string{"c1"},
	}, ack)

	// The work item was created; requeueing would duplicate it.
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
}

func TestPollOnce_DrainsTrackedProjects(t *testing.T) {
	jobs := []*models.PushJob{
		{ID: "job-1", Project: "WebShop", CaseIDs: []string{"c1"}},
		{ID: "job-2", Project: "WebShop", CaseIDs: []string{"c2"}},
	}
	acks := []*mockAckNacker{{}, {}}
	var fetches int
	q := &mockQueue{
		NextPushFunc: func(project string) (*models.PushJob, queue.AckNacker, error) {
			require.Equal(t, "WebShop", project)
			if fetches >= len(jobs) {
				return nil, nil, nil
			}
			job, ack := jobs[fetches], acks[fetches]
			fetches++
			return job, ack, nil
		},
	}
	store := &mockStore{
		GetTestCaseFunc: func(_ context.Context, caseID string) (*models.GeneratedTestCase, error) {
			return approvedCase(caseID), nil
		},
		MarkSyncedFunc: func(context.Context, string, string) error { return nil },
	}
	tc := &mockTracker{
		CreateTestCaseFunc: func(context.Context, string, models.GeneratedTestCase) (string, error) {
			return "wi-1", nil
		},
	}

	w := NewWorker(q, store, tc, testLogger(), 0)
	w.Track("WebShop")
	w.Track("") // ignored
	w.pollOnce(context.Background())

	assert.Equal(t, 2, fetches)
	assert.True(t, acks[0].acked)
	assert.True(t, acks[1].acked)
}

func TestNewWorker_SeedsInitialProjects(t *testing.T) {
	var polled []string
	q := &mockQueue{
		NextPushFunc: func(project string) (*models.PushJob, queue.AckNacker, error) {
			polled = append(polled, project)
			return nil, nil, nil
		},
	}
	w := NewWorker(q, &mockStore{}, &mockTracker{}, testLogger(), 0, "WebShop", "")
	w.pollOnce(context.Background())
	assert.Equal(t, []string{"WebShop"}, polled)
}
