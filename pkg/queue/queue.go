package queue

import (
	"github.com/testcraft/testcraft/pkg/models"
)

// AckNacker allows consumers to acknowledge or negatively acknowledge a job
// after processing it.
type AckNacker interface {
	Ack() error
	Nack(requeue bool) error
}

// Manager defines the interface for the push-job queue. Approved test cases
// are pushed to the tracker asynchronously; each project gets its own queue.
type Manager interface {
	// EnqueuePush submits a push job for the given cases and returns the
	// assigned job ID. Higher priority values are served first.
	EnqueuePush(project string, caseIDs []string, priority uint8) (string, error)

	// NextPush retrieves the next pending push job for a project, or
	// (nil, nil, nil) when the queue is empty. The returned AckNacker
	// must be used to settle the job once processed.
	NextPush(project string) (*models.PushJob, AckNacker, error)

	// QueueSize reports the number of pending push jobs for a project.
	QueueSize(project string) (int, error)

	// Close cleans up resources (e.g., connections).
	Close() error
}
