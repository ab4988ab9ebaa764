package rabbitmq

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/testcraft/testcraft/pkg/models"
	"github.com/testcraft/testcraft/pkg/queue"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Ensure Manager implements queue.Manager interface at compile time
var _ queue.Manager = (*Manager)(nil)

const (
	exchangeName = "testcase_push_exchange"
	maxPriority  = 10 // RabbitMQ priority queues support 0-255, keep it small
)

// Manager implements queue.Manager using RabbitMQ. Each project gets its own
// durable priority queue bound to a direct exchange on the project name.
type Manager struct {
	conn           *amqp.Connection
	logger         *slog.Logger
	declaredQueues sync.Map // project -> bool, avoids re-declaring per publish
	mu             sync.Mutex
}

// NewManager creates a new RabbitMQ queue manager and declares the exchange.
func NewManager(amqpURL string, logger *slog.Logger) (*Manager, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		exchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchangeName, err)
	}

	m := &Manager{conn: conn, logger: logger}

	go func() {
		closeErr := <-conn.NotifyClose(make(chan *amqp.Error))
		if closeErr != nil {
			logger.Error("RabbitMQ connection closed unexpectedly", slog.String("error", closeErr.Error()))
		}
	}()

	logger.Info("RabbitMQ manager initialized", slog.String("exchange", exchangeName))
	return m, nil
}

// Close closes the RabbitMQ connection.
func (m *Manager) Close() error {
	m.logger.Info("Closing RabbitMQ connection")
	if m.conn != nil && !m.conn.IsClosed() {
		return m.conn.Close()
	}
	return nil
}

func queueNameForProject(project string) string {
	return "push_queue_" + project
}

// ensureQueue declares the per-project queue and binding once per process.
func (m *Manager) ensureQueue(ch *amqp.Channel, project string) error {
	if _, ok := m.declaredQueues.Load(project); ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.declaredQueues.Load(project); ok {
		return nil
	}

	queueName := queueNameForProject(project)
	args := amqp.Table{"x-max-priority": int32(maxPriority)}
	_, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", queueName, err)
	}

	err = ch.QueueBind(queueName, project, exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("failed to bind queue '%s': %w", queueName, err)
	}

	m.declaredQueues.Store(project, true)
	m.logger.Info("Declared push queue", slog.String("queue", queueName))
	return nil
}

// EnqueuePush publishes a push job for the given cases. userPriority follows
// the convention that lower numbers are more urgent, so it is inverted into
// the RabbitMQ priority where higher wins.
func (m *Manager) EnqueuePush(project string, caseIDs []string, userPriority uint8) (string, error) {
	if project == "" {
		return "", fmt.Errorf("project name is required")
	}
	if len(caseIDs) == 0 {
		return "", fmt.Errorf("at least one case ID is required")
	}

	ch, err := m.conn.Channel()
	if err != nil {
		return "", fmt.Errorf("failed to open channel for publishing: %w", err)
	}
	defer ch.Close()

	if err := m.ensureQueue(ch, project); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	msg := models.PushJobMessage{
		ID:         jobID,
		Project:    project,
		CaseIDs:    caseIDs,
		Priority:   userPriority,
		EnqueuedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal push job: %w", err)
	}

	// Invert so that userPriority 1 maps to the highest broker priority.
	var rabbitPriority uint8
	if userPriority <= maxPriority {
		rabbitPriority = maxPriority - userPriority
	}

	err = ch.Publish(
		exchangeName,
		project, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Priority:     rabbitPriority,
			MessageId:    jobID,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to publish push job: %w", err)
	}

	m.logger.Info("Enqueued push job",
		slog.String("job_id", jobID),
		slog.String("project", project),
		slog.Int("cases", len(caseIDs)),
		slog.Int("priority", int(userPriority)))
	return jobID, nil
}

// NextPush fetches the next push job for a project. Returns (nil, nil, nil)
// when the queue is empty. The channel stays open until the caller settles
// the delivery through the returned AckNacker.
func (m *Manager) NextPush(project string) (*models.PushJob, queue.AckNacker, error) {
	ch, err := m.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open channel for consuming: %w", err)
	}

	if err := m.ensureQueue(ch, project); err != nil {
		ch.Close()
		return nil, nil, err
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	delivery, ok, err := ch.Get(queueNameForProject(project), false) // manual ack
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to get message: %w", err)
	}
	if !ok {
		ch.Close()
		return nil, nil, nil
	}

	var msg models.PushJobMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		// Poison message: drop it so it does not wedge the queue.
		m.logger.Error("Failed to unmarshal push job, discarding",
			slog.String("error", err.Error()),
			slog.Uint64("delivery_tag", delivery.DeliveryTag))
		_ = delivery.Nack(false, false)
		ch.Close()
		return nil, nil, fmt.Errorf("failed to unmarshal push job: %w", err)
	}

	job := &models.PushJob{
		ID:         msg.ID,
		Project:    msg.Project,
		CaseIDs:    msg.CaseIDs,
		Priority:   msg.Priority,
		EnqueuedAt: msg.EnqueuedAt,
	}

	ackNacker := &deliveryAckNacker{
		deliveryTag: delivery.DeliveryTag,
		channel:     ch,
		logger:      m.logger,
	}
	return job, ackNacker, nil
}

// QueueSize reports the number of pending jobs for a project. A queue that
// was never declared counts as empty.
func (m *Manager) QueueSize(project string) (int, error) {
	ch, err := m.conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclarePassive(
		queueNameForProject(project),
		true, false, false, false,
		amqp.Table{"x-max-priority": int32(maxPriority)},
	)
	if err != nil {
		amqpErr, ok := err.(*amqp.Error)
		if ok && amqpErr.Code == amqp.NotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}
	return q.Messages, nil
}

// deliveryAckNacker settles a single delivery. Ack and Nack are idempotent:
// only the first call touches the channel, which is closed afterwards.
type deliveryAckNacker struct {
	deliveryTag uint64
	channel     *amqp.Channel
	logger      *slog.Logger
	closed      bool
	mu          sync.Mutex
}

func (d *deliveryAckNacker) Ack() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	defer d.channel.Close()

	if err := d.channel.Ack(d.deliveryTag, false); err != nil {
		d.logger.Error("Failed to ack delivery", slog.Uint64("delivery_tag", d.deliveryTag), slog.String("error", err.Error()))
		return fmt.Errorf("failed to ack delivery %d: %w", d.deliveryTag, err)
	}
	return nil
}

func (d *deliveryAckNacker) Nack(requeue bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	defer d.channel.Close()

	if err := d.channel.Nack(d.deliveryTag, false, requeue); err != nil {
		d.logger.Error("Failed to nack delivery", slog.Uint64("delivery_tag", d.deliveryTag), slog.String("error", err.Error()))
		return fmt.Errorf("failed to nack delivery %d: %w", d.deliveryTag, err)
	}
	return nil
}
