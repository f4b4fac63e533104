package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/plateworks/paymaster/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// CreateJobRecordParams groups parameters for JobRecordRepository.Create.
type CreateJobRecordParams struct {
	TenantID   string
	JobType    model.JobType
	TotalItems int
	Metadata   json.RawMessage
	CreatedBy  string
}

// UpdateJobRecordParams groups parameters for JobRecordRepository.Update.
// Nil fields are left untouched; MetadataPatch merges into the stored
// metadata and never clears keys it does not mention.
type UpdateJobRecordParams struct {
	ID             string
	Status         *model.JobStatus
	CompletedItems *int
	FailedItems    *int
	ErrorMessage   *string
	MetadataPatch  json.RawMessage
}

// IncrementProgressParams groups parameters for IncrementProgress to keep param count ≤3.
type IncrementProgressParams struct {
	ID             string
	CompletedDelta int
	FailedDelta    int
}

// CompleteJobRecordParams groups parameters for JobRecordRepository.Complete.
type CompleteJobRecordParams struct {
	ID             string
	CompletedItems int
	FailedItems    int
	MetadataPatch  json.RawMessage
}

// CancelJobRecordParams groups parameters for JobRecordRepository.Cancel.
type CancelJobRecordParams struct {
	ID     string
	Reason string
}

// JobRecordRepository defines the interface for payroll job record data operations.
// Status transitions are conditional UPDATEs: terminal rows are never mutated.
type JobRecordRepository interface {
	Create(ctx context.Context, params CreateJobRecordParams) (*model.JobRecord, error)
	GetByID(ctx context.Context, id string) (*model.JobRecord, error)
	List(ctx context.Context, opts *model.JobRecordListOptions) ([]*model.JobSummary, error)
	Update(ctx context.Context, params UpdateJobRecordParams) (bool, error)

	// MarkProcessing atomically claims a pending record for execution.
	// Returns false when the record is missing or no longer pending.
	MarkProcessing(ctx context.Context, id string) (bool, error)

	// IncrementProgress bumps the progress counters of a processing record.
	// The update also touches updated_at, which the stuck-record sweep reads
	// as a liveness signal.
	IncrementProgress(ctx context.Context, params IncrementProgressParams) (bool, error)

	// Complete finalises a processing record with its terminal counters.
	Complete(ctx context.Context, params CompleteJobRecordParams) (bool, error)

	// Fail marks a pending or processing record as failed with the given message.
	Fail(ctx context.Context, id, errMsg string) (bool, error)

	// Cancel marks a pending or processing record as cancelled.
	// Returns false when the record is missing or already terminal.
	Cancel(ctx context.Context, params CancelJobRecordParams) (bool, error)
}

// DeleteOldJobRecordsParams groups parameters for DeleteOldTerminal.
type DeleteOldJobRecordsParams struct {
	MaxAge    time.Duration
	BatchSize int
}

// FailStuckJobRecordsParams groups parameters for FailStuckProcessing.
type FailStuckJobRecordsParams struct {
	StuckFor time.Duration
	Limit    int
	Message  string
}

// JobRecordSweeper defines the cleanup operations the maintenance tasks run over job records.
type JobRecordSweeper interface {
	// DeleteOldTerminal deletes terminal records older than MaxAge.
	// Processes up to BatchSize rows per call to prevent long locks.
	DeleteOldTerminal(ctx context.Context, params DeleteOldJobRecordsParams) (int64, error)

	// FailStuckProcessing fails processing records whose updated_at has not moved
	// for StuckFor. Returns the IDs of the records it flipped so callers can
	// invalidate cached status.
	FailStuckProcessing(ctx context.Context, params FailStuckJobRecordsParams) ([]string, error)
}

// FailTaskParams groups parameters for TaskRepository.Fail.
type FailTaskParams struct {
	ID         string
	ErrMsg     string
	RetryDelay time.Duration
}

// TaskRepository defines the interface for queue task data operations.
type TaskRepository interface {
	Create(ctx context.Context, req *model.CreateTaskRequest) (*model.Task, error)
	GetByID(ctx context.Context, id string) (*model.Task, error)
	ReserveNext(ctx context.Context, queue string, leaseSeconds int) (*model.Task, error)
	WaitForNotification(ctx context.Context, queue string) error
	Heartbeat(ctx context.Context, taskID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	Fail(ctx context.Context, params FailTaskParams) (bool, error)
	Stats(ctx context.Context, queue string) (*model.TaskStats, error)
	List(ctx context.Context, opts *model.TaskListOptions) ([]*model.Task, error)
	Delete(ctx context.Context, id string) error
}

// TaskRepositoryTx defines optional transactional task creation support.
type TaskRepositoryTx interface {
	CreateInTx(ctx context.Context, tx *sql.Tx, req *model.CreateTaskRequest) (*model.Task, error)
}

// CreateSubscriptionParams groups parameters for WebhookSubscriptionRepository.Create.
// SecretKey is the plaintext signing secret; the repository encrypts it at rest.
type CreateSubscriptionParams struct {
	URL         string
	EventTypes  []model.EventType
	Description string
	SecretKey   string
}

// UpdateSubscriptionParams groups parameters for WebhookSubscriptionRepository.Update.
// Updates are full replacements; the stored secret is never touched.
type UpdateSubscriptionParams struct {
	ID          string
	URL         string
	EventTypes  []model.EventType
	Active      bool
	Description string
}

// WebhookSubscriptionRepository defines the interface for webhook subscription data operations.
type WebhookSubscriptionRepository interface {
	Create(ctx context.Context, params CreateSubscriptionParams) (*model.WebhookSubscription, error)
	GetByID(ctx context.Context, id string) (*model.WebhookSubscription, error)

	// GetSecretKey returns the decrypted signing secret for a subscription.
	GetSecretKey(ctx context.Context, id string) (string, error)

	List(ctx context.Context, limit, offset int) ([]*model.WebhookSubscription, error)
	ListActiveByEventType(ctx context.Context, eventType model.EventType) ([]*model.WebhookSubscription, error)
	Update(ctx context.Context, params UpdateSubscriptionParams) (*model.WebhookSubscription, error)
	Delete(ctx context.Context, id string) (bool, error)

	// RecordDeliverySuccess bumps total_events_sent and stamps last_triggered_at
	// in a single UPDATE.
	RecordDeliverySuccess(ctx context.Context, id string, now time.Time) (bool, error)

	// RecordDeliveryFailure bumps failure_count in a single UPDATE.
	RecordDeliveryFailure(ctx context.Context, id string) (bool, error)
}

// CreateDeliveryParams groups parameters for WebhookDeliveryRepository.Create.
type CreateDeliveryParams struct {
	EventID        string
	SubscriptionID string
	EventType      model.EventType
	Payload        json.RawMessage
}

// MarkDeliveredParams groups parameters for WebhookDeliveryRepository.MarkDelivered.
type MarkDeliveredParams struct {
	ID     string
	Status int
}

// MarkDeliveryFailedParams groups parameters for WebhookDeliveryRepository.MarkFailed.
// A nil NextAttemptAt removes the row from the retry sweep permanently.
type MarkDeliveryFailedParams struct {
	ID            string
	Status        *int
	ErrMsg        string
	NextAttemptAt *time.Time
}

// ClaimRetryableParams groups parameters for WebhookDeliveryRepository.ClaimRetryable.
type ClaimRetryableParams struct {
	Now         time.Time
	MaxAttempts int
	Limit       int
	// HoldFor pushes next_attempt_at forward on claim so an overlapping sweep
	// cannot re-enqueue the same rows.
	HoldFor time.Duration
}

// WebhookDeliveryRepository defines the interface for webhook delivery data operations.
type WebhookDeliveryRepository interface {
	Create(ctx context.Context, params CreateDeliveryParams) (*model.WebhookDelivery, error)
	GetByID(ctx context.Context, id string) (*model.WebhookDelivery, error)
	MarkDelivered(ctx context.Context, params MarkDeliveredParams) (bool, error)
	MarkFailed(ctx context.Context, params MarkDeliveryFailedParams) (bool, error)

	// ClaimRetryable returns undelivered rows that are due another attempt,
	// using FOR UPDATE SKIP LOCKED so concurrent sweeps never claim the same row.
	ClaimRetryable(ctx context.Context, params ClaimRetryableParams) ([]*model.WebhookDelivery, error)
}

// DeleteOldTasksParams groups parameters for DeleteOldTasks.
type DeleteOldTasksParams struct {
	Status    model.TaskStatus
	MaxAge    time.Duration
	BatchSize int
}

// DeleteOldDeliveriesParams groups parameters for DeleteOldDeliveries.
type DeleteOldDeliveriesParams struct {
	MaxAge      time.Duration
	BatchSize   int
	MaxAttempts int
}

// ReaperRepository defines the interface for queue cleanup operations.
type ReaperRepository interface {
	// FailStalePendingTasks marks pending tasks older than maxAge as failed.
	// Processes up to batchSize tasks per call to prevent long locks.
	// Returns the number of tasks marked as failed.
	FailStalePendingTasks(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)

	// DeleteOldTasks deletes tasks with the given status older than MaxAge.
	// Processes up to BatchSize tasks per call to prevent long locks.
	// Returns the number of tasks deleted.
	DeleteOldTasks(ctx context.Context, params DeleteOldTasksParams) (int64, error)

	// DeleteOldDeliveries deletes webhook delivery rows that are delivered,
	// exhausted, or abandoned and older than MaxAge. Processes up to BatchSize
	// rows per call.
	DeleteOldDeliveries(ctx context.Context, params DeleteOldDeliveriesParams) (int64, error)
}
