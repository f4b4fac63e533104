// Package mocks provides mock implementations for testing the paymaster job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockTaskRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(task, nil)
package mocks

// Generate mock for TaskRepository interface from internal/core package.
// This creates MockTaskRepository with methods for all TaskRepository interface methods:
// Create, GetByID, ReserveNext, WaitForNotification, Heartbeat, Complete, Fail, Stats, List, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=task_repository_mock.go github.com/plateworks/paymaster/internal/core TaskRepository

// Generate mock for JobRecordRepository interface from internal/core package.
// This creates MockJobRecordRepository with methods for all JobRecordRepository interface methods:
// Create, GetByID, List, Update, MarkProcessing, IncrementProgress, Complete, Fail, Cancel
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_record_repository_mock.go github.com/plateworks/paymaster/internal/core JobRecordRepository

// Generate mock for JobRecordSweeper interface from internal/core package.
// This creates MockJobRecordSweeper with methods for all JobRecordSweeper interface methods:
// DeleteOldTerminal, FailStuckProcessing
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_record_sweeper_mock.go github.com/plateworks/paymaster/internal/core JobRecordSweeper

// Generate mock for WebhookSubscriptionRepository interface from internal/core package.
// This creates MockWebhookSubscriptionRepository with methods for all WebhookSubscriptionRepository interface methods:
// Create, GetByID, GetSecretKey, List, ListActiveByEventType, Update, Delete, RecordDeliverySuccess, RecordDeliveryFailure
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=webhook_subscription_repository_mock.go github.com/plateworks/paymaster/internal/core WebhookSubscriptionRepository

// Generate mock for WebhookDeliveryRepository interface from internal/core package.
// This creates MockWebhookDeliveryRepository with methods for all WebhookDeliveryRepository interface methods:
// Create, GetByID, MarkDelivered, MarkFailed, ClaimRetryable
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=webhook_delivery_repository_mock.go github.com/plateworks/paymaster/internal/core WebhookDeliveryRepository

// Generate mock for ScheduledTasksRepository interface from internal/core package.
// This creates MockScheduledTasksRepository with methods for all ScheduledTasksRepository interface methods:
// FindDue, FindDueTx, MarkQueued, MarkQueuedTx, TryWithTaskLock
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=scheduled_tasks_repository_mock.go github.com/plateworks/paymaster/internal/core ScheduledTasksRepository

// Generate mock for ReaperRepository interface from internal/core package.
// This creates MockReaperRepository with methods for all ReaperRepository interface methods:
// FailStalePendingTasks, DeleteOldTasks, DeleteOldDeliveries
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/plateworks/paymaster/internal/core ReaperRepository

// Generate mocks for the payroll collaborator ports from internal/core package.
// This creates MockEmployeeDirectory, MockPayrollCalculator, and MockPaymentLookup.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=payroll_ports_mock.go github.com/plateworks/paymaster/internal/core EmployeeDirectory,PayrollCalculator,PaymentLookup
