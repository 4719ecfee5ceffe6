package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/ppl-internship-api/internal/models"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
	"github.com/noah-isme/ppl-internship-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, recipientID string) error
}

// NotificationService delivers workflow events to users as in-app
// notifications via a background worker queue. Publishing never blocks the
// triggering request and dispatch errors are logged, not surfaced.
type NotificationService struct {
	repo    notificationRepository
	queue   *jobs.Queue
	logger  *zap.Logger
	enabled bool
}

// NewNotificationService constructs the dispatcher and its worker queue.
func NewNotificationService(repo notificationRepository, cfg jobs.QueueConfig, logger *zap.Logger, enabled bool) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{repo: repo, logger: logger, enabled: enabled}
	s.queue = jobs.NewQueue("notifications", s.handle, cfg)
	return s
}

// Start launches the worker pool.
func (s *NotificationService) Start(ctx context.Context) {
	if !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the queue and stops workers.
func (s *NotificationService) Stop() {
	if !s.enabled {
		return
	}
	s.queue.Stop()
}

// Publish enqueues an event for asynchronous delivery. Fire-and-forget.
func (s *NotificationService) Publish(event models.NotificationEvent) {
	if !s.enabled {
		return
	}
	if err := s.queue.Enqueue(jobs.Job{Type: string(event.Type), Payload: event}); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

// List returns the recipient's notifications.
func (s *NotificationService) List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	notifications, err := s.repo.ListByRecipient(ctx, recipientID, unreadOnly, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead flags a notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, recipientID string) error {
	if err := s.repo.MarkRead(ctx, id, recipientID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.NotificationEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	notification := &models.Notification{
		RecipientID: event.RecipientID,
		Type:        event.Type,
		ResourceID:  event.ResourceID,
		Message:     messageFor(event),
		CreatedAt:   event.OccurredAt,
	}
	return s.repo.Create(ctx, notification)
}

func messageFor(event models.NotificationEvent) string {
	switch event.Type {
	case models.NotificationTeacherAssigned:
		return fmt.Sprintf("Mentor teacher %s has been assigned to your placement", event.Data["teacher_name"])
	case models.NotificationAssignmentCancelled:
		return fmt.Sprintf("Your placement was cancelled: %s", event.Data["reason"])
	case models.NotificationRequestSubmitted:
		return "A mentee submitted a completion request for your review"
	case models.NotificationTeacherReviewed:
		return fmt.Sprintf("Your mentor reviewed your completion request: %s", event.Data["decision"])
	case models.NotificationSupervisorReviewed:
		return fmt.Sprintf("A supervisor reviewed your completion request: %s", event.Data["decision"])
	default:
		return string(event.Type)
	}
}
