package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

type changeLogRepository interface {
	Append(ctx context.Context, entry *models.ScheduleChangeLog) error
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleChangeLog, error)
}

// ChangeLogService is the audit sink for schedule workflow transitions and
// session mutations. Writes go through the background queue so a slow or
// failing sink never blocks the transition it describes.
type ChangeLogService struct {
	entries changeLogRepository
	queue   *jobs.Queue
	logger  *zap.Logger
}

// NewChangeLogService wires the audit sink. Call Start before recording.
func NewChangeLogService(entries changeLogRepository, queueCfg jobs.QueueConfig, logger *zap.Logger) *ChangeLogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ChangeLogService{entries: entries, logger: logger}
	s.queue = jobs.NewQueue("schedule-audit", s.handle, queueCfg)
	return s
}

// Start launches the sink workers.
func (s *ChangeLogService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the sink workers.
func (s *ChangeLogService) Stop() {
	s.queue.Stop()
}

// Record enqueues one audit event. Fire-and-forget: enqueue failures are
// logged, never returned.
func (s *ChangeLogService) Record(scheduleID, action, actorID string, payload interface{}) {
	entry := &models.ScheduleChangeLog{
		ScheduleID: scheduleID,
		Action:     action,
		ActorID:    actorID,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			s.logger.Warn("dropping unencodable audit payload",
				zap.String("scheduleId", scheduleID),
				zap.String("action", action),
				zap.Error(err))
		} else {
			entry.Payload = raw
		}
	}

	job := jobs.Job{ID: uuid.NewString(), Type: action, Payload: entry}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue audit event",
			zap.String("scheduleId", scheduleID),
			zap.String("action", action),
			zap.Error(err))
	}
}

// History returns the audit trail for a schedule, oldest first.
func (s *ChangeLogService) History(ctx context.Context, scheduleID string) ([]models.ScheduleChangeLog, error) {
	return s.entries.ListBySchedule(ctx, scheduleID)
}

func (s *ChangeLogService) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.ScheduleChangeLog)
	if !ok {
		s.logger.Warn("unexpected audit job payload", zap.String("jobId", job.ID))
		return nil
	}
	return s.entries.Append(ctx, entry)
}
