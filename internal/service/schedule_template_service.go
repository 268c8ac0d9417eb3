package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type scheduleTemplateRepository interface {
	Create(ctx context.Context, template *models.ScheduleTemplate) error
	FindByID(ctx context.Context, id string) (*models.ScheduleTemplate, error)
	ListByInstitution(ctx context.Context, institutionID string) ([]models.ScheduleTemplate, error)
	UpdateStatus(ctx context.Context, id string, status models.TemplateStatus) error
	MaxVersionInChain(ctx context.Context, rootID string) (int, error)
}

type templateSlotFeed interface {
	ListActiveByInstitution(ctx context.Context, institutionID string) ([]models.TimeSlot, error)
}

type templateQualificationFeed interface {
	ListQualified(ctx context.Context, subjectID string, grade int) ([]models.QualifiedTeacher, error)
}

type scheduleCreator interface {
	Create(ctx context.Context, req dto.CreateScheduleRequest, creatorID string) (*models.Schedule, error)
	AddSession(ctx context.Context, scheduleID string, req dto.AddSessionRequest, actorID string) (*models.ScheduleSession, error)
}

// ScheduleTemplateService owns generation blueprints and the greedy seeding
// pass that turns a template into a draft schedule.
type ScheduleTemplateService struct {
	templates      scheduleTemplateRepository
	slots          templateSlotFeed
	qualifications templateQualificationFeed
	schedules      scheduleCreator
	validator      *validator.Validate
	logger         *zap.Logger
	metrics        *MetricsService
}

// NewScheduleTemplateService wires the template dependencies.
func NewScheduleTemplateService(
	templates scheduleTemplateRepository,
	slots templateSlotFeed,
	qualifications templateQualificationFeed,
	schedules scheduleCreator,
	validate *validator.Validate,
	logger *zap.Logger,
) *ScheduleTemplateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleTemplateService{
		templates:      templates,
		slots:          slots,
		qualifications: qualifications,
		schedules:      schedules,
		validator:      validate,
		logger:         logger,
	}
}

// WithMetrics attaches the metrics sink. Optional.
func (s *ScheduleTemplateService) WithMetrics(metrics *MetricsService) *ScheduleTemplateService {
	s.metrics = metrics
	return s
}

// Create authors a new template in draft.
func (s *ScheduleTemplateService) Create(ctx context.Context, req dto.CreateTemplateRequest, creatorID string) (*models.ScheduleTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}

	template := &models.ScheduleTemplate{
		InstitutionID:   req.InstitutionID,
		Name:            req.Name,
		TemplateType:    models.ScheduleType(req.TemplateType),
		GradeLevelStart: req.GradeLevelStart,
		GradeLevelEnd:   req.GradeLevelEnd,
		PeriodsPerDay:   req.PeriodsPerDay,
		WorkingDays:     toInt64Array(req.WorkingDays),
		CreatedBy:       creatorID,
	}
	if err := template.SetAllocations(toAllocations(req.Allocations)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode allocations")
	}
	if err := s.templates.Create(ctx, template); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create template")
	}
	return template, nil
}

// Get loads one template.
func (s *ScheduleTemplateService) Get(ctx context.Context, id string) (*models.ScheduleTemplate, error) {
	template, err := s.templates.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}
	return template, nil
}

// List returns an institution's templates, newest first.
func (s *ScheduleTemplateService) List(ctx context.Context, institutionID string) ([]models.ScheduleTemplate, error) {
	if institutionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "institutionId is required")
	}
	templates, err := s.templates.ListByInstitution(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list templates")
	}
	return templates, nil
}

// templateTransitions is the blueprint lifecycle.
var templateTransitions = map[models.TemplateStatus][]models.TemplateStatus{
	models.TemplateStatusDraft:      {models.TemplateStatusTesting, models.TemplateStatusActive, models.TemplateStatusArchived},
	models.TemplateStatusTesting:    {models.TemplateStatusActive, models.TemplateStatusDraft, models.TemplateStatusArchived},
	models.TemplateStatusActive:     {models.TemplateStatusDeprecated},
	models.TemplateStatusDeprecated: {models.TemplateStatusArchived},
}

// UpdateStatus advances the template lifecycle.
func (s *ScheduleTemplateService) UpdateStatus(ctx context.Context, id string, target models.TemplateStatus) (*models.ScheduleTemplate, error) {
	template, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, next := range templateTransitions[template.Status] {
		if next == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, appErrors.InvalidTransition(string(template.Status), string(target))
	}
	if err := s.templates.UpdateStatus(ctx, id, target); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update template status")
	}
	template.Status = target
	return template, nil
}

// Fork creates the next version of a template. Versioning is append-only:
// the source stays untouched and keeps serving schedules already generated
// from it.
func (s *ScheduleTemplateService) Fork(ctx context.Context, sourceID string, req dto.ForkTemplateRequest, creatorID string) (*models.ScheduleTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fork payload")
	}
	source, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	rootID := sourceID
	if source.ParentTemplateID != nil {
		rootID = *source.ParentTemplateID
	}
	maxVersion, err := s.templates.MaxVersionInChain(ctx, rootID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve template version")
	}

	fork := &models.ScheduleTemplate{
		InstitutionID:      source.InstitutionID,
		Name:               source.Name,
		TemplateType:       source.TemplateType,
		GradeLevelStart:    source.GradeLevelStart,
		GradeLevelEnd:      source.GradeLevelEnd,
		SubjectAllocations: source.SubjectAllocations,
		PeriodsPerDay:      source.PeriodsPerDay,
		WorkingDays:        source.WorkingDays,
		Status:             models.TemplateStatusDraft,
		Version:            maxVersion + 1,
		ParentTemplateID:   &rootID,
		CreatedBy:          creatorID,
	}
	if req.Name != "" {
		fork.Name = req.Name
	}
	if len(req.Allocations) > 0 {
		if err := fork.SetAllocations(toAllocations(req.Allocations)); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode allocations")
		}
	}
	if err := s.templates.Create(ctx, fork); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fork template")
	}
	return fork, nil
}

// GenerateSchedule seeds a draft schedule from a template: a greedy pass
// that walks working days and teaching slots, placing each subject's weekly
// hours with the best-ranked qualified teacher that still fits. Placement
// failures are reported, not fatal; the draft stays editable.
func (s *ScheduleTemplateService) GenerateSchedule(ctx context.Context, req dto.GenerateFromTemplateRequest, creatorID string) (*models.Schedule, []string, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}
	template, err := s.Get(ctx, req.TemplateID)
	if err != nil {
		return nil, nil, err
	}
	if template.Status != models.TemplateStatusActive && template.Status != models.TemplateStatusTesting {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidState,
			fmt.Sprintf("template is %s; only active or testing templates generate schedules", template.Status))
	}
	if !template.CoversGrade(req.GradeLevel) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("template covers grades %d-%d, not %d", template.GradeLevelStart, template.GradeLevelEnd, req.GradeLevel))
	}
	allocations, err := template.Allocations()
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode allocations")
	}
	if len(allocations) == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "template has no subject allocations")
	}

	workingDays := make([]int, 0, len(template.WorkingDays))
	for _, d := range template.WorkingDays {
		workingDays = append(workingDays, int(d))
	}
	schedule, err := s.schedules.Create(ctx, dto.CreateScheduleRequest{
		Name:           req.Name,
		AcademicYearID: req.AcademicYearID,
		InstitutionID:  template.InstitutionID,
		GradeID:        req.GradeID,
		ScheduleType:   string(template.TemplateType),
		WorkingDays:    workingDays,
	}, creatorID)
	if err != nil {
		return nil, nil, err
	}

	grid, err := s.slots.ListActiveByInstitution(ctx, template.InstitutionID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time slot grid")
	}
	var teaching []models.TimeSlot
	for _, slot := range grid {
		if slot.IsTeachingPeriod {
			teaching = append(teaching, slot)
		}
	}
	if len(teaching) > template.PeriodsPerDay {
		teaching = teaching[:template.PeriodsPerDay]
	}

	start := time.Now()
	unplaced := s.seedFromAllocations(ctx, schedule, template, allocations, teaching, workingDays, req.GradeLevel, creatorID)
	s.metrics.ObserveGeneration(time.Since(start))

	s.logger.Info("generated schedule from template",
		zap.String("templateId", template.ID),
		zap.String("scheduleId", schedule.ID),
		zap.Int("unplaced", len(unplaced)))
	return schedule, unplaced, nil
}

// seedFromAllocations walks the (day, slot) grid round-robin and books each
// allocation hour through the normal AddSession gate, so generated drafts
// obey the same constraints as manual edits.
func (s *ScheduleTemplateService) seedFromAllocations(
	ctx context.Context,
	schedule *models.Schedule,
	template *models.ScheduleTemplate,
	allocations []models.SubjectAllocation,
	teaching []models.TimeSlot,
	workingDays []int,
	gradeLevel int,
	creatorID string,
) []string {
	var unplaced []string
	if len(teaching) == 0 || len(workingDays) == 0 {
		for _, allocation := range allocations {
			unplaced = append(unplaced, fmt.Sprintf("subject %s: no teaching slots available", allocation.SubjectID))
		}
		return unplaced
	}

	cursor := 0
	positions := len(workingDays) * len(teaching)
	for _, allocation := range allocations {
		teachers := s.rankedTeachers(ctx, allocation, gradeLevel)
		if len(teachers) == 0 {
			unplaced = append(unplaced, fmt.Sprintf("subject %s: no qualified teacher for grade %d", allocation.SubjectID, gradeLevel))
			continue
		}

		for hour := 0; hour < allocation.WeeklyHours; hour++ {
			placed := false
			for attempt := 0; attempt < positions && !placed; attempt++ {
				position := (cursor + attempt) % positions
				day := workingDays[position%len(workingDays)]
				slot := teaching[position/len(workingDays)]

				for _, teacher := range teachers {
					_, err := s.schedules.AddSession(ctx, schedule.ID, dto.AddSessionRequest{
						SubjectID:  allocation.SubjectID,
						TeacherID:  teacher,
						TimeSlotID: slot.ID,
						DayOfWeek:  day,
						GradeLevel: gradeLevel,
					}, creatorID)
					if err == nil {
						placed = true
						cursor = (position + 1) % positions
						break
					}
				}
			}
			if !placed {
				unplaced = append(unplaced, fmt.Sprintf("subject %s: hour %d/%d could not be placed", allocation.SubjectID, hour+1, allocation.WeeklyHours))
			}
		}
	}
	return unplaced
}

// rankedTeachers puts the preferred teacher first, then the ledger ranking.
func (s *ScheduleTemplateService) rankedTeachers(ctx context.Context, allocation models.SubjectAllocation, gradeLevel int) []string {
	qualified, err := s.qualifications.ListQualified(ctx, allocation.SubjectID, gradeLevel)
	if err != nil {
		s.logger.Warn("failed to load qualified teachers",
			zap.String("subjectId", allocation.SubjectID),
			zap.Error(err))
		return nil
	}
	var teachers []string
	if allocation.PreferredTeacherID != "" {
		teachers = append(teachers, allocation.PreferredTeacherID)
	}
	for _, q := range qualified {
		if q.TeacherID != allocation.PreferredTeacherID {
			teachers = append(teachers, q.TeacherID)
		}
	}
	return teachers
}

func toAllocations(items []dto.TemplateAllocation) []models.SubjectAllocation {
	allocations := make([]models.SubjectAllocation, 0, len(items))
	for _, item := range items {
		allocations = append(allocations, models.SubjectAllocation{
			SubjectID:          item.SubjectID,
			WeeklyHours:        item.WeeklyHours,
			PreferredTeacherID: item.PreferredTeacherID,
		})
	}
	return allocations
}
