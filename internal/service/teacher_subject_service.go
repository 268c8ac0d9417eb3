package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type teacherSubjectRepository interface {
	Upsert(ctx context.Context, ts *models.TeacherSubject) error
	FindByID(ctx context.Context, id string) (*models.TeacherSubject, error)
	FindActive(ctx context.Context, teacherID, subjectID string) (*models.TeacherSubject, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherSubject, error)
	ListQualified(ctx context.Context, subjectID string, grade int) ([]models.QualifiedTeacher, error)
}

type teacherSessionFeed interface {
	ListActiveForTeacherSubject(ctx context.Context, teacherID, subjectID string) ([]models.ScheduleSession, error)
}

// TeacherSubjectService owns the qualification ledger: who may teach what, at
// which grades, under which workload caps, and how good a fit a candidate
// assignment is.
type TeacherSubjectService struct {
	ledger    teacherSubjectRepository
	sessions  teacherSessionFeed
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherSubjectService wires the ledger dependencies.
func NewTeacherSubjectService(ledger teacherSubjectRepository, sessions teacherSessionFeed, validate *validator.Validate, logger *zap.Logger) *TeacherSubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherSubjectService{ledger: ledger, sessions: sessions, validator: validate, logger: logger}
}

// Upsert creates or replaces the qualification for a (teacher, subject) pair.
func (s *TeacherSubjectService) Upsert(ctx context.Context, req dto.UpsertTeacherSubjectRequest) (*models.TeacherSubject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher subject payload")
	}
	validFrom, err := optionalDate(req.ValidFrom)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "validFrom must be YYYY-MM-DD")
	}
	validUntil, err := optionalDate(req.ValidUntil)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "validUntil must be YYYY-MM-DD")
	}
	if validFrom != nil && validUntil != nil && validUntil.Before(*validFrom) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "validFrom must be on or before validUntil")
	}

	ts := &models.TeacherSubject{
		TeacherID:             req.TeacherID,
		SubjectID:             req.SubjectID,
		GradeLevels:           toInt64Array(req.GradeLevels),
		SpecializationLevel:   models.SpecializationLevel(req.SpecializationLevel),
		MaxHoursPerWeek:       req.MaxHoursPerWeek,
		MaxClassesPerDay:      req.MaxClassesPerDay,
		MaxConsecutiveClasses: req.MaxConsecutiveClasses,
		PreferredTimeSlots:    req.PreferredTimeSlots,
		UnavailableTimeSlots:  req.UnavailableTimeSlots,
		PreferredDays:         toInt64Array(req.PreferredDays),
		RequiresLab:           req.RequiresLab,
		RequiresProjector:     req.RequiresProjector,
		RequiresComputer:      req.RequiresComputer,
		IsPrimarySubject:      req.IsPrimarySubject,
		IsActive:              true,
		ValidFrom:             validFrom,
		ValidUntil:            validUntil,
		PerformanceRating:     req.PerformanceRating,
		YearsExperience:       req.YearsExperience,
	}
	if err := s.ledger.Upsert(ctx, ts); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to upsert teacher subject")
	}
	return ts, nil
}

// Get loads one qualification.
func (s *TeacherSubjectService) Get(ctx context.Context, id string) (*models.TeacherSubject, error) {
	ts, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher subject")
	}
	return ts, nil
}

// ListByTeacher returns a teacher's qualifications.
func (s *TeacherSubjectService) ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherSubject, error) {
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacherId is required")
	}
	list, err := s.ledger.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher subjects")
	}
	return list, nil
}

// QualifiedTeachers returns the ranked suggestion list for a (subject, grade)
// pair: performance rating desc, experience desc, specialization asc.
func (s *TeacherSubjectService) QualifiedTeachers(ctx context.Context, query dto.QualifiedTeachersQuery) ([]models.QualifiedTeacher, error) {
	if query.SubjectID == "" || query.GradeLevel < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subjectId and gradeLevel are required")
	}
	list, err := s.ledger.ListQualified(ctx, query.SubjectID, query.GradeLevel)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list qualified teachers")
	}
	return list, nil
}

// WeeklyWorkload aggregates the teacher's booked hours for this subject
// across active schedules.
func (s *TeacherSubjectService) WeeklyWorkload(ctx context.Context, teacherSubjectID string) (*models.WorkloadSummary, error) {
	ts, err := s.Get(ctx, teacherSubjectID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListActiveForTeacherSubject(ctx, ts.TeacherID, ts.SubjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booked sessions")
	}
	summary := weeklySummary(ts, sessions)
	return &summary, nil
}

// DailyWorkload summarises one weekday: session count, hours, and consecutive
// blocks. Sessions whose gap is at most fifteen minutes merge into one block;
// a block longer than max_consecutive_classes is flagged.
func (s *TeacherSubjectService) DailyWorkload(ctx context.Context, teacherSubjectID string, weekday int) (*models.DailyWorkload, error) {
	if weekday < 1 || weekday > 7 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weekday must be between 1 and 7")
	}
	ts, err := s.Get(ctx, teacherSubjectID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListActiveForTeacherSubject(ctx, ts.TeacherID, ts.SubjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booked sessions")
	}

	var daySessions []models.ScheduleSession
	for _, session := range sessions {
		if session.DayOfWeek == weekday && session.Countable() {
			daySessions = append(daySessions, session)
		}
	}

	workload := &models.DailyWorkload{Sessions: len(daySessions)}
	for _, session := range daySessions {
		workload.TotalHours += float64(session.DurationMinutes) / 60
	}
	workload.ConsecutiveBlocks = consecutiveBlocks(daySessions, ts.MaxConsecutiveClasses)
	for _, block := range workload.ConsecutiveBlocks {
		if block.ExceedsCap {
			workload.CapExceeded = true
		}
	}
	return workload, nil
}

// EvaluateAssignment is the qualification gate. Every violated check is
// collected; can_assign is true only when the list is empty. The score is
// computed regardless so infeasible candidates can still be ranked.
func (s *TeacherSubjectService) EvaluateAssignment(ctx context.Context, candidate dto.SessionCandidate) (*models.AssignmentEvaluation, error) {
	if err := s.validator.Struct(candidate); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session candidate")
	}
	ts, err := s.ledger.FindActive(ctx, candidate.TeacherID, candidate.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active qualification for this teacher and subject")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load qualification")
	}
	sessions, err := s.sessions.ListActiveForTeacherSubject(ctx, ts.TeacherID, ts.SubjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booked sessions")
	}

	evaluation := evaluateCandidate(ts, candidate, sessions, time.Now())
	return &evaluation, nil
}

// evaluateCandidate runs the ordered check list and the scoring heuristic
// over in-memory state.
func evaluateCandidate(ts *models.TeacherSubject, candidate dto.SessionCandidate, sessions []models.ScheduleSession, now time.Time) models.AssignmentEvaluation {
	date := now
	if candidate.Date != "" {
		if parsed, err := time.Parse("2006-01-02", candidate.Date); err == nil {
			date = parsed
		}
	}

	var conflicts []models.Conflict
	add := func(kind models.ConflictKind, severity models.ConflictSeverity, message string) {
		conflicts = append(conflicts, models.Conflict{
			Kind:       kind,
			Severity:   severity,
			Message:    message,
			TeacherID:  ts.TeacherID,
			TimeSlotID: candidate.TimeSlotID,
			DayOfWeek:  candidate.DayOfWeek,
		})
	}

	if !ts.CurrentOn(date) {
		add(models.ConflictQualificationExpired, models.SeverityCritical, "qualification is inactive or outside its validity window")
	}
	if !ts.CanTeachGrade(candidate.GradeLevel) {
		add(models.ConflictGradeMismatch, models.SeverityCritical,
			fmt.Sprintf("teacher is not qualified for grade %d", candidate.GradeLevel))
	}
	if !ts.AvailableOnDay(candidate.DayOfWeek) {
		add(models.ConflictDayUnavailable, models.SeverityHigh,
			fmt.Sprintf("teacher does not take sessions on day %d", candidate.DayOfWeek))
	}
	if ts.UnavailableAtTimeSlot(candidate.TimeSlotID) {
		add(models.ConflictSlotUnavailable, models.SeverityHigh, "time slot is on the teacher's unavailable list")
	}

	summary := weeklySummary(ts, sessions)
	candidateHours := clockHours(candidate.StartTime, candidate.EndTime)
	if ts.MaxHoursPerWeek > 0 && summary.TotalHours+candidateHours > float64(ts.MaxHoursPerWeek) {
		add(models.ConflictWeeklyOverload, models.SeverityHigh,
			fmt.Sprintf("weekly cap of %d hours would be exceeded (%.1f booked)", ts.MaxHoursPerWeek, summary.TotalHours))
	}

	dayCount := 0
	duplicate := false
	for _, session := range sessions {
		if !session.Countable() {
			continue
		}
		if session.DayOfWeek == candidate.DayOfWeek {
			dayCount++
			if session.TimeSlotID == candidate.TimeSlotID {
				duplicate = true
			}
		}
	}
	if ts.MaxClassesPerDay > 0 && dayCount+1 > ts.MaxClassesPerDay {
		add(models.ConflictDailyOverload, models.SeverityMedium,
			fmt.Sprintf("daily cap of %d classes would be exceeded (%d booked)", ts.MaxClassesPerDay, dayCount))
	}
	if duplicate {
		add(models.ConflictDuplicateBooking, models.SeverityCritical, "teacher already has a session in this slot on this day")
	}

	return models.AssignmentEvaluation{
		CanAssign: len(conflicts) == 0,
		Conflicts: conflicts,
		Score:     assignmentScore(ts, candidate, summary.UtilizationPct),
	}
}

// assignmentScore is a heuristic tie-breaker, not an optimality guarantee.
// Base 50; primary subject +20; specialization ordinal x5; preferred slot
// +15; preferred day +10; utilization above 80% -10; experience up to +10;
// rating centred on 3 contributes -10..+10. Clamped to [0,100].
func assignmentScore(ts *models.TeacherSubject, candidate dto.SessionCandidate, utilizationPct float64) int {
	score := 50.0
	if ts.IsPrimarySubject {
		score += 20
	}
	score += float64(ts.SpecializationLevel.ScoreBonus())
	if ts.PrefersTimeSlot(candidate.TimeSlotID) {
		score += 15
	}
	if len(ts.PreferredDays) > 0 {
		for _, d := range ts.PreferredDays {
			if int(d) == candidate.DayOfWeek {
				score += 10
				break
			}
		}
	}
	if utilizationPct > 80 {
		score -= 10
	}
	if ts.YearsExperience > 10 {
		score += 10
	} else {
		score += float64(ts.YearsExperience)
	}
	score += (ts.PerformanceRating - 3) * 5

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(score)
}

func weeklySummary(ts *models.TeacherSubject, sessions []models.ScheduleSession) models.WorkloadSummary {
	var summary models.WorkloadSummary
	for _, session := range sessions {
		if !session.Countable() {
			continue
		}
		summary.Sessions++
		summary.TotalHours += float64(session.DurationMinutes) / 60
	}
	if ts.MaxHoursPerWeek > 0 {
		summary.HoursRemaining = float64(ts.MaxHoursPerWeek) - summary.TotalHours
		summary.UtilizationPct = summary.TotalHours / float64(ts.MaxHoursPerWeek) * 100
	}
	return summary
}

// consecutiveBlocks partitions one day's sessions into runs separated by gaps
// of at most fifteen minutes.
func consecutiveBlocks(sessions []models.ScheduleSession, maxConsecutive int) []models.ConsecutiveBlock {
	if len(sessions) == 0 {
		return nil
	}
	sorted := make([]models.ScheduleSession, len(sessions))
	copy(sorted, sessions)
	sort.Slice(sorted, func(i, j int) bool {
		si, _ := models.MinuteOfDay(sorted[i].StartTime)
		sj, _ := models.MinuteOfDay(sorted[j].StartTime)
		return si < sj
	})

	var blocks []models.ConsecutiveBlock
	current := models.ConsecutiveBlock{
		SessionIDs: []string{sorted[0].ID},
		StartTime:  sorted[0].StartTime,
		EndTime:    sorted[0].EndTime,
	}
	for i := 1; i < len(sorted); i++ {
		gap, err := models.ClockDuration(current.EndTime, sorted[i].StartTime)
		if err == nil && gap <= 15 {
			current.SessionIDs = append(current.SessionIDs, sorted[i].ID)
			current.EndTime = sorted[i].EndTime
			continue
		}
		blocks = append(blocks, current)
		current = models.ConsecutiveBlock{
			SessionIDs: []string{sorted[i].ID},
			StartTime:  sorted[i].StartTime,
			EndTime:    sorted[i].EndTime,
		}
	}
	blocks = append(blocks, current)

	for i := range blocks {
		if maxConsecutive > 0 && len(blocks[i].SessionIDs) > maxConsecutive {
			blocks[i].ExceedsCap = true
		}
	}
	return blocks
}

func clockHours(start, end string) float64 {
	minutes, err := models.ClockDuration(start, end)
	if err != nil || minutes < 0 {
		return 0
	}
	return float64(minutes) / 60
}

func optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
