package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type scheduleRepoStub struct {
	schedules  map[string]*models.Schedule
	superseded []string
	metricsFor string
	lastScore  float64
	nextID     int
}

func newScheduleRepoStub(seed ...*models.Schedule) *scheduleRepoStub {
	stub := &scheduleRepoStub{schedules: map[string]*models.Schedule{}, nextID: len(seed)}
	for _, schedule := range seed {
		stub.schedules[schedule.ID] = schedule
	}
	return stub
}

func (m *scheduleRepoStub) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	m.nextID++
	schedule.ID = fmt.Sprintf("sched-%d", m.nextID)
	schedule.Version = 1
	cp := *schedule
	m.schedules[schedule.ID] = &cp
	return nil
}

func (m *scheduleRepoStub) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, ok := m.schedules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *schedule
	return &cp, nil
}

func (m *scheduleRepoStub) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	var out []models.Schedule
	for _, schedule := range m.schedules {
		out = append(out, *schedule)
	}
	return out, len(out), nil
}

func (m *scheduleRepoStub) UpdateWorkflow(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	cp := *schedule
	m.schedules[schedule.ID] = &cp
	return nil
}

func (m *scheduleRepoStub) SupersedeActiveInScope(ctx context.Context, exec sqlx.ExtContext, gradeID string, scheduleType models.ScheduleType, excludeID, reason string) ([]string, error) {
	return m.superseded, nil
}

func (m *scheduleRepoStub) UpdateMetrics(ctx context.Context, id string, score float64, conflicts int, teacherUtil, roomUtil float64) error {
	m.metricsFor = id
	m.lastScore = score
	return nil
}

type sessionRepoStub struct {
	sessions []models.ScheduleSession
	crossFor map[string][]models.ScheduleSession
	nextID   int
}

func (m *sessionRepoStub) Insert(ctx context.Context, exec sqlx.ExtContext, session *models.ScheduleSession) error {
	m.nextID++
	session.ID = fmt.Sprintf("sess-%d", m.nextID)
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}
	m.sessions = append(m.sessions, *session)
	return nil
}

func (m *sessionRepoStub) BulkInsert(ctx context.Context, tx *sqlx.Tx, sessions []models.ScheduleSession) error {
	for i := range sessions {
		m.nextID++
		sessions[i].ID = fmt.Sprintf("sess-%d", m.nextID)
		if sessions[i].Status == "" {
			sessions[i].Status = models.SessionStatusScheduled
		}
	}
	m.sessions = append(m.sessions, sessions...)
	return nil
}

func (m *sessionRepoStub) FindByID(ctx context.Context, id string) (*models.ScheduleSession, error) {
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			cp := m.sessions[i]
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *sessionRepoStub) ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleSession, error) {
	var out []models.ScheduleSession
	for _, session := range m.sessions {
		if session.ScheduleID == scheduleID {
			out = append(out, session)
		}
	}
	return out, nil
}

func (m *sessionRepoStub) ListActiveForTeacher(ctx context.Context, teacherID, excludeScheduleID string) ([]models.ScheduleSession, error) {
	return m.crossFor[teacherID], nil
}

func (m *sessionRepoStub) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, substituteTeacherID *string) error {
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			m.sessions[i].Status = status
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *sessionRepoStub) DeleteBySchedule(ctx context.Context, exec sqlx.ExtContext, scheduleID string) error {
	return nil
}

type slotReaderStub struct {
	slots map[string]*models.TimeSlot
}

func (m *slotReaderStub) FindByID(ctx context.Context, id string) (*models.TimeSlot, error) {
	slot, ok := m.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *slot
	return &cp, nil
}

type gateStub struct {
	evaluation models.AssignmentEvaluation
	err        error
}

func (m *gateStub) EvaluateAssignment(ctx context.Context, candidate dto.SessionCandidate) (*models.AssignmentEvaluation, error) {
	if m.err != nil {
		return nil, m.err
	}
	cp := m.evaluation
	return &cp, nil
}

type availabilityStub struct {
	decision models.AvailabilityDecision
	err      error
}

func (m *availabilityStub) CheckAvailability(ctx context.Context, query dto.AvailabilityCheckQuery) (*models.AvailabilityDecision, error) {
	if m.err != nil {
		return nil, m.err
	}
	cp := m.decision
	return &cp, nil
}

type qualificationStub struct {
	byTeacher map[string]*models.TeacherSubject
}

func (m *qualificationStub) FindActive(ctx context.Context, teacherID, subjectID string) (*models.TeacherSubject, error) {
	ts, ok := m.byTeacher[teacherID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *ts
	return &cp, nil
}

type auditStub struct {
	records []struct {
		ScheduleID string
		Action     string
	}
}

func (m *auditStub) Record(scheduleID, action, actorID string, payload interface{}) {
	m.records = append(m.records, struct {
		ScheduleID string
		Action     string
	}{scheduleID, action})
}

func (m *auditStub) actions() []string {
	out := make([]string, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Action)
	}
	return out
}

type cacheStub struct {
	sets    map[string]interface{}
	deletes []string
}

func (m *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (m *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.sets == nil {
		m.sets = map[string]interface{}{}
	}
	m.sets[key] = value
	return nil
}

func (m *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deletes = append(m.deletes, pattern)
	return nil
}

type scheduleFixtureDeps struct {
	schedules *scheduleRepoStub
	sessions  *sessionRepoStub
	slots     *slotReaderStub
	gate      *gateStub
	avail     *availabilityStub
	quals     *qualificationStub
	audit     *auditStub
	cache     *cacheStub
	db        *sqlx.DB
	mock      sqlmock.Sqlmock
}

func newScheduleService(t *testing.T, deps *scheduleFixtureDeps, cfg ScheduleServiceConfig) *ScheduleService {
	t.Helper()
	if deps.schedules == nil {
		deps.schedules = newScheduleRepoStub()
	}
	if deps.sessions == nil {
		deps.sessions = &sessionRepoStub{}
	}
	if deps.slots == nil {
		deps.slots = &slotReaderStub{slots: map[string]*models.TimeSlot{}}
	}
	if deps.gate == nil {
		deps.gate = &gateStub{evaluation: models.AssignmentEvaluation{CanAssign: true, Score: 75}}
	}
	if deps.avail == nil {
		deps.avail = &availabilityStub{decision: models.AvailabilityDecision{IsAvailable: true}}
	}
	if deps.quals == nil {
		deps.quals = &qualificationStub{}
	}
	if deps.audit == nil {
		deps.audit = &auditStub{}
	}
	if deps.cache == nil {
		deps.cache = &cacheStub{}
	}
	if deps.db == nil {
		rawDB, mock, err := sqlmock.New()
		require.NoError(t, err)
		deps.db = sqlx.NewDb(rawDB, "sqlmock")
		deps.mock = mock
		t.Cleanup(func() { _ = deps.db.Close() })
	}
	return NewScheduleService(deps.schedules, deps.sessions, deps.slots, deps.gate,
		deps.avail, deps.quals, deps.audit, deps.cache, deps.db,
		validator.New(), zap.NewNop(), cfg)
}

func draftScheduleFixture(id string) *models.Schedule {
	return &models.Schedule{
		ID:             id,
		Name:           "Grade 10A Regular",
		AcademicYearID: "ay-1",
		InstitutionID:  "inst-1",
		GradeID:        "grade-1",
		ScheduleType:   models.ScheduleTypeRegular,
		WorkingDays:    pq.Int64Array{1, 2, 3, 4, 5},
		Status:         models.ScheduleStatusDraft,
		Version:        1,
		CreatedBy:      "user-1",
	}
}

func teachingSlotFixture(id string) *models.TimeSlot {
	return &models.TimeSlot{
		ID:               id,
		InstitutionID:    "inst-1",
		Code:             "P1",
		StartTime:        "08:00",
		EndTime:          "08:45",
		DurationMinutes:  45,
		SlotType:         models.SlotTypeClass,
		ApplicableDays:   pq.Int64Array{1, 2, 3, 4, 5},
		OrderIndex:       2,
		IsActive:         true,
		IsTeachingPeriod: true,
	}
}

func addSessionRequestFixture() dto.AddSessionRequest {
	return dto.AddSessionRequest{
		SubjectID:  "subject-1",
		TeacherID:  "teacher-1",
		TimeSlotID: "slot-1",
		DayOfWeek:  1,
		GradeLevel: 10,
	}
}

func TestScheduleTransitions(t *testing.T) {
	cases := []struct {
		from    models.ScheduleStatus
		to      models.ScheduleStatus
		allowed bool
	}{
		{models.ScheduleStatusDraft, models.ScheduleStatusPendingReview, true},
		{models.ScheduleStatusRejected, models.ScheduleStatusPendingReview, true},
		{models.ScheduleStatusPendingReview, models.ScheduleStatusUnderReview, true},
		{models.ScheduleStatusUnderReview, models.ScheduleStatusApproved, true},
		{models.ScheduleStatusUnderReview, models.ScheduleStatusRejected, true},
		{models.ScheduleStatusApproved, models.ScheduleStatusActive, true},
		{models.ScheduleStatusApproved, models.ScheduleStatusArchived, true},
		{models.ScheduleStatusActive, models.ScheduleStatusSuspended, true},
		{models.ScheduleStatusActive, models.ScheduleStatusArchived, true},
		{models.ScheduleStatusSuspended, models.ScheduleStatusArchived, true},
		{models.ScheduleStatusDraft, models.ScheduleStatusActive, false},
		{models.ScheduleStatusDraft, models.ScheduleStatusApproved, false},
		{models.ScheduleStatusArchived, models.ScheduleStatusActive, false},
		{models.ScheduleStatusActive, models.ScheduleStatusDraft, false},
		{models.ScheduleStatusSuspended, models.ScheduleStatusActive, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, canTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestScheduleServiceCreateOpensDraft(t *testing.T) {
	deps := &scheduleFixtureDeps{}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	schedule, err := service.Create(context.Background(), dto.CreateScheduleRequest{
		Name:           "Grade 10A Regular",
		AcademicYearID: "ay-1",
		InstitutionID:  "inst-1",
		GradeID:        "grade-1",
		ScheduleType:   "regular",
		WorkingDays:    []int{1, 2, 3, 4, 5},
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusDraft, schedule.Status)
	assert.Equal(t, models.GenerationManual, schedule.GenerationMethod)
	assert.Contains(t, deps.audit.actions(), models.ChangeActionCreated)
}

func TestScheduleServiceCreateRejectsInvertedDates(t *testing.T) {
	service := newScheduleService(t, &scheduleFixtureDeps{}, ScheduleServiceConfig{})

	_, err := service.Create(context.Background(), dto.CreateScheduleRequest{
		Name:           "Backwards",
		AcademicYearID: "ay-1",
		InstitutionID:  "inst-1",
		GradeID:        "grade-1",
		ScheduleType:   "regular",
		WorkingDays:    []int{1},
		EffectiveDate:  "2026-06-01",
		EndDate:        "2026-01-01",
	}, "user-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestScheduleServiceAddSessionDefaults(t *testing.T) {
	deps := &scheduleFixtureDeps{
		schedules: newScheduleRepoStub(draftScheduleFixture("sched-1")),
		slots:     &slotReaderStub{slots: map[string]*models.TimeSlot{"slot-1": teachingSlotFixture("slot-1")}},
	}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	session, err := service.AddSession(context.Background(), "sched-1", addSessionRequestFixture(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, session.PeriodNumber, "defaults to the slot order index")
	assert.Equal(t, "regular", session.SessionType)
	assert.Equal(t, "08:00", session.StartTime)
	assert.Equal(t, 45, session.DurationMinutes)
	assert.Nil(t, session.RoomID)
	assert.Contains(t, deps.audit.actions(), models.ChangeActionSessionAdded)
	assert.Contains(t, deps.cache.deletes, "schedule:stats:sched-1")
}

func TestScheduleServiceAddSessionRequiresDraft(t *testing.T) {
	active := draftScheduleFixture("sched-1")
	active.Status = models.ScheduleStatusActive
	deps := &scheduleFixtureDeps{
		schedules: newScheduleRepoStub(active),
		slots:     &slotReaderStub{slots: map[string]*models.TimeSlot{"slot-1": teachingSlotFixture("slot-1")}},
	}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	_, err := service.AddSession(context.Background(), "sched-1", addSessionRequestFixture(), "user-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
}

func TestScheduleServiceAddSessionRejectsNonWorkingDay(t *testing.T) {
	deps := &scheduleFixtureDeps{
		schedules: newScheduleRepoStub(draftScheduleFixture("sched-1")),
		slots:     &slotReaderStub{slots: map[string]*models.TimeSlot{"slot-1": teachingSlotFixture("slot-1")}},
	}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	req := addSessionRequestFixture()
	req.DayOfWeek = 6
	_, err := service.AddSession(context.Background(), "sched-1", req, "user-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestScheduleServiceAddSessionGateRejection(t *testing.T) {
	deps := &scheduleFixtureDeps{
		schedules: newScheduleRepoStub(draftScheduleFixture("sched-1")),
		slots:     &slotReaderStub{slots: map[string]*models.TimeSlot{"slot-1": teachingSlotFixture("slot-1")}},
		gate: &gateStub{evaluation: models.AssignmentEvaluation{
			CanAssign: false,
			Conflicts: []models.Conflict{{Kind: models.ConflictGradeMismatch, Message: "teacher is not qualified for grade 10"}},
		}},
	}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	_, err := service.AddSession(context.Background(), "sched-1", addSessionRequestFixture(), "user-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, []string{"teacher is not qualified for grade 10"}, appErr.Details)
	assert.Empty(t, deps.sessions.sessions)
}

func TestScheduleServiceAddSessionAvailabilityBlock(t *testing.T) {
	deps := &scheduleFixtureDeps{
		schedules: newScheduleRepoStub(draftScheduleFixture("sched-1")),
		slots:     &slotReaderStub{slots: map[string]*models.TimeSlot{"slot-1": teachingSlotFixture("slot-1")}},
		avail: &availabilityStub{decision: models.AvailabilityDecision{
			IsAvailable: false,
			Conflicts: []models.AvailabilityEntry{
				{Type: models.AvailabilityMeeting, StartTime: "08:00", EndTime: "09:00", Reason: "staff meeting"},
			},
		}},
	}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	_, err := service.AddSession(context.Background(), "sched-1", addSessionRequestFixture(), "user-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	require.Len(t, appErr.Details, 1)
	assert.Contains(t, appErr.Details[0], "staff meeting")
}

func TestScheduleServiceAddSessionCapacityCap(t *testing.T) {
	deps := &scheduleFixtureDeps{
		schedules: newScheduleRepoStub(draftScheduleFixture("sched-1")),
		sessions: &sessionRepoStub{sessions: []models.ScheduleSession{
			{ID: "sess-1", ScheduleID: "sched-1", Status: models.SessionStatusScheduled},
			{ID: "sess-2", ScheduleID: "sched-1", Status: models.SessionStatusScheduled},
		}},
		slots: &slotReaderStub{slots: map[string]*models.TimeSlot{"slot-1": teachingSlotFixture("slot-1")}},
	}
	service := newScheduleService(t, deps, ScheduleServiceConfig{MaxSessionsPerSchedule: 2})

	_, err := service.AddSession(context.Background(), "sched-1", addSessionRequestFixture(), "user-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErr.Code)
}

func TestScheduleServiceCancelSession(t *testing.T) {
	deps := &scheduleFixtureDeps{
		schedules: newScheduleRepoStub(draftScheduleFixture("sched-1")),
		sessions: &sessionRepoStub{sessions: []models.ScheduleSession{
			{ID: "sess-1", ScheduleID: "sched-1", Status: models.SessionStatusScheduled},
		}},
	}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	require.NoError(t, service.CancelSession(context.Background(), "sched-1", "sess-1", "user-1"))
	assert.Equal(t, models.SessionStatusCancelled, deps.sessions.sessions[0].Status)
	assert.Contains(t, deps.audit.actions(), models.ChangeActionSessionCanceled)

	err := service.CancelSession(context.Background(), "sched-1", "sess-1", "user-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
}

func TestDetectPairwiseConflicts(t *testing.T) {
	room := "room-1"
	sessions := []models.ScheduleSession{
		{ID: "s1", TeacherID: "t1", RoomID: &room, DayOfWeek: 1, TimeSlotID: "slot-1", Status: models.SessionStatusScheduled},
		{ID: "s2", TeacherID: "t1", DayOfWeek: 1, TimeSlotID: "slot-1", Status: models.SessionStatusScheduled},
		{ID: "s3", TeacherID: "t2", RoomID: &room, DayOfWeek: 1, TimeSlotID: "slot-1", Status: models.SessionStatusScheduled},
		{ID: "s4", TeacherID: "t1", DayOfWeek: 2, TimeSlotID: "slot-1", Status: models.SessionStatusScheduled},
		{ID: "s5", TeacherID: "t2", RoomID: &room, DayOfWeek: 1, TimeSlotID: "slot-1", Status: models.SessionStatusCancelled},
	}

	conflicts := detectPairwiseConflicts(sessions)

	require.Len(t, conflicts, 2)
	kinds := map[models.ConflictKind]models.ConflictSeverity{}
	for _, c := range conflicts {
		kinds[c.Kind] = c.Severity
	}
	assert.Equal(t, models.SeverityCritical, kinds[models.ConflictTeacherDoubleBooking])
	assert.Equal(t, models.SeverityHigh, kinds[models.ConflictRoomDoubleBooking])
}

func TestDetectConflictsCrossSchedulePass(t *testing.T) {
	deps := &scheduleFixtureDeps{
		schedules: newScheduleRepoStub(draftScheduleFixture("sched-1")),
		sessions: &sessionRepoStub{
			sessions: []models.ScheduleSession{
				{ID: "s1", ScheduleID: "sched-1", TeacherID: "t1", DayOfWeek: 1, TimeSlotID: "slot-1", Status: models.SessionStatusScheduled},
			},
			crossFor: map[string][]models.ScheduleSession{
				"t1": {{ID: "x1", ScheduleID: "sched-9", TeacherID: "t1", DayOfWeek: 1, TimeSlotID: "slot-1", Status: models.SessionStatusScheduled}},
			},
		},
	}
	service := newScheduleService(t, deps, ScheduleServiceConfig{CrossScheduleConflicts: true})

	conflicts, err := service.DetectConflicts(context.Background(), "sched-1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictCrossSchedule, conflicts[0].Kind)
	assert.Equal(t, models.SeverityCritical, conflicts[0].Severity)
}

func TestScheduleServiceSubmitForReviewBlocksEmptySchedule(t *testing.T) {
	deps := &scheduleFixtureDeps{
		schedules: newScheduleRepoStub(draftScheduleFixture("sched-1")),
	}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	_, err := service.SubmitForReview(context.Background(), "sched-1", "user-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Details, "schedule has no sessions")
}

func TestScheduleServiceSubmitForReviewHappyPath(t *testing.T) {
	deps := &scheduleFixtureDeps{
		schedules: newScheduleRepoStub(draftScheduleFixture("sched-1")),
		sessions: &sessionRepoStub{sessions: []models.ScheduleSession{
			{ID: "s1", ScheduleID: "sched-1", TeacherID: "t1", DayOfWeek: 1, TimeSlotID: "slot-1",
				StartTime: "08:00", EndTime: "08:45", Status: models.SessionStatusScheduled},
		}},
	}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	schedule, err := service.SubmitForReview(context.Background(), "sched-1", "user-2")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusPendingReview, schedule.Status)
	require.NotNil(t, schedule.SubmittedBy)
	assert.Equal(t, "user-2", *schedule.SubmittedBy)
	assert.NotNil(t, schedule.SubmittedAt)
	assert.Equal(t, "sched-1", deps.schedules.metricsFor, "validation refreshes stored metrics")
	assert.Contains(t, deps.audit.actions(), models.ChangeActionSubmitted)
}

func TestScheduleServiceReviewCycle(t *testing.T) {
	pending := draftScheduleFixture("sched-1")
	pending.Status = models.ScheduleStatusPendingReview
	deps := &scheduleFixtureDeps{schedules: newScheduleRepoStub(pending)}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	schedule, err := service.StartReview(context.Background(), "sched-1", "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusUnderReview, schedule.Status)

	schedule, err = service.Reject(context.Background(), "sched-1", "reviewer-1", dto.RejectScheduleRequest{Reason: "too many gaps"})
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusRejected, schedule.Status)
	require.NotNil(t, schedule.RejectionReason)
	assert.Equal(t, "too many gaps", *schedule.RejectionReason)
}

func TestScheduleServiceApproveFromUnderReview(t *testing.T) {
	underReview := draftScheduleFixture("sched-1")
	underReview.Status = models.ScheduleStatusUnderReview
	deps := &scheduleFixtureDeps{schedules: newScheduleRepoStub(underReview)}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	schedule, err := service.Approve(context.Background(), "sched-1", "approver-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusApproved, schedule.Status)
	require.NotNil(t, schedule.ApprovedBy)
	assert.Equal(t, "approver-1", *schedule.ApprovedBy)
}

func TestScheduleServiceActivateSupersedesScope(t *testing.T) {
	approved := draftScheduleFixture("sched-2")
	approved.Status = models.ScheduleStatusApproved
	schedules := newScheduleRepoStub(approved)
	schedules.superseded = []string{"sched-1"}
	deps := &scheduleFixtureDeps{schedules: schedules}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	deps.mock.ExpectBegin()
	deps.mock.ExpectCommit()

	schedule, err := service.Activate(context.Background(), "sched-2", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusActive, schedule.Status)
	assert.NotNil(t, schedule.ActivatedAt)
	assert.Contains(t, deps.audit.actions(), models.ChangeActionActivated)
	assert.Contains(t, deps.audit.actions(), models.ChangeActionSuperseded)
	assert.Contains(t, deps.cache.deletes, "schedule:stats:sched-1")
	assert.NoError(t, deps.mock.ExpectationsWereMet())
}

func TestScheduleServiceActivateRejectsDraft(t *testing.T) {
	deps := &scheduleFixtureDeps{schedules: newScheduleRepoStub(draftScheduleFixture("sched-1"))}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	_, err := service.Activate(context.Background(), "sched-1", "admin-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
}

func TestScheduleServiceCreateCopyClonesSessions(t *testing.T) {
	source := draftScheduleFixture("sched-1")
	source.Status = models.ScheduleStatusActive
	deps := &scheduleFixtureDeps{
		schedules: newScheduleRepoStub(source),
		sessions: &sessionRepoStub{sessions: []models.ScheduleSession{
			{ID: "s1", ScheduleID: "sched-1", TeacherID: "t1", SubjectID: "sub-1", DayOfWeek: 1,
				TimeSlotID: "slot-1", Status: models.SessionStatusCompleted},
		}},
	}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	deps.mock.ExpectBegin()
	deps.mock.ExpectCommit()

	duplicate, err := service.CreateCopy(context.Background(), "sched-1", dto.CopyScheduleRequest{}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusDraft, duplicate.Status)
	assert.Equal(t, models.GenerationCopied, duplicate.GenerationMethod)
	assert.Equal(t, "Grade 10A Regular (copy)", duplicate.Name)

	cloned, err := deps.sessions.ListBySchedule(context.Background(), duplicate.ID)
	require.NoError(t, err)
	require.Len(t, cloned, 1)
	assert.Equal(t, models.SessionStatusScheduled, cloned[0].Status, "session status resets on copy")
	assert.NotEqual(t, "s1", cloned[0].ID)
	assert.Contains(t, deps.audit.actions(), models.ChangeActionCopied)
}

func TestScheduleServiceStatisticsComputesAndCaches(t *testing.T) {
	room := "room-1"
	deps := &scheduleFixtureDeps{
		schedules: newScheduleRepoStub(draftScheduleFixture("sched-1")),
		sessions: &sessionRepoStub{sessions: []models.ScheduleSession{
			{ID: "s1", ScheduleID: "sched-1", TeacherID: "t1", RoomID: &room, DayOfWeek: 1, TimeSlotID: "slot-1", SessionType: "regular", Status: models.SessionStatusScheduled},
			{ID: "s2", ScheduleID: "sched-1", TeacherID: "t2", DayOfWeek: 2, TimeSlotID: "slot-1", SessionType: "regular", Status: models.SessionStatusScheduled},
			{ID: "s3", ScheduleID: "sched-1", TeacherID: "t2", DayOfWeek: 2, TimeSlotID: "slot-2", SessionType: "lab", Status: models.SessionStatusCancelled},
		}},
	}
	service := newScheduleService(t, deps, ScheduleServiceConfig{})

	stats, fromCache, err := service.Statistics(context.Background(), "sched-1")
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 2, stats.TotalTeachers)
	assert.Equal(t, 1, stats.TotalRooms)
	assert.Equal(t, 0, stats.Conflicts)
	assert.Equal(t, map[int]int{1: 1, 2: 1}, stats.SessionsByDay)
	assert.Equal(t, map[string]int{"regular": 2}, stats.SessionsByType)
	assert.Contains(t, deps.cache.sets, "schedule:stats:sched-1")
}

func TestBuildValidationReport(t *testing.T) {
	schedule := draftScheduleFixture("sched-1")

	report := buildValidationReport(schedule, nil, nil, 90)
	assert.False(t, report.IsValid)
	assert.Contains(t, report.Errors, "schedule has no sessions")

	sessions := []models.ScheduleSession{
		{ID: "s1", TeacherID: "t1", DayOfWeek: 1, Status: models.SessionStatusScheduled},
		{ID: "s2", TeacherID: "t1", DayOfWeek: 6, Status: models.SessionStatusScheduled},
	}
	report = buildValidationReport(schedule, sessions, nil, 50)
	assert.False(t, report.IsValid)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "not a working day")
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "below 70")
}

func TestBuildValidationReportWorkloadImbalance(t *testing.T) {
	schedule := draftScheduleFixture("sched-1")
	var sessions []models.ScheduleSession
	for i := 0; i < 8; i++ {
		sessions = append(sessions, models.ScheduleSession{
			ID: fmt.Sprintf("a%d", i), TeacherID: "t1", DayOfWeek: 1 + i%5, Status: models.SessionStatusScheduled,
		})
	}
	sessions = append(sessions, models.ScheduleSession{ID: "b1", TeacherID: "t2", DayOfWeek: 1, Status: models.SessionStatusScheduled})

	report := buildValidationReport(schedule, sessions, nil, 95)
	assert.True(t, report.IsValid)
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[0], "imbalanced")
}

func TestDayDistributionVariance(t *testing.T) {
	schedule := draftScheduleFixture("sched-1")

	balanced := []models.ScheduleSession{
		{DayOfWeek: 1}, {DayOfWeek: 2}, {DayOfWeek: 3}, {DayOfWeek: 4}, {DayOfWeek: 5},
	}
	assert.InDelta(t, 0, dayDistributionVariance(schedule, balanced), 0.001)

	lopsided := []models.ScheduleSession{
		{DayOfWeek: 1}, {DayOfWeek: 1}, {DayOfWeek: 1}, {DayOfWeek: 1}, {DayOfWeek: 1},
	}
	// counts 5,0,0,0,0: mean 1, variance (16+1+1+1+1)/5 = 4
	assert.InDelta(t, 4, dayDistributionVariance(schedule, lopsided), 0.001)
}

func TestTeacherGapPenalty(t *testing.T) {
	sessions := []models.ScheduleSession{
		{TeacherID: "t1", DayOfWeek: 1, StartTime: "08:00", EndTime: "08:45"},
		{TeacherID: "t1", DayOfWeek: 1, StartTime: "11:45", EndTime: "12:30"},
		{TeacherID: "t1", DayOfWeek: 2, StartTime: "08:00", EndTime: "08:45"},
		{TeacherID: "t1", DayOfWeek: 2, StartTime: "09:00", EndTime: "09:45"},
	}
	// day 1 gap is 180 minutes: penalty (180-60)/60 = 2; day 2 gap is benign
	assert.InDelta(t, 2, teacherGapPenalty(sessions), 0.001)
}

func TestUtilizationClampsAtFull(t *testing.T) {
	schedule := draftScheduleFixture("sched-1")
	var sessions []models.ScheduleSession
	for day := 1; day <= 5; day++ {
		for p := 0; p < 9; p++ {
			sessions = append(sessions, models.ScheduleSession{
				ID: fmt.Sprintf("s-%d-%d", day, p), TeacherID: "t1", DayOfWeek: day, Status: models.SessionStatusScheduled,
			})
		}
	}
	teacherUtil, roomUtil := utilization(schedule, sessions)
	assert.Equal(t, float64(100), teacherUtil)
	assert.Equal(t, float64(0), roomUtil)
}
