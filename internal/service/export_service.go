package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

type exportScheduleFeed interface {
	Get(ctx context.Context, id string) (*models.Schedule, error)
	Sessions(ctx context.Context, scheduleID string) ([]models.ScheduleSession, error)
}

type teacherNameResolver interface {
	TeacherNames(ctx context.Context, ids []string) (map[string]string, error)
}

// ExportService renders a schedule's timetable as CSV or PDF, and can
// archive renders on disk behind signed download tokens.
type ExportService struct {
	schedules exportScheduleFeed
	directory teacherNameResolver
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
}

// NewExportService wires the exporters.
func NewExportService(schedules exportScheduleFeed, directory teacherNameResolver, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		schedules: schedules,
		directory: directory,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
	}
}

var timetableHeaders = []string{"Day", "Period", "Time", "Subject", "Teacher", "Room", "Status"}

var exportDayNames = map[int]string{
	1: "Monday",
	2: "Tuesday",
	3: "Wednesday",
	4: "Thursday",
	5: "Friday",
	6: "Saturday",
	7: "Sunday",
}

// TimetableCSV renders the schedule as CSV bytes.
func (s *ExportService) TimetableCSV(ctx context.Context, scheduleID string) ([]byte, string, error) {
	schedule, dataset, err := s.dataset(ctx, scheduleID)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return payload, exportFilename(schedule, "csv"), nil
}

// TimetablePDF renders the schedule as a tabular PDF.
func (s *ExportService) TimetablePDF(ctx context.Context, scheduleID string) ([]byte, string, error) {
	schedule, dataset, err := s.dataset(ctx, scheduleID)
	if err != nil {
		return nil, "", err
	}
	title := fmt.Sprintf("%s (v%d)", schedule.Name, schedule.Version)
	payload, err := s.pdf.Render(dataset, title)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return payload, exportFilename(schedule, "pdf"), nil
}

// WithArchive enables the on-disk archive. Optional; without it the archive
// operations return NOT_FOUND.
func (s *ExportService) WithArchive(store *storage.LocalStorage, signer *storage.SignedURLSigner) *ExportService {
	s.store = store
	s.signer = signer
	return s
}

// ArchivedExport references a stored render reachable through a signed token.
type ArchivedExport struct {
	Filename  string    `json:"filename"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ArchiveTimetable renders the schedule in the requested format, stores the
// file and returns a signed download token.
func (s *ExportService) ArchiveTimetable(ctx context.Context, scheduleID, format string) (*ArchivedExport, error) {
	if s.store == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export archive is not enabled")
	}

	var payload []byte
	var filename string
	var err error
	switch format {
	case "csv":
		payload, filename, err = s.TimetableCSV(ctx, scheduleID)
	case "pdf":
		payload, filename, err = s.TimetablePDF(ctx, scheduleID)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if err != nil {
		return nil, err
	}

	relPath := path.Join(scheduleID, filename)
	if _, err := s.store.Save(relPath, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(scheduleID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}
	return &ArchivedExport{Filename: filename, Token: token, ExpiresAt: expiresAt}, nil
}

// OpenArchived validates a download token and opens the referenced file. The
// token is the sole authorization; expired or tampered tokens are rejected.
func (s *ExportService) OpenArchived(token string) (*os.File, string, error) {
	if s.store == nil || s.signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export archive is not enabled")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
	}
	return file, path.Base(relPath), nil
}

func (s *ExportService) dataset(ctx context.Context, scheduleID string) (*models.Schedule, export.Dataset, error) {
	schedule, err := s.schedules.Get(ctx, scheduleID)
	if err != nil {
		return nil, export.Dataset{}, err
	}
	sessions, err := s.schedules.Sessions(ctx, scheduleID)
	if err != nil {
		return nil, export.Dataset{}, err
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].DayOfWeek != sessions[j].DayOfWeek {
			return sessions[i].DayOfWeek < sessions[j].DayOfWeek
		}
		return sessions[i].PeriodNumber < sessions[j].PeriodNumber
	})

	teacherIDs := make([]string, 0, len(sessions))
	seen := make(map[string]struct{})
	for _, session := range sessions {
		if _, ok := seen[session.TeacherID]; !ok {
			seen[session.TeacherID] = struct{}{}
			teacherIDs = append(teacherIDs, session.TeacherID)
		}
	}
	names, err := s.directory.TeacherNames(ctx, teacherIDs)
	if err != nil {
		s.logger.Warn("falling back to teacher ids in export", zap.String("scheduleId", scheduleID), zap.Error(err))
		names = map[string]string{}
	}

	rows := make([]map[string]string, 0, len(sessions))
	for _, session := range sessions {
		teacher := names[session.TeacherID]
		if teacher == "" {
			teacher = session.TeacherID
		}
		rows = append(rows, map[string]string{
			"Day":     exportDayNames[session.DayOfWeek],
			"Period":  strconv.Itoa(session.PeriodNumber),
			"Time":    session.StartTime + "-" + session.EndTime,
			"Subject": session.SubjectID,
			"Teacher": teacher,
			"Room":    session.Room(),
			"Status":  string(session.Status),
		})
	}
	return schedule, export.Dataset{Headers: timetableHeaders, Rows: rows}, nil
}

func exportFilename(schedule *models.Schedule, extension string) string {
	return fmt.Sprintf("timetable-%s-v%d.%s", schedule.ID, schedule.Version, extension)
}
