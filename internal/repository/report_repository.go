package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/civic-report-api/internal/models"
)

const reportColumns = `id, title, description, category, severity, priority, status, latitude, longitude, address, ward,
       photo_urls, video_urls, points_awarded, due_date, assignment_notes, citizen_id, municipality_id,
       assigned_staff_id, assigned_at, in_progress_at, resolved_at, validation_info, created_at, updated_at`

// ErrStatusConflict signals that a compare-and-swap update lost against a concurrent writer.
var ErrStatusConflict = errors.New("report status changed concurrently")

// DuplicateReportError is returned by Create when an active report already occupies the citizen/category window.
type DuplicateReportError struct {
	Existing *models.Report
}

func (e *DuplicateReportError) Error() string {
	return fmt.Sprintf("active report %s already exists for category", e.Existing.ID)
}

var reportSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"due_date":   "due_date",
	"priority":   "CASE priority WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END",
	"severity":   "CASE severity WHEN 'emergency' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END",
}

// ReportRepository persists citizen reports.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts the report unless an active duplicate created after since exists.
// The check and the insert share a transaction holding an advisory lock on citizen+category.
func (r *ReportRepository) Create(ctx context.Context, report *models.Report, since time.Time) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.Status == "" {
		report.Status = models.StatusPending
	}
	now := time.Now().UTC()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = report.CreatedAt
	if report.PhotoURLs == nil {
		report.PhotoURLs = []string{}
	}
	if report.VideoURLs == nil {
		report.VideoURLs = []string{}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create report: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	lockKey := report.CitizenID + "|" + string(report.Category)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return fmt.Errorf("lock citizen category: %w", err)
	}

	existing, err := findActiveDuplicate(ctx, tx, report.CitizenID, report.Category, since)
	if err != nil {
		return err
	}
	if existing != nil {
		return &DuplicateReportError{Existing: existing}
	}

	const query = `INSERT INTO reports (id, title, description, category, severity, priority, status, latitude, longitude,
       address, ward, photo_urls, video_urls, points_awarded, due_date, assignment_notes, citizen_id, municipality_id,
       assigned_staff_id, assigned_at, in_progress_at, resolved_at, validation_info, created_at, updated_at)
VALUES (:id, :title, :description, :category, :severity, :priority, :status, :latitude, :longitude,
       :address, :ward, :photo_urls, :video_urls, :points_awarded, :due_date, :assignment_notes, :citizen_id, :municipality_id,
       :assigned_staff_id, :assigned_at, :in_progress_at, :resolved_at, :validation_info, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create report: %w", err)
	}
	return nil
}

// GetByID fetches a report. sql.ErrNoRows is returned unwrapped.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	var report models.Report
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &report, nil
}

// FindActiveDuplicate returns the newest active report of the citizen in category created after since, or nil.
func (r *ReportRepository) FindActiveDuplicate(ctx context.Context, citizenID string, category models.ReportCategory, since time.Time) (*models.Report, error) {
	return findActiveDuplicate(ctx, r.db, citizenID, category, since)
}

func findActiveDuplicate(ctx context.Context, q sqlx.QueryerContext, citizenID string, category models.ReportCategory, since time.Time) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports
WHERE citizen_id = $1 AND category = $2 AND status = ANY($3) AND created_at >= $4
ORDER BY created_at DESC LIMIT 1`
	var report models.Report
	if err := sqlx.GetContext(ctx, q, &report, query, citizenID, category, activeStatuses(), since); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find duplicate report: %w", err)
	}
	return &report, nil
}

func activeStatuses() pq.StringArray {
	statuses := make(pq.StringArray, len(models.ActiveStatuses))
	for i, status := range models.ActiveStatuses {
		statuses[i] = string(status)
	}
	return statuses
}

// List returns one page of reports matching filter plus the total match count.
func (r *ReportRepository) List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error) {
	where, args := buildReportWhere(filter)

	countQuery := "SELECT COUNT(*) FROM reports" + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	builder := strings.Builder{}
	builder.WriteString("SELECT ")
	builder.WriteString(reportColumns)
	builder.WriteString(" FROM reports")
	builder.WriteString(where)
	builder.WriteString(orderClause(filter.SortBy, filter.SortOrder))
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset())
		builder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)))
	}

	reports := make([]models.Report, 0)
	if err := r.db.SelectContext(ctx, &reports, builder.String(), args...); err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	return reports, total, nil
}

func buildReportWhere(filter models.ReportFilter) (string, []interface{}) {
	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 8)
	add := func(column string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.CitizenID != "" {
		add("citizen_id", filter.CitizenID)
	}
	if filter.AssignedStaffID != "" {
		add("assigned_staff_id", filter.AssignedStaffID)
	}
	if filter.MunicipalityID != "" {
		add("municipality_id", filter.MunicipalityID)
	}
	if filter.Category != "" {
		add("category", filter.Category)
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}
	if filter.Severity != "" {
		add("severity", filter.Severity)
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func orderClause(sortBy, sortOrder string) string {
	column, ok := reportSortColumns[sortBy]
	if !ok {
		column = reportSortColumns["created_at"]
	}
	direction := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		direction = "ASC"
	}
	order := fmt.Sprintf(" ORDER BY %s %s", column, direction)
	if column != "created_at" {
		order += ", created_at DESC"
	}
	return order
}

// UpdateContent persists citizen edits while the report is still pending.
func (r *ReportRepository) UpdateContent(ctx context.Context, report *models.Report) error {
	report.UpdatedAt = time.Now().UTC()
	const query = `UPDATE reports SET title = :title, description = :description, category = :category,
       severity = :severity, priority = :priority, latitude = :latitude, longitude = :longitude,
       address = :address, ward = :ward, photo_urls = :photo_urls, video_urls = :video_urls, updated_at = :updated_at
WHERE id = :id AND status = 'pending'`
	result, err := r.db.NamedExecContext(ctx, query, report)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	return expectOneRow(result, ErrStatusConflict)
}

// UpdateStatus writes the status and its side-effect columns if the stored status still equals expected.
func (r *ReportRepository) UpdateStatus(ctx context.Context, report *models.Report, expected models.ReportStatus) error {
	report.UpdatedAt = time.Now().UTC()
	const query = `UPDATE reports SET status = $1, assigned_at = $2, in_progress_at = $3, resolved_at = $4,
       points_awarded = $5, updated_at = $6
WHERE id = $7 AND status = $8`
	result, err := r.db.ExecContext(ctx, query,
		report.Status,
		report.AssignedAt,
		report.InProgressAt,
		report.ResolvedAt,
		report.PointsAwarded,
		report.UpdatedAt,
		report.ID,
		expected,
	)
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	return expectOneRow(result, ErrStatusConflict)
}

// Assign writes the assignment columns if the stored status still equals expected.
func (r *ReportRepository) Assign(ctx context.Context, report *models.Report, expected models.ReportStatus) error {
	report.UpdatedAt = time.Now().UTC()
	const query = `UPDATE reports SET assigned_staff_id = $1, status = $2, priority = $3, due_date = $4,
       assignment_notes = $5, assigned_at = $6, updated_at = $7
WHERE id = $8 AND status = $9`
	result, err := r.db.ExecContext(ctx, query,
		report.AssignedStaffID,
		report.Status,
		report.Priority,
		report.DueDate,
		report.AssignmentNotes,
		report.AssignedAt,
		report.UpdatedAt,
		report.ID,
		expected,
	)
	if err != nil {
		return fmt.Errorf("assign report: %w", err)
	}
	return expectOneRow(result, ErrStatusConflict)
}

// DeletePending hard-deletes a report owned by citizenID while it is pending.
func (r *ReportRepository) DeletePending(ctx context.Context, id, citizenID string) error {
	const query = `DELETE FROM reports WHERE id = $1 AND citizen_id = $2 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, citizenID)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return expectOneRow(result, ErrStatusConflict)
}

// CountByStatus groups reports by status, optionally restricted to one municipality.
func (r *ReportRepository) CountByStatus(ctx context.Context, municipalityID string) ([]models.ReportStatusCount, error) {
	query := "SELECT status, COUNT(*) AS count FROM reports"
	args := make([]interface{}, 0, 1)
	if municipalityID != "" {
		args = append(args, municipalityID)
		query += " WHERE municipality_id = $1"
	}
	query += " GROUP BY status"

	counts := make([]models.ReportStatusCount, 0, 4)
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count reports by status: %w", err)
	}
	return counts, nil
}

func expectOneRow(result sql.Result, conflict error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return conflict
	}
	return nil
}
