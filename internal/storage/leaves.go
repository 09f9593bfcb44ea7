package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const leaveColumns = "id, employee_id, leave_type, start_date, end_date, reason, responsible_person_id, status, manager_id, manager_comments, decision_date, created_at, updated_at"

func scanLeave(row interface{ Scan(...any) error }) (Leave, error) {
	var l Leave
	var startDate, endDate, createdAt, updatedAt string
	var responsibleID, managerID sql.NullInt64
	var decisionDate sql.NullString
	err := row.Scan(&l.ID, &l.EmployeeID, &l.LeaveType, &startDate, &endDate, &l.Reason,
		&responsibleID, &l.Status, &managerID, &l.ManagerComments, &decisionDate, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Leave{}, ErrNotFound
	}
	if err != nil {
		return Leave{}, err
	}
	if l.StartDate, err = ParseDate(startDate); err != nil {
		return Leave{}, fmt.Errorf("parsing start_date: %w", err)
	}
	if l.EndDate, err = ParseDate(endDate); err != nil {
		return Leave{}, fmt.Errorf("parsing end_date: %w", err)
	}
	if responsibleID.Valid {
		l.ResponsiblePersonID = &responsibleID.Int64
	}
	if managerID.Valid {
		l.ManagerID = &managerID.Int64
	}
	if decisionDate.Valid {
		t, err := time.Parse(time.RFC3339, decisionDate.String)
		if err != nil {
			return Leave{}, fmt.Errorf("parsing decision_date: %w", err)
		}
		l.DecisionDate = &t
	}
	if l.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Leave{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if l.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Leave{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return l, nil
}

// CreateLeave inserts a leave request in PENDING status and returns it with
// the assigned ID and timestamps.
func (s *Store) CreateLeave(l Leave) (Leave, error) {
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	if l.Status == "" {
		l.Status = StatusPending
	}
	res, err := s.db.Exec(`
		INSERT INTO leaves (employee_id, leave_type, start_date, end_date, reason, responsible_person_id, status, manager_id, manager_comments, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.EmployeeID, l.LeaveType, l.StartDate.String(), l.EndDate.String(), l.Reason,
		l.ResponsiblePersonID, l.Status, l.ManagerID, l.ManagerComments,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return Leave{}, err
	}
	l.ID, err = res.LastInsertId()
	return l, err
}

func (s *Store) GetLeave(id int64) (Leave, error) {
	return scanLeave(s.db.QueryRow("SELECT "+leaveColumns+" FROM leaves WHERE id = ?", id))
}

// LeaveFilter narrows ListLeaves results. Zero-value fields are ignored.
type LeaveFilter struct {
	EmployeeIDs []int64
	Status      LeaveStatus
	LeaveType   LeaveType
	// OverlapsStart/OverlapsEnd select leaves whose [start,end] range
	// intersects the given window (both must be set).
	OverlapsStart Date
	OverlapsEnd   Date
	// StartFrom selects leaves starting on or after the given day.
	StartFrom Date
}

// ListLeaves returns leaves matching the filter, most recent first.
func (s *Store) ListLeaves(f LeaveFilter) ([]Leave, error) {
	query := "SELECT " + leaveColumns + " FROM leaves WHERE 1=1"
	var args []any

	if len(f.EmployeeIDs) > 0 {
		placeholders := strings.Repeat(",?", len(f.EmployeeIDs)-1)
		query += " AND employee_id IN (?" + placeholders + ")"
		for _, id := range f.EmployeeIDs {
			args = append(args, id)
		}
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.LeaveType != "" {
		query += " AND leave_type = ?"
		args = append(args, f.LeaveType)
	}
	if !f.OverlapsStart.IsZero() && !f.OverlapsEnd.IsZero() {
		query += " AND start_date <= ? AND end_date >= ?"
		args = append(args, f.OverlapsEnd.String(), f.OverlapsStart.String())
	}
	if !f.StartFrom.IsZero() {
		query += " AND start_date >= ?"
		args = append(args, f.StartFrom.String())
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leaves []Leave
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, l)
	}
	return leaves, rows.Err()
}

// LatestPendingLeave returns the most recent pending leave for an employee.
func (s *Store) LatestPendingLeave(employeeID int64) (Leave, error) {
	return scanLeave(s.db.QueryRow(
		"SELECT "+leaveColumns+" FROM leaves WHERE employee_id = ? AND status = ? ORDER BY created_at DESC LIMIT 1",
		employeeID, StatusPending))
}

// CountApprovedOverlapping returns how many approved leaves of the employee
// intersect the [start, end] window.
func (s *Store) CountApprovedOverlapping(employeeID int64, start, end Date) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM leaves
		WHERE employee_id = ? AND status = ? AND start_date <= ? AND end_date >= ?`,
		employeeID, StatusApproved, end.String(), start.String(),
	).Scan(&count)
	return count, err
}

// DecideLeave sets the status, manager comments, and decision timestamp of a
// pending leave. It does not touch balances; the caller handles that.
func (s *Store) DecideLeave(id int64, status LeaveStatus, managerID int64, comments string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return s.execAffectingOne(`
		UPDATE leaves SET status = ?, manager_id = ?, manager_comments = ?, decision_date = ?, updated_at = ?
		WHERE id = ?`,
		status, managerID, comments, now, now, id)
}

// MonthCount is one month's leave count for analytics.
type MonthCount struct {
	Month int `json:"month"`
	Count int `json:"count"`
}

// MonthlyLeaveDistribution returns leave counts grouped by start month for
// the given year.
func (s *Store) MonthlyLeaveDistribution(year int) ([]MonthCount, error) {
	rows, err := s.db.Query(`
		SELECT CAST(strftime('%m', start_date) AS INTEGER) AS month, COUNT(*)
		FROM leaves WHERE strftime('%Y', start_date) = ?
		GROUP BY month ORDER BY month`, fmt.Sprintf("%04d", year))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MonthCount
	for rows.Next() {
		var mc MonthCount
		if err := rows.Scan(&mc.Month, &mc.Count); err != nil {
			return nil, err
		}
		result = append(result, mc)
	}
	return result, rows.Err()
}

// DepartmentCount is one department's leave count for analytics.
type DepartmentCount struct {
	Department string `json:"department"`
	LeaveCount int    `json:"leave_count"`
}

// DepartmentLeaveStats returns leave counts grouped by employee department
// for the given year.
func (s *Store) DepartmentLeaveStats(year int) ([]DepartmentCount, error) {
	rows, err := s.db.Query(`
		SELECT u.department, COUNT(l.id)
		FROM leaves l JOIN users u ON u.id = l.employee_id
		WHERE strftime('%Y', l.start_date) = ?
		GROUP BY u.department ORDER BY u.department`, fmt.Sprintf("%04d", year))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DepartmentCount
	for rows.Next() {
		var dc DepartmentCount
		if err := rows.Scan(&dc.Department, &dc.LeaveCount); err != nil {
			return nil, err
		}
		result = append(result, dc)
	}
	return result, rows.Err()
}
