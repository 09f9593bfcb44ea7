package storage

import (
	"database/sql"
	"strings"
)

const balanceColumns = "id, employee_id, year, leave_type, total_allocated, used, available"

func scanBalance(row interface{ Scan(...any) error }) (LeaveBalance, error) {
	var b LeaveBalance
	err := row.Scan(&b.ID, &b.EmployeeID, &b.Year, &b.LeaveType, &b.TotalAllocated, &b.Used, &b.Available)
	if err == sql.ErrNoRows {
		return LeaveBalance{}, ErrNotFound
	}
	return b, err
}

// UpsertBalance creates or replaces the balance row for
// (employee, year, leave_type).
func (s *Store) UpsertBalance(b LeaveBalance) (LeaveBalance, error) {
	res, err := s.db.Exec(`
		INSERT INTO leave_balances (employee_id, year, leave_type, total_allocated, used, available)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, year, leave_type) DO UPDATE SET
			total_allocated = excluded.total_allocated,
			used = excluded.used,
			available = excluded.available`,
		b.EmployeeID, b.Year, b.LeaveType, b.TotalAllocated, b.Used, b.Available,
	)
	if err != nil {
		return LeaveBalance{}, err
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		b.ID = id
	}
	return b, nil
}

func (s *Store) GetBalance(id int64) (LeaveBalance, error) {
	return scanBalance(s.db.QueryRow("SELECT "+balanceColumns+" FROM leave_balances WHERE id = ?", id))
}

// GetEmployeeBalance returns the balance row for one employee, year, and type.
func (s *Store) GetEmployeeBalance(employeeID int64, year int, leaveType LeaveType) (LeaveBalance, error) {
	return scanBalance(s.db.QueryRow(
		"SELECT "+balanceColumns+" FROM leave_balances WHERE employee_id = ? AND year = ? AND leave_type = ?",
		employeeID, year, leaveType))
}

// ListBalances returns the balance rows for the given employees and year.
// With no employee filter, all balances for the year are returned.
func (s *Store) ListBalances(year int, employeeIDs []int64) ([]LeaveBalance, error) {
	query := "SELECT " + balanceColumns + " FROM leave_balances WHERE year = ?"
	args := []any{year}
	if len(employeeIDs) > 0 {
		query += " AND employee_id IN (?" + strings.Repeat(",?", len(employeeIDs)-1) + ")"
		for _, id := range employeeIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY employee_id, leave_type"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []LeaveBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// UpdateBalance overwrites the allocation counters of an existing balance row.
func (s *Store) UpdateBalance(id int64, totalAllocated, used, available int) error {
	return s.execAffectingOne(
		"UPDATE leave_balances SET total_allocated = ?, used = ?, available = ? WHERE id = ?",
		totalAllocated, used, available, id)
}

// ConsumeBalance deducts days from the available pool after an approval.
// No-op (nil) when the balance row does not exist, matching the original
// behavior of approving employees without configured balances.
func (s *Store) ConsumeBalance(employeeID int64, year int, leaveType LeaveType, days int) error {
	_, err := s.db.Exec(`
		UPDATE leave_balances SET used = used + ?, available = available - ?
		WHERE employee_id = ? AND year = ? AND leave_type = ?`,
		days, days, employeeID, year, leaveType)
	return err
}

func (s *Store) DeleteBalance(id int64) error {
	return s.execAffectingOne("DELETE FROM leave_balances WHERE id = ?", id)
}
