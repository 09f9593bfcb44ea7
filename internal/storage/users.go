package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

const userColumns = "id, email, username, full_name, hashed_password, role, department, position, manager_id, is_active"

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	var managerID sql.NullInt64
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.HashedPassword,
		&u.Role, &u.Department, &u.Position, &managerID, &u.IsActive)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if managerID.Valid {
		u.ManagerID = &managerID.Int64
	}
	return u, nil
}

// CreateUser inserts a user and returns it with the assigned ID.
func (s *Store) CreateUser(u User) (User, error) {
	res, err := s.db.Exec(`
		INSERT INTO users (email, username, full_name, hashed_password, role, department, position, manager_id, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Email, u.Username, u.FullName, u.HashedPassword, u.Role, u.Department, u.Position, u.ManagerID, u.IsActive,
	)
	if err != nil {
		return User{}, err
	}
	u.ID, err = res.LastInsertId()
	return u, err
}

func (s *Store) GetUser(id int64) (User, error) {
	return scanUser(s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

func (s *Store) GetUserByUsername(username string) (User, error) {
	return scanUser(s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE username = ?", username))
}

func (s *Store) GetUserByEmail(email string) (User, error) {
	return scanUser(s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

// FindUserByName returns the first user whose full name contains name
// (case-insensitive). Used to resolve "approve John's leave" style requests.
func (s *Store) FindUserByName(name string) (User, error) {
	pattern := "%" + strings.ToLower(name) + "%"
	return scanUser(s.db.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE LOWER(full_name) LIKE ? ORDER BY id LIMIT 1", pattern))
}

func (s *Store) queryUsers(query string, args ...any) ([]User, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListUsers returns all users ordered by ID.
func (s *Store) ListUsers() ([]User, error) {
	return s.queryUsers("SELECT " + userColumns + " FROM users ORDER BY id ASC")
}

// ListUsersByRole returns all users with the given role.
func (s *Store) ListUsersByRole(role UserRole) ([]User, error) {
	return s.queryUsers("SELECT "+userColumns+" FROM users WHERE role = ? ORDER BY id ASC", role)
}

// ListTeam returns all users reporting to the given manager.
func (s *Store) ListTeam(managerID int64) ([]User, error) {
	return s.queryUsers("SELECT "+userColumns+" FROM users WHERE manager_id = ? ORDER BY id ASC", managerID)
}

// ListColleagues returns users in the same department as the given user,
// excluding the user. Same-position colleagues sort first.
func (s *Store) ListColleagues(u User) ([]User, error) {
	return s.queryUsers(`
		SELECT `+userColumns+` FROM users
		WHERE department = ? AND id != ? AND is_active = 1
		ORDER BY (position = ?) DESC, id ASC`,
		u.Department, u.ID, u.Position)
}

// UpdateUserRole changes a user's role.
func (s *Store) UpdateUserRole(id int64, role UserRole) error {
	return s.execAffectingOne("UPDATE users SET role = ? WHERE id = ?", role, id)
}

// UpdateUserManager assigns a new manager (nil clears it).
func (s *Store) UpdateUserManager(id int64, managerID *int64) error {
	return s.execAffectingOne("UPDATE users SET manager_id = ? WHERE id = ?", managerID, id)
}

// SetUserActive toggles the is_active flag.
func (s *Store) SetUserActive(id int64, active bool) error {
	return s.execAffectingOne("UPDATE users SET is_active = ? WHERE id = ?", active, id)
}

func (s *Store) execAffectingOne(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DefaultHRManagerID returns the ID of the first HR user, used as the default
// manager for new registrations. Returns nil when no HR user exists.
func (s *Store) DefaultHRManagerID() (*int64, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM users WHERE role = ? ORDER BY id LIMIT 1", RoleHR).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding default HR manager: %w", err)
	}
	return &id, nil
}
