package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type UserRole string

const (
	RoleEmployee UserRole = "EMPLOYEE"
	RoleManager  UserRole = "MANAGER"
	RoleHR       UserRole = "HR"
)

// IsManager reports whether the role can approve leaves and see team data.
func (r UserRole) IsManager() bool { return r == RoleManager || r == RoleHR }

type LeaveType string

const (
	LeaveCasual    LeaveType = "CASUAL"
	LeaveSick      LeaveType = "SICK"
	LeaveAnnual    LeaveType = "ANNUAL"
	LeaveMaternity LeaveType = "MATERNITY"
	LeavePaternity LeaveType = "PATERNITY"
	LeaveUnpaid    LeaveType = "UNPAID"
)

// LeaveTypes lists all valid leave types in catalog order.
var LeaveTypes = []LeaveType{LeaveCasual, LeaveSick, LeaveAnnual, LeaveMaternity, LeavePaternity, LeaveUnpaid}

// ParseLeaveType returns the LeaveType matching s, or an error.
func ParseLeaveType(s string) (LeaveType, error) {
	for _, t := range LeaveTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown leave type %q", s)
}

type LeaveStatus string

const (
	StatusPending   LeaveStatus = "PENDING"
	StatusApproved  LeaveStatus = "APPROVED"
	StatusRejected  LeaveStatus = "REJECTED"
	StatusCancelled LeaveStatus = "CANCELLED"
)

// Date is a calendar day without a time component, serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate builds a Date from year, month, day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current UTC calendar day.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string { return d.Format(dateLayout) }

// AddDays returns the date n days later (n may be negative).
func (d Date) AddDays(n int) Date { return Date{d.Time.AddDate(0, 0, n)} }

// DaysUntil returns the number of whole days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

// InclusiveDays returns the day count of the range [d, end], both endpoints
// counted. A same-day range is 1.
func (d Date) InclusiveDays(end Date) int {
	return d.DaysUntil(end) + 1
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type User struct {
	ID             int64    `json:"id"`
	Email          string   `json:"email"`
	Username       string   `json:"username"`
	FullName       string   `json:"full_name"`
	HashedPassword string   `json:"-"`
	Role           UserRole `json:"role"`
	Department     string   `json:"department"`
	Position       string   `json:"position"`
	ManagerID      *int64   `json:"manager_id"`
	IsActive       bool     `json:"is_active"`
}

type Leave struct {
	ID                  int64       `json:"id"`
	EmployeeID          int64       `json:"employee_id"`
	LeaveType           LeaveType   `json:"leave_type"`
	StartDate           Date        `json:"start_date"`
	EndDate             Date        `json:"end_date"`
	Reason              string      `json:"reason,omitempty"`
	ResponsiblePersonID *int64      `json:"responsible_person_id"`
	Status              LeaveStatus `json:"status"`
	ManagerID           *int64      `json:"manager_id"`
	ManagerComments     string      `json:"manager_comments,omitempty"`
	DecisionDate        *time.Time  `json:"decision_date,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// Duration returns the inclusive day count of the leave.
func (l Leave) Duration() int { return l.StartDate.InclusiveDays(l.EndDate) }

type LeaveBalance struct {
	ID             int64     `json:"id"`
	EmployeeID     int64     `json:"employee_id"`
	Year           int       `json:"year"`
	LeaveType      LeaveType `json:"leave_type"`
	TotalAllocated int       `json:"total_allocated"`
	Used           int       `json:"used"`
	Available      int       `json:"available"`
}

type EmbeddingStatus string

const (
	EmbeddingPending    EmbeddingStatus = "PENDING"
	EmbeddingProcessing EmbeddingStatus = "PROCESSING"
	EmbeddingCompleted  EmbeddingStatus = "COMPLETED"
	EmbeddingFailed     EmbeddingStatus = "FAILED"
)

type Policy struct {
	ID              int64           `json:"id"`
	Filename        string          `json:"filename"`
	FileType        string          `json:"file_type"`
	UploadedBy      int64           `json:"uploaded_by"`
	IsActive        bool            `json:"is_active"`
	Version         int             `json:"version"`
	ExtractedText   string          `json:"-"`
	EmbeddingStatus EmbeddingStatus `json:"embedding_status"`
	PolicyType      string          `json:"policy_type"`
	UploadDate      time.Time       `json:"upload_date"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
