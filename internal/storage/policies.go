package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const policyColumns = "id, filename, file_type, uploaded_by, is_active, version, extracted_text, embedding_status, policy_type, upload_date"

func scanPolicy(row interface{ Scan(...any) error }) (Policy, error) {
	var p Policy
	var uploadDate string
	err := row.Scan(&p.ID, &p.Filename, &p.FileType, &p.UploadedBy, &p.IsActive,
		&p.Version, &p.ExtractedText, &p.EmbeddingStatus, &p.PolicyType, &uploadDate)
	if err == sql.ErrNoRows {
		return Policy{}, ErrNotFound
	}
	if err != nil {
		return Policy{}, err
	}
	if p.UploadDate, err = time.Parse(time.RFC3339, uploadDate); err != nil {
		return Policy{}, fmt.Errorf("parsing upload_date: %w", err)
	}
	return p, nil
}

// CreatePolicy inserts a policy document. The version is one higher than any
// existing policy with the same filename.
func (s *Store) CreatePolicy(p Policy) (Policy, error) {
	var maxVersion sql.NullInt64
	if err := s.db.QueryRow(
		"SELECT MAX(version) FROM company_policies WHERE filename = ?", p.Filename,
	).Scan(&maxVersion); err != nil {
		return Policy{}, err
	}
	p.Version = int(maxVersion.Int64) + 1
	p.UploadDate = time.Now().UTC()
	if p.EmbeddingStatus == "" {
		p.EmbeddingStatus = EmbeddingPending
	}
	if p.PolicyType == "" {
		p.PolicyType = "LEAVE"
	}

	res, err := s.db.Exec(`
		INSERT INTO company_policies (filename, file_type, uploaded_by, is_active, version, extracted_text, embedding_status, policy_type, upload_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Filename, p.FileType, p.UploadedBy, p.IsActive, p.Version,
		p.ExtractedText, p.EmbeddingStatus, p.PolicyType, p.UploadDate.Format(time.RFC3339),
	)
	if err != nil {
		return Policy{}, err
	}
	p.ID, err = res.LastInsertId()
	return p, err
}

func (s *Store) GetPolicy(id int64) (Policy, error) {
	return scanPolicy(s.db.QueryRow("SELECT "+policyColumns+" FROM company_policies WHERE id = ?", id))
}

// ListPolicies returns all policies, newest first.
func (s *Store) ListPolicies() ([]Policy, error) {
	rows, err := s.db.Query("SELECT " + policyColumns + " FROM company_policies ORDER BY upload_date DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// UpdatePolicyEmbeddingStatus flips the embedding pipeline state of a policy.
func (s *Store) UpdatePolicyEmbeddingStatus(id int64, status EmbeddingStatus) error {
	return s.execAffectingOne("UPDATE company_policies SET embedding_status = ? WHERE id = ?", status, id)
}

// SetPolicyActive toggles whether a policy participates in compliance checks.
func (s *Store) SetPolicyActive(id int64, active bool) error {
	return s.execAffectingOne("UPDATE company_policies SET is_active = ? WHERE id = ?", active, id)
}

// DeletePolicy removes a policy and its chunks.
func (s *Store) DeletePolicy(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM policy_chunks WHERE policy_id = ?", id); err != nil {
		return fmt.Errorf("deleting policy chunks: %w", err)
	}
	res, err := tx.Exec("DELETE FROM company_policies WHERE id = ?", id)
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
	return tx.Commit()
}

// CountPolicyChunks returns how many embedded chunks a policy has.
func (s *Store) CountPolicyChunks(policyID int64) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM policy_chunks WHERE policy_id = ?", policyID).Scan(&count)
	return count, err
}
