package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wellpulse/server/internal/log"
	"github.com/wellpulse/server/internal/services"
)

// SQLiteStore persists the domain on SQLite. The group/account
// relation is stored once, in group_members, whose UNIQUE(account_id)
// constraint backs the one-group-per-account invariant; an account's
// group reference is derived by join. Dual-sided mutations run in a
// single transaction.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite file, applies pragmas and tuning,
// and brings the schema up to date.
func Open(dbURL string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite3", dbURL)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", pragma, err)
		}
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := Migrate(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: sqlDB}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

const accountColumns = `a.id, a.username, a.email, a.password_hash, a.profile_picture, a.role,
	COALESCE(m.group_id, ''), a.survey_handle, a.submission_count, a.created_at, a.updated_at`

const accountFrom = ` FROM accounts a LEFT JOIN group_members m ON m.account_id = a.id `

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*services.Account, error) {
	var a services.Account
	var role string
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.ProfilePicture, &role,
		&a.GroupID, &a.SurveyHandle, &a.SubmissionCount, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Role = services.Role(role)
	return &a, nil
}

func (s *SQLiteStore) GetAccount(id string) (*services.Account, error) {
	return scanAccount(s.db.QueryRow("SELECT "+accountColumns+accountFrom+"WHERE a.id = ?", id))
}

func (s *SQLiteStore) FindAccountByEmail(email string) (*services.Account, error) {
	return scanAccount(s.db.QueryRow("SELECT "+accountColumns+accountFrom+"WHERE a.email = ?", email))
}

func (s *SQLiteStore) FindAccountByUsername(username string) (*services.Account, error) {
	return scanAccount(s.db.QueryRow("SELECT "+accountColumns+accountFrom+"WHERE a.username = ?", username))
}

func (s *SQLiteStore) AddAccount(a *services.Account) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, username, email, password_hash, profile_picture, role,
			survey_handle, submission_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Username, a.Email, a.PasswordHash, a.ProfilePicture, string(a.Role),
		a.SurveyHandle, a.SubmissionCount, a.CreatedAt, a.UpdatedAt)
	return err
}

// UpdateAccount writes the account's own columns. The group reference
// is not a column here; it lives in group_members and moves through
// AddGroupMember/RemoveGroupMember.
func (s *SQLiteStore) UpdateAccount(a *services.Account) error {
	res, err := s.db.Exec(`
		UPDATE accounts SET username = ?, email = ?, password_hash = ?, profile_picture = ?,
			role = ?, updated_at = ?
		WHERE id = ?`,
		a.Username, a.Email, a.PasswordHash, a.ProfilePicture, string(a.Role), a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("user not found")
	}
	return nil
}

func (s *SQLiteStore) DeleteAccount(id string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ListAccounts(offset, limit int, asc bool) ([]*services.Account, error) {
	order := "DESC"
	if asc {
		order = "ASC"
	}
	rows, err := s.db.Query("SELECT "+accountColumns+accountFrom+
		"ORDER BY a.created_at "+order+" LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*services.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountAccounts() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM accounts").Scan(&n)
	return n, err
}

func (s *SQLiteStore) CountAccountsSince(t time.Time) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM accounts WHERE created_at >= ?", t).Scan(&n)
	return n, err
}

func (s *SQLiteStore) NextSurveyHandle() (int, error) {
	var n int
	err := s.db.QueryRow(`
		INSERT INTO counters (name, count) VALUES ('survey_handle', 1)
		ON CONFLICT(name) DO UPDATE SET count = count + 1
		RETURNING count`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) IncrementSubmissionCount(accountID string) error {
	res, err := s.db.Exec("UPDATE accounts SET submission_count = submission_count + 1 WHERE id = ?", accountID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("user not found")
	}
	return nil
}

func (s *SQLiteStore) scanGroup(row rowScanner) (*services.Group, error) {
	var g services.Group
	var invite sql.NullString
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedBy, &invite, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g.InviteCode = invite.String
	if err := s.loadGroupLists(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *SQLiteStore) loadGroupLists(g *services.Group) error {
	var err error
	if g.AdminIDs, err = s.listIDs("SELECT account_id FROM group_admins WHERE group_id = ? ORDER BY account_id", g.ID); err != nil {
		return err
	}
	g.MemberIDs, err = s.listIDs("SELECT account_id FROM group_members WHERE group_id = ? ORDER BY account_id", g.ID)
	return err
}

func (s *SQLiteStore) listIDs(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const groupColumns = "id, name, description, created_by, invite_code, created_at, updated_at"

func (s *SQLiteStore) GetGroup(id string) (*services.Group, error) {
	return s.scanGroup(s.db.QueryRow("SELECT "+groupColumns+" FROM groups WHERE id = ?", id))
}

func (s *SQLiteStore) FindGroupByName(name string) (*services.Group, error) {
	return s.scanGroup(s.db.QueryRow("SELECT "+groupColumns+" FROM groups WHERE name = ?", name))
}

func (s *SQLiteStore) FindGroupByInviteCode(code string) (*services.Group, error) {
	return s.scanGroup(s.db.QueryRow("SELECT "+groupColumns+" FROM groups WHERE invite_code = ?", code))
}

func inviteNull(code string) sql.NullString {
	if code == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: code, Valid: true}
}

func (s *SQLiteStore) AddGroup(g *services.Group) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO groups (id, name, description, created_by, invite_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Description, g.CreatedBy, inviteNull(g.InviteCode), g.CreatedAt, g.UpdatedAt); err != nil {
		return err
	}
	for _, id := range g.AdminIDs {
		if _, err := tx.Exec("INSERT INTO group_admins (group_id, account_id) VALUES (?, ?)", g.ID, id); err != nil {
			return err
		}
	}
	for _, id := range g.MemberIDs {
		if _, err := tx.Exec("INSERT INTO group_members (group_id, account_id) VALUES (?, ?)", g.ID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdateGroup rewrites the group row and its admin set. Members are
// not touched here; membership moves through AddGroupMember and
// RemoveGroupMember only.
func (s *SQLiteStore) UpdateGroup(g *services.Group) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE groups SET name = ?, description = ?, invite_code = ?, updated_at = ?
		WHERE id = ?`,
		g.Name, g.Description, inviteNull(g.InviteCode), g.UpdatedAt, g.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("group not found")
	}
	if _, err := tx.Exec("DELETE FROM group_admins WHERE group_id = ?", g.ID); err != nil {
		return err
	}
	for _, id := range g.AdminIDs {
		if _, err := tx.Exec("INSERT INTO group_admins (group_id, account_id) VALUES (?, ?)", g.ID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteGroup removes the group; membership and admin rows cascade, so
// no account is left referencing a missing group.
func (s *SQLiteStore) DeleteGroup(id string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM groups WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) listGroups(query string, args ...any) ([]*services.Group, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*services.Group{}
	for rows.Next() {
		var g services.Group
		var invite sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedBy, &invite, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		g.InviteCode = invite.String
		out = append(out, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, g := range out {
		if err := s.loadGroupLists(g); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) ListGroups() ([]*services.Group, error) {
	return s.listGroups("SELECT " + groupColumns + " FROM groups ORDER BY id")
}

func (s *SQLiteStore) ListGroupsByAdmin(accountID string) ([]*services.Group, error) {
	return s.listGroups(`
		SELECT DISTINCT g.id, g.name, g.description, g.created_by, g.invite_code, g.created_at, g.updated_at
		FROM groups g
		LEFT JOIN group_admins ga ON ga.group_id = g.id
		WHERE ga.account_id = ? OR g.created_by = ?
		ORDER BY g.id`, accountID, accountID)
}

func (s *SQLiteStore) ListGroupMembers(groupID string) ([]*services.Account, error) {
	rows, err := s.db.Query("SELECT "+accountColumns+accountFrom+"WHERE m.group_id = ? ORDER BY a.created_at", groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*services.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AddGroupMember inserts the single relation row. UNIQUE(account_id)
// rejects a concurrent add to a second group at the storage level.
func (s *SQLiteStore) AddGroupMember(groupID, accountID string) error {
	_, err := s.db.Exec("INSERT INTO group_members (group_id, account_id) VALUES (?, ?)", groupID, accountID)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return services.NewConflictError("user already in a group")
	}
	return err
}

func (s *SQLiteStore) RemoveGroupMember(groupID, accountID string) error {
	_, err := s.db.Exec("DELETE FROM group_members WHERE group_id = ? AND account_id = ?", groupID, accountID)
	return err
}

const responseColumns = `id, gender, age_group, profession, education, country, state, city,
	consent, answers, account_id, survey_handle, identifier, submitted_at`

func (s *SQLiteStore) AddResponse(r *services.SurveyResponse) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO responses (`+responseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Gender, r.AgeGroup, r.Profession, r.Education, r.Country, r.State, r.City,
		r.Consent, string(answers), r.AccountID, r.SurveyHandle, r.Identifier, r.SubmittedAt)
	return err
}

func (s *SQLiteStore) listResponses(query string, args ...any) ([]*services.SurveyResponse, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*services.SurveyResponse{}
	for rows.Next() {
		var r services.SurveyResponse
		var answers string
		if err := rows.Scan(&r.ID, &r.Gender, &r.AgeGroup, &r.Profession, &r.Education,
			&r.Country, &r.State, &r.City, &r.Consent, &answers,
			&r.AccountID, &r.SurveyHandle, &r.Identifier, &r.SubmittedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListResponses() ([]*services.SurveyResponse, error) {
	return s.listResponses("SELECT " + responseColumns + " FROM responses ORDER BY submitted_at")
}

func (s *SQLiteStore) ListResponsesByAccount(accountID string) ([]*services.SurveyResponse, error) {
	return s.listResponses("SELECT "+responseColumns+" FROM responses WHERE account_id = ? ORDER BY submitted_at", accountID)
}

func (s *SQLiteStore) ListResponsesByAccounts(accountIDs []string) ([]*services.SurveyResponse, error) {
	if len(accountIDs) == 0 {
		return []*services.SurveyResponse{}, nil
	}
	placeholders := strings.Repeat("?,", len(accountIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(accountIDs))
	for i, id := range accountIDs {
		args[i] = id
	}
	return s.listResponses("SELECT "+responseColumns+" FROM responses WHERE account_id IN ("+placeholders+") ORDER BY submitted_at", args...)
}

func (s *SQLiteStore) CountResponses() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM responses").Scan(&n)
	return n, err
}

func (s *SQLiteStore) CountResponsesSince(t time.Time) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM responses WHERE submitted_at >= ?", t).Scan(&n)
	return n, err
}

func (s *SQLiteStore) AddAudit(e services.AuditEntry) {
	_, err := s.db.Exec("INSERT INTO audit_log (time, actor, action, target, note) VALUES (?, ?, ?, ?, ?)",
		e.Time, e.Actor, e.Action, e.Target, e.Note)
	if err != nil {
		log.Errorf("sqlite store: add audit: %v", err)
	}
}

func (s *SQLiteStore) ListAudit() []services.AuditEntry {
	rows, err := s.db.Query("SELECT time, actor, action, target, note FROM audit_log ORDER BY time")
	if err != nil {
		log.Errorf("sqlite store: list audit: %v", err)
		return nil
	}
	defer rows.Close()
	out := []services.AuditEntry{}
	for rows.Next() {
		var e services.AuditEntry
		if err := rows.Scan(&e.Time, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			log.Errorf("sqlite store: list audit: %v", err)
			return out
		}
		out = append(out, e)
	}
	return out
}
