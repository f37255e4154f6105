// Package sqlitestore implements internal/store.Store on an embedded,
// pure-Go SQLite engine (modernc.org/sqlite). Schema and query shapes are
// grounded on infrastructure/store/sqlite.rs, extended with an
// invitation_codes table the original left as an unwired trait default.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentmesh/core/internal/store"
	"github.com/agentmesh/core/pkg/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS departments (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	parent_id TEXT,
	leader_id TEXT
);

CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	department_id TEXT,
	role_title TEXT NOT NULL,
	role_responsibilities TEXT,
	role_expertise TEXT,
	role_system_prompt TEXT NOT NULL,
	llm_model TEXT NOT NULL,
	llm_credential TEXT NOT NULL,
	llm_base_url TEXT NOT NULL,
	FOREIGN KEY (department_id) REFERENCES departments(id)
);

CREATE TABLE IF NOT EXISTS groups (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	creator_id TEXT NOT NULL,
	members TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	from_agent TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id TEXT,
	content TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	reply_to TEXT,
	mentions TEXT
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL,
	email TEXT,
	password_hash TEXT NOT NULL,
	is_director BOOLEAN NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS invitation_codes (
	code TEXT PRIMARY KEY,
	created_by TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	redeemed_by TEXT,
	redeemed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_agent);
CREATE INDEX IF NOT EXISTS idx_messages_target ON messages(target_type, target_id);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
CREATE INDEX IF NOT EXISTS idx_departments_parent ON departments(parent_id);
CREATE INDEX IF NOT EXISTS idx_agents_department ON agents(department_id);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
CREATE INDEX IF NOT EXISTS idx_invitation_codes_creator ON invitation_codes(created_by);
`

// Store is a SQLite-backed store.Store. A single *sql.DB is shared across
// goroutines; modernc.org/sqlite serializes writers internally the same way
// the original wraps its connection in a mutex.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and applies
// the schema. Pass ":memory:" for an ephemeral database, matching
// SqliteStore::new_in_memory.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	// A single writer connection avoids "database is locked" errors from
	// SQLite's file-level locking, mirroring the original's Mutex<Connection>.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenInMemory opens an in-memory database, for tests.
func OpenInMemory() (*Store, error) {
	return Open(":memory:")
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlitestore: init schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("sqlitestore: enable foreign keys: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for migrations or diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) SaveOrganization(ctx context.Context, org domain.Organization) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM agents"); err != nil {
		return fmt.Errorf("sqlitestore: clear agents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM departments"); err != nil {
		return fmt.Errorf("sqlitestore: clear departments: %w", err)
	}

	for _, dept := range org.Departments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO departments (id, name, parent_id, leader_id) VALUES (?, ?, ?, ?)`,
			dept.ID, dept.Name, nullableString(dept.ParentID), nullableString(dept.LeaderID),
		); err != nil {
			return fmt.Errorf("sqlitestore: insert department %q: %w", dept.ID, err)
		}
	}

	for _, agent := range org.Agents {
		resp, err := json.Marshal(agent.Role.Responsibilities)
		if err != nil {
			return fmt.Errorf("sqlitestore: marshal responsibilities: %w", err)
		}
		exp, err := json.Marshal(agent.Role.Expertise)
		if err != nil {
			return fmt.Errorf("sqlitestore: marshal expertise: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO agents (
				id, name, department_id,
				role_title, role_responsibilities, role_expertise, role_system_prompt,
				llm_model, llm_credential, llm_base_url
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			agent.ID, agent.Name, nullableString(agent.DepartmentID),
			agent.Role.Title, string(resp), string(exp), agent.Role.SystemPrompt,
			agent.LLM.Model, agent.LLM.Credential, agent.LLM.BaseURL,
		); err != nil {
			return fmt.Errorf("sqlitestore: insert agent %q: %w", agent.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit: %w", err)
	}
	return nil
}

func (s *Store) LoadOrganization(ctx context.Context) (domain.Organization, error) {
	var org domain.Organization

	deptRows, err := s.db.QueryContext(ctx, `SELECT id, name, parent_id, leader_id FROM departments`)
	if err != nil {
		return org, fmt.Errorf("sqlitestore: query departments: %w", err)
	}
	for deptRows.Next() {
		var d domain.Department
		var parentID, leaderID sql.NullString
		if err := deptRows.Scan(&d.ID, &d.Name, &parentID, &leaderID); err != nil {
			deptRows.Close()
			return org, fmt.Errorf("sqlitestore: scan department: %w", err)
		}
		d.ParentID = parentID.String
		d.LeaderID = leaderID.String
		org.Departments = append(org.Departments, d)
	}
	if err := deptRows.Err(); err != nil {
		deptRows.Close()
		return org, fmt.Errorf("sqlitestore: iterate departments: %w", err)
	}
	deptRows.Close()

	agentRows, err := s.db.QueryContext(ctx, `
		SELECT id, name, department_id,
			role_title, role_responsibilities, role_expertise, role_system_prompt,
			llm_model, llm_credential, llm_base_url
		FROM agents`)
	if err != nil {
		return org, fmt.Errorf("sqlitestore: query agents: %w", err)
	}
	defer agentRows.Close()
	for agentRows.Next() {
		var a domain.Agent
		var deptID sql.NullString
		var resp, exp string
		if err := agentRows.Scan(
			&a.ID, &a.Name, &deptID,
			&a.Role.Title, &resp, &exp, &a.Role.SystemPrompt,
			&a.LLM.Model, &a.LLM.Credential, &a.LLM.BaseURL,
		); err != nil {
			return org, fmt.Errorf("sqlitestore: scan agent: %w", err)
		}
		a.DepartmentID = deptID.String
		_ = json.Unmarshal([]byte(resp), &a.Role.Responsibilities)
		_ = json.Unmarshal([]byte(exp), &a.Role.Expertise)
		org.Agents = append(org.Agents, a)
	}
	if err := agentRows.Err(); err != nil {
		return org, fmt.Errorf("sqlitestore: iterate agents: %w", err)
	}

	return org, nil
}

func (s *Store) SaveGroup(ctx context.Context, group domain.Group) error {
	members, err := json.Marshal(group.Members)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal members: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO groups (id, name, creator_id, members, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, creator_id=excluded.creator_id,
			members=excluded.members, created_at=excluded.created_at`,
		group.ID, group.Name, group.CreatorID, string(members), group.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: save group %q: %w", group.ID, err)
	}
	return nil
}

func (s *Store) LoadGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, creator_id, members, created_at FROM groups`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		var g domain.Group
		var members string
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatorID, &members, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan group: %w", err)
		}
		_ = json.Unmarshal([]byte(members), &g.Members)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: iterate groups: %w", err)
	}
	return groups, nil
}

func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, groupID); err != nil {
		return fmt.Errorf("sqlitestore: delete group %q: %w", groupID, err)
	}
	return nil
}

func (s *Store) SaveMessage(ctx context.Context, message domain.Message) error {
	return s.insertMessage(ctx, s.db, message)
}

func (s *Store) insertMessage(ctx context.Context, exec execer, message domain.Message) error {
	targetType, targetID := messageTarget(message)
	var mentions any
	if len(message.Mentions) > 0 {
		mentions = strings.Join(message.Mentions, ",")
	}
	_, err := exec.ExecContext(ctx,
		`INSERT INTO messages (id, from_agent, target_type, target_id, content, timestamp, reply_to, mentions)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		message.ID, message.From, targetType, targetID, message.Content, message.Timestamp,
		nullableString(message.ReplyTo), mentions,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: insert message %q: %w", message.ID, err)
	}
	return nil
}

func (s *Store) SaveMessages(ctx context.Context, messages []domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range messages {
		if err := s.insertMessage(ctx, tx, m); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit: %w", err)
	}
	return nil
}

func (s *Store) LoadMessages(ctx context.Context, filter store.MessageFilter) ([]domain.Message, error) {
	var conditions []string
	var args []any

	if filter.From != "" {
		conditions = append(conditions, "from_agent = ?")
		args = append(args, filter.From)
	}
	if filter.TargetType != "" {
		conditions = append(conditions, "target_type = ?")
		args = append(args, filter.TargetType)
	}
	if filter.To != "" {
		conditions = append(conditions, "target_id = ?")
		args = append(args, filter.To)
	}
	if filter.Since != 0 {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Since)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, from_agent, target_type, target_id, content, timestamp, reply_to, mentions
		FROM messages
		%s
		ORDER BY timestamp DESC
		LIMIT ?`, where)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		var targetType string
		var targetID, replyTo, mentions sql.NullString
		if err := rows.Scan(&m.ID, &m.From, &targetType, &targetID, &m.Content, &m.Timestamp, &replyTo, &mentions); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan message: %w", err)
		}
		m.To = targetFromRow(targetType, targetID.String)
		m.ReplyTo = replyTo.String
		if mentions.Valid && mentions.String != "" {
			m.Mentions = strings.Split(mentions.String, ",")
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: iterate messages: %w", err)
	}
	return messages, nil
}

func (s *Store) SaveUser(ctx context.Context, user domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, name, email, password_hash, is_director, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET username=excluded.username, name=excluded.name,
			email=excluded.email, password_hash=excluded.password_hash,
			is_director=excluded.is_director, created_at=excluded.created_at`,
		user.ID, user.Username, user.Name, nullableString(user.Email), user.PasswordHash,
		user.IsDirector, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: save user %q: %w", user.Username, err)
	}
	return nil
}

func (s *Store) LoadUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, name, email, password_hash, is_director, created_at FROM users WHERE username = ?`,
		username)

	var u domain.User
	var email sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &u.Name, &email, &u.PasswordHash, &u.IsDirector, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlitestore: load user %q: %w", username, err)
	}
	u.Email = email.String
	return &u, nil
}

func (s *Store) LoadUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, name, email, password_hash, is_director, created_at FROM users`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		var email sql.NullString
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &email, &u.PasswordHash, &u.IsDirector, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan user: %w", err)
		}
		u.Email = email.String
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: iterate users: %w", err)
	}
	return users, nil
}

func (s *Store) SaveInvitationCode(ctx context.Context, code domain.InvitationCode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invitation_codes (code, created_by, created_at, redeemed_by, redeemed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		code.Code, code.CreatedBy, code.CreatedAt, nullableString(code.RedeemedBy), nullableInt(code.RedeemedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: save invitation code %q: %w", code.Code, err)
	}
	return nil
}

func (s *Store) LoadInvitationCodeByCode(ctx context.Context, codeStr string) (*domain.InvitationCode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT code, created_by, created_at, redeemed_by, redeemed_at FROM invitation_codes WHERE code = ?`, codeStr)
	c, err := scanInvitationCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load invitation code %q: %w", codeStr, err)
	}
	return c, nil
}

func (s *Store) LoadInvitationCodes(ctx context.Context) ([]domain.InvitationCode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, created_by, created_at, redeemed_by, redeemed_at FROM invitation_codes`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query invitation codes: %w", err)
	}
	defer rows.Close()
	return scanInvitationCodes(rows)
}

func (s *Store) UpdateInvitationCode(ctx context.Context, code domain.InvitationCode) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invitation_codes SET redeemed_by = ?, redeemed_at = ? WHERE code = ?`,
		nullableString(code.RedeemedBy), nullableInt(code.RedeemedAt), code.Code,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: update invitation code %q: %w", code.Code, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitestore: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sqlitestore: invitation code %q not found", code.Code)
	}
	return nil
}

func (s *Store) LoadInvitationCodesByCreator(ctx context.Context, creatorID string) ([]domain.InvitationCode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, created_by, created_at, redeemed_by, redeemed_at FROM invitation_codes WHERE created_by = ?`,
		creatorID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query invitation codes by creator: %w", err)
	}
	defer rows.Close()
	return scanInvitationCodes(rows)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitationCode(row rowScanner) (*domain.InvitationCode, error) {
	var c domain.InvitationCode
	var redeemedBy sql.NullString
	var redeemedAt sql.NullInt64
	if err := row.Scan(&c.Code, &c.CreatedBy, &c.CreatedAt, &redeemedBy, &redeemedAt); err != nil {
		return nil, err
	}
	c.RedeemedBy = redeemedBy.String
	c.RedeemedAt = redeemedAt.Int64
	return &c, nil
}

func scanInvitationCodes(rows *sql.Rows) ([]domain.InvitationCode, error) {
	var codes []domain.InvitationCode
	for rows.Next() {
		c, err := scanInvitationCode(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scan invitation code: %w", err)
		}
		codes = append(codes, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: iterate invitation codes: %w", err)
	}
	return codes, nil
}

func messageTarget(m domain.Message) (string, any) {
	switch m.To.Kind {
	case domain.TargetDirect:
		return "direct", m.To.AgentID
	case domain.TargetGroup:
		return "group", m.To.GroupID
	default:
		return "broadcast", nil
	}
}

func targetFromRow(targetType, targetID string) domain.MessageTarget {
	switch targetType {
	case "direct":
		return domain.DirectTarget(targetID)
	case "group":
		return domain.GroupTarget(targetID)
	default:
		return domain.DirectTarget("")
	}
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

var _ store.Store = (*Store)(nil)
