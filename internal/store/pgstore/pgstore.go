// Package pgstore implements internal/store.Store against a shared
// PostgreSQL instance via github.com/lib/pq, for deployments that want a
// networked alternate to sqlitestore's embedded engine. Structure (prepared
// statements, connection pool config, transactional batch writes) is
// grounded on sessions.CockroachStore.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentmesh/core/internal/store"
	"github.com/agentmesh/core/pkg/domain"

	_ "github.com/lib/pq"
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
	department_id TEXT REFERENCES departments(id),
	role_title TEXT NOT NULL,
	role_responsibilities JSONB,
	role_expertise JSONB,
	role_system_prompt TEXT NOT NULL,
	llm_model TEXT NOT NULL,
	llm_credential TEXT NOT NULL,
	llm_base_url TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS groups (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	creator_id TEXT NOT NULL,
	members JSONB NOT NULL,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	from_agent TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id TEXT,
	content TEXT NOT NULL,
	timestamp BIGINT NOT NULL,
	reply_to TEXT,
	mentions TEXT
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL,
	email TEXT,
	password_hash TEXT NOT NULL,
	is_director BOOLEAN NOT NULL DEFAULT false,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS invitation_codes (
	code TEXT PRIMARY KEY,
	created_by TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	redeemed_by TEXT,
	redeemed_at BIGINT
);

CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_agent);
CREATE INDEX IF NOT EXISTS idx_messages_target ON messages(target_type, target_id);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
CREATE INDEX IF NOT EXISTS idx_departments_parent ON departments(parent_id);
CREATE INDEX IF NOT EXISTS idx_agents_department ON agents(department_id);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
CREATE INDEX IF NOT EXISTS idx_invitation_codes_creator ON invitation_codes(created_by);
`

// Config holds the connection parameters for a Store.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns sane local-development defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Database:        "agentmesh",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	db *sql.DB

	stmtSaveGroup   *sql.Stmt
	stmtSaveMessage *sql.Stmt
	stmtSaveUser    *sql.Stmt
}

// Open connects using config, applies the schema, and prepares statements.
func Open(config Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		config.Host, config.Port, config.User, config.Password, config.Database,
		config.SSLMode, int(config.ConnectTimeout.Seconds()),
	)
	return OpenDSN(dsn, config)
}

// OpenDSN connects using a raw DSN, for deployments that assemble their own
// connection string.
func OpenDSN(dsn string, config Config) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: init schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) prepareStatements() error {
	var err error
	s.stmtSaveGroup, err = s.db.Prepare(`
		INSERT INTO groups (id, name, creator_id, members, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = $2, creator_id = $3, members = $4, created_at = $5
	`)
	if err != nil {
		return fmt.Errorf("pgstore: prepare save group: %w", err)
	}

	s.stmtSaveMessage, err = s.db.Prepare(`
		INSERT INTO messages (id, from_agent, target_type, target_id, content, timestamp, reply_to, mentions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("pgstore: prepare save message: %w", err)
	}

	s.stmtSaveUser, err = s.db.Prepare(`
		INSERT INTO users (id, username, name, email, password_hash, is_director, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET username = $2, name = $3, email = $4,
			password_hash = $5, is_director = $6, created_at = $7
	`)
	if err != nil {
		return fmt.Errorf("pgstore: prepare save user: %w", err)
	}

	return nil
}

// Close releases prepared statements and the connection pool.
func (s *Store) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{s.stmtSaveGroup, s.stmtSaveMessage, s.stmtSaveUser} {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("pgstore: close: %v", errs)
	}
	return nil
}

func (s *Store) SaveOrganization(ctx context.Context, org domain.Organization) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM agents`); err != nil {
		return fmt.Errorf("pgstore: clear agents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM departments`); err != nil {
		return fmt.Errorf("pgstore: clear departments: %w", err)
	}

	for _, dept := range org.Departments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO departments (id, name, parent_id, leader_id) VALUES ($1, $2, $3, $4)`,
			dept.ID, dept.Name, nullableString(dept.ParentID), nullableString(dept.LeaderID),
		); err != nil {
			return fmt.Errorf("pgstore: insert department %q: %w", dept.ID, err)
		}
	}

	for _, agent := range org.Agents {
		resp, err := json.Marshal(agent.Role.Responsibilities)
		if err != nil {
			return fmt.Errorf("pgstore: marshal responsibilities: %w", err)
		}
		exp, err := json.Marshal(agent.Role.Expertise)
		if err != nil {
			return fmt.Errorf("pgstore: marshal expertise: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO agents (
				id, name, department_id,
				role_title, role_responsibilities, role_expertise, role_system_prompt,
				llm_model, llm_credential, llm_base_url
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			agent.ID, agent.Name, nullableString(agent.DepartmentID),
			agent.Role.Title, resp, exp, agent.Role.SystemPrompt,
			agent.LLM.Model, agent.LLM.Credential, agent.LLM.BaseURL,
		); err != nil {
			return fmt.Errorf("pgstore: insert agent %q: %w", agent.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgstore: commit: %w", err)
	}
	return nil
}

func (s *Store) LoadOrganization(ctx context.Context) (domain.Organization, error) {
	var org domain.Organization

	deptRows, err := s.db.QueryContext(ctx, `SELECT id, name, parent_id, leader_id FROM departments`)
	if err != nil {
		return org, fmt.Errorf("pgstore: query departments: %w", err)
	}
	for deptRows.Next() {
		var d domain.Department
		var parentID, leaderID sql.NullString
		if err := deptRows.Scan(&d.ID, &d.Name, &parentID, &leaderID); err != nil {
			deptRows.Close()
			return org, fmt.Errorf("pgstore: scan department: %w", err)
		}
		d.ParentID = parentID.String
		d.LeaderID = leaderID.String
		org.Departments = append(org.Departments, d)
	}
	if err := deptRows.Err(); err != nil {
		deptRows.Close()
		return org, fmt.Errorf("pgstore: iterate departments: %w", err)
	}
	deptRows.Close()

	agentRows, err := s.db.QueryContext(ctx, `
		SELECT id, name, department_id,
			role_title, role_responsibilities, role_expertise, role_system_prompt,
			llm_model, llm_credential, llm_base_url
		FROM agents`)
	if err != nil {
		return org, fmt.Errorf("pgstore: query agents: %w", err)
	}
	defer agentRows.Close()
	for agentRows.Next() {
		var a domain.Agent
		var deptID sql.NullString
		var resp, exp []byte
		if err := agentRows.Scan(
			&a.ID, &a.Name, &deptID,
			&a.Role.Title, &resp, &exp, &a.Role.SystemPrompt,
			&a.LLM.Model, &a.LLM.Credential, &a.LLM.BaseURL,
		); err != nil {
			return org, fmt.Errorf("pgstore: scan agent: %w", err)
		}
		a.DepartmentID = deptID.String
		_ = json.Unmarshal(resp, &a.Role.Responsibilities)
		_ = json.Unmarshal(exp, &a.Role.Expertise)
		org.Agents = append(org.Agents, a)
	}
	if err := agentRows.Err(); err != nil {
		return org, fmt.Errorf("pgstore: iterate agents: %w", err)
	}

	return org, nil
}

func (s *Store) SaveGroup(ctx context.Context, group domain.Group) error {
	members, err := json.Marshal(group.Members)
	if err != nil {
		return fmt.Errorf("pgstore: marshal members: %w", err)
	}
	if _, err := s.stmtSaveGroup.ExecContext(ctx, group.ID, group.Name, group.CreatorID, members, group.CreatedAt); err != nil {
		return fmt.Errorf("pgstore: save group %q: %w", group.ID, err)
	}
	return nil
}

func (s *Store) LoadGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, creator_id, members, created_at FROM groups`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		var g domain.Group
		var members []byte
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatorID, &members, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan group: %w", err)
		}
		_ = json.Unmarshal(members, &g.Members)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: iterate groups: %w", err)
	}
	return groups, nil
}

func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, groupID); err != nil {
		return fmt.Errorf("pgstore: delete group %q: %w", groupID, err)
	}
	return nil
}

func (s *Store) SaveMessage(ctx context.Context, message domain.Message) error {
	return execSaveMessage(ctx, s.stmtSaveMessage, message)
}

func execSaveMessage(ctx context.Context, stmt *sql.Stmt, message domain.Message) error {
	targetType, targetID := messageTarget(message)
	var mentions any
	if len(message.Mentions) > 0 {
		mentions = strings.Join(message.Mentions, ",")
	}
	_, err := stmt.ExecContext(ctx,
		message.ID, message.From, targetType, targetID, message.Content, message.Timestamp,
		nullableString(message.ReplyTo), mentions,
	)
	if err != nil {
		return fmt.Errorf("pgstore: insert message %q: %w", message.ID, err)
	}
	return nil
}

func (s *Store) SaveMessages(ctx context.Context, messages []domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	txStmt := tx.StmtContext(ctx, s.stmtSaveMessage)
	for _, m := range messages {
		if err := execSaveMessage(ctx, txStmt, m); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgstore: commit: %w", err)
	}
	return nil
}

func (s *Store) LoadMessages(ctx context.Context, filter store.MessageFilter) ([]domain.Message, error) {
	var conditions []string
	var args []any
	argPos := 1

	addCondition := func(clause string, value any) {
		conditions = append(conditions, fmt.Sprintf(clause, argPos))
		args = append(args, value)
		argPos++
	}

	if filter.From != "" {
		addCondition("from_agent = $%d", filter.From)
	}
	if filter.TargetType != "" {
		addCondition("target_type = $%d", filter.TargetType)
	}
	if filter.To != "" {
		addCondition("target_id = $%d", filter.To)
	}
	if filter.Since != 0 {
		addCondition("timestamp >= $%d", filter.Since)
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
		LIMIT $%d`, where, argPos)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		var targetType string
		var targetID, replyTo, mentions sql.NullString
		if err := rows.Scan(&m.ID, &m.From, &targetType, &targetID, &m.Content, &m.Timestamp, &replyTo, &mentions); err != nil {
			return nil, fmt.Errorf("pgstore: scan message: %w", err)
		}
		m.To = targetFromRow(targetType, targetID.String)
		m.ReplyTo = replyTo.String
		if mentions.Valid && mentions.String != "" {
			m.Mentions = strings.Split(mentions.String, ",")
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: iterate messages: %w", err)
	}
	return messages, nil
}

func (s *Store) SaveUser(ctx context.Context, user domain.User) error {
	if _, err := s.stmtSaveUser.ExecContext(ctx,
		user.ID, user.Username, user.Name, nullableString(user.Email), user.PasswordHash,
		user.IsDirector, user.CreatedAt,
	); err != nil {
		return fmt.Errorf("pgstore: save user %q: %w", user.Username, err)
	}
	return nil
}

func (s *Store) LoadUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, name, email, password_hash, is_director, created_at FROM users WHERE username = $1`,
		username)

	var u domain.User
	var email sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &u.Name, &email, &u.PasswordHash, &u.IsDirector, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("pgstore: load user %q: %w", username, err)
	}
	u.Email = email.String
	return &u, nil
}

func (s *Store) LoadUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, name, email, password_hash, is_director, created_at FROM users`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		var email sql.NullString
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &email, &u.PasswordHash, &u.IsDirector, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan user: %w", err)
		}
		u.Email = email.String
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: iterate users: %w", err)
	}
	return users, nil
}

func (s *Store) SaveInvitationCode(ctx context.Context, code domain.InvitationCode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invitation_codes (code, created_by, created_at, redeemed_by, redeemed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		code.Code, code.CreatedBy, code.CreatedAt, nullableString(code.RedeemedBy), nullableInt(code.RedeemedAt),
	)
	if err != nil {
		return fmt.Errorf("pgstore: save invitation code %q: %w", code.Code, err)
	}
	return nil
}

func (s *Store) LoadInvitationCodeByCode(ctx context.Context, codeStr string) (*domain.InvitationCode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT code, created_by, created_at, redeemed_by, redeemed_at FROM invitation_codes WHERE code = $1`, codeStr)
	c, err := scanInvitationCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: load invitation code %q: %w", codeStr, err)
	}
	return c, nil
}

func (s *Store) LoadInvitationCodes(ctx context.Context) ([]domain.InvitationCode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, created_by, created_at, redeemed_by, redeemed_at FROM invitation_codes`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query invitation codes: %w", err)
	}
	defer rows.Close()
	return scanInvitationCodes(rows)
}

func (s *Store) UpdateInvitationCode(ctx context.Context, code domain.InvitationCode) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invitation_codes SET redeemed_by = $1, redeemed_at = $2 WHERE code = $3`,
		nullableString(code.RedeemedBy), nullableInt(code.RedeemedAt), code.Code,
	)
	if err != nil {
		return fmt.Errorf("pgstore: update invitation code %q: %w", code.Code, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgstore: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("pgstore: invitation code %q not found", code.Code)
	}
	return nil
}

func (s *Store) LoadInvitationCodesByCreator(ctx context.Context, creatorID string) ([]domain.InvitationCode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, created_by, created_at, redeemed_by, redeemed_at FROM invitation_codes WHERE created_by = $1`,
		creatorID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query invitation codes by creator: %w", err)
	}
	defer rows.Close()
	return scanInvitationCodes(rows)
}

type invitationRowScanner interface {
	Scan(dest ...any) error
}

func scanInvitationCode(row invitationRowScanner) (*domain.InvitationCode, error) {
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
			return nil, fmt.Errorf("pgstore: scan invitation code: %w", err)
		}
		codes = append(codes, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: iterate invitation codes: %w", err)
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
