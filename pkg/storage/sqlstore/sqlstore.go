// Package sqlstore implements storage.Storage over database/sql. Dialect
// packages (sqlite, postgres) supply the driver, placeholders and schema.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vedmemory/ved/pkg/storage"
)

// Dialect captures what differs between SQL backends.
type Dialect struct {
	// Name identifies the dialect in errors and logs.
	Name string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string

	// Schema is applied statement by statement by Migrate.
	Schema []string

	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(err error) bool
}

// QuestionPlaceholder renders "?" for every parameter.
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders "$1", "$2", ...
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// Store implements storage.Storage on a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	queries map[string]string
}

// New wraps an open database. Call Migrate before first use on an empty database.
func New(db *sql.DB, dialect Dialect) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		queries: make(map[string]string, len(queries)),
	}
	for name, q := range queries {
		s.queries[name] = rebind(q, dialect.Placeholder)
	}
	return s
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: migrate: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// rebind rewrites "?" placeholders for the dialect.
func rebind(query string, placeholder func(int) string) string {
	if placeholder == nil {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString(placeholder(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

const conversationColumns = `c.id, c.user_id, c.project_id, c.raw_content, c.created_at_ms`

const recordColumns = conversationColumns + `, s.id, s.content, s.updated_at_ms`

var queries = map[string]string{
	"createUser": `INSERT INTO users (email, password_hash, resume_mode, created_at_ms)
		VALUES (?, ?, ?, ?) RETURNING id`,
	"getUser": `SELECT id, email, password_hash, resume_mode, created_at_ms
		FROM users WHERE id = ?`,
	"getUserByEmail": `SELECT id, email, password_hash, resume_mode, created_at_ms
		FROM users WHERE email = ?`,
	"updateResumeMode": `UPDATE users SET resume_mode = ? WHERE id = ?`,

	"createProject": `INSERT INTO projects (name, user_id, created_at_ms)
		VALUES (?, ?, ?) RETURNING id`,
	"getProject": `SELECT id, name, user_id, created_at_ms
		FROM projects WHERE id = ? AND user_id = ?`,
	"listProjects": `SELECT id, name, user_id, created_at_ms
		FROM projects WHERE user_id = ?
		ORDER BY created_at_ms DESC, id DESC`,
	"deleteProjectSummaries": `DELETE FROM summaries
		WHERE conversation_id IN (SELECT id FROM conversations WHERE project_id = ?)`,
	"deleteProjectConversations": `DELETE FROM conversations WHERE project_id = ?`,
	"deleteProject":              `DELETE FROM projects WHERE id = ?`,

	// The project ownership check and the insert are one statement.
	// Casts pin parameter types that postgres cannot infer inside a SELECT list.
	"saveConversation": `INSERT INTO conversations (user_id, project_id, raw_content, created_at_ms)
		SELECT CAST(? AS BIGINT), p.id, CAST(? AS TEXT), CAST(? AS BIGINT)
		FROM projects p WHERE p.id = ? AND p.user_id = ?
		RETURNING id`,
	"getConversation": `SELECT ` + conversationColumns + `
		FROM conversations c WHERE c.id = ? AND c.user_id = ?`,
	"listConversations": `SELECT ` + recordColumns + `
		FROM conversations c LEFT JOIN summaries s ON s.conversation_id = c.id
		WHERE c.user_id = ?
		ORDER BY c.created_at_ms DESC, c.id DESC`,
	"recentConversations": `SELECT ` + recordColumns + `
		FROM conversations c LEFT JOIN summaries s ON s.conversation_id = c.id
		WHERE c.project_id = ? AND c.user_id = ?
		ORDER BY c.created_at_ms DESC, c.id DESC
		LIMIT ?`,
	"latestConversation": `SELECT ` + recordColumns + `
		FROM conversations c LEFT JOIN summaries s ON s.conversation_id = c.id
		WHERE c.user_id = ?
		ORDER BY c.created_at_ms DESC, c.id DESC
		LIMIT 1`,
	"listUnsummarized": `SELECT ` + conversationColumns + `
		FROM conversations c LEFT JOIN summaries s ON s.conversation_id = c.id
		WHERE s.id IS NULL
		ORDER BY c.created_at_ms ASC, c.id ASC
		LIMIT ?`,

	"upsertSummary": `INSERT INTO summaries (conversation_id, content, updated_at_ms)
		SELECT c.id, CAST(? AS TEXT), CAST(? AS BIGINT) FROM conversations c WHERE c.id = ?
		ON CONFLICT (conversation_id) DO UPDATE
		SET content = excluded.content, updated_at_ms = excluded.updated_at_ms
		RETURNING id`,
	"listSummaries": `SELECT s.id, s.conversation_id, s.content, s.updated_at_ms
		FROM summaries s JOIN conversations c ON c.id = s.conversation_id
		WHERE c.user_id = ?
		ORDER BY c.created_at_ms DESC, c.id DESC`,
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*storage.User, error) {
	var (
		u  storage.User
		ms int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.ResumeMode, &ms); err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(ms)
	return &u, nil
}

func scanProject(row scanner) (*storage.Project, error) {
	var (
		p  storage.Project
		ms int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.UserID, &ms); err != nil {
		return nil, err
	}
	p.CreatedAt = fromMillis(ms)
	return &p, nil
}

func scanConversation(row scanner) (*storage.Conversation, error) {
	var (
		c  storage.Conversation
		ms int64
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.ProjectID, &c.RawContent, &ms); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(ms)
	return &c, nil
}

func scanRecord(row scanner) (*storage.ConversationRecord, error) {
	var (
		rec       storage.ConversationRecord
		createdMs int64
		summaryID sql.NullInt64
		content   sql.NullString
		updatedMs sql.NullInt64
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.ProjectID, &rec.RawContent, &createdMs,
		&summaryID, &content, &updatedMs,
	)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = fromMillis(createdMs)
	if summaryID.Valid {
		rec.Summary = &storage.Summary{
			ID:             summaryID.Int64,
			ConversationID: rec.ID,
			Content:        content.String,
			UpdatedAt:      fromMillis(updatedMs.Int64),
		}
	}
	return &rec, nil
}

func (s *Store) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var nf *storage.NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	return fmt.Errorf("%s: %s: %w", s.dialect.Name, op, err)
}

// CreateUser stores a new user, assigning its ID.
func (s *Store) CreateUser(ctx context.Context, u *storage.User) error {
	u.CreatedAt = storage.Timestamp(u.CreatedAt)
	if u.ResumeMode == "" {
		u.ResumeMode = storage.DefaultResumeMode
	}

	err := s.db.QueryRowContext(ctx, s.queries["createUser"],
		u.Email, u.PasswordHash, u.ResumeMode, millis(u.CreatedAt),
	).Scan(&u.ID)
	if err != nil && s.dialect.IsUniqueViolation != nil && s.dialect.IsUniqueViolation(err) {
		return &storage.DuplicateKeyError{EntityType: "user", Key: u.Email}
	}
	return s.wrap("create user", err)
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*storage.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, s.queries["getUser"], id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NewNotFound("user", id)
	}
	return u, s.wrap("get user", err)
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, s.queries["getUserByEmail"], email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{EntityType: "user", ID: email}
	}
	return u, s.wrap("get user by email", err)
}

// UpdateResumeMode sets a user's preferred resume mode.
func (s *Store) UpdateResumeMode(ctx context.Context, userID int64, mode string) error {
	res, err := s.db.ExecContext(ctx, s.queries["updateResumeMode"], mode, userID)
	if err != nil {
		return s.wrap("update resume mode", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.wrap("update resume mode", err)
	}
	if n == 0 {
		return storage.NewNotFound("user", userID)
	}
	return nil
}

// CreateProject stores a new project, assigning its ID.
func (s *Store) CreateProject(ctx context.Context, p *storage.Project) error {
	p.CreatedAt = storage.Timestamp(p.CreatedAt)
	err := s.db.QueryRowContext(ctx, s.queries["createProject"],
		p.Name, p.UserID, millis(p.CreatedAt),
	).Scan(&p.ID)
	return s.wrap("create project", err)
}

// GetProject retrieves a project owned by userID.
func (s *Store) GetProject(ctx context.Context, projectID, userID int64) (*storage.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, s.queries["getProject"], projectID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NewNotFound("project", projectID)
	}
	return p, s.wrap("get project", err)
}

// ListProjects lists a user's projects, newest first.
func (s *Store) ListProjects(ctx context.Context, userID int64) ([]*storage.Project, error) {
	rows, err := s.db.QueryContext(ctx, s.queries["listProjects"], userID)
	if err != nil {
		return nil, s.wrap("list projects", err)
	}
	defer rows.Close()

	var result []*storage.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, s.wrap("list projects", err)
		}
		result = append(result, p)
	}
	return result, s.wrap("list projects", rows.Err())
}

// DeleteProject removes a project with its conversations and summaries in
// one transaction.
func (s *Store) DeleteProject(ctx context.Context, projectID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("delete project", err)
	}
	defer tx.Rollback()

	if _, err := scanProject(tx.QueryRowContext(ctx, s.queries["getProject"], projectID, userID)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NewNotFound("project", projectID)
		}
		return s.wrap("delete project", err)
	}

	for _, q := range []string{"deleteProjectSummaries", "deleteProjectConversations", "deleteProject"} {
		if _, err := tx.ExecContext(ctx, s.queries[q], projectID); err != nil {
			return s.wrap("delete project", err)
		}
	}
	return s.wrap("delete project", tx.Commit())
}

// SaveConversation stores a new conversation in a project owned by c.UserID.
func (s *Store) SaveConversation(ctx context.Context, c *storage.Conversation) error {
	c.CreatedAt = storage.Timestamp(c.CreatedAt)
	err := s.db.QueryRowContext(ctx, s.queries["saveConversation"],
		c.UserID, c.RawContent, millis(c.CreatedAt), c.ProjectID, c.UserID,
	).Scan(&c.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NewNotFound("project", c.ProjectID)
	}
	return s.wrap("save conversation", err)
}

// GetConversation retrieves a conversation owned by userID.
func (s *Store) GetConversation(ctx context.Context, conversationID, userID int64) (*storage.Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx, s.queries["getConversation"], conversationID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NewNotFound("conversation", conversationID)
	}
	return c, s.wrap("get conversation", err)
}

func (s *Store) queryRecords(ctx context.Context, op, name string, args ...any) ([]*storage.ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.queries[name], args...)
	if err != nil {
		return nil, s.wrap(op, err)
	}
	defer rows.Close()

	var result []*storage.ConversationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, s.wrap(op, err)
		}
		result = append(result, rec)
	}
	return result, s.wrap(op, rows.Err())
}

// ListConversations lists a user's conversations with summary status.
func (s *Store) ListConversations(ctx context.Context, userID int64) ([]*storage.ConversationOverview, error) {
	recs, err := s.queryRecords(ctx, "list conversations", "listConversations", userID)
	if err != nil {
		return nil, err
	}
	result := make([]*storage.ConversationOverview, 0, len(recs))
	for _, rec := range recs {
		result = append(result, rec.Overview())
	}
	return result, nil
}

// RecentConversations returns up to limit conversations of the (project,
// user) pair, newest first, each joined with its summary in the same query.
func (s *Store) RecentConversations(ctx context.Context, projectID, userID int64, limit int) ([]*storage.ConversationRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.queryRecords(ctx, "recent conversations", "recentConversations", projectID, userID, limit)
}

// LatestConversation returns the user's newest conversation.
func (s *Store) LatestConversation(ctx context.Context, userID int64) (*storage.ConversationRecord, error) {
	recs, err := s.queryRecords(ctx, "latest conversation", "latestConversation", userID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &storage.NotFoundError{EntityType: "conversation", ID: "latest"}
	}
	return recs[0], nil
}

// ListUnsummarized returns up to limit conversations without a summary, oldest first.
func (s *Store) ListUnsummarized(ctx context.Context, limit int) ([]*storage.Conversation, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}

	rows, err := s.db.QueryContext(ctx, s.queries["listUnsummarized"], limit)
	if err != nil {
		return nil, s.wrap("list unsummarized", err)
	}
	defer rows.Close()

	var result []*storage.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, s.wrap("list unsummarized", err)
		}
		result = append(result, c)
	}
	return result, s.wrap("list unsummarized", rows.Err())
}

// UpsertSummary creates or overwrites the summary of a conversation.
func (s *Store) UpsertSummary(ctx context.Context, conversationID int64, content string, at time.Time) (*storage.Summary, error) {
	sum := &storage.Summary{
		ConversationID: conversationID,
		Content:        content,
		UpdatedAt:      storage.Timestamp(at),
	}
	err := s.db.QueryRowContext(ctx, s.queries["upsertSummary"],
		content, millis(sum.UpdatedAt), conversationID,
	).Scan(&sum.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NewNotFound("conversation", conversationID)
	}
	if err != nil {
		return nil, s.wrap("upsert summary", err)
	}
	return sum, nil
}

// ListSummaries returns the summaries of a user's conversations, newest
// conversation first.
func (s *Store) ListSummaries(ctx context.Context, userID int64) ([]*storage.Summary, error) {
	rows, err := s.db.QueryContext(ctx, s.queries["listSummaries"], userID)
	if err != nil {
		return nil, s.wrap("list summaries", err)
	}
	defer rows.Close()

	var result []*storage.Summary
	for rows.Next() {
		var (
			sum storage.Summary
			ms  int64
		)
		if err := rows.Scan(&sum.ID, &sum.ConversationID, &sum.Content, &ms); err != nil {
			return nil, s.wrap("list summaries", err)
		}
		sum.UpdatedAt = fromMillis(ms)
		result = append(result, &sum)
	}
	return result, s.wrap("list summaries", rows.Err())
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
