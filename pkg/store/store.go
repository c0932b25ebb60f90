package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a named template does not exist.
	ErrNotFound = errors.New("template not found")

	// ErrInvalidName is returned for template names that are empty or contain
	// '/', '@' or whitespace.
	ErrInvalidName = errors.New("invalid template name")
)

// TemplateInfo describes the current revision of a stored template.
type TemplateInfo struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Revision  string    `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
	Size      int       `json:"size"` // Size of the current source in bytes
}

// Template is a stored template together with its current source.
type Template struct {
	TemplateInfo
	Source string `json:"source"`
}

// Revision is one historical version of a template.
type Revision struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Size      int       `json:"size"`
}

// SetupSchema initializes the tables used by the store. It is idempotent and
// safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaTemplates = `
CREATE TABLE IF NOT EXISTS templates (
    template_id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);
`
		schemaRevisions = `
CREATE TABLE IF NOT EXISTS template_revisions (
    revision_seq INTEGER PRIMARY KEY,
    revision_id TEXT NOT NULL UNIQUE,
    template_id INTEGER NOT NULL,
    source TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
`
		indexRevisions = `
CREATE INDEX IF NOT EXISTS idx_template_revisions_template ON template_revisions (template_id, revision_seq);
`
		schemaRenderStats = `
CREATE TABLE IF NOT EXISTS render_stats (
    template_id INTEGER PRIMARY KEY,
    renders INTEGER NOT NULL DEFAULT 0,
    failures INTEGER NOT NULL DEFAULT 0,
    total_ns INTEGER NOT NULL DEFAULT 0,
    last_render INTEGER NOT NULL DEFAULT 0
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, stmt := range []string{schemaTemplates, schemaRevisions, indexRevisions, schemaRenderStats} {
		if _, err = tx.Exec(stmt); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// ValidateName reports whether name can be used as a template name.
func ValidateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/@ \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Store is the template repository. It holds prepared SQL statements and
// is safe for concurrent use.
type Store struct {
	db               *sql.DB
	stmtUpsertName   *sql.Stmt
	stmtGetCurrent   *sql.Stmt
	stmtLatestRev    *sql.Stmt
	stmtInsertRev    *sql.Stmt
	stmtList         *sql.Stmt
	stmtHistory      *sql.Stmt
	stmtGetID        *sql.Stmt
	stmtRecordRender *sql.Stmt
	stmtRenderStats  *sql.Stmt
	stmtCounts       *sql.Stmt
	logger           *slog.Logger
	now              func() time.Time
}

// NewStore creates a Store on db, which must already have the schema from
// SetupSchema. It pre-compiles all SQL statements.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    func() time.Time { return time.Now().UTC() },
	}

	prepared := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtUpsertName, `INSERT INTO templates (name) VALUES (?) ON CONFLICT(name) DO UPDATE SET name=excluded.name RETURNING template_id;`},
		{&s.stmtGetCurrent, `
SELECT t.template_id, r.revision_id, r.source, r.created_at
FROM templates t JOIN template_revisions r ON r.template_id = t.template_id
WHERE t.name = ? ORDER BY r.revision_seq DESC LIMIT 1;`},
		{&s.stmtLatestRev, `SELECT revision_id, source, created_at FROM template_revisions WHERE template_id = ? ORDER BY revision_seq DESC LIMIT 1;`},
		{&s.stmtInsertRev, `INSERT INTO template_revisions (revision_id, template_id, source, created_at) VALUES (?, ?, ?, ?);`},
		{&s.stmtList, `
SELECT t.template_id, t.name, r.revision_id, r.created_at, length(CAST(r.source AS BLOB))
FROM templates t JOIN template_revisions r ON r.revision_seq = (
    SELECT MAX(revision_seq) FROM template_revisions WHERE template_id = t.template_id
)
ORDER BY t.name;`},
		{&s.stmtHistory, `
SELECT r.revision_id, r.created_at, length(CAST(r.source AS BLOB))
FROM template_revisions r JOIN templates t ON t.template_id = r.template_id
WHERE t.name = ? ORDER BY r.revision_seq DESC;`},
		{&s.stmtGetID, `SELECT template_id FROM templates WHERE name = ?;`},
		{&s.stmtRecordRender, `
INSERT INTO render_stats (template_id, renders, failures, total_ns, last_render)
SELECT template_id, 1, ?, ?, ? FROM templates WHERE name = ?
ON CONFLICT(template_id) DO UPDATE SET
    renders = renders + 1,
    failures = failures + excluded.failures,
    total_ns = total_ns + excluded.total_ns,
    last_render = excluded.last_render;`},
		{&s.stmtRenderStats, `
SELECT t.name, s.renders, s.failures, s.total_ns, s.last_render
FROM render_stats s JOIN templates t ON t.template_id = s.template_id
ORDER BY t.name;`},
		{&s.stmtCounts, `SELECT (SELECT COUNT(*) FROM templates), (SELECT COUNT(*) FROM template_revisions);`},
	}
	for _, p := range prepared {
		stmt, err := db.Prepare(p.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not prepare statement: %w", err)
		}
		*p.dst = stmt
	}
	return s, nil
}

// Close releases all prepared SQL statements held by the Store.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtUpsertName, s.stmtGetCurrent, s.stmtLatestRev, s.stmtInsertRev, s.stmtList,
		s.stmtHistory, s.stmtGetID, s.stmtRecordRender, s.stmtRenderStats, s.stmtCounts,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Put stores source as the current revision of the named template, creating
// the template if needed. Writing the source that is already current is a
// no-op that returns the existing revision.
func (s *Store) Put(ctx context.Context, name, source string) (TemplateInfo, error) {
	if err := ValidateName(name); err != nil {
		return TemplateInfo{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TemplateInfo{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	info := TemplateInfo{Name: name, Size: len(source)}
	if err = tx.StmtContext(ctx, s.stmtUpsertName).QueryRowContext(ctx, name).Scan(&info.ID); err != nil {
		return TemplateInfo{}, fmt.Errorf("could not upsert template %q: %w", name, err)
	}

	var (
		latestID     string
		latestSource string
		latestAt     int64
	)
	err = tx.StmtContext(ctx, s.stmtLatestRev).QueryRowContext(ctx, info.ID).Scan(&latestID, &latestSource, &latestAt)
	switch {
	case err == nil && latestSource == source:
		info.Revision = latestID
		info.UpdatedAt = time.Unix(0, latestAt).UTC()
		return info, tx.Commit()
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return TemplateInfo{}, fmt.Errorf("could not read latest revision of %q: %w", name, err)
	}

	info.Revision = uuid.NewString()
	info.UpdatedAt = s.now()
	if _, err = tx.StmtContext(ctx, s.stmtInsertRev).ExecContext(ctx, info.Revision, info.ID, source, info.UpdatedAt.UnixNano()); err != nil {
		return TemplateInfo{}, fmt.Errorf("could not insert revision of %q: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return TemplateInfo{}, fmt.Errorf("could not commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Template stored",
		slog.String("template", name),
		slog.String("revision", info.Revision),
		slog.Int("size", info.Size),
	)
	return info, nil
}

// Get returns the current revision of the named template.
func (s *Store) Get(ctx context.Context, name string) (*Template, error) {
	t := &Template{TemplateInfo: TemplateInfo{Name: name}}
	var createdAt int64
	err := s.stmtGetCurrent.QueryRowContext(ctx, name).Scan(&t.ID, &t.Revision, &t.Source, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	t.UpdatedAt = time.Unix(0, createdAt).UTC()
	t.Size = len(t.Source)
	return t, nil
}

// List returns every stored template ordered by name.
func (s *Store) List(ctx context.Context) ([]TemplateInfo, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	infos := make([]TemplateInfo, 0)
	for rows.Next() {
		var info TemplateInfo
		var createdAt int64
		if err = rows.Scan(&info.ID, &info.Name, &info.Revision, &createdAt, &info.Size); err != nil {
			return nil, err
		}
		info.UpdatedAt = time.Unix(0, createdAt).UTC()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// History returns the revisions of the named template, newest first.
func (s *Store) History(ctx context.Context, name string) ([]Revision, error) {
	rows, err := s.stmtHistory.QueryContext(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var revisions []Revision
	for rows.Next() {
		var rev Revision
		var createdAt int64
		if err = rows.Scan(&rev.ID, &createdAt, &rev.Size); err != nil {
			return nil, err
		}
		rev.CreatedAt = time.Unix(0, createdAt).UTC()
		revisions = append(revisions, rev)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if len(revisions) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return revisions, nil
}

// Delete removes the named template with all of its revisions and render
// statistics. The operation is performed within a transaction.
func (s *Store) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var id int
	err = tx.StmtContext(ctx, s.stmtGetID).QueryRowContext(ctx, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM template_revisions WHERE template_id = ?", id); err != nil {
		return fmt.Errorf("failed to remove revisions of %q: %w", name, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM render_stats WHERE template_id = ?", id); err != nil {
		return fmt.Errorf("failed to remove render stats of %q: %w", name, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM templates WHERE template_id = ?", id); err != nil {
		return fmt.Errorf("failed to remove template %q: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Template removed", slog.String("template", name), slog.Int("template_id", id))
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
