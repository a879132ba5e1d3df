package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"resellerhq/warden/pkg/panels"
)

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" keeps everything in memory.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// WALMode enables the write-ahead log.
	WALMode bool
}

// SQLiteStore implements panels.Store on SQLite.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteStore opens (and migrates) the database at cfg.Path.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}

	params := []string{fmt.Sprintf("_pragma=busy_timeout(%d)", cfg.BusyTimeout.Milliseconds())}
	if cfg.WALMode && cfg.Path != ":memory:" {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	dsn := cfg.Path + "?" + strings.Join(params, "&")

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS admin_panels (
			id                    INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id              INTEGER NOT NULL,
			username              TEXT    NOT NULL UNIQUE,
			password              TEXT    NOT NULL,
			original_password     TEXT,
			max_users             INTEGER NOT NULL DEFAULT 0,
			max_total_traffic     INTEGER NOT NULL DEFAULT 0,
			max_total_time        INTEGER NOT NULL DEFAULT 0,
			created_at            INTEGER NOT NULL,
			users_historical_peak INTEGER NOT NULL DEFAULT 0,
			current_users         INTEGER NOT NULL DEFAULT 0,
			current_traffic       INTEGER NOT NULL DEFAULT 0,
			current_elapsed       INTEGER NOT NULL DEFAULT 0,
			status                TEXT    NOT NULL DEFAULT 'active',
			deactivated_at        INTEGER,
			deactivated_reason    TEXT,
			updated_at            INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_admin_panels_status ON admin_panels(status)`,
		`CREATE TABLE IF NOT EXISTS usage_samples (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			panel_id        INTEGER NOT NULL,
			ts              INTEGER NOT NULL,
			users           INTEGER NOT NULL,
			peak_users      INTEGER NOT NULL,
			active_users    INTEGER NOT NULL,
			elapsed_seconds INTEGER NOT NULL,
			traffic_used    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_samples_panel_ts ON usage_samples(panel_id, ts)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id         TEXT    PRIMARY KEY,
			panel_id   INTEGER NOT NULL,
			action     TEXT    NOT NULL,
			details    TEXT    NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_panel_created ON audit_logs(panel_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// panelRow maps 1:1 to the admin_panels table.
type panelRow struct {
	ID                  int64          `db:"id"`
	OwnerID             int64          `db:"owner_id"`
	Username            string         `db:"username"`
	Password            string         `db:"password"`
	OriginalPassword    sql.NullString `db:"original_password"`
	MaxUsers            int64          `db:"max_users"`
	MaxTotalTraffic     int64          `db:"max_total_traffic"`
	MaxTotalTime        int64          `db:"max_total_time"`
	CreatedAt           int64          `db:"created_at"`
	UsersHistoricalPeak int64          `db:"users_historical_peak"`
	CurrentUsers        int64          `db:"current_users"`
	CurrentTraffic      int64          `db:"current_traffic"`
	CurrentElapsed      int64          `db:"current_elapsed"`
	Status              string         `db:"status"`
	DeactivatedAt       sql.NullInt64  `db:"deactivated_at"`
	DeactivatedReason   sql.NullString `db:"deactivated_reason"`
	UpdatedAt           int64          `db:"updated_at"`
}

func panelRowFromModel(p *panels.AdminPanel) panelRow {
	r := panelRow{
		ID:                  p.ID,
		OwnerID:             p.OwnerID,
		Username:            p.Username,
		Password:            p.Password,
		OriginalPassword:    sql.NullString{String: p.OriginalPassword, Valid: p.OriginalPassword != ""},
		MaxUsers:            p.MaxUsers,
		MaxTotalTraffic:     p.MaxTotalTraffic,
		MaxTotalTime:        p.MaxTotalTime,
		CreatedAt:           p.CreatedAt.Unix(),
		UsersHistoricalPeak: p.UsersHistoricalPeak,
		CurrentUsers:        p.CurrentUsers,
		CurrentTraffic:      p.CurrentTraffic,
		CurrentElapsed:      p.CurrentTime,
		Status:              string(p.Status),
		DeactivatedReason:   sql.NullString{String: p.DeactivatedReason, Valid: p.DeactivatedReason != ""},
		UpdatedAt:           p.UpdatedAt.Unix(),
	}
	if p.DeactivatedAt != nil {
		r.DeactivatedAt = sql.NullInt64{Int64: p.DeactivatedAt.Unix(), Valid: true}
	}
	return r
}

func (r panelRow) toModel() panels.AdminPanel {
	p := panels.AdminPanel{
		ID:                  r.ID,
		OwnerID:             r.OwnerID,
		Username:            r.Username,
		Password:            r.Password,
		OriginalPassword:    r.OriginalPassword.String,
		MaxUsers:            r.MaxUsers,
		MaxTotalTraffic:     r.MaxTotalTraffic,
		MaxTotalTime:        r.MaxTotalTime,
		CreatedAt:           time.Unix(r.CreatedAt, 0).UTC(),
		UsersHistoricalPeak: r.UsersHistoricalPeak,
		CurrentUsers:        r.CurrentUsers,
		CurrentTraffic:      r.CurrentTraffic,
		CurrentTime:         r.CurrentElapsed,
		Status:              panels.Status(r.Status),
		DeactivatedReason:   r.DeactivatedReason.String,
		UpdatedAt:           time.Unix(r.UpdatedAt, 0).UTC(),
	}
	if r.DeactivatedAt.Valid {
		t := time.Unix(r.DeactivatedAt.Int64, 0).UTC()
		p.DeactivatedAt = &t
	}
	return p
}

const panelColumns = `id, owner_id, username, password, original_password, max_users,
	max_total_traffic, max_total_time, created_at, users_historical_peak, current_users,
	current_traffic, current_elapsed, status, deactivated_at, deactivated_reason, updated_at`

// CreatePanel inserts p. ID and UpdatedAt are populated on success; a zero
// CreatedAt or Status are defaulted.
func (s *SQLiteStore) CreatePanel(ctx context.Context, p *panels.AdminPanel) (int64, error) {
	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.Status == "" {
		p.Status = panels.StatusActive
	}
	p.UpdatedAt = now

	row := panelRowFromModel(p)
	q := `INSERT INTO admin_panels (owner_id, username, password, original_password, max_users,
		max_total_traffic, max_total_time, created_at, users_historical_peak, current_users,
		current_traffic, current_elapsed, status, deactivated_at, deactivated_reason, updated_at)
	VALUES (:owner_id, :username, :password, :original_password, :max_users,
		:max_total_traffic, :max_total_time, :created_at, :users_historical_peak, :current_users,
		:current_traffic, :current_elapsed, :status, :deactivated_at, :deactivated_reason, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return 0, fmt.Errorf("insert panel %q: %w", p.Username, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert panel %q: %w", p.Username, err)
	}
	p.ID = id
	return id, nil
}

// GetPanel returns the panel with the given id.
func (s *SQLiteStore) GetPanel(ctx context.Context, id int64) (*panels.AdminPanel, error) {
	return s.getPanel(ctx, "id = ?", id)
}

// GetPanelByUsername returns the panel with the given delegated username.
func (s *SQLiteStore) GetPanelByUsername(ctx context.Context, username string) (*panels.AdminPanel, error) {
	return s.getPanel(ctx, "username = ?", username)
}

func (s *SQLiteStore) getPanel(ctx context.Context, where string, arg any) (*panels.AdminPanel, error) {
	var row panelRow
	err := s.db.GetContext(ctx, &row, "SELECT "+panelColumns+" FROM admin_panels WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, panels.ErrPanelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get panel: %w", err)
	}
	p := row.toModel()
	return &p, nil
}

// ActivePanels returns all active panels ordered by id.
func (s *SQLiteStore) ActivePanels(ctx context.Context) ([]panels.AdminPanel, error) {
	return s.listPanels(ctx, "WHERE status = ?", string(panels.StatusActive))
}

// ListPanels returns every panel ordered by id.
func (s *SQLiteStore) ListPanels(ctx context.Context) ([]panels.AdminPanel, error) {
	return s.listPanels(ctx, "")
}

func (s *SQLiteStore) listPanels(ctx context.Context, where string, args ...any) ([]panels.AdminPanel, error) {
	var rows []panelRow
	q := "SELECT " + panelColumns + " FROM admin_panels " + where + " ORDER BY id"
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list panels: %w", err)
	}
	out := make([]panels.AdminPanel, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// UpdatePanel applies upd in a single UPDATE statement.
func (s *SQLiteStore) UpdatePanel(ctx context.Context, id int64, upd *panels.Update) error {
	if upd == nil || upd.Empty() {
		return nil
	}
	sets, args := updateClauses(upd.Values())
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now().Unix(), id)

	q := "UPDATE admin_panels SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update panel %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update panel %d: %w", id, err)
	}
	if n == 0 {
		return panels.ErrPanelNotFound
	}
	return nil
}

// updateClauses translates an update into SET clauses. The conditional
// clauses mirror panels.Update.Apply.
func updateClauses(v panels.Values) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	set := func(clause string, arg any) {
		sets = append(sets, clause)
		args = append(args, arg)
	}

	if v.Password != nil {
		set("password = ?", *v.Password)
	}
	if v.ClearOriginal {
		sets = append(sets, "original_password = NULL")
	} else if v.CaptureOriginal != nil {
		set("original_password = COALESCE(NULLIF(original_password, ''), ?)", *v.CaptureOriginal)
	}
	if v.RaisePeak != nil {
		set("users_historical_peak = MAX(users_historical_peak, ?)", *v.RaisePeak)
	}
	if v.CurrentUsers != nil {
		set("current_users = ?", *v.CurrentUsers)
	}
	if v.CurrentTraffic != nil {
		set("current_traffic = ?", *v.CurrentTraffic)
	}
	if v.CurrentTime != nil {
		set("current_elapsed = ?", *v.CurrentTime)
	}
	if v.MaxUsers != nil {
		set("max_users = ?", *v.MaxUsers)
	}
	if v.MaxTotalTraffic != nil {
		set("max_total_traffic = ?", *v.MaxTotalTraffic)
	}
	if v.MaxTotalTime != nil {
		set("max_total_time = ?", *v.MaxTotalTime)
	}
	if v.CreatedAt != nil {
		set("created_at = ?", v.CreatedAt.Unix())
	}
	if v.Status != nil {
		set("status = ?", string(*v.Status))
		if v.DeactivatedAt != nil {
			set("deactivated_at = ?", v.DeactivatedAt.Unix())
			set("deactivated_reason = ?", v.DeactivatedReason)
		} else {
			sets = append(sets, "deactivated_at = NULL", "deactivated_reason = NULL")
		}
	}
	return sets, args
}

type sampleRow struct {
	ID             int64 `db:"id"`
	PanelID        int64 `db:"panel_id"`
	TS             int64 `db:"ts"`
	Users          int64 `db:"users"`
	PeakUsers      int64 `db:"peak_users"`
	ActiveUsers    int64 `db:"active_users"`
	ElapsedSeconds int64 `db:"elapsed_seconds"`
	TrafficUsed    int64 `db:"traffic_used"`
}

// AppendSample inserts a usage sample.
func (s *SQLiteStore) AppendSample(ctx context.Context, smp panels.UsageSample) error {
	if smp.Timestamp.IsZero() {
		smp.Timestamp = s.now()
	}
	row := sampleRow{
		PanelID:        smp.PanelID,
		TS:             smp.Timestamp.Unix(),
		Users:          smp.Users,
		PeakUsers:      smp.PeakUsers,
		ActiveUsers:    smp.ActiveUsers,
		ElapsedSeconds: smp.ElapsedSeconds,
		TrafficUsed:    smp.TrafficUsed,
	}
	q := `INSERT INTO usage_samples (panel_id, ts, users, peak_users, active_users, elapsed_seconds, traffic_used)
	VALUES (:panel_id, :ts, :users, :peak_users, :active_users, :elapsed_seconds, :traffic_used)`
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("insert sample for panel %d: %w", smp.PanelID, err)
	}
	return nil
}

// RecentSamples returns up to limit samples for panelID, newest first.
func (s *SQLiteStore) RecentSamples(ctx context.Context, panelID int64, limit int) ([]panels.UsageSample, error) {
	var rows []sampleRow
	q := `SELECT id, panel_id, ts, users, peak_users, active_users, elapsed_seconds, traffic_used
	FROM usage_samples WHERE panel_id = ? ORDER BY ts DESC, id DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, q, panelID, limit); err != nil {
		return nil, fmt.Errorf("list samples for panel %d: %w", panelID, err)
	}
	out := make([]panels.UsageSample, 0, len(rows))
	for _, r := range rows {
		out = append(out, panels.UsageSample{
			ID:             r.ID,
			PanelID:        r.PanelID,
			Timestamp:      time.Unix(r.TS, 0).UTC(),
			Users:          r.Users,
			PeakUsers:      r.PeakUsers,
			ActiveUsers:    r.ActiveUsers,
			ElapsedSeconds: r.ElapsedSeconds,
			TrafficUsed:    r.TrafficUsed,
		})
	}
	return out, nil
}

type logRow struct {
	ID        string `db:"id"`
	PanelID   int64  `db:"panel_id"`
	Action    string `db:"action"`
	Details   string `db:"details"`
	CreatedAt int64  `db:"created_at"`
}

// AppendLog inserts an audit log entry. The entry must carry an id.
func (s *SQLiteStore) AppendLog(ctx context.Context, e panels.LogEntry) error {
	if e.ID == "" {
		return fmt.Errorf("log entry for panel %d has no id", e.PanelID)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	row := logRow{
		ID:        e.ID,
		PanelID:   e.PanelID,
		Action:    e.Action,
		Details:   e.Details,
		CreatedAt: e.CreatedAt.Unix(),
	}
	q := `INSERT INTO audit_logs (id, panel_id, action, details, created_at)
	VALUES (:id, :panel_id, :action, :details, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("insert log for panel %d: %w", e.PanelID, err)
	}
	return nil
}

// RecentLogs returns up to limit log entries for panelID, newest first.
func (s *SQLiteStore) RecentLogs(ctx context.Context, panelID int64, limit int) ([]panels.LogEntry, error) {
	var rows []logRow
	q := `SELECT id, panel_id, action, details, created_at
	FROM audit_logs WHERE panel_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, q, panelID, limit); err != nil {
		return nil, fmt.Errorf("list logs for panel %d: %w", panelID, err)
	}
	out := make([]panels.LogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, panels.LogEntry{
			ID:        r.ID,
			PanelID:   r.PanelID,
			Action:    r.Action,
			Details:   r.Details,
			CreatedAt: time.Unix(r.CreatedAt, 0).UTC(),
		})
	}
	return out, nil
}

// PruneSamples deletes samples taken before the cutoff.
func (s *SQLiteStore) PruneSamples(ctx context.Context, before time.Time) (int64, error) {
	return s.prune(ctx, "DELETE FROM usage_samples WHERE ts < ?", before)
}

// PruneLogs deletes log entries created before the cutoff.
func (s *SQLiteStore) PruneLogs(ctx context.Context, before time.Time) (int64, error) {
	return s.prune(ctx, "DELETE FROM audit_logs WHERE created_at < ?", before)
}

func (s *SQLiteStore) prune(ctx context.Context, q string, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, q, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return result.RowsAffected()
}

var _ panels.Store = (*SQLiteStore)(nil)
