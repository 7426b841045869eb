package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shohag/hookwave/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS webhook_events (
			id TEXT PRIMARY KEY,
			gateway TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'pending',
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 3,
			organization_id TEXT NOT NULL DEFAULT '',
			last_error TEXT NOT NULL DEFAULT '',
			processed_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS channel_configs (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			gateway TEXT NOT NULL,
			phone_number TEXT NOT NULL UNIQUE,
			session TEXT NOT NULL DEFAULT '',
			reply_enabled INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_logs (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL REFERENCES webhook_events(id) ON DELETE CASCADE,
			level TEXT NOT NULL DEFAULT 'info',
			message TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_status ON webhook_events(status)`,
		`CREATE INDEX IF NOT EXISTS idx_events_gateway ON webhook_events(gateway, event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_org ON webhook_events(organization_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_retry ON webhook_events(status, retry_count) WHERE status = 'failed'`,
		`CREATE INDEX IF NOT EXISTS idx_channels_phone ON channel_configs(phone_number)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_event ON webhook_logs(event_id)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Webhook events ---

const eventColumns = `id, gateway, event_type, payload, status, retry_count, max_retries, organization_id, last_error, processed_at, created_at, updated_at`

func (s *SQLiteStorage) CreateWebhookEvent(ctx context.Context, ev *models.WebhookEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Gateway, ev.EventType, string(ev.Payload), ev.Status, ev.RetryCount, ev.MaxRetries,
		ev.OrganizationID, ev.LastError, ev.ProcessedAt, ev.CreatedAt, ev.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanEvent(row interface{ Scan(...interface{}) error }) (*models.WebhookEvent, error) {
	var ev models.WebhookEvent
	var payload string
	var processedAt sql.NullTime
	err := row.Scan(&ev.ID, &ev.Gateway, &ev.EventType, &payload, &ev.Status, &ev.RetryCount, &ev.MaxRetries,
		&ev.OrganizationID, &ev.LastError, &processedAt, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ev.Payload = json.RawMessage(payload)
	if processedAt.Valid {
		t := processedAt.Time
		ev.ProcessedAt = &t
	}
	ev.CanRetryNow = ev.CanRetry()
	return &ev, nil
}

func (s *SQLiteStorage) GetWebhookEvent(ctx context.Context, id string) (*models.WebhookEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM webhook_events WHERE id = ?`, id)
	ev, err := s.scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ev, err
}

func (s *SQLiteStorage) ListWebhookEvents(ctx context.Context, f EventFilter) ([]models.WebhookEvent, error) {
	var where []string
	var args []interface{}

	if f.Gateway != "" {
		where = append(where, "gateway = ?")
		args = append(args, f.Gateway)
	}
	if f.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.EventType)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.OrganizationID != "" {
		where = append(where, "organization_id = ?")
		args = append(args, f.OrganizationID)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, f.Until)
	}

	query := `SELECT ` + eventColumns + ` FROM webhook_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.WebhookEvent
	for rows.Next() {
		ev, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStorage) UpdateWebhookEvent(ctx context.Context, ev *models.WebhookEvent) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhook_events SET gateway = ?, event_type = ?, payload = ?, max_retries = ?, organization_id = ?, updated_at = ? WHERE id = ?`,
		ev.Gateway, ev.EventType, string(ev.Payload), ev.MaxRetries, ev.OrganizationID, time.Now().UTC(), ev.ID,
	)
	return err
}

func (s *SQLiteStorage) DeleteWebhookEvent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE id = ?`, id)
	return err
}

func (s *SQLiteStorage) ClaimWebhookEvent(ctx context.Context, id string, from models.EventStatus, incrementRetry bool) (bool, error) {
	var res sql.Result
	var err error
	if incrementRetry {
		res, err = s.db.ExecContext(ctx,
			`UPDATE webhook_events SET status = ?, retry_count = retry_count + 1, updated_at = ?
			 WHERE id = ? AND status = ? AND retry_count < max_retries`,
			models.EventProcessing, time.Now().UTC(), id, from,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE webhook_events SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			models.EventProcessing, time.Now().UTC(), id, from,
		)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStorage) MarkWebhookEventCompleted(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhook_events SET status = ?, last_error = '', processed_at = ?, updated_at = ? WHERE id = ?`,
		models.EventCompleted, at, at, id,
	)
	return err
}

func (s *SQLiteStorage) MarkWebhookEventFailed(ctx context.Context, id, lastError string) error {
	// An event whose retry budget is spent goes straight to dead.
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhook_events
		 SET status = CASE WHEN retry_count >= max_retries THEN 'dead' ELSE 'failed' END,
		     last_error = ?, updated_at = ?
		 WHERE id = ?`,
		lastError, time.Now().UTC(), id,
	)
	return err
}

func (s *SQLiteStorage) ListRetryEligible(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM webhook_events
		 WHERE status = 'failed' AND retry_count < max_retries
		 ORDER BY updated_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.WebhookEvent
	for rows.Next() {
		ev, err := s.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// --- Stats ---

func (s *SQLiteStorage) GetEventStats(ctx context.Context, f StatsFilter) (*EventStats, error) {
	var where []string
	var args []interface{}

	if f.Gateway != "" {
		where = append(where, "gateway = ?")
		args = append(args, f.Gateway)
	}
	if f.OrganizationID != "" {
		where = append(where, "organization_id = ?")
		args = append(args, f.OrganizationID)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, f.Until)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	stats := &EventStats{
		ByGateway:   map[string]int64{},
		ByEventType: map[string]int64{},
	}

	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'dead' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'failed' AND retry_count < max_retries THEN 1 ELSE 0 END), 0)
		FROM webhook_events%s`, clause), args...,
	).Scan(&stats.Total, &stats.Pending, &stats.Processing, &stats.Completed, &stats.Failed, &stats.Dead, &stats.RetryEligible)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT gateway, COUNT(*) FROM webhook_events%s GROUP BY gateway`, clause), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var gateway string
		var count int64
		if err := rows.Scan(&gateway, &count); err != nil {
			return nil, err
		}
		stats.ByGateway[gateway] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	typeRows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT event_type, COUNT(*) FROM webhook_events%s GROUP BY event_type`, clause), args...)
	if err != nil {
		return nil, err
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var eventType string
		var count int64
		if err := typeRows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		stats.ByEventType[eventType] = count
	}
	if err := typeRows.Err(); err != nil {
		return nil, err
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(stats.Total) * 100
	}
	return stats, nil
}

// --- Channel configs ---

const channelColumns = `id, organization_id, gateway, phone_number, session, reply_enabled, created_at, updated_at`

func (s *SQLiteStorage) CreateChannel(ctx context.Context, ch *models.ChannelConfig) error {
	enabled := 0
	if ch.ReplyEnabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_configs (`+channelColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.OrganizationID, ch.Gateway, ch.PhoneNumber, ch.Session, enabled, ch.CreatedAt, ch.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanChannel(row interface{ Scan(...interface{}) error }) (*models.ChannelConfig, error) {
	var ch models.ChannelConfig
	var enabled int
	err := row.Scan(&ch.ID, &ch.OrganizationID, &ch.Gateway, &ch.PhoneNumber, &ch.Session, &enabled, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ch.ReplyEnabled = enabled == 1
	return &ch, nil
}

func (s *SQLiteStorage) GetChannel(ctx context.Context, id string) (*models.ChannelConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channel_configs WHERE id = ?`, id)
	ch, err := s.scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ch, err
}

func (s *SQLiteStorage) GetChannelByPhone(ctx context.Context, phone string) (*models.ChannelConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channel_configs WHERE phone_number = ?`, phone)
	ch, err := s.scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ch, err
}

func (s *SQLiteStorage) ListChannels(ctx context.Context, organizationID string) ([]models.ChannelConfig, error) {
	query := `SELECT ` + channelColumns + ` FROM channel_configs ORDER BY created_at DESC`
	var args []interface{}
	if organizationID != "" {
		query = `SELECT ` + channelColumns + ` FROM channel_configs WHERE organization_id = ? ORDER BY created_at DESC`
		args = append(args, organizationID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.ChannelConfig
	for rows.Next() {
		ch, err := s.scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

func (s *SQLiteStorage) DeleteChannel(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM channel_configs WHERE id = ?`, id)
	return err
}

// --- Processing logs ---

func (s *SQLiteStorage) AppendWebhookLog(ctx context.Context, l *models.WebhookLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_logs (id, event_id, level, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		l.ID, l.EventID, l.Level, l.Message, l.CreatedAt,
	)
	return err
}

func (s *SQLiteStorage) ListWebhookLogs(ctx context.Context, eventID string) ([]models.WebhookLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, level, message, created_at FROM webhook_logs WHERE event_id = ? ORDER BY created_at ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.WebhookLog
	for rows.Next() {
		var l models.WebhookLog
		if err := rows.Scan(&l.ID, &l.EventID, &l.Level, &l.Message, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
