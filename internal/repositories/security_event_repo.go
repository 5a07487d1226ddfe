package repositories

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chatforge/authkit/internal/database"
	"github.com/chatforge/authkit/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SecurityEventRepository is the append-only audit store. It exposes Create
// and read paths only; no update or delete exists.
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

const securityEventColumns = `id, event_type, user_id, email, session_id, ip_address,
       user_agent, risk_level, success, details, created_at`

func scanSecurityEventRow(scanner rowScanner) (*models.SecurityEvent, error) {
	var e models.SecurityEvent
	var riskLevel string

	err := scanner.Scan(
		&e.ID, &e.EventType, &e.UserID, &e.Email, &e.SessionID, &e.IPAddress,
		&e.UserAgent, &riskLevel, &e.Success, &e.Details, &e.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	e.RiskLevel = models.RiskLevel(riskLevel)
	return &e, nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)

	for rows.Next() {
		e, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}

// Create appends a security event
func (r *SecurityEventRepository) Create(ctx context.Context, e *models.SecurityEvent) (*models.SecurityEvent, error) {
	query := `
		INSERT INTO security_events (
			event_type, user_id, email, session_id, ip_address, user_agent,
			risk_level, success, details
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + securityEventColumns

	return scanSecurityEventRow(r.pool.QueryRow(ctx, query,
		e.EventType, e.UserID, e.Email, e.SessionID, e.IPAddress, e.UserAgent,
		string(e.RiskLevel), e.Success, e.Details,
	))
}

// Query returns events matching the filter, newest first
func (r *SecurityEventRepository) Query(ctx context.Context, filter models.EventFilter) ([]*models.SecurityEvent, error) {
	var conditions []string
	var args []interface{}

	addCondition := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, clause+"$"+strconv.Itoa(len(args)))
	}

	if filter.UserID != "" {
		addCondition("user_id = ", filter.UserID)
	}
	if filter.EventType != "" {
		addCondition("event_type = ", filter.EventType)
	}
	if filter.RiskLevel != "" {
		addCondition("risk_level = ", string(filter.RiskLevel))
	}
	if !filter.From.IsZero() {
		addCondition("created_at >= ", filter.From)
	}
	if !filter.To.IsZero() {
		addCondition("created_at < ", filter.To)
	}

	query := `SELECT ` + securityEventColumns + ` FROM security_events`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += " LIMIT $" + strconv.Itoa(len(args))

	args = append(args, filter.Offset)
	query += " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}
