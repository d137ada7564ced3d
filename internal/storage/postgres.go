package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeai-platform/task-engine/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25 // default
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5 // default
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const taskColumns = `id, owner_id, spec, breakdown, content_check, status, created_at, updated_at`

// CreateTask persists a new task record. The specification and breakdown
// snapshots are stored as JSONB.
func (r *PostgresRepository) CreateTask(ctx context.Context, task *models.Task) error {
	specJSON, err := json.Marshal(task.Spec)
	if err != nil {
		return fmt.Errorf("failed to marshal spec: %w", err)
	}

	breakdownJSON, err := json.Marshal(task.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal breakdown: %w", err)
	}

	var contentJSON []byte
	if task.Content != nil {
		if contentJSON, err = json.Marshal(task.Content); err != nil {
			return fmt.Errorf("failed to marshal content check: %w", err)
		}
	}

	query := `
		INSERT INTO tasks (id, owner_id, spec, breakdown, content_check, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.pool.Exec(ctx, query,
		task.ID,
		task.OwnerID,
		specJSON,
		breakdownJSON,
		contentJSON,
		string(task.Status),
		task.CreatedAt,
		task.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetTask retrieves a task by ID, or (nil, nil) when absent
func (r *PostgresRepository) GetTask(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := r.scanTask(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// UpdateTaskStatus sets the status unconditionally (last write wins) and
// returns the updated snapshot, or (nil, nil) if the task does not exist.
func (r *PostgresRepository) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus, at time.Time) (*models.Task, error) {
	query := `
		UPDATE tasks
		SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + taskColumns

	task, err := r.scanTask(r.pool.QueryRow(ctx, query, id, string(status), at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}

	return task, nil
}

// SetAISuggestion backfills the late-arriving advisor price into the stored
// breakdown snapshot. The deterministic fields are never rewritten.
func (r *PostgresRepository) SetAISuggestion(ctx context.Context, id, price string) error {
	query := `
		UPDATE tasks
		SET breakdown = jsonb_set(breakdown, '{ai_suggested_price}', to_jsonb($2::text))
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, price)
	if err != nil {
		return fmt.Errorf("failed to set ai suggestion: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("task not found: %s", id)
	}

	return nil
}

// SetContentCheck stores the advisory content-check result on the task.
func (r *PostgresRepository) SetContentCheck(ctx context.Context, id string, check models.ContentCheck) error {
	checkJSON, err := json.Marshal(check)
	if err != nil {
		return fmt.Errorf("failed to marshal content check: %w", err)
	}

	query := `UPDATE tasks SET content_check = $2 WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, checkJSON)
	if err != nil {
		return fmt.Errorf("failed to set content check: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("task not found: %s", id)
	}

	return nil
}

// ListTasks returns tasks matching the filters, newest first
func (r *PostgresRepository) ListTasks(ctx context.Context, filters models.ListFilters) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := make([]interface{}, 0)
	argNum := 1

	if filters.OwnerID != "" {
		query += fmt.Sprintf(" AND owner_id = $%d", argNum)
		args = append(args, filters.OwnerID)
		argNum++
	}

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(filters.Status))
		argNum++
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task

	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// scanTask reads one task row from either a Row or Rows cursor.
func (r *PostgresRepository) scanTask(row pgx.Row) (*models.Task, error) {
	var task models.Task
	var statusStr string
	var specJSON, breakdownJSON []byte
	var contentJSON []byte

	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&specJSON,
		&breakdownJSON,
		&contentJSON,
		&statusStr,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = models.TaskStatus(statusStr)

	if err := json.Unmarshal(specJSON, &task.Spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal spec: %w", err)
	}

	if err := json.Unmarshal(breakdownJSON, &task.Breakdown); err != nil {
		return nil, fmt.Errorf("failed to unmarshal breakdown: %w", err)
	}

	if len(contentJSON) > 0 {
		var check models.ContentCheck
		if err := json.Unmarshal(contentJSON, &check); err != nil {
			return nil, fmt.Errorf("failed to unmarshal content check: %w", err)
		}
		task.Content = &check
	}

	return &task, nil
}

// GetPrincipalByAPIKey retrieves a principal by API key, or (nil, nil) when
// the key is unknown
func (r *PostgresRepository) GetPrincipalByAPIKey(ctx context.Context, apiKey string) (*models.Principal, error) {
	query := `
		SELECT id, name, api_key, is_admin, is_active, created_at, last_used_at
		FROM principals
		WHERE api_key = $1
	`

	var p models.Principal
	var lastUsedAt sql.NullTime

	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&p.ID,
		&p.Name,
		&p.APIKey,
		&p.IsAdmin,
		&p.IsActive,
		&p.CreatedAt,
		&lastUsedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}

	if lastUsedAt.Valid {
		p.LastUsedAt = &lastUsedAt.Time
	}

	return &p, nil
}

// UpdatePrincipalLastUsed touches the last_used_at timestamp for an API key
func (r *PostgresRepository) UpdatePrincipalLastUsed(ctx context.Context, apiKey string) error {
	query := `UPDATE principals SET last_used_at = NOW() WHERE api_key = $1`

	if _, err := r.pool.Exec(ctx, query, apiKey); err != nil {
		return fmt.Errorf("failed to update principal last_used_at: %w", err)
	}

	return nil
}
