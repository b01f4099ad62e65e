package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"busybee/internal/logger"
	"busybee/internal/schema"
	"busybee/internal/task"
)

var ErrNotFound = errors.New("task not found")

const (
	selectByCompletion = `SELECT id, title, description, completed FROM tasks WHERE completed = ? ORDER BY id`
	selectByID         = `SELECT id, title, description, completed FROM tasks WHERE id = ?`
	insertTask         = `INSERT INTO tasks (title, description) VALUES (?, ?)`
	updateTask         = `UPDATE tasks SET title = ?, description = ?, completed = ? WHERE id = ?`
	deleteTask         = `DELETE FROM tasks WHERE id = ?`
)

// Source hands out the live connection. *database.Accessor satisfies it.
type Source interface {
	DB(ctx context.Context) (*sql.DB, error)
}

// TaskRepository is the typed CRUD client over the tasks table. It borrows
// connections from the source and never closes them. Statements are
// prepared per connection, so a reset of the source is picked up on the
// next call.
type TaskRepository struct {
	source Source
	log    logger.Logger

	mu    sync.Mutex
	db    *sql.DB
	stmts *statements
}

type statements struct {
	byCompletion *sql.Stmt
	byID         *sql.Stmt
	insert       *sql.Stmt
	update       *sql.Stmt
	remove       *sql.Stmt
}

func NewTaskRepository(ctx context.Context, source Source, log logger.Logger) (*TaskRepository, error) {
	r := &TaskRepository{source: source, log: log}
	if _, _, err := r.prepared(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// prepared returns the current connection with statements prepared on it.
func (r *TaskRepository) prepared(ctx context.Context) (*sql.DB, *statements, error) {
	db, err := r.source.DB(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("repository: acquire connection: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stmts != nil && r.db == db {
		return db, r.stmts, nil
	}
	if r.stmts != nil {
		// The old connection is gone; closing its statements only frees memory.
		_ = r.stmts.close()
		r.log.Debug("repository: connection replaced, re-preparing statements")
	}

	stmts, err := prepare(ctx, db)
	if err != nil {
		r.db, r.stmts = nil, nil
		return nil, nil, err
	}
	r.db, r.stmts = db, stmts
	r.log.Debug("repository: statements prepared")
	return db, stmts, nil
}

func prepare(ctx context.Context, db *sql.DB) (*statements, error) {
	s := &statements{}
	targets := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.byCompletion, selectByCompletion},
		{&s.byID, selectByID},
		{&s.insert, insertTask},
		{&s.update, updateTask},
		{&s.remove, deleteTask},
	}
	for _, t := range targets {
		stmt, err := db.PrepareContext(ctx, t.query)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("repository: prepare %q: %w", t.query, err)
		}
		*t.dst = stmt
	}
	return s, nil
}

func (s *statements) close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{s.byCompletion, s.byID, s.insert, s.update, s.remove} {
		if stmt != nil {
			errs = append(errs, stmt.Close())
		}
	}
	return errors.Join(errs...)
}

func (r *TaskRepository) GetAll(ctx context.Context, completed bool) ([]task.Task, error) {
	log := logger.FromContext(ctx).With("where", "repository")
	log.Debug("repository: getting all tasks", "completed", completed)

	_, stmts, err := r.prepared(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := stmts.byCompletion.QueryContext(ctx, boolToInt(completed))
	if err != nil {
		return nil, fmt.Errorf("repository: query tasks: %w", err)
	}
	defer rows.Close()

	var raw []map[string]any
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: scan task: %w", err)
		}
		raw = append(raw, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: iterate tasks: %w", err)
	}

	tasks, err := schema.ParseList(raw)
	if err != nil {
		return nil, storedRowError(err)
	}

	log.Debug("repository: tasks retrieved", "count", len(tasks))
	return tasks, nil
}

// GetByID reports a missing row with ok=false rather than an error.
func (r *TaskRepository) GetByID(ctx context.Context, id int64) (task.Task, bool, error) {
	log := logger.FromContext(ctx).With("where", "repository")
	log.Debug("repository: getting task by id", "id", id)

	_, stmts, err := r.prepared(ctx)
	if err != nil {
		return task.Task{}, false, err
	}
	return r.get(ctx, stmts.byID, id)
}

// Create inserts a task. The generated id is not returned; callers re-query.
func (r *TaskRepository) Create(ctx context.Context, payload task.CreateTask) error {
	log := logger.FromContext(ctx).With("where", "repository")
	log.Debug("repository: creating task", "title", payload.Title)

	_, stmts, err := r.prepared(ctx)
	if err != nil {
		return err
	}
	if _, err := stmts.insert.ExecContext(ctx, payload.Title, payload.Description); err != nil {
		return fmt.Errorf("repository: insert task: %w", err)
	}

	log.Debug("repository: task created")
	return nil
}

// Update reads the current row, overlays the supplied fields and writes the
// whole merged row back, all in one transaction.
func (r *TaskRepository) Update(ctx context.Context, id int64, patch task.UpdateTask) error {
	log := logger.FromContext(ctx).With("where", "repository")
	log.Debug("repository: updating task", "id", id)

	db, stmts, err := r.prepared(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin update: %w", err)
	}
	defer tx.Rollback()

	previous, ok, err := r.get(ctx, tx.StmtContext(ctx, stmts.byID), id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	merged := merge(previous, patch)
	_, err = tx.StmtContext(ctx, stmts.update).ExecContext(ctx,
		merged.Title, merged.Description, boolToInt(merged.Completed), id)
	if err != nil {
		return fmt.Errorf("repository: update task %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: commit update %d: %w", id, err)
	}

	log.Debug("repository: task updated", "id", id)
	return nil
}

// Delete removes the row if present. A missing id is not an error here.
func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	log := logger.FromContext(ctx).With("where", "repository")
	log.Debug("repository: deleting task", "id", id)

	_, stmts, err := r.prepared(ctx)
	if err != nil {
		return err
	}
	res, err := stmts.remove.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("repository: delete task %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		log.Debug("repository: task deleted", "id", id, "rows", n)
	}
	return nil
}

func (r *TaskRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stmts == nil {
		return nil
	}
	err := r.stmts.close()
	r.db, r.stmts = nil, nil
	return err
}

func (r *TaskRepository) get(ctx context.Context, stmt *sql.Stmt, id int64) (task.Task, bool, error) {
	row, err := scanRow(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, false, nil
	}
	if err != nil {
		return task.Task{}, false, fmt.Errorf("repository: get task %d: %w", id, err)
	}

	t, err := schema.ParseTask(row)
	if err != nil {
		return task.Task{}, false, storedRowError(err)
	}
	return t, true, nil
}

func merge(previous task.Task, patch task.UpdateTask) task.Task {
	merged := previous
	if patch.Title != nil {
		merged.Title = *patch.Title
	}
	if patch.Description != nil {
		merged.Description = patch.Description
	}
	if patch.Completed != nil {
		merged.Completed = *patch.Completed
	}
	return merged
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRow reads one row into the loose shape the schema coerces. completed
// arrives as bool or as 0/1 depending on the driver.
func scanRow(s scanner) (map[string]any, error) {
	var (
		id          int64
		title       sql.NullString
		description sql.NullString
		completed   any
	)
	if err := s.Scan(&id, &title, &description, &completed); err != nil {
		return nil, err
	}

	row := map[string]any{"id": id, "completed": completed}
	if title.Valid {
		row["title"] = title.String
	}
	if description.Valid {
		row["description"] = description.String
	}
	return row, nil
}

// storedRowError keeps a bad stored row from surfacing as a client
// validation failure.
func storedRowError(err error) error {
	return fmt.Errorf("repository: stored task is invalid: %s", err.Error())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
