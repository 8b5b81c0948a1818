// Package storage holds the local sqlite cache that mirrors the last tasks
// synced from the backend, so the task list stays readable when the backend
// is unreachable.
package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// CachedTask is one task payload as last seen from the backend.
type CachedTask struct {
	TaskID    string
	Payload   []byte
	UpdatedAt time.Time
}

// Cache is a sqlite-backed per-user task mirror.
type Cache struct {
	db *sql.DB
	mu sync.RWMutex
}

func NewCache(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	c := &Cache{db: db}
	if err := c.init(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS task_cache (
		user_id    TEXT NOT NULL,
		task_id    TEXT NOT NULL,
		payload    TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, task_id)
	);
	`
	if _, err := c.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create task_cache table: %w", err)
	}
	return nil
}

// Replace swaps the cached set for userID with tasks in one transaction.
func (c *Cache) Replace(userID string, tasks []CachedTask) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM task_cache WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to clear cached tasks: %w", err)
	}

	now := time.Now()
	for _, t := range tasks {
		if _, err := tx.Exec(
			"INSERT INTO task_cache (user_id, task_id, payload, updated_at) VALUES (?, ?, ?, ?)",
			userID, t.TaskID, string(t.Payload), now,
		); err != nil {
			return fmt.Errorf("failed to cache task %s: %w", t.TaskID, err)
		}
	}
	return tx.Commit()
}

// Put upserts a single task payload.
func (c *Cache) Put(userID, taskID string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(`
		INSERT INTO task_cache (user_id, task_id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, task_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, userID, taskID, string(payload), time.Now())
	if err != nil {
		return fmt.Errorf("failed to cache task: %w", err)
	}
	return nil
}

// Get returns the cached tasks for userID, oldest first.
func (c *Cache) Get(userID string) ([]CachedTask, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(
		"SELECT task_id, payload, updated_at FROM task_cache WHERE user_id = ? ORDER BY task_id",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached tasks: %w", err)
	}
	defer rows.Close()

	var tasks []CachedTask
	for rows.Next() {
		var t CachedTask
		var payload string
		if err := rows.Scan(&t.TaskID, &payload, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cached task: %w", err)
		}
		t.Payload = []byte(payload)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Delete removes one cached task.
func (c *Cache) Delete(userID, taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM task_cache WHERE user_id = ? AND task_id = ?", userID, taskID); err != nil {
		return fmt.Errorf("failed to delete cached task: %w", err)
	}
	return nil
}

// Purge removes everything cached for userID. Used when a guest session is
// cleared or an account deleted.
func (c *Cache) Purge(userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM task_cache WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to purge cached tasks: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}
