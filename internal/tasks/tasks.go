// Package tasks implements the to-do CRUD against the remote tree store.
// Every authenticated call goes through the operation executor so it gets
// the uniform token-refresh-and-retry policy; results are mirrored into the
// local cache for offline listing.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okarro/taskmaster/internal/firebase"
	"github.com/okarro/taskmaster/internal/session"
	"github.com/okarro/taskmaster/internal/storage"
)

// Task is one to-do item as stored at tasks/<uid>/<id>.
type Task struct {
	ID        string `json:"-"`
	Title     string `json:"title"`
	Notes     string `json:"description,omitempty"`
	DueDate   string `json:"due_date,omitempty"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ErrNotLoggedIn is returned when a task operation runs without a session.
var ErrNotLoggedIn = errors.New("not logged in")

// Service runs task operations for the active session's user.
type Service struct {
	data     firebase.DataClient
	exec     *firebase.Executor
	limiter  firebase.Limiter
	sessions *session.Manager
	cache    *storage.Cache
	now      func() time.Time
}

// NewService wires the task CRUD. limiter and cache may be nil.
func NewService(data firebase.DataClient, exec *firebase.Executor, limiter firebase.Limiter, sessions *session.Manager, cache *storage.Cache) *Service {
	return &Service{
		data:     data,
		exec:     exec,
		limiter:  limiter,
		sessions: sessions,
		cache:    cache,
		now:      time.Now,
	}
}

func userPath(uid string) string {
	return "tasks/" + uid
}

func taskPath(uid, id string) string {
	return "tasks/" + uid + "/" + id
}

// run dispatches op under the executor's auth policy. Guest sessions have no
// token lifecycle; their calls go out unauthenticated, but still pass the
// rate limiter.
func (s *Service) run(ctx context.Context, op firebase.Operation) error {
	sess := s.sessions.Current()
	if sess == nil {
		return ErrNotLoggedIn
	}
	if sess.IsGuest {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return op(ctx, "")
	}
	return s.exec.Execute(ctx, op)
}

// List returns the user's tasks sorted by creation time. When the backend is
// unreachable it falls back to the local cache; auth failures do not fall
// back, they surface so the app can route to login.
func (s *Service) List(ctx context.Context) ([]Task, error) {
	sess := s.sessions.Current()
	if sess == nil {
		return nil, ErrNotLoggedIn
	}

	var raw json.RawMessage
	err := s.run(ctx, func(ctx context.Context, token string) error {
		var opErr error
		raw, opErr = s.data.Get(ctx, userPath(sess.UserID), token)
		return opErr
	})
	if err != nil {
		if firebase.IsNetwork(err) && s.cache != nil {
			log.Warn().Err(err).Msg("backend unreachable, listing tasks from cache")
			return s.listCached(sess.UserID)
		}
		return nil, err
	}

	tasks, err := decodeTaskTree(raw)
	if err != nil {
		return nil, err
	}
	s.mirror(sess.UserID, tasks)
	return tasks, nil
}

// Add stores a new task and returns it with the server-generated key.
func (s *Service) Add(ctx context.Context, title, notes, dueDate string) (*Task, error) {
	sess := s.sessions.Current()
	if sess == nil {
		return nil, ErrNotLoggedIn
	}

	task := Task{
		Title:     title,
		Notes:     notes,
		DueDate:   dueDate,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	err := s.run(ctx, func(ctx context.Context, token string) error {
		key, opErr := s.data.Push(ctx, userPath(sess.UserID), &task, token)
		if opErr != nil {
			return opErr
		}
		task.ID = key
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(&task); err == nil {
			if err := s.cache.Put(sess.UserID, task.ID, payload); err != nil {
				log.Warn().Err(err).Msg("failed to cache new task")
			}
		}
	}
	return &task, nil
}

// Update patches the given fields of a task.
func (s *Service) Update(ctx context.Context, id string, fields map[string]any) error {
	sess := s.sessions.Current()
	if sess == nil {
		return ErrNotLoggedIn
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["updated_at"] = s.now().UTC().Format(time.RFC3339)
	return s.run(ctx, func(ctx context.Context, token string) error {
		return s.data.Update(ctx, taskPath(sess.UserID, id), fields, token)
	})
}

// Complete marks a task done.
func (s *Service) Complete(ctx context.Context, id string) error {
	return s.Update(ctx, id, map[string]any{"completed": true})
}

// Remove deletes a task.
func (s *Service) Remove(ctx context.Context, id string) error {
	sess := s.sessions.Current()
	if sess == nil {
		return ErrNotLoggedIn
	}
	err := s.run(ctx, func(ctx context.Context, token string) error {
		return s.data.Remove(ctx, taskPath(sess.UserID, id), token)
	})
	if err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Delete(sess.UserID, id); err != nil {
			log.Warn().Err(err).Msg("failed to drop cached task")
		}
	}
	return nil
}

// RemoveUserData wipes everything stored for userID. It implements
// session.GuestCleaner for guest logout and also backs account deletion.
// It goes to the data client directly: by the time a guest session is being
// cleared there is no token to present.
func (s *Service) RemoveUserData(ctx context.Context, userID string) error {
	if err := s.data.Remove(ctx, userPath(userID), ""); err != nil {
		return fmt.Errorf("failed to remove remote data for %s: %w", userID, err)
	}
	if s.cache != nil {
		if err := s.cache.Purge(userID); err != nil {
			log.Warn().Err(err).Msg("failed to purge cached tasks")
		}
	}
	return nil
}

func (s *Service) listCached(userID string) ([]Task, error) {
	cached, err := s.cache.Get(userID)
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(cached))
	for _, ct := range cached {
		var t Task
		if err := json.Unmarshal(ct.Payload, &t); err != nil {
			log.Warn().Err(err).Str("taskId", ct.TaskID).Msg("skipping unreadable cached task")
			continue
		}
		t.ID = ct.TaskID
		tasks = append(tasks, t)
	}
	sortTasks(tasks)
	return tasks, nil
}

func (s *Service) mirror(userID string, tasks []Task) {
	if s.cache == nil {
		return
	}
	cached := make([]storage.CachedTask, 0, len(tasks))
	for _, t := range tasks {
		payload, err := json.Marshal(&t)
		if err != nil {
			continue
		}
		cached = append(cached, storage.CachedTask{TaskID: t.ID, Payload: payload})
	}
	if err := s.cache.Replace(userID, cached); err != nil {
		log.Warn().Err(err).Msg("failed to mirror tasks into cache")
	}
}

// decodeTaskTree parses the tree store's map-of-key-to-task response. The
// backend returns literal null for an empty path.
func decodeTaskTree(raw json.RawMessage) ([]Task, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var tree map[string]Task
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode task list: %w", err)
	}
	tasks := make([]Task, 0, len(tree))
	for id, t := range tree {
		t.ID = id
		tasks = append(tasks, t)
	}
	sortTasks(tasks)
	return tasks, nil
}

func sortTasks(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt != tasks[j].CreatedAt {
			return tasks[i].CreatedAt < tasks[j].CreatedAt
		}
		return tasks[i].ID < tasks[j].ID
	})
}
