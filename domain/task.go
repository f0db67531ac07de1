package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Task is a single to-do item owned by exactly one user. ID and CreatedAt are
// assigned by the store on creation and never change afterwards.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskPatch carries the fields of a partial update. Nil fields are left
// untouched by the store.
type TaskPatch struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

var (
	ErrEmptyTitle      = errors.New("title must not be empty")
	ErrInvalidDocument = errors.New("invalid task document")
	ErrTaskNotFound    = errors.New("task not found")
)

// NormalizeTitle trims surrounding whitespace and rejects empty titles.
func NormalizeTitle(title string) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", ErrEmptyTitle
	}
	return trimmed, nil
}

// ParseDocument converts a schemaless store document into a validated Task.
// The store imposes no structure, so every required field is checked here
// before the document is allowed into the rest of the program.
func ParseDocument(doc map[string]any) (Task, error) {
	id, ok := doc["id"].(string)
	if !ok || id == "" {
		return Task{}, fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}
	userID, ok := doc["userId"].(string)
	if !ok || userID == "" {
		return Task{}, fmt.Errorf("%w: missing userId", ErrInvalidDocument)
	}
	rawTitle, ok := doc["title"].(string)
	if !ok {
		return Task{}, fmt.Errorf("%w: missing title", ErrInvalidDocument)
	}
	title, err := NormalizeTitle(rawTitle)
	if err != nil {
		return Task{}, fmt.Errorf("%w: blank title", ErrInvalidDocument)
	}
	completed := false
	if v, present := doc["completed"]; present {
		completed, ok = v.(bool)
		if !ok {
			return Task{}, fmt.Errorf("%w: completed is not a boolean", ErrInvalidDocument)
		}
	}
	var createdAt time.Time
	if v, present := doc["createdAt"]; present {
		s, ok := v.(string)
		if !ok {
			return Task{}, fmt.Errorf("%w: createdAt is not a timestamp", ErrInvalidDocument)
		}
		createdAt, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Task{}, fmt.Errorf("%w: createdAt is not a timestamp", ErrInvalidDocument)
		}
	}
	return Task{
		ID:        id,
		Title:     title,
		Completed: completed,
		UserID:    userID,
		CreatedAt: createdAt,
	}, nil
}

// SortByCreatedAt orders tasks newest first. Tasks sharing a timestamp keep
// their relative order.
func SortByCreatedAt(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}
