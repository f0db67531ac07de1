package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/mohdragon010/taskflow/domain"
)

const maxFrameSize = 4 * 1024 * 1024

// Watcher is a live view over the signed-in user's tasks. Every server-side
// mutation replaces the whole snapshot.
type Watcher struct {
	cancel context.CancelFunc
	done   chan struct{}

	updates chan []domain.Task

	mu    sync.Mutex
	tasks []domain.Task
	err   error
}

// WatchTasks opens the task stream and returns a Watcher that follows it.
// The first snapshot arrives before any mutations are reflected.
func (c *Client) WatchTasks(ctx context.Context) (*Watcher, error) {
	ctx, cancel := context.WithCancel(ctx)

	url := c.baseURL + "/api/tasks/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	if t := c.Token(); t != "" {
		req.Header.Set("Authorization", "Bearer "+t)
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream rejected with status %d", resp.StatusCode)
	}

	w := &Watcher{
		cancel:  cancel,
		done:    make(chan struct{}),
		updates: make(chan []domain.Task, 1),
	}
	go w.run(ctx, c, resp)
	return w, nil
}

func (w *Watcher) run(ctx context.Context, c *Client, resp *http.Response) {
	defer close(w.done)
	defer close(w.updates)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		tasks, err := parseSnapshot(payload)
		if err != nil {
			c.logger.Errorf("task stream: %v", err)
			w.fail(err)
			return
		}
		w.replace(tasks)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Errorf("task stream closed: %v", err)
		w.fail(err)
	}
}

// parseSnapshot decodes a snapshot frame, validating every document. A single
// malformed document poisons the whole frame.
func parseSnapshot(payload string) ([]domain.Task, error) {
	var docs []map[string]any
	if err := sonic.ConfigStd.Unmarshal([]byte(payload), &docs); err != nil {
		return nil, fmt.Errorf("malformed snapshot: %w", err)
	}
	tasks := make([]domain.Task, 0, len(docs))
	for _, doc := range docs {
		t, err := domain.ParseDocument(doc)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (w *Watcher) replace(tasks []domain.Task) {
	w.mu.Lock()
	w.tasks = tasks
	w.mu.Unlock()
	select {
	case w.updates <- tasks:
	default:
		select {
		case <-w.updates:
		default:
		}
		select {
		case w.updates <- tasks:
		default:
		}
	}
}

func (w *Watcher) fail(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

// Updates delivers each new snapshot. A slow consumer only ever sees the
// latest one. The channel is closed once the stream ends, whether by Close or
// by a failure (check Err to tell the two apart).
func (w *Watcher) Updates() <-chan []domain.Task {
	return w.updates
}

// Snapshot returns a copy of the most recent snapshot.
func (w *Watcher) Snapshot() []domain.Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.Task, len(w.tasks))
	copy(out, w.tasks)
	return out
}

// Err reports why the watcher stopped. Closing the watcher is not an error.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if errors.Is(w.err, context.Canceled) {
		return nil
	}
	return w.err
}

// Close tears the stream down and waits for the reader to exit.
func (w *Watcher) Close() {
	w.cancel()
	<-w.done
}
