package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
)

// SnapshotBroker routes marshaled task snapshots to the live stream
// subscribers of each user. Closing a user tears down all of their streams.
type SnapshotBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

// NewSnapshotBroker creates an empty broker.
func NewSnapshotBroker() *SnapshotBroker {
	return &SnapshotBroker{subs: make(map[string]map[chan []byte]struct{})}
}

// Subscribe registers a new stream for the user and returns its channel.
func (b *SnapshotBroker) Subscribe(userID string) chan []byte {
	ch := make(chan []byte, 1)
	b.mu.Lock()
	set, ok := b.subs[userID]
	if !ok {
		set = make(map[chan []byte]struct{})
		b.subs[userID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a stream. The channel is not closed; the caller simply
// stops reading from it.
func (b *SnapshotBroker) Unsubscribe(userID string, ch chan []byte) {
	b.mu.Lock()
	if set, ok := b.subs[userID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(b.subs, userID)
		}
	}
	b.mu.Unlock()
}

// Broadcast delivers a snapshot to every subscriber of the user. A slow
// subscriber's stale pending snapshot is replaced rather than queued behind.
func (b *SnapshotBroker) Broadcast(userID string, data []byte) {
	b.mu.Lock()
	for ch := range b.subs[userID] {
		select {
		case ch <- data:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- data:
			default:
			}
		}
	}
	b.mu.Unlock()
}

// CloseUser closes every stream of the user. No further snapshots are
// delivered until a new subscription is made.
func (b *SnapshotBroker) CloseUser(userID string) {
	b.mu.Lock()
	for ch := range b.subs[userID] {
		close(ch)
	}
	delete(b.subs, userID)
	b.mu.Unlock()
}

func streamTasks(store Store, auth Authenticator, broker *SnapshotBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := c.QueryParam("token")
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		ctx := c.Request().Context()
		p, err := auth.Principal(ctx, authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		// Subscribe before the initial fetch so a change broadcast during the
		// fetch is buffered and supersedes the possibly stale first frame.
		ch := broker.Subscribe(p.UserID)
		defer broker.Unsubscribe(p.UserID, ch)

		tasks, err := store.FetchTasks(ctx, p.UserID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to load tasks")
		}
		data, err := json.Marshal(tasks)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to encode tasks")
		}

		if err := writeSnapshot(c, flusher, data); err != nil {
			return nil
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case data, ok := <-ch:
				if !ok {
					// Session terminated; the stream ends here.
					return nil
				}
				if err := writeSnapshot(c, flusher, data); err != nil {
					return nil
				}
			}
		}
	}
}

func writeSnapshot(c echo.Context, flusher http.Flusher, data []byte) error {
	if _, err := c.Response().Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := c.Response().Write(data); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
