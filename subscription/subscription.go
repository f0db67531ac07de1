package subscription

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/mohdragon010/taskflow/domain"
)

// Storage fetches tasks for a user.
type Storage interface {
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
}

// Broadcaster delivers marshaled snapshots to live stream subscribers.
type Broadcaster interface {
	Broadcast(userID string, data []byte)
	CloseUser(userID string)
}

// Run listens for change events and pushes a fresh full snapshot of the
// owner's tasks to their subscribers after every mutation. Sign-out events
// close the user's streams instead. Run blocks until ctx is cancelled.
func Run(ctx context.Context, logger *log.Logger, rc *redis.Client, store Storage, channel string, b Broadcaster) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev domain.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Errorf("unable to parse change event: %v", err)
					continue
				}
				if ev.Type == domain.UserLoggedOut {
					b.CloseUser(ev.UserID)
					continue
				}
				tasks, err := store.FetchTasks(ctx, ev.UserID)
				if err != nil {
					logger.Errorf("fetch tasks: %v", err)
					continue
				}
				data, err := json.Marshal(tasks)
				if err != nil {
					logger.Errorf("marshal tasks: %v", err)
					continue
				}
				b.Broadcast(ev.UserID, data)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
