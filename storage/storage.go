package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"

	"github.com/mohdragon010/taskflow/domain"
)

// Storage provides access to underlying persistence mechanisms. Tasks are
// partitioned by owner, accounts by email. The events queue is optional and
// feeds downstream consumers with change notifications.
type Storage struct {
	taskTable    *aztables.Client
	accountTable *aztables.Client
	eventQueue   *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string. An empty
// eventsQueue name disables the durable event feed.
func New(connStr, tasksTable, accountsTable, eventsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	s := &Storage{
		taskTable:    svc.NewClient(tasksTable),
		accountTable: svc.NewClient(accountsTable),
	}
	if eventsQueue != "" {
		queueClientOptions := azqueue.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry: policy.RetryOptions{
					MaxRetries:    5,
					TryTimeout:    time.Minute * 5,
					RetryDelay:    time.Second * 1,
					MaxRetryDelay: time.Second * 60,
					StatusCodes:   []int{408, 429, 500, 502, 503, 504},
				},
			},
		}
		eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
		if err != nil {
			return nil, err
		}
		s.eventQueue = eq
	}
	return s, nil
}

type taskEntity struct {
	aztables.Entity
	Title     string `json:"Title"`
	Completed bool   `json:"Completed"`
	CreatedAt string `json:"CreatedAt"`
}

// CreateTask inserts a new task for the given owner. The store assigns the id
// and the creation timestamp; the caller never supplies either.
func (s *Storage) CreateTask(ctx context.Context, userID, title string) (domain.Task, error) {
	task := domain.Task{
		ID:        uuid.NewString(),
		Title:     title,
		Completed: false,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	ent := taskEntity{
		Entity:    aztables.Entity{PartitionKey: userID, RowKey: task.ID},
		Title:     task.Title,
		Completed: task.Completed,
		CreatedAt: task.CreatedAt.Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, data, nil); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// UpdateTask merges the supplied patch into an existing task. Only the fields
// present in the patch are written.
func (s *Storage) UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) error {
	props := map[string]any{
		"PartitionKey": userID,
		"RowKey":       id,
	}
	if patch.Title != nil {
		props["Title"] = *patch.Title
	}
	if patch.Completed != nil {
		props["Completed"] = *patch.Completed
	}
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.taskTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge})
	if isNotFound(err) {
		return domain.ErrTaskNotFound
	}
	return err
}

// DeleteTask removes a task unconditionally. Deleting an id that does not
// exist is a no-op, not an error.
func (s *Storage) DeleteTask(ctx context.Context, userID, id string) error {
	_, err := s.taskTable.DeleteEntity(ctx, userID, id, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

// taskFilter builds the owner filter. Quotes are doubled per OData so a user
// ID from an external identity provider cannot break out of the literal.
func taskFilter(userID string) string {
	return "PartitionKey eq '" + strings.ReplaceAll(userID, "'", "''") + "'"
}

// FetchTasks retrieves all tasks owned by the given user, newest first.
func (s *Storage) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	filter := taskFilter(userID)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			createdAt, err := time.Parse(time.RFC3339Nano, ent.CreatedAt)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, domain.Task{
				ID:        ent.RowKey,
				Title:     ent.Title,
				Completed: ent.Completed,
				UserID:    ent.PartitionKey,
				CreatedAt: createdAt,
			})
		}
	}
	domain.SortByCreatedAt(tasks)
	return tasks, nil
}

type accountEntity struct {
	aztables.Entity
	AccountID    string `json:"AccountId"`
	DisplayName  string `json:"DisplayName"`
	PasswordHash string `json:"PasswordHash"`
	CreatedAt    string `json:"CreatedAt"`
}

// CreateAccount inserts a new account keyed by email.
func (s *Storage) CreateAccount(ctx context.Context, acc domain.Account) error {
	ent := accountEntity{
		Entity:       aztables.Entity{PartitionKey: acc.Email, RowKey: acc.Email},
		AccountID:    acc.ID,
		DisplayName:  acc.DisplayName,
		PasswordHash: acc.PasswordHash,
		CreatedAt:    acc.CreatedAt.Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.accountTable.AddEntity(ctx, data, nil)
	if isConflict(err) {
		return domain.ErrAccountExists
	}
	return err
}

// FetchAccountByEmail looks up an account by its email address.
func (s *Storage) FetchAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	resp, err := s.accountTable.GetEntity(ctx, email, email, nil)
	if isNotFound(err) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, err
	}
	var ent accountEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Account{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ent.CreatedAt)
	if err != nil {
		return domain.Account{}, err
	}
	return domain.Account{
		ID:           ent.AccountID,
		Email:        ent.PartitionKey,
		DisplayName:  ent.DisplayName,
		PasswordHash: ent.PasswordHash,
		CreatedAt:    createdAt,
	}, nil
}

// UpdateDisplayName rewrites only the display name of an account.
func (s *Storage) UpdateDisplayName(ctx context.Context, email, displayName string) error {
	props := map[string]any{
		"PartitionKey": email,
		"RowKey":       email,
		"DisplayName":  displayName,
	}
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.accountTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge})
	if isNotFound(err) {
		return domain.ErrAccountNotFound
	}
	return err
}

// EnqueueChange sends a change event to the events queue. Without a configured
// queue this is a no-op.
func (s *Storage) EnqueueChange(ctx context.Context, ev domain.ChangeEvent) error {
	if s.eventQueue == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.eventQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

func isConflict(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict
}
