package domain

const (
	TaskCreated   = "task-created"
	TaskUpdated   = "task-updated"
	TaskDeleted   = "task-deleted"
	UserLoggedOut = "user-logged-out"
)

// ChangeEvent announces a mutation of a user's data. Consumers refetch the
// owner's snapshot rather than applying the event incrementally.
type ChangeEvent struct {
	UserID   string `json:"UserId"`
	EntityID string `json:"EntityId,omitempty"`
	Type     string `json:"Type"`
}
