package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/mohdragon010/taskflow/domain"
)

func TestNewRejectsBadConnectionString(t *testing.T) {
	if _, err := New("not a connection string", "tasks", "accounts", ""); err == nil {
		t.Fatal("expected an error for a malformed connection string")
	}
}

func TestErrorClassification(t *testing.T) {
	notFound := &azcore.ResponseError{StatusCode: http.StatusNotFound}
	conflict := &azcore.ResponseError{StatusCode: http.StatusConflict}
	wrapped := fmt.Errorf("request failed: %w", notFound)

	if !isNotFound(notFound) || !isNotFound(wrapped) {
		t.Fatal("404 response must classify as not found")
	}
	if isNotFound(conflict) || isNotFound(errors.New("plain")) || isNotFound(nil) {
		t.Fatal("only 404 responses classify as not found")
	}
	if !isConflict(conflict) {
		t.Fatal("409 response must classify as conflict")
	}
	if isConflict(notFound) || isConflict(nil) {
		t.Fatal("only 409 responses classify as conflict")
	}
}

func TestTaskFilterEscapesQuotes(t *testing.T) {
	cases := []struct {
		userID string
		want   string
	}{
		{"u1", "PartitionKey eq 'u1'"},
		{"o'brien", "PartitionKey eq 'o''brien'"},
		{"x' or PartitionKey ne '", "PartitionKey eq 'x'' or PartitionKey ne '''"},
	}
	for _, tc := range cases {
		if got := taskFilter(tc.userID); got != tc.want {
			t.Fatalf("userID %q: got %q, want %q", tc.userID, got, tc.want)
		}
	}
}

func TestEnqueueChangeWithoutQueue(t *testing.T) {
	s := &Storage{}
	ev := domain.ChangeEvent{UserID: "u1", EntityID: "t1", Type: domain.TaskCreated}
	if err := s.EnqueueChange(context.Background(), ev); err != nil {
		t.Fatalf("expected no-op without a queue, got %v", err)
	}
}
