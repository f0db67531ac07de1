package api

import "github.com/mohdragon010/taskflow/domain"

const requestBodyMaxSize = 64 * 1024 // 64 KiB

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

type federatedRequest struct {
	IDToken string `json:"idToken"`
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
}

type createTaskRequest struct {
	Title string `json:"title"`
}

type updateTaskRequest struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

type userPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

type sessionResponse struct {
	Token string      `json:"token,omitempty"`
	User  userPayload `json:"user"`
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type identityErrorResponse struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}
