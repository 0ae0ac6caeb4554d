package dto

// SubmitTaskRequest is the body of a task submission
type SubmitTaskRequest struct {
	Username   string `json:"username" binding:"required,max=255"`
	RequestXML string `json:"request_xml" binding:"required"`
}

// SubmitTaskResponse is returned once a task is queued
type SubmitTaskResponse struct {
	TaskID int64  `json:"task_id"`
	Status string `json:"status"`
}

// TaskResultResponse reports a task's status and, once answered, the response payload
type TaskResultResponse struct {
	TaskID int64   `json:"task_id"`
	Status string  `json:"status"`
	Result *string `json:"result"`
}

// TaskIDRequest binds the :id path parameter
type TaskIDRequest struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}

// QWCRequest overrides the configured descriptor fields
type QWCRequest struct {
	AppName  string `form:"app_name" binding:"omitempty,max=255"`
	AppDesc  string `form:"app_desc" binding:"omitempty,max=1024"`
	Username string `form:"username" binding:"omitempty,max=255"`
}

// LegacySubmitRequest is the /queue_task body. Username falls back to the configured connector user.
type LegacySubmitRequest struct {
	Username   string `json:"username" binding:"omitempty,max=255"`
	RequestXML string `json:"request_xml" binding:"required"`
}

// LegacyTaskResultResponse is the /task_result/:id body
type LegacyTaskResultResponse struct {
	Result *string `json:"result"`
	Status string  `json:"status"`
}
