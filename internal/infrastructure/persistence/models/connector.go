package models

import (
	"time"

	"github.com/erp/qbconnector/internal/domain/connector"
)

// SessionModel is the persistence model for a connector session
type SessionModel struct {
	Ticket            string                      `gorm:"type:varchar(64);primaryKey"`
	Username          string                      `gorm:"type:varchar(255);not null;index"`
	TargetFile        string                      `gorm:"type:text;not null"`
	State             connector.SessionState      `gorm:"type:varchar(20);not null;default:ACTIVE;index:idx_sessions_state_seen,priority:1"`
	CreatedAt         time.Time                   `gorm:"not null"`
	LastSeenAt        time.Time                   `gorm:"not null;index:idx_sessions_state_seen,priority:2"`
	ClosedAt          *time.Time
	InteractiveURL    string                      `gorm:"type:text"`
	InteractiveStatus connector.InteractiveStatus `gorm:"type:varchar(20)"`
}

// TableName returns the table name for GORM
func (SessionModel) TableName() string {
	return "sessions"
}

// ToDomain converts the persistence model to a domain Session
func (m *SessionModel) ToDomain() *connector.Session {
	return &connector.Session{
		Ticket:            m.Ticket,
		Username:          m.Username,
		TargetFile:        m.TargetFile,
		State:             m.State,
		CreatedAt:         m.CreatedAt,
		LastSeenAt:        m.LastSeenAt,
		ClosedAt:          m.ClosedAt,
		InteractiveURL:    m.InteractiveURL,
		InteractiveStatus: m.InteractiveStatus,
	}
}

// FromDomain populates the persistence model from a domain Session
func (m *SessionModel) FromDomain(s *connector.Session) {
	m.Ticket = s.Ticket
	m.Username = s.Username
	m.TargetFile = s.TargetFile
	m.State = s.State
	m.CreatedAt = s.CreatedAt
	m.LastSeenAt = s.LastSeenAt
	m.ClosedAt = s.ClosedAt
	m.InteractiveURL = s.InteractiveURL
	m.InteractiveStatus = s.InteractiveStatus
}

// SessionModelFromDomain creates a new persistence model from a domain Session
func SessionModelFromDomain(s *connector.Session) *SessionModel {
	m := &SessionModel{}
	m.FromDomain(s)
	return m
}

// TaskModel is the persistence model for a queued task
type TaskModel struct {
	ID          int64                `gorm:"primaryKey;autoIncrement"`
	Username    string               `gorm:"type:varchar(255);not null;index:idx_tasks_username_status,priority:1"`
	Ticket      *string              `gorm:"type:varchar(64);index:idx_tasks_ticket_status,priority:1"`
	RequestXML  string               `gorm:"column:request_xml;type:text;not null"`
	ResponseXML *string              `gorm:"column:response_xml;type:text"`
	Status      connector.TaskStatus `gorm:"type:varchar(20);not null;default:pending;index:idx_tasks_username_status,priority:2;index:idx_tasks_ticket_status,priority:2"`
	CreatedAt   time.Time            `gorm:"not null"`
	UpdatedAt   time.Time            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TaskModel) TableName() string {
	return "tasks"
}

// ToDomain converts the persistence model to a domain Task
func (m *TaskModel) ToDomain() *connector.Task {
	t := &connector.Task{
		ID:        m.ID,
		Username:  m.Username,
		Request:   m.RequestXML,
		Response:  m.ResponseXML,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.Ticket != nil {
		t.Ticket = *m.Ticket
	}
	return t
}

// FromDomain populates the persistence model from a domain Task
func (m *TaskModel) FromDomain(t *connector.Task) {
	m.ID = t.ID
	m.Username = t.Username
	m.RequestXML = t.Request
	m.ResponseXML = t.Response
	m.Status = t.Status
	m.CreatedAt = t.CreatedAt
	m.UpdatedAt = t.UpdatedAt
	m.Ticket = nil
	if t.Ticket != "" {
		ticket := t.Ticket
		m.Ticket = &ticket
	}
}

// TaskModelFromDomain creates a new persistence model from a domain Task
func TaskModelFromDomain(t *connector.Task) *TaskModel {
	m := &TaskModel{}
	m.FromDomain(t)
	return m
}

// AllModels lists every model managed by AutoMigrate
func AllModels() []any {
	return []any{&SessionModel{}, &TaskModel{}}
}
