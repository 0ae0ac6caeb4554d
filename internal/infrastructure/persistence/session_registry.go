package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/qbconnector/internal/domain/connector"
	"github.com/erp/qbconnector/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSessionRegistry implements connector.SessionRegistry using GORM
type GormSessionRegistry struct {
	db *gorm.DB
}

// NewGormSessionRegistry creates a new GormSessionRegistry
func NewGormSessionRegistry(db *gorm.DB) *GormSessionRegistry {
	return &GormSessionRegistry{db: db}
}

// WithTx returns a new registry instance with the given transaction
func (r *GormSessionRegistry) WithTx(tx *gorm.DB) *GormSessionRegistry {
	return &GormSessionRegistry{db: tx}
}

// Open mints a fresh ticket and inserts an active session
func (r *GormSessionRegistry) Open(ctx context.Context, username, targetFile string) (*connector.Session, error) {
	session := connector.NewSession(username, targetFile)
	if err := r.db.WithContext(ctx).Create(models.SessionModelFromDomain(session)).Error; err != nil {
		return nil, storeError("open session", err)
	}
	return session, nil
}

// Get finds a session by its ticket
func (r *GormSessionRegistry) Get(ctx context.Context, ticket string) (*connector.Session, error) {
	var model models.SessionModel
	if err := r.db.WithContext(ctx).First(&model, "ticket = ?", ticket).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, connector.ErrSessionNotFound
		}
		return nil, storeError("get session", err)
	}
	return model.ToDomain(), nil
}

// Touch refreshes last_seen_at for the ticket
func (r *GormSessionRegistry) Touch(ctx context.Context, ticket string) error {
	err := r.db.WithContext(ctx).
		Model(&models.SessionModel{}).
		Where("ticket = ?", ticket).
		Update("last_seen_at", time.Now()).Error
	if err != nil {
		return storeError("touch session", err)
	}
	return nil
}

// Close transitions the session to CLOSED. Already closed and unknown tickets are a no-op.
func (r *GormSessionRegistry) Close(ctx context.Context, ticket string) error {
	session, err := r.Get(ctx, ticket)
	if errors.Is(err, connector.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if session.State == connector.SessionStateClosed {
		return nil
	}

	now := time.Now()
	if err := session.Close(now); err != nil {
		return err
	}

	// The state guard keeps a concurrent close from rewriting closed_at
	err = r.db.WithContext(ctx).
		Model(&models.SessionModel{}).
		Where("ticket = ? AND state = ?", ticket, connector.SessionStateActive).
		Updates(map[string]any{
			"state":        session.State,
			"closed_at":    now,
			"last_seen_at": now,
		}).Error
	if err != nil {
		return storeError("close session", err)
	}
	return nil
}

// SetInteractive records the interactive-mode handshake state for the ticket
func (r *GormSessionRegistry) SetInteractive(ctx context.Context, ticket, url string, status connector.InteractiveStatus) error {
	err := r.db.WithContext(ctx).
		Model(&models.SessionModel{}).
		Where("ticket = ?", ticket).
		Updates(map[string]any{
			"interactive_url":    url,
			"interactive_status": status,
		}).Error
	if err != nil {
		return storeError("set interactive", err)
	}
	return nil
}

// FindStale finds active sessions idle since before idleSince, oldest first
func (r *GormSessionRegistry) FindStale(ctx context.Context, idleSince time.Time, limit int) ([]connector.Session, error) {
	var sessionModels []models.SessionModel
	query := r.db.WithContext(ctx).
		Where("state = ? AND last_seen_at < ?", connector.SessionStateActive, idleSince).
		Order("last_seen_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&sessionModels).Error; err != nil {
		return nil, storeError("find stale sessions", err)
	}
	sessions := make([]connector.Session, len(sessionModels))
	for i, model := range sessionModels {
		sessions[i] = *model.ToDomain()
	}
	return sessions, nil
}

// Count returns the number of sessions in the registry
func (r *GormSessionRegistry) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.SessionModel{}).Count(&count).Error; err != nil {
		return 0, storeError("count sessions", err)
	}
	return count, nil
}

var _ connector.SessionRegistry = (*GormSessionRegistry)(nil)
