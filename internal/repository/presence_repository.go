package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"presence-service/internal/domain"
)

type PresenceRepository struct {
	db *gorm.DB
}

func NewPresenceRepository(db *gorm.DB) *PresenceRepository {
	return &PresenceRepository{db: db}
}

// Upsert inserts the presence row for (user, trip), updating it in place when
// it already exists, and returns the row id. Callers cache the id and address
// every later write with UpdateByID, so the conflict path only runs once per
// session.
func (r *PresenceRepository) Upsert(ctx context.Context, p *domain.UserPresence) (uuid.UUID, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.LastActive.IsZero() {
		p.LastActive = time.Now()
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "trip_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "editing_item_id", "last_active",
			"name", "avatar_url", "email", "updated_at",
		}),
	}).Create(p).Error
	if err != nil {
		return uuid.Nil, err
	}

	// On conflict the generated id loses to the existing row's; read back
	// the id that actually owns (user_id, trip_id).
	var row domain.UserPresence
	err = r.db.WithContext(ctx).
		Select("id").
		First(&row, "user_id = ? AND trip_id = ?", p.UserID, p.TripID).Error
	if err != nil {
		return uuid.Nil, err
	}
	p.ID = row.ID
	return row.ID, nil
}

// UpdateByID writes a snapshot to a known row.
func (r *PresenceRepository) UpdateByID(ctx context.Context, id uuid.UUID, p domain.UserPresence) error {
	var editingItemID interface{}
	if p.EditingItemID != nil {
		editingItemID = *p.EditingItemID
	}

	result := r.db.WithContext(ctx).Model(&domain.UserPresence{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          p.Status,
			"editing_item_id": editingItemID,
			"last_active":     p.LastActive,
			"name":            p.Name,
			"avatar_url":      p.AvatarURL,
			"email":           p.Email,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetOffline marks a row offline unless it has been active after
// notActiveSince. A cleanup that lost the race against a new session for the
// same row silently becomes a no-op.
func (r *PresenceRepository) SetOffline(ctx context.Context, id uuid.UUID, notActiveSince time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.UserPresence{}).
		Where("id = ? AND last_active <= ?", id, notActiveSince).
		Updates(map[string]interface{}{
			"status":          domain.PresenceStatusOffline,
			"editing_item_id": nil,
		}).Error
}

// FindActiveByTrip returns all non-offline rows for a trip, most recently
// active first.
func (r *PresenceRepository) FindActiveByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.UserPresence, error) {
	var presences []domain.UserPresence
	err := r.db.WithContext(ctx).
		Where("trip_id = ? AND status <> ?", tripID, domain.PresenceStatusOffline).
		Order("last_active DESC").
		Find(&presences).Error
	return presences, err
}

// FindByUser returns a user's presence row within a trip.
func (r *PresenceRepository) FindByUser(ctx context.Context, tripID, userID uuid.UUID) (*domain.UserPresence, error) {
	var presence domain.UserPresence
	err := r.db.WithContext(ctx).
		First(&presence, "trip_id = ? AND user_id = ?", tripID, userID).Error
	if err != nil {
		return nil, err
	}
	return &presence, nil
}

// MarkStale demotes rows abandoned without a clean teardown: online or
// editing rows idle past awayAfter become away, and any non-offline row idle
// past offlineAfter becomes offline. Returns how many rows changed.
func (r *PresenceRepository) MarkStale(ctx context.Context, awayAfter, offlineAfter time.Duration) (int64, error) {
	now := time.Now()

	offline := r.db.WithContext(ctx).Model(&domain.UserPresence{}).
		Where("status <> ? AND last_active < ?", domain.PresenceStatusOffline, now.Add(-offlineAfter)).
		Updates(map[string]interface{}{
			"status":          domain.PresenceStatusOffline,
			"editing_item_id": nil,
		})
	if offline.Error != nil {
		return 0, offline.Error
	}

	away := r.db.WithContext(ctx).Model(&domain.UserPresence{}).
		Where("status IN ? AND last_active < ?",
			[]domain.PresenceStatus{domain.PresenceStatusOnline, domain.PresenceStatusEditing},
			now.Add(-awayAfter)).
		Updates(map[string]interface{}{
			"status":          domain.PresenceStatusAway,
			"editing_item_id": nil,
		})
	if away.Error != nil {
		return offline.RowsAffected, away.Error
	}

	return offline.RowsAffected + away.RowsAffected, nil
}
