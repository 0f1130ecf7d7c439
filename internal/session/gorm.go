package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) Migrate(ctx context.Context) error {
	return r.DB.WithContext(ctx).AutoMigrate(&Session{})
}

func (r *GormRepo) Create(ctx context.Context, s *Session) error {
	if err := r.DB.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *GormRepo) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &s, nil
}

func (r *GormRepo) Touch(ctx context.Context, id, refreshHash string, at time.Time) error {
	updates := map[string]any{"refreshed_at": at.UTC()}
	if refreshHash != "" {
		updates["refresh_hash"] = refreshHash
	}
	return r.updates(ctx, id, updates)
}

func (r *GormRepo) Revoke(ctx context.Context, id string) error {
	return r.updates(ctx, id, map[string]any{"revoked": true})
}

func (r *GormRepo) updates(ctx context.Context, id string, updates map[string]any) error {
	res := r.DB.WithContext(ctx).Model(&Session{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("db error: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
