package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sergioamr/img-api/internal/media"
	"github.com/sergioamr/img-api/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AnonCleanup periodically removes anonymous users created before
// maxAge ago, together with everything they uploaded. It returns when
// ctx is cancelled.
func AnonCleanup(ctx context.Context, every, maxAge time.Duration, db *gorm.DB, store *media.Store) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	zap.L().Debug("Anonymous user cleanup attached", zap.Duration("tick_every", every), zap.Duration("max_age", maxAge))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := RemoveExpiredAnonymous(ctx, db, store, time.Now().Add(-maxAge))
			if err != nil {
				zap.L().Error("Failed to clean up anonymous users", zap.Error(err))
				continue
			}

			if n > 0 {
				zap.L().Info("Anonymous user cleanup finished", zap.Int("removed", n))
			}
		}
	}
}

// RemoveExpiredAnonymous deletes anonymous users created before cutoff
// and returns how many were removed.
func RemoveExpiredAnonymous(ctx context.Context, db *gorm.DB, store *media.Store, cutoff time.Time) (int, error) {
	var users []model.User

	err := db.
		WithContext(ctx).
		Where("is_anon = ? AND created_at < ?", true, cutoff.Unix()).
		Find(&users).
		Error
	if err != nil {
		return 0, fmt.Errorf("failed to query db for users to clean, %w", err)
	}

	removed := 0
	for _, u := range users {
		recs, err := store.ListByOwner(ctx, u.Username, true, 0, 0)
		if err != nil {
			return removed, err
		}

		for i := range recs {
			if err := store.Delete(ctx, &recs[i]); err != nil {
				return removed, err
			}
		}

		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, m := range []any{&model.MediaList{}, &model.UserContent{}, &model.Stats{}} {
				if err := tx.Where("user_id = ?", u.ID).Delete(m).Error; err != nil {
					return err
				}
			}

			return tx.Where("id = ?", u.ID).Delete(&model.User{}).Error
		})
		if err != nil {
			return removed, fmt.Errorf("failed to delete user from database, %w", err)
		}

		removed++
	}

	return removed, nil
}
