package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sergioamr/img-api/internal"
	"github.com/sergioamr/img-api/internal/model"
	"github.com/sergioamr/img-api/pkg/util"

	"gorm.io/gorm"
)

// CreateAnonymous registers an ephemeral user and returns it with a
// signed token.
func CreateAnonymous(ctx context.Context, d *internal.Deps) (*model.User, string, error) {
	u := &model.User{
		ID:        util.RandStr(21),
		Username:  "anon_" + strings.ToLower(util.RandStr(12)),
		IsAnon:    true,
		CreatedAt: time.Now().Unix(),
	}

	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return err
		}

		return tx.Create(&model.Stats{UserID: u.ID}).Error
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create anonymous user, %w", err)
	}

	token, err := d.Tokens.Issue(u)
	if err != nil {
		return nil, "", err
	}

	return u, token, nil
}

// DeleteAnonymous removes an anonymous user that never stored anything.
func DeleteAnonymous(ctx context.Context, d *internal.Deps, u *model.User) error {
	if !u.IsAnon {
		return fmt.Errorf("refusing to delete registered user %s", u.Username)
	}

	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", u.ID).Delete(&model.Stats{}).Error; err != nil {
			return err
		}

		return tx.Where("id = ?", u.ID).Delete(&model.User{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete anonymous user, %w", err)
	}

	return nil
}
