// Package lists manages named per-user collections of media IDs such as
// likes, dislikes and favourites.
package lists

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/sergioamr/img-api/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("media list not found")
	ErrNotOwner      = errors.New("requester does not own this list")
	ErrInvalidAction = errors.New("invalid action")
	ErrInvalidName   = errors.New("invalid list name")
)

const (
	ActionAppend = "append"
	ActionRemove = "remove"
	ActionToggle = "toggle"
)

var validName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,32}$`)

// The lists whose membership is reported by Flags.
var flagLists = []string{model.ListLikes, model.ListDislikes, model.ListFavs}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

func (s *Service) Create(ctx context.Context, u *model.User, name, description string, public bool) (*model.MediaList, error) {
	if !validName.MatchString(name) {
		return nil, ErrInvalidName
	}

	l := &model.MediaList{
		ID:          uuid.NewString(),
		UserID:      u.ID,
		Username:    u.Username,
		Name:        name,
		Description: description,
		IsPublic:    public,
		MediaIDs:    model.StringSlice{},
		CreatedAt:   s.now().Unix(),
	}

	if err := s.db.WithContext(ctx).Create(l).Error; err != nil {
		return nil, fmt.Errorf("failed to create media list, %w", err)
	}

	return l, nil
}

// Get returns a list if it is public or owned by requester.
func (s *Service) Get(ctx context.Context, id string, requester *model.User) (*model.MediaList, error) {
	var l model.MediaList

	err := s.db.
		WithContext(ctx).
		Where("id = ?", id).
		First(&l).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to fetch media list, %w", err)
	}

	if !l.IsPublic && (requester == nil || requester.ID != l.UserID) {
		return nil, ErrNotOwner
	}

	return &l, nil
}

// Resolve finds one of u's lists by name, falling back to its ID.
func (s *Service) Resolve(ctx context.Context, u *model.User, nameOrID string) (*model.MediaList, error) {
	var l model.MediaList

	err := s.db.
		WithContext(ctx).
		Where("user_id = ? AND (name = ? OR id = ?)", u.ID, nameOrID, nameOrID).
		Order("created_at asc").
		First(&l).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to fetch media list, %w", err)
	}

	return &l, nil
}

func (s *Service) Mine(ctx context.Context, u *model.User) ([]model.MediaList, error) {
	var out []model.MediaList

	err := s.db.
		WithContext(ctx).
		Where("user_id = ?", u.ID).
		Order("created_at asc").
		Find(&out).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media lists, %w", err)
	}

	return out, nil
}

type Patch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"is_public"`
}

func (s *Service) Update(ctx context.Context, l *model.MediaList, u *model.User, p Patch) error {
	if u == nil || l.UserID != u.ID {
		return ErrNotOwner
	}

	updates := map[string]any{}

	if p.Name != nil {
		if !validName.MatchString(*p.Name) {
			return ErrInvalidName
		}
		updates["name"] = *p.Name
	}

	if p.Description != nil {
		updates["description"] = *p.Description
	}

	if p.IsPublic != nil {
		updates["is_public"] = *p.IsPublic
	}

	if len(updates) == 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(l).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update media list, %w", err)
	}

	return nil
}

func (s *Service) Delete(ctx context.Context, l *model.MediaList, u *model.User) error {
	if u == nil || l.UserID != u.ID {
		return ErrNotOwner
	}

	if err := s.db.WithContext(ctx).Where("id = ?", l.ID).Delete(&model.MediaList{}).Error; err != nil {
		return fmt.Errorf("failed to delete media list, %w", err)
	}

	return nil
}

// ClearAll deletes every list u owns and returns how many there were.
func (s *Service) ClearAll(ctx context.Context, u *model.User) (int64, error) {
	res := s.db.WithContext(ctx).Where("user_id = ?", u.ID).Delete(&model.MediaList{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete media lists, %w", res.Error)
	}

	return res.RowsAffected, nil
}

// Perform applies action to mediaID on u's list called listName, creating
// the list when it does not exist yet. It reports whether the media is on
// the list afterwards.
func (s *Service) Perform(ctx context.Context, u *model.User, mediaID, action, listName string) (*model.MediaList, bool, error) {
	switch action {
	case ActionAppend, ActionRemove, ActionToggle:
	default:
		return nil, false, ErrInvalidAction
	}

	if mediaID == "" {
		return nil, false, ErrInvalidAction
	}

	l, err := s.Resolve(ctx, u, listName)
	if errors.Is(err, ErrNotFound) {
		l, err = s.Create(ctx, u, listName, "", false)
	}
	if err != nil {
		return nil, false, err
	}

	if action == ActionToggle {
		if l.MediaIDs.Contains(mediaID) {
			action = ActionRemove
		} else {
			action = ActionAppend
		}
	}

	var changed bool
	if action == ActionAppend {
		changed = l.MediaIDs.Append(mediaID)
	} else {
		changed = l.MediaIDs.Remove(mediaID)
	}

	if changed {
		err := s.db.
			WithContext(ctx).
			Model(l).
			Update("media_ids", l.MediaIDs).
			Error
		if err != nil {
			return nil, false, fmt.Errorf("failed to save media list, %w", err)
		}
	}

	return l, l.MediaIDs.Contains(mediaID), nil
}

// Flags reports, per media ID, which of u's likes/dislikes/favs lists
// contain it.
func (s *Service) Flags(ctx context.Context, u *model.User) (map[string]map[string]bool, error) {
	var ls []model.MediaList

	err := s.db.
		WithContext(ctx).
		Where("user_id = ? AND name IN ?", u.ID, flagLists).
		Find(&ls).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media lists, %w", err)
	}

	out := map[string]map[string]bool{}
	for _, l := range ls {
		for _, id := range l.MediaIDs {
			if out[id] == nil {
				out[id] = map[string]bool{}
			}
			out[id][l.Name] = true
		}
	}

	return out, nil
}
