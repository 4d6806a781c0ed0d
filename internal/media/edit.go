package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sergioamr/img-api/internal/model"
)

var (
	ErrNotOwner         = errors.New("requester does not own this media")
	ErrFieldNotEditable = errors.New("field is not editable")
	ErrInvalidValue     = errors.New("invalid field value")
)

const (
	maxTextField = 1024
	maxTags      = 32
	maxTagLength = 64
)

// Fields a media owner may change, mapped to their column names.
var editableFields = map[string]string{
	"title":       "title",
	"description": "description",
	"source_url":  "source_url",
	"is_public":   "is_public",
	"tags":        "tags",
}

// Update applies patch to rec. Every key must be editable and every value
// well typed; otherwise nothing is changed.
func (s *Store) Update(ctx context.Context, rec *model.Media, requester *Owner, patch map[string]any) error {
	if !IsOwner(rec, requester) {
		return ErrNotOwner
	}

	updates := make(map[string]any, len(patch))

	for key, raw := range patch {
		column, ok := editableFields[key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrFieldNotEditable, key)
		}

		v, err := coerce(key, raw)
		if err != nil {
			return err
		}

		updates[column] = v
	}

	if len(updates) == 0 {
		return nil
	}

	err := s.db.
		WithContext(ctx).
		Model(&model.Media{}).
		Where("id = ?", rec.ID).
		Updates(updates).
		Error
	if err != nil {
		return fmt.Errorf("failed to update media, %w", err)
	}

	for column, v := range updates {
		switch column {
		case "title":
			rec.Title = v.(string)
		case "description":
			rec.Description = v.(string)
		case "source_url":
			rec.SourceURL = v.(string)
		case "is_public":
			rec.IsPublic = v.(bool)
		case "tags":
			rec.Tags = v.(model.StringSlice)
		}
	}

	return nil
}

// SetVisibility marks rec public or private.
func (s *Store) SetVisibility(ctx context.Context, rec *model.Media, requester *Owner, public bool) error {
	return s.Update(ctx, rec, requester, map[string]any{"is_public": public})
}

func coerce(key string, raw any) (any, error) {
	switch key {
	case "is_public":
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidValue, key)
		}
		return b, nil

	case "tags":
		list, ok := raw.([]any)
		if !ok {
			if strs, ok := raw.([]string); ok {
				list = make([]any, len(strs))
				for i, s := range strs {
					list[i] = s
				}
			} else {
				return nil, fmt.Errorf("%w: tags must be a list of strings", ErrInvalidValue)
			}
		}

		if len(list) > maxTags {
			return nil, fmt.Errorf("%w: too many tags", ErrInvalidValue)
		}

		tags := model.StringSlice{}
		for _, t := range list {
			str, ok := t.(string)
			if !ok {
				return nil, fmt.Errorf("%w: tags must be a list of strings", ErrInvalidValue)
			}

			str = strings.TrimSpace(str)
			if str == "" {
				continue
			}

			if strings.Contains(str, ",") || len(str) > maxTagLength {
				return nil, fmt.Errorf("%w: invalid tag %q", ErrInvalidValue, str)
			}

			tags.Append(str)
		}
		return tags, nil

	default:
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidValue, key)
		}

		if len(str) > maxTextField {
			return nil, fmt.Errorf("%w: %s is too long", ErrInvalidValue, key)
		}
		return str, nil
	}
}
