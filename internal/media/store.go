// Package media implements the content-addressed media store. Image bytes
// live at {username}/{md5}{EXT} in a storage backend; metadata lives in
// the database and is looked up by that path.
package media

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sergioamr/img-api/internal/metrics"
	"github.com/sergioamr/img-api/internal/model"
	"github.com/sergioamr/img-api/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrEmptyUpload       = errors.New("empty upload")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrInvalidImage      = errors.New("file is not a valid image")
	ErrInvalidOwner      = errors.New("invalid owner")
	ErrNotFound          = errors.New("media not found")
)

// Owner identifies who is uploading or requesting media.
type Owner struct {
	ID       string
	Username string
	IsAnon   bool
}

func OwnerOf(u *model.User) *Owner {
	if u == nil {
		return nil
	}

	return &Owner{ID: u.ID, Username: u.Username, IsAnon: u.IsAnon}
}

// UploadResult is returned by Upload. Deduplicated is set when the bytes
// matched a file the owner had already stored.
type UploadResult struct {
	Media        *model.Media
	Deduplicated bool
}

type Store struct {
	db    *gorm.DB
	blobs storage.Backend
	now   func() time.Time
	newID func() string
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func NewStore(db *gorm.DB, blobs storage.Backend, opts ...Option) *Store {
	s := &Store{
		db:    db,
		blobs: blobs,
		now:   time.Now,
		newID: uuid.NewString,
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// Blobs exposes the backend the store writes to.
func (s *Store) Blobs() storage.Backend {
	return s.blobs
}

// Upload stores the bytes of r for owner, or returns the existing record
// when the owner already stored identical bytes under the same extension.
// Nothing is written unless the bytes decode as an image.
func (s *Store) Upload(ctx context.Context, owner *Owner, r io.Reader, filename string) (*UploadResult, error) {
	if owner == nil || owner.ID == "" || !validNamespace(owner.Username) {
		return nil, ErrInvalidOwner
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload, %w", err)
	}

	if len(data) == 0 {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		return nil, ErrEmptyUpload
	}

	ext, err := Extension(filename)
	if err != nil {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		return nil, err
	}

	sum := md5.Sum(data)
	checksum := hex.EncodeToString(sum[:])
	relPath := owner.Username + "/" + checksum + ext

	exists, err := s.blobs.Exists(ctx, relPath)
	if err != nil {
		return nil, fmt.Errorf("failed to check if file exists, %w", err)
	}

	if exists {
		rec, err := s.FindByPath(ctx, relPath)
		switch {
		case err == nil:
			metrics.Uploads.WithLabelValues("dedup").Inc()
			return &UploadResult{Media: rec, Deduplicated: true}, nil
		case errors.Is(err, ErrNotFound):
			zap.L().Warn("File was lost, saving it again", zap.String("path", relPath))
		default:
			return nil, err
		}
	}

	info, err := validateImage(data, ext)
	if err != nil {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if err := s.blobs.Put(ctx, relPath, bytes.NewReader(data), int64(len(data))); err != nil {
		metrics.Uploads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to store file, %w", err)
	}

	rec := &model.Media{
		ID:          s.newID(),
		UserID:      owner.ID,
		Username:    owner.Username,
		FilePath:    relPath,
		FileName:    filename,
		FileSize:    int64(len(data)),
		FileType:    "image",
		FileFormat:  ext,
		MimeType:    info.MimeType,
		ChecksumMD5: checksum,
		IsPublic:    owner.IsAnon,
		IsAnon:      owner.IsAnon,
		Width:       info.Width,
		Height:      info.Height,
		Tags:        model.StringSlice{},
		CreatedAt:   s.now().Unix(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}

		return bumpStats(tx, owner.ID, rec.FileSize, 1)
	})
	if err != nil {
		if err := s.blobs.Remove(context.WithoutCancel(ctx), relPath); err != nil {
			zap.L().Error("Failed to remove file after failed insert", zap.String("path", relPath), zap.Error(err))
		}

		metrics.Uploads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to save media record, %w", err)
	}

	metrics.Uploads.WithLabelValues("new").Inc()
	return &UploadResult{Media: rec}, nil
}

// Delete removes the file and then the record. A failure to remove the
// file is logged and does not stop the record from being deleted.
func (s *Store) Delete(ctx context.Context, rec *model.Media) error {
	if err := s.blobs.Remove(ctx, rec.FilePath); err != nil {
		zap.L().Error("Failed to remove media file", zap.String("path", rec.FilePath), zap.Error(err))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", rec.ID).Delete(&model.Media{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete media record, %w", res.Error)
		}

		if res.RowsAffected == 0 {
			return nil
		}

		return bumpStats(tx, rec.UserID, -rec.FileSize, -1)
	})
}

// CheckExists reports whether the file behind rec is present. When it is
// not, the record is deleted before returning false.
func (s *Store) CheckExists(ctx context.Context, rec *model.Media) (bool, error) {
	ok, err := s.blobs.Exists(ctx, rec.FilePath)
	if err != nil {
		return false, fmt.Errorf("failed to check if file exists, %w", err)
	}

	if ok {
		return true, nil
	}

	zap.L().Warn("Media file missing, removing record",
		zap.String("media_id", rec.ID),
		zap.String("path", rec.FilePath))

	metrics.Tombstones.Inc()

	if err := s.Delete(ctx, rec); err != nil {
		return false, err
	}

	return false, nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Media, error) {
	var rec model.Media

	err := s.db.
		WithContext(ctx).
		Where("id = ?", id).
		First(&rec).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to fetch media, %w", err)
	}

	return &rec, nil
}

// FindByPath returns the oldest record stored at relPath.
func (s *Store) FindByPath(ctx context.Context, relPath string) (*model.Media, error) {
	var rec model.Media

	err := s.db.
		WithContext(ctx).
		Where("file_path = ?", relPath).
		Order("created_at asc").
		First(&rec).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to fetch media by path, %w", err)
	}

	return &rec, nil
}

// ListByOwner returns a user's media, newest first. Private media is only
// included when includePrivate is set.
func (s *Store) ListByOwner(ctx context.Context, username string, includePrivate bool, limit, offset int) ([]model.Media, error) {
	q := s.db.
		WithContext(ctx).
		Where("username = ?", username)

	if !includePrivate {
		q = q.Where("is_public = ?", true)
	}

	if limit <= 0 {
		limit = -1
	}

	var out []model.Media
	err := q.
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&out).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list media, %w", err)
	}

	return out, nil
}

// Open returns the stored bytes of rec.
func (s *Store) Open(ctx context.Context, rec *model.Media) (io.ReadCloser, error) {
	return s.blobs.Open(ctx, rec.FilePath)
}

func bumpStats(tx *gorm.DB, userID string, size int64, files int) error {
	err := tx.
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Stats{UserID: userID}).
		Error
	if err != nil {
		return err
	}

	return tx.
		Model(model.Stats{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"used_storage":   gorm.Expr("used_storage + ?", size),
			"uploaded_files": gorm.Expr("uploaded_files + ?", files),
		}).
		Error
}
