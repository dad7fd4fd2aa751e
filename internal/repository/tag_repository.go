package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"daily-calendar/internal/model"
)

// TagRepository manages event tags.
type TagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *TagRepository) WithTx(tx *gorm.DB) *TagRepository {
	return &TagRepository{db: tx}
}

func (r *TagRepository) Create(ctx context.Context, tag *model.Tag) error {
	if err := r.db.WithContext(ctx).Create(tag).Error; err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// GetOrCreate looks a tag up by (user, name) and creates it with the default color when absent.
func (r *TagRepository) GetOrCreate(ctx context.Context, userID uint, name string) (*model.Tag, error) {
	if name == "" {
		return nil, nil
	}

	var tag model.Tag
	db := r.db.WithContext(ctx)
	err := db.Where("user_id = ? AND name = ?", userID, name).First(&tag).Error
	switch {
	case err == nil:
		return &tag, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		tag = model.Tag{UserID: userID, Name: name, Color: model.DefaultTagColor}
		if err := db.Create(&tag).Error; err != nil {
			return nil, fmt.Errorf("create tag: %w", err)
		}
		return &tag, nil
	default:
		return nil, fmt.Errorf("find tag: %w", err)
	}
}

func (r *TagRepository) FindByName(ctx context.Context, userID uint, name string) (*model.Tag, error) {
	var tag model.Tag
	if err := r.db.WithContext(ctx).Where("user_id = ? AND name = ?", userID, name).First(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *TagRepository) FindByID(ctx context.Context, userID, tagID uint) (*model.Tag, error) {
	var tag model.Tag
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, tagID).First(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

// FindByIDs returns the user's tags among ids; unknown or foreign ids are skipped.
func (r *TagRepository) FindByIDs(ctx context.Context, userID uint, ids []uint) ([]model.Tag, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var tags []model.Tag
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, ids).Order("id ASC").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

func (r *TagRepository) ListByUser(ctx context.Context, userID uint) ([]model.Tag, error) {
	var tags []model.Tag
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("name ASC").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// Delete detaches the tag from every event and removes it.
func (r *TagRepository) Delete(ctx context.Context, userID, tagID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tag model.Tag
		if err := tx.Where("user_id = ? AND id = ?", userID, tagID).First(&tag).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM event_tags WHERE tag_id = ?", tag.ID).Error; err != nil {
			return fmt.Errorf("detach tag: %w", err)
		}
		if err := tx.Delete(&tag).Error; err != nil {
			return fmt.Errorf("delete tag: %w", err)
		}
		return nil
	})
}
