package service

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"daily-calendar/internal/model"
	"daily-calendar/internal/repository"
)

// TagService provides helpers around tags.
type TagService struct {
	repo *repository.TagRepository
}

func NewTagService(repo *repository.TagRepository) *TagService {
	return &TagService{repo: repo}
}

func (s *TagService) Create(ctx context.Context, userID uint, name, color string) (*model.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if strings.Contains(name, ",") {
		return nil, invalid("name", "must not contain commas")
	}
	if _, err := s.repo.FindByName(ctx, userID, name); err == nil {
		return nil, invalid("name", "already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	color = strings.TrimSpace(color)
	if color == "" {
		color = model.DefaultTagColor
	}
	tag := model.Tag{UserID: userID, Name: name, Color: color}
	if err := s.repo.Create(ctx, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (s *TagService) List(ctx context.Context, userID uint) ([]model.Tag, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Delete detaches the tag from all events before removing it.
func (s *TagService) Delete(ctx context.Context, userID, tagID uint) error {
	return notFound(s.repo.Delete(ctx, userID, tagID), "tag")
}
