package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"daily-calendar/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) ListActive(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) UpdateSummaryTime(ctx context.Context, userID uint, summaryTime string) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("summary_time", summaryTime)
	if res.Error != nil {
		return fmt.Errorf("update summary time: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *UserRepository) LinkTelegram(ctx context.Context, userID uint, telegramID int64) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("telegram_id", telegramID)
	if res.Error != nil {
		return fmt.Errorf("link telegram: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the user and everything the user owns in a single transaction.
func (r *UserRepository) Delete(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}

		eventIDs := tx.Model(&model.Event{}).Select("id").Where("user_id = ?", userID)
		todoIDs := tx.Model(&model.TodoItem{}).Select("id").Where("user_id = ?", userID)
		tagIDs := tx.Model(&model.Tag{}).Select("id").Where("user_id = ?", userID)

		steps := []struct {
			name string
			run  func() error
		}{
			{"reminders", func() error { return tx.Where("event_id IN (?)", eventIDs).Delete(&model.Reminder{}).Error }},
			{"event tags", func() error {
				return tx.Exec("DELETE FROM event_tags WHERE event_id IN (?) OR tag_id IN (?)", eventIDs, tagIDs).Error
			}},
			{"events", func() error { return tx.Where("user_id = ?", userID).Delete(&model.Event{}).Error }},
			{"todo reminders", func() error {
				return tx.Where("todo_item_id IN (?)", todoIDs).Delete(&model.TodoReminder{}).Error
			}},
			{"todos", func() error { return tx.Where("user_id = ?", userID).Delete(&model.TodoItem{}).Error }},
			{"tags", func() error { return tx.Where("user_id = ?", userID).Delete(&model.Tag{}).Error }},
			{"user", func() error { return tx.Delete(&user).Error }},
		}
		for _, step := range steps {
			if err := step.run(); err != nil {
				return fmt.Errorf("delete user %s: %w", step.name, err)
			}
		}
		return nil
	})
}
