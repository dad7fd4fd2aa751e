package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"daily-calendar/internal/model"
	"daily-calendar/internal/repository"
)

// UserInput represents data required to register a user.
type UserInput struct {
	Username    string
	Email       string
	Password    string
	FullName    string
	SummaryTime string
	TelegramID  *int64
}

// UserService covers registration, lookup and removal of users.
type UserService struct {
	repo *repository.UserRepository
}

func NewUserService(repo *repository.UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) Create(ctx context.Context, input UserInput) (*model.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, invalid("username", "is required")
	}
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, invalid("username", "already taken")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	summaryTime := model.DefaultSummaryTime
	if strings.TrimSpace(input.SummaryTime) != "" {
		var err error
		if summaryTime, err = normalizeClock(input.SummaryTime); err != nil {
			return nil, err
		}
	}

	user := model.User{
		Username:    username,
		FullName:    strings.TrimSpace(input.FullName),
		IsActive:    true,
		SummaryTime: summaryTime,
		TelegramID:  input.TelegramID,
	}
	if email := strings.TrimSpace(input.Email); email != "" {
		user.Email = &email
	}
	if input.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}

	if err := s.repo.Create(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CheckPassword reports whether password matches the stored hash.
func (s *UserService) CheckPassword(user *model.User, password string) bool {
	if user.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

func (s *UserService) Get(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	return s.repo.ListAll(ctx)
}

// EnsureTelegramUser returns the user linked to telegramID, registering one
// on first contact. A taken username gets the telegram id appended.
func (s *UserService) EnsureTelegramUser(ctx context.Context, telegramID int64, username, fullName string) (*model.User, error) {
	user, err := s.repo.FindByTelegramID(ctx, telegramID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username = fmt.Sprintf("tg%d", telegramID)
	}
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		username = fmt.Sprintf("%s_%d", username, telegramID)
	}

	return s.Create(ctx, UserInput{Username: username, FullName: fullName, TelegramID: &telegramID})
}

// LinkTelegram attaches a Telegram account to an existing user.
func (s *UserService) LinkTelegram(ctx context.Context, userID uint, telegramID int64) error {
	return notFound(s.repo.LinkTelegram(ctx, userID, telegramID), "user")
}

// SetSummaryTime stores value as the user's daily summary time in HH:MM form.
func (s *UserService) SetSummaryTime(ctx context.Context, userID uint, value string) (string, error) {
	normalized, err := normalizeClock(value)
	if err != nil {
		return "", err
	}
	if err := s.repo.UpdateSummaryTime(ctx, userID, normalized); err != nil {
		return "", notFound(err, "user")
	}
	return normalized, nil
}

// Delete removes the user with every event, todo, tag and reminder they own.
func (s *UserService) Delete(ctx context.Context, userID uint) error {
	return notFound(s.repo.Delete(ctx, userID), "user")
}

func normalizeClock(value string) (string, error) {
	hour, minute, err := model.ParseClock(value)
	if err != nil {
		return "", invalid("summary_time", err.Error())
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}
