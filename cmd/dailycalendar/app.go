package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"daily-calendar/internal/config"
	"daily-calendar/internal/extraction"
	"daily-calendar/internal/model"
	"daily-calendar/internal/repository"
	"daily-calendar/internal/service"
)

type assistant interface {
	extraction.Service
	extraction.Rewriter
}

// app is the wired service graph shared by every command.
type app struct {
	cfg      config.Config
	db       *gorm.DB
	registry *prometheus.Registry
	metrics  *service.Metrics
	clock    service.Clock

	users  *repository.UserRepository
	tags   *repository.TagRepository
	events *repository.EventRepository
	todos  *repository.TodoRepository

	userSvc      *service.UserService
	calendar     *service.CalendarService
	todoSvc      *service.TodoService
	summaries    *service.SummaryService
	chat         *service.ChatService
	materializer *service.Materializer
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics, err := service.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	var ai assistant = extraction.Disabled()
	if cfg.ExtractionEnabled() {
		ai = extraction.NewOpenAIService(extraction.OpenAIConfig{
			BaseURL: cfg.ExtractionBaseURL,
			APIKey:  cfg.ExtractionAPIKey,
			Model:   cfg.ExtractionModel,
			Timeout: cfg.ExtractionTimeout,
		})
	}

	sessions, err := extraction.NewSessionStore(cfg.HistorySessions, cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}

	clock := service.SystemClock{}
	a := &app{
		cfg:      cfg,
		db:       db,
		registry: registry,
		metrics:  metrics,
		clock:    clock,
		users:    repository.NewUserRepository(db),
		tags:     repository.NewTagRepository(db),
		events:   repository.NewEventRepository(db),
		todos:    repository.NewTodoRepository(db),
	}
	a.userSvc = service.NewUserService(a.users)
	a.calendar = service.NewCalendarService(db, a.events, a.tags, clock, cfg.ResetRemindersOnReschedule)
	a.todoSvc = service.NewTodoService(db, a.todos, a.events, clock, cfg.Location, cfg.ResetRemindersOnReschedule)
	a.summaries = service.NewSummaryService(a.events, a.todos, ai, cfg.EnhanceSummary, cfg.Location)
	a.chat = service.NewChatService(ai, sessions, metrics)
	a.materializer = service.NewMaterializer(a.events, a.todos, service.NewDateParser(cfg.Location, clock), clock)
	return a, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (a *app) user(ctx context.Context, username string) (*model.User, error) {
	if username == "" {
		return nil, errors.New("--user is required")
	}
	return a.userSvc.GetByUsername(ctx, username)
}
