package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"daily-calendar/internal/model"
)

// TodoSort selects the ordering of ListByUser.
type TodoSort string

const (
	TodoSortCreated      TodoSort = "created"
	TodoSortAlphabetical TodoSort = "alphabetical"
	TodoSortDeadline     TodoSort = "deadline"
	TodoSortPriority     TodoSort = "priority"
)

// TodoFilter narrows ListByUser.
type TodoFilter struct {
	Completed *bool
	Sort      TodoSort
}

// TodoRepository handles CRUD for todo items and their reminders.
type TodoRepository struct {
	db *gorm.DB
}

func NewTodoRepository(db *gorm.DB) *TodoRepository {
	return &TodoRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *TodoRepository) WithTx(tx *gorm.DB) *TodoRepository {
	return &TodoRepository{db: tx}
}

func (r *TodoRepository) Create(ctx context.Context, todo *model.TodoItem) error {
	if err := r.db.WithContext(ctx).Create(todo).Error; err != nil {
		return fmt.Errorf("create todo: %w", err)
	}
	return nil
}

func (r *TodoRepository) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Reminders", func(db *gorm.DB) *gorm.DB { return db.Order("todo_reminders.id ASC") })
}

func (r *TodoRepository) FindByID(ctx context.Context, userID, todoID uint) (*model.TodoItem, error) {
	var todo model.TodoItem
	if err := r.preloaded(ctx).Where("user_id = ? AND id = ?", userID, todoID).First(&todo).Error; err != nil {
		return nil, err
	}
	return &todo, nil
}

func (r *TodoRepository) ListByUser(ctx context.Context, userID uint, filter TodoFilter) ([]model.TodoItem, error) {
	q := r.preloaded(ctx).Where("user_id = ?", userID)
	if filter.Completed != nil {
		q = q.Where("is_completed = ?", *filter.Completed)
	}
	switch filter.Sort {
	case TodoSortAlphabetical:
		q = q.Order("title ASC")
	case TodoSortDeadline:
		q = q.Order("deadline IS NULL, deadline ASC")
	case TodoSortPriority:
		q = q.Order("CASE priority WHEN 'HIGH' THEN 0 ELSE 1 END, created_at DESC")
	default:
		q = q.Order("created_at DESC")
	}
	var todos []model.TodoItem
	if err := q.Order("id DESC").Find(&todos).Error; err != nil {
		return nil, err
	}
	return todos, nil
}

// ListDueOrCreatedBetween returns items with a deadline in [from, to), or with no
// deadline and created in [from, to).
func (r *TodoRepository) ListDueOrCreatedBetween(ctx context.Context, userID uint, from, to time.Time) ([]model.TodoItem, error) {
	from, to = model.Normalize(from), model.Normalize(to)
	var todos []model.TodoItem
	err := r.preloaded(ctx).
		Where("user_id = ?", userID).
		Where("(deadline >= ? AND deadline < ?) OR (deadline IS NULL AND created_at >= ? AND created_at < ?)", from, to, from, to).
		Order("deadline IS NULL, deadline ASC, id ASC").
		Find(&todos).Error
	if err != nil {
		return nil, err
	}
	return todos, nil
}

func (r *TodoRepository) ListIncomplete(ctx context.Context, userID uint) ([]model.TodoItem, error) {
	var todos []model.TodoItem
	if err := r.db.WithContext(ctx).Where("user_id = ? AND is_completed = ?", userID, false).
		Order("deadline IS NULL, deadline ASC, id ASC").
		Find(&todos).Error; err != nil {
		return nil, err
	}
	return todos, nil
}

// Save writes the item's own columns. Reminders are managed separately.
func (r *TodoRepository) Save(ctx context.Context, todo *model.TodoItem) error {
	if err := r.db.WithContext(ctx).Omit("Reminders").Save(todo).Error; err != nil {
		return fmt.Errorf("save todo: %w", err)
	}
	return nil
}

// ReplaceReminders discards every reminder of the item and creates fresh unsent ones.
func (r *TodoRepository) ReplaceReminders(ctx context.Context, todoID uint, minutes []int) ([]model.TodoReminder, error) {
	db := r.db.WithContext(ctx)
	if err := db.Where("todo_item_id = ?", todoID).Delete(&model.TodoReminder{}).Error; err != nil {
		return nil, fmt.Errorf("delete todo reminders: %w", err)
	}
	reminders := make([]model.TodoReminder, 0, len(minutes))
	for _, m := range minutes {
		reminders = append(reminders, model.TodoReminder{TodoItemID: todoID, MinutesBefore: m})
	}
	if len(reminders) == 0 {
		return reminders, nil
	}
	if err := db.Create(&reminders).Error; err != nil {
		return nil, fmt.Errorf("create todo reminders: %w", err)
	}
	return reminders, nil
}

// ResetReminders marks every reminder of the item unsent again.
func (r *TodoRepository) ResetReminders(ctx context.Context, todoID uint) error {
	if err := r.db.WithContext(ctx).Model(&model.TodoReminder{}).Where("todo_item_id = ?", todoID).Update("is_sent", false).Error; err != nil {
		return fmt.Errorf("reset todo reminders: %w", err)
	}
	return nil
}

// SetCompleted stores the completion flag without touching other columns and
// mirrors it onto todo.
func (r *TodoRepository) SetCompleted(ctx context.Context, todo *model.TodoItem, completed bool) error {
	if err := r.db.WithContext(ctx).Model(&model.TodoItem{ID: todo.ID}).Update("is_completed", completed).Error; err != nil {
		return fmt.Errorf("set todo completion: %w", err)
	}
	todo.IsCompleted = completed
	return nil
}

// LinkEvent records that the item was copied into the calendar as eventID.
func (r *TodoRepository) LinkEvent(ctx context.Context, todo *model.TodoItem, eventID uint) error {
	err := r.db.WithContext(ctx).Model(&model.TodoItem{ID: todo.ID}).Updates(map[string]interface{}{
		"added_to_calendar": true,
		"event_id":          eventID,
	}).Error
	if err != nil {
		return fmt.Errorf("link todo event: %w", err)
	}
	todo.AddedToCalendar = true
	todo.EventID = &eventID
	return nil
}

// Delete removes the item together with its reminders.
func (r *TodoRepository) Delete(ctx context.Context, userID, todoID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var todo model.TodoItem
		if err := tx.Where("user_id = ? AND id = ?", userID, todoID).First(&todo).Error; err != nil {
			return err
		}
		if err := tx.Where("todo_item_id = ?", todo.ID).Delete(&model.TodoReminder{}).Error; err != nil {
			return fmt.Errorf("delete todo reminders: %w", err)
		}
		if err := tx.Delete(&todo).Error; err != nil {
			return fmt.Errorf("delete todo: %w", err)
		}
		return nil
	})
}

// PendingReminders returns unsent reminders of open items whose deadline is after now,
// limited to deadlines within (now, now+lookahead] when lookahead is positive.
func (r *TodoRepository) PendingReminders(ctx context.Context, now time.Time, lookahead time.Duration) ([]model.TodoReminder, error) {
	now = model.Normalize(now)
	q := r.db.WithContext(ctx).
		Joins("JOIN todo_items ON todo_items.id = todo_reminders.todo_item_id").
		Where("todo_reminders.is_sent = ? AND todo_items.is_completed = ? AND todo_items.deadline > ?", false, false, now)
	if lookahead > 0 {
		q = q.Where("todo_items.deadline <= ?", now.Add(lookahead))
	}
	var reminders []model.TodoReminder
	if err := q.Preload("TodoItem").Order("todo_items.deadline ASC, todo_reminders.id ASC").Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("pending todo reminders: %w", err)
	}
	return reminders, nil
}

// MarkReminderSent flips is_sent once; false means it was already sent or is gone.
func (r *TodoRepository) MarkReminderSent(ctx context.Context, reminderID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.TodoReminder{}).
		Where("id = ? AND is_sent = ?", reminderID, false).
		Update("is_sent", true)
	if res.Error != nil {
		return false, fmt.Errorf("mark todo reminder sent: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
