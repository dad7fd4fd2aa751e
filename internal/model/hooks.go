package model

import "gorm.io/gorm"

// BeforeSave keeps event instants in the storage convention.
func (e *Event) BeforeSave(*gorm.DB) error {
	e.StartTime = Normalize(e.StartTime)
	e.EndTime = Normalize(e.EndTime)
	return nil
}

// BeforeSave keeps the deadline in the storage convention and fills the priority.
func (t *TodoItem) BeforeSave(*gorm.DB) error {
	t.Deadline = NormalizePtr(t.Deadline)
	if t.Priority == "" {
		t.Priority = PriorityLow
	}
	return nil
}
