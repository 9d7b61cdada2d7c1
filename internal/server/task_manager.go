package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus defines the possible states of a task.
type TaskStatus string

const (
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task is an asynchronous path search. Read it through Snapshot.
type Task struct {
	ID string

	view   TaskView
	cancel func()
	mu     sync.RWMutex
}

// TaskManager tracks asynchronous tasks. Finished tasks are forgotten once
// they are older than the TTL.
type TaskManager struct {
	tasks map[string]*Task
	ttl   time.Duration
	mu    sync.RWMutex
}

// NewTaskManager creates a task manager. A ttl of zero keeps finished tasks forever.
func NewTaskManager(ttl time.Duration) *TaskManager {
	return &TaskManager{
		tasks: make(map[string]*Task),
		ttl:   ttl,
	}
}

// NewTask registers a running task. cancel, if not nil, is called by Cancel.
func (tm *TaskManager) NewTask(cancel func()) *Task {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	id := uuid.New().String()
	task := &Task{
		ID:     id,
		view:   TaskView{ID: id, Status: TaskStatusRunning, Created: time.Now()},
		cancel: cancel,
	}
	tm.tasks[task.ID] = task
	return task
}

// GetTask safely retrieves a task by its ID.
func (tm *TaskManager) GetTask(id string) (*Task, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	task, found := tm.tasks[id]
	return task, found
}

// Len returns the number of tracked tasks.
func (tm *TaskManager) Len() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.tasks)
}

// Sweep forgets finished tasks that expired before now.
func (tm *TaskManager) Sweep(now time.Time) int {
	if tm.ttl <= 0 {
		return 0
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	removed := 0
	for id, t := range tm.tasks {
		if fin := t.finishedAt(); !fin.IsZero() && now.Sub(fin) > tm.ttl {
			delete(tm.tasks, id)
			removed++
		}
	}
	return removed
}

// --- Methods for updating a Task ---

// Complete marks the task as done with result. A task that already finished is
// left alone.
func (t *Task) Complete(result any) {
	t.finish(TaskStatusCompleted, result, "")
}

// SetError marks the task as failed and records the error message.
func (t *Task) SetError(err error) {
	t.finish(TaskStatusFailed, nil, err.Error())
}

// Cancel stops the underlying search and marks the task cancelled.
func (t *Task) Cancel() bool {
	if !t.finish(TaskStatusCancelled, nil, "") {
		return false
	}
	if t.cancel != nil {
		t.cancel()
	}
	return true
}

func (t *Task) finish(status TaskStatus, result any, msg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.view.Status != TaskStatusRunning {
		return false
	}
	t.view.Status = status
	t.view.Result = result
	t.view.Error = msg
	t.view.Finished = time.Now()
	return true
}

func (t *Task) finishedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view.Finished
}

// Snapshot returns a copy that is safe to encode.
func (t *Task) Snapshot() TaskView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view
}

// TaskView is the wire form of a Task.
type TaskView struct {
	ID       string     `json:"id"`
	Status   TaskStatus `json:"status"`
	Result   any        `json:"result,omitempty"`
	Error    string     `json:"error,omitempty"`
	Created  time.Time  `json:"created"`
	Finished time.Time  `json:"finished,omitzero"`
}
