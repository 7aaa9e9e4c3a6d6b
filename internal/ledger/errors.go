package ledger

import "errors"

var (
	// ErrNotFound is returned by a Store when the addressed row does not exist.
	ErrNotFound = errors.New("ledger: not found")
	// ErrTaskNotFound reports a task id that does not resolve for the user.
	ErrTaskNotFound = errors.New("ledger: task not found")
	// ErrTaskActive reports an operation refused because the task has an open session.
	ErrTaskActive = errors.New("ledger: task has an active session")
	// ErrEmptyTaskName reports a blank task name.
	ErrEmptyTaskName = errors.New("ledger: empty task name")
)
