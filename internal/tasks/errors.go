package tasks

import "errors"

// ErrNotFound indicates the task id resolves to no live record.
var ErrNotFound = errors.New("task not found")
