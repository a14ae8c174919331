package storage

import "errors"

// ErrAlertNotFound is returned by alert mutations targeting an unknown ID.
var ErrAlertNotFound = errors.New("alert not found")
