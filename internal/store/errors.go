package store

import "errors"

// ErrDuplicateChangeNumber is returned when a file-change-list is recorded
// for an (app, change-number) pair that already exists with different
// content. This signals upstream inconsistency and is surfaced to the sync
// layer rather than silently resolved.
var ErrDuplicateChangeNumber = errors.New("store: conflicting file-change-list for already-recorded change-number")
