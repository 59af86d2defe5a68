package store

import (
	domainerrors "github.com/coversync/coversync-server/internal/errors"
)

// Sentinel errors. Both are domain errors so API handlers can map them directly.
var (
	ErrNotFound      = domainerrors.NotFound("record not found")
	ErrAlreadyExists = domainerrors.Conflictf("record already exists")
)
