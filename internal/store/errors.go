package store

import (
	stderrors "errors"

	"github.com/shelflifeapp/shelflife/internal/errors"
)

// Sentinel errors. ErrNotFound and ErrRemoteIDBound carry domain codes, so
// errors.Is matches them against errors.ErrNotFound and errors.ErrConflict too.
var (
	ErrNotFound        = errors.NotFound("resource not found")
	ErrAlreadyExists   = errors.Conflict("resource already exists")
	ErrRemoteIDBound   = errors.Conflict("a different remote id is already bound")
	ErrReadOnlySession = stderrors.New("mutation attempted in a read-only session")
	ErrClosed          = stderrors.New("store is closed")
)
