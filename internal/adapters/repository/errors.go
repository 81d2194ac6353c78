package repository

import (
	"errors"

	"github.com/okian/matchloop/internal/domain/fault"
)

// Sentinel kinds for repository errors.
var (
	ErrNotFound     = fault.ErrNotFound
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
)
