package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jengzang/legs-backend-go/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

func fromUnix(s int64) time.Time {
	return time.Unix(s, 0).UTC()
}

func nullActivity(a models.Activity) sql.NullString {
	return sql.NullString{String: string(a), Valid: a != models.ActivityNotSet}
}
