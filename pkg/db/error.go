package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Each dialect words a unique violation differently and gorm does not
// always translate it, so the driver message is the fallback.
var duplicateKeyMarkers = []string{
	"duplicate key value violates unique constraint", // postgres, SQLSTATE 23505
	"Error 1062",               // mysql
	"UNIQUE constraint failed", // sqlite
}

// IsDuplicateKeyErr reports whether err is a unique constraint violation.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	for _, marker := range duplicateKeyMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
