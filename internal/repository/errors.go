package repository

import (
	"errors"

	"survey_marking_backend/internal/util"

	"gorm.io/gorm"
)

// translate maps gorm's not-found to the domain error.
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrNotFound
	}
	return err
}

func bySortOrder(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order ASC").Order("id ASC")
}
