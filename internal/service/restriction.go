package service

import (
	"strings"

	"survey_marking_backend/internal/model"
)

// Accessible applies the country denylist: an item is reachable unless the
// country appears in its restriction list.
func Accessible(item model.Restrictable, countryCode string) bool {
	if item == nil {
		return true
	}
	restrictions := item.Restrictions()
	if len(restrictions) == 0 {
		return true
	}
	code := strings.TrimSpace(countryCode)
	for _, denied := range restrictions {
		if strings.EqualFold(strings.TrimSpace(denied), code) {
			return false
		}
	}
	return true
}
