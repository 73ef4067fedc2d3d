package mappers

import (
	"time"

	"github.com/storesync/storesync/internal/shared/utils/logutil"
)

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func truncate(s string, max int) string {
	return logutil.TruncateForLog(s, max)
}
