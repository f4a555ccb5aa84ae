package analytics

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/mycoshop-backend/api/validators"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
)

var timeNowUTC = func() time.Time {
	return time.Now().UTC()
}

// resolveSalesRange reads start/end or a preset. With neither, zero times are
// returned and the service picks its default window.
func resolveSalesRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	query := r.URL.Query()
	hasStart := strings.TrimSpace(query.Get("start")) != ""
	hasEnd := strings.TrimSpace(query.Get("end")) != ""

	if hasStart || hasEnd {
		if !hasStart || !hasEnd {
			return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "start and end must be provided together")
		}
		start, err := validators.ParseQueryTime(r, "start")
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, err := validators.ParseQueryTime(r, "end")
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return start.UTC(), end.UTC(), nil
	}

	preset := strings.TrimSpace(query.Get("preset"))
	if preset == "" {
		return time.Time{}, time.Time{}, nil
	}
	duration, ok := presetDuration(preset)
	if !ok {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid preset").
			WithDetails(map[string]any{"allowed": []string{"7d", "30d", "90d"}})
	}
	return now.Add(-duration), now, nil
}

func presetDuration(value string) (time.Duration, bool) {
	switch strings.ToLower(value) {
	case "7d":
		return 7 * 24 * time.Hour, true
	case "30d":
		return 30 * 24 * time.Hour, true
	case "90d":
		return 90 * 24 * time.Hour, true
	default:
		return 0, false
	}
}
