package schedule

import (
	"time"

	"github.com/jdziat/pass-batch/pkg/params"
)

// NoParams supplies an empty parameter set.
func NoParams(time.Time) params.Parameters { return params.New(nil) }

// FireTime supplies the fire time under key. Runs fired at different
// minutes get distinct instance identities.
func FireTime(key string) ParamsFunc {
	return func(at time.Time) params.Parameters {
		return params.New(map[string]string{key: params.FormatTime(at)})
	}
}

// PreviousDay supplies the UTC calendar day before the fire time as a
// window from midnight to the following midnight. Consumers treat toKey as
// exclusive, so consecutive days do not overlap.
func PreviousDay(fromKey, toKey string) ParamsFunc {
	return func(at time.Time) params.Parameters {
		at = at.UTC()
		to := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		from := to.AddDate(0, 0, -1)
		return params.New(map[string]string{
			fromKey: params.FormatTime(from),
			toKey:   params.FormatTime(to),
		})
	}
}
