package event

import (
	"fmt"
	"strconv"
)

// ToMilliseconds normalises an epoch timestamp of unknown precision by its
// digit count: seconds (10), milliseconds (13), microseconds (16) or
// nanoseconds (19).
func ToMilliseconds(ts int64) (int64, error) {
	if ts < 0 {
		return 0, fmt.Errorf("negative timestamp %d", ts)
	}
	switch digits := len(strconv.FormatInt(ts, 10)); digits {
	case 10:
		return ts * 1000, nil
	case 13:
		return ts, nil
	case 16:
		return ts / 1000, nil
	case 19:
		return ts / 1_000_000, nil
	default:
		return 0, fmt.Errorf("timestamp %d has %d digits, expected 10, 13, 16 or 19", ts, digits)
	}
}
