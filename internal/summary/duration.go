package summary

import "fmt"

// DurationString formats microseconds with a unit and precision that suit the magnitude: whole μs
// below a millisecond, ms below a second (without decimals when integral) and seconds above.
func DurationString(micros int64) string {
	switch {
	case micros == 0:
		return "0ms"
	case micros < 1000:
		return fmt.Sprintf("%dμs", micros)
	case micros < 1000000:
		if micros%1000 == 0 {
			return fmt.Sprintf("%dms", micros/1000)
		}

		return fmt.Sprintf("%.3fms", float64(micros)/1000)
	}

	return fmt.Sprintf("%.3fs", float64(micros)/1000000)
}
