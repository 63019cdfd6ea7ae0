package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDurationString(t *testing.T) {
	tests := []struct {
		micros   int64
		expected string
	}{
		{0, "0ms"},
		{1, "1μs"},
		{999, "999μs"},
		{1000, "1ms"},
		{1500, "1.500ms"},
		{15000, "15ms"},
		{999999, "999.999ms"},
		{1000000, "1.000s"},
		{2534999, "2.535s"},
	}

	for i, tc := range tests {
		assert.Equal(t, tc.expected, DurationString(tc.micros), "TEST[%d], Failed.\n%d", i, tc.micros)
	}
}
