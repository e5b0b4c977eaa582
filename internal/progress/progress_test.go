package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func statuses(ss ...string) []Status {
	out := make([]Status, len(ss))
	for i, s := range ss {
		out[i] = Status(s)
	}
	return out
}

func TestPercentEmpty(t *testing.T) {
	assert.Equal(t, 0, Percent([]Status{}))
	assert.Equal(t, 0, Percent[Status](nil))
	assert.Equal(t, Report{}, Summary[Status](nil))
}

func TestPercentAllCompleted(t *testing.T) {
	for n := 1; n <= 50; n++ {
		ms := make([]Status, n)
		for i := range ms {
			ms[i] = StatusCompleted
		}
		assert.Equal(t, 100, Percent(ms), "n=%d", n)
	}
}

func TestPercentRounding(t *testing.T) {
	tests := []struct {
		name string
		in   []Status
		want int
	}{
		{"half", statuses("completed", "pending", "completed", "pending"), 50},
		{"two of three", statuses("completed", "completed", "pending"), 67},
		{"one of three", statuses("completed", "pending", "in_progress"), 33},
		{"one of eight", statuses("completed", "pending", "pending", "pending", "pending", "pending", "pending", "pending"), 13},
		{"single pending", statuses("pending"), 0},
		{"single completed", statuses("completed"), 100},
		{"unknown status", statuses("Completed", "done", ""), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percent(tt.in))
		})
	}
}

func TestSummary(t *testing.T) {
	got := Summary(statuses("completed", "completed", "pending"))
	assert.Equal(t, Report{Total: 3, Completed: 2, Percent: 67}, got)
}
