package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeoutOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		timeoutSec int
		want       time.Duration
	}{
		{"project override", 120, 2 * time.Minute},
		{"unset falls back", 0, time.Minute},
		{"negative falls back", -5, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Project{ContainerTimeoutSec: tt.timeoutSec}
			assert.Equal(t, tt.want, p.TimeoutOrDefault(time.Minute))
		})
	}
}
