package servo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/wfunc/pinball-game/internal/errors"
)

func TestPositionValue(t *testing.T) {
	tests := []struct {
		name     string
		position float64
		min      int
		max      int
		want     int
		wantErr  bool
	}{
		{"最小位置", 0, 4000, 8000, 4000, false},
		{"最大位置", 1, 4000, 8000, 8000, false},
		{"中间位置", 0.5, 4000, 8000, 6000, false},
		{"四舍五入", 0.333, 0, 100, 33, false},
		{"向上取整", 0.335, 0, 100, 34, false},
		{"负值越界", -0.01, 4000, 8000, 0, true},
		{"超过1越界", 1.01, 4000, 8000, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := positionValue(tt.position, tt.min, tt.max)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, apperrors.Is(err, apperrors.ErrServoPosition))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
