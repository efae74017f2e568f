package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/roundtable/core"
)

func TestDetectPhase(t *testing.T) {
	tests := []struct {
		name     string
		turn     int
		maxTurns int
		want     core.Phase
	}{
		{"first of ten", 1, 10, core.PhaseOpening},
		{"second of ten", 2, 10, core.PhaseOpening},
		{"third of ten", 3, 10, core.PhaseDiscussion},
		{"eighth of ten", 8, 10, core.PhaseDiscussion},
		{"ninth of ten", 9, 10, core.PhaseWrapUp},
		{"last of ten", 10, 10, core.PhaseWrapUp},
		{"single turn", 1, 1, core.PhaseOpening},
		{"two turns first", 1, 2, core.PhaseOpening},
		{"two turns last", 2, 2, core.PhaseWrapUp},
		{"three turns middle", 2, 3, core.PhaseDiscussion},
		{"zero turn clamps", 0, 10, core.PhaseOpening},
		{"no max", 5, 0, core.PhaseOpening},
		{"twenty middle", 10, 20, core.PhaseDiscussion},
		{"twenty wrap", 17, 20, core.PhaseWrapUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectPhase(tt.turn, tt.maxTurns))
		})
	}
}

func TestDetectPhase_Deterministic(t *testing.T) {
	for i := 1; i <= 30; i++ {
		assert.Equal(t, DetectPhase(i, 30), DetectPhase(i, 30))
	}
}
