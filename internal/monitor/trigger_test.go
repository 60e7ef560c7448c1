package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridianquant/tradecore/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func openPosition(side domain.PositionSide, sl, tp *float64) domain.Position {
	return domain.Position{
		ID:         "pos-1",
		Side:       side,
		Quantity:   1,
		Available:  1,
		Status:     domain.PositionStatusOpen,
		StopLoss:   sl,
		TakeProfit: tp,
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		pos   domain.Position
		price float64
		want  domain.TriggerType
	}{
		{
			name:  "long no thresholds",
			pos:   openPosition(domain.PositionSideLong, nil, nil),
			price: 100,
			want:  domain.TriggerNone,
		},
		{
			name:  "long price between thresholds",
			pos:   openPosition(domain.PositionSideLong, ptr(90), ptr(110)),
			price: 100,
			want:  domain.TriggerNone,
		},
		{
			name:  "long stop loss at threshold",
			pos:   openPosition(domain.PositionSideLong, ptr(90), ptr(110)),
			price: 90,
			want:  domain.TriggerStopLoss,
		},
		{
			name:  "long stop loss below threshold",
			pos:   openPosition(domain.PositionSideLong, ptr(90), nil),
			price: 80,
			want:  domain.TriggerStopLoss,
		},
		{
			name:  "long take profit at threshold",
			pos:   openPosition(domain.PositionSideLong, ptr(90), ptr(110)),
			price: 110,
			want:  domain.TriggerTakeProfit,
		},
		{
			name:  "long stop loss wins when both fire",
			pos:   openPosition(domain.PositionSideLong, ptr(100), ptr(100)),
			price: 100,
			want:  domain.TriggerStopLoss,
		},
		{
			name:  "short stop loss at threshold",
			pos:   openPosition(domain.PositionSideShort, ptr(110), ptr(90)),
			price: 110,
			want:  domain.TriggerStopLoss,
		},
		{
			name:  "short take profit below threshold",
			pos:   openPosition(domain.PositionSideShort, ptr(110), ptr(90)),
			price: 85,
			want:  domain.TriggerTakeProfit,
		},
		{
			name:  "short price between thresholds",
			pos:   openPosition(domain.PositionSideShort, ptr(110), ptr(90)),
			price: 100,
			want:  domain.TriggerNone,
		},
		{
			name:  "short stop loss wins when both fire",
			pos:   openPosition(domain.PositionSideShort, ptr(100), ptr(100)),
			price: 100,
			want:  domain.TriggerStopLoss,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.pos, tt.price))
		})
	}
}

func TestEvaluateSkipsClosedAndEmptyPositions(t *testing.T) {
	closed := openPosition(domain.PositionSideLong, ptr(90), nil)
	closed.Status = domain.PositionStatusClosed
	assert.Equal(t, domain.TriggerNone, Evaluate(closed, 50))

	empty := openPosition(domain.PositionSideLong, ptr(90), nil)
	empty.Quantity = 0
	assert.Equal(t, domain.TriggerNone, Evaluate(empty, 50))
}
