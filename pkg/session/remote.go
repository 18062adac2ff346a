package session

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RemoteEpochs is the epoch count a remote run is assumed to last.
const RemoteEpochs = 200

var hundred = decimal.NewFromInt(100)

// RemoteProgress converts completed epochs to a percentage capped at 100.
func RemoteProgress(epochs int) decimal.Decimal {
	p := decimal.NewFromInt(int64(epochs)).Div(decimal.NewFromInt(RemoteEpochs)).Mul(hundred)
	if p.GreaterThan(hundred) {
		return hundred
	}
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

func RemoteMessage(epochs int) string {
	switch {
	case epochs <= 0:
		return "initializing training..."
	case RemoteProgress(epochs).LessThan(hundred):
		return fmt.Sprintf("epoch %d/%d - training...", epochs, RemoteEpochs)
	default:
		return "training complete!"
	}
}

// FormatRemaining renders seconds as "Xh Ym", or "Ym" under an hour.
func FormatRemaining(seconds decimal.Decimal) string {
	total := seconds.IntPart()
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
