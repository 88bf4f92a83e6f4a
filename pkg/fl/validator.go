package fl

import (
	"fmt"
	"math"
)

// Validate checks u against the round being collected and the model shape.
// It returns nil or a *ValidationError naming the first problem found.
func Validate(u Update, round uint64, shape Shape) error {
	if u.Round != round {
		return &ValidationError{
			Reason: ReasonRoundMismatch,
			Detail: fmt.Sprintf("update for round %d, collecting round %d", u.Round, round),
		}
	}

	if u.Samples <= 0 {
		return &ValidationError{
			Reason: ReasonSampleCount,
			Detail: fmt.Sprintf("sample count %d", u.Samples),
		}
	}

	// Metrics are persisted as JSON, which has no NaN or Inf.
	for _, m := range []struct {
		name  string
		value float64
	}{{"loss", u.Loss}, {"accuracy", u.Accuracy}} {
		if math.IsNaN(m.value) || math.IsInf(m.value, 0) {
			return &ValidationError{
				Reason: ReasonNonFiniteStat,
				Detail: fmt.Sprintf("%s is %v", m.name, m.value),
			}
		}
	}

	if len(u.Params) != len(shape) {
		return &ValidationError{
			Reason: ReasonLayerSet,
			Detail: fmt.Sprintf("got %d layers, want %d", len(u.Params), len(shape)),
		}
	}

	for _, name := range shape.Layers() {
		layer, ok := u.Params[name]
		if !ok {
			return &ValidationError{
				Reason: ReasonLayerSet,
				Detail: fmt.Sprintf("missing layer %q", name),
			}
		}
		if len(layer) != shape[name] {
			return &ValidationError{
				Reason: ReasonLayerLength,
				Detail: fmt.Sprintf("layer %q has length %d, want %d", name, len(layer), shape[name]),
			}
		}
		for i, v := range layer {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return &ValidationError{
					Reason: ReasonNonFinite,
					Detail: fmt.Sprintf("layer %q index %d is %v", name, i, v),
				}
			}
		}
	}

	return nil
}
