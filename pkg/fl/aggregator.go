package fl

import (
	"cmp"
	"slices"
)

type FedAvgAggregator struct{}

func NewFedAvgAggregator() Aggregator {
	return &FedAvgAggregator{}
}

// Aggregate computes, per layer, the sample-weighted mean of all updates.
// Sums are accumulated in float64 and rounded to float32 once at the end.
// Updates are folded in client ID order so the result does not depend on
// the order they arrived in.
func (f *FedAvgAggregator) Aggregate(updates []Update, shape Shape) (Params, error) {
	if len(updates) == 0 {
		return nil, ErrNoUpdates
	}

	ordered := slices.Clone(updates)
	slices.SortStableFunc(ordered, func(a, b Update) int {
		return cmp.Compare(a.ClientID, b.ClientID)
	})

	sums := make(map[string][]float64, len(shape))
	for name, n := range shape {
		sums[name] = make([]float64, n)
	}

	var totalSamples float64
	for _, update := range ordered {
		if len(update.Params) != len(shape) {
			return nil, &AggregationShapeError{ClientID: update.ClientID, Want: len(shape), Got: len(update.Params)}
		}

		weight := float64(update.Samples)
		totalSamples += weight

		for name, acc := range sums {
			layer, ok := update.Params[name]
			if !ok || len(layer) != len(acc) {
				return nil, &AggregationShapeError{ClientID: update.ClientID, Layer: name, Want: len(acc), Got: len(layer)}
			}
			for i, v := range layer {
				acc[i] += weight * float64(v)
			}
		}
	}

	if totalSamples <= 0 {
		return nil, ErrNoUpdates
	}

	aggregated := make(Params, len(sums))
	for name, acc := range sums {
		layer := make([]float32, len(acc))
		for i, sum := range acc {
			layer[i] = float32(sum / totalSamples)
		}
		aggregated[name] = layer
	}

	return aggregated, nil
}
