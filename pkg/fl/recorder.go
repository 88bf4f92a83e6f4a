package fl

import (
	"cmp"
	"slices"
)

// Record folds the accepted updates into the round summary: loss and accuracy
// are weighted by sample count, the same weights the aggregator uses.
func Record(rec RoundRecord, updates []Update) RoundRecord {
	rec = rec.Clone()

	ordered := slices.Clone(updates)
	slices.SortStableFunc(ordered, func(a, b Update) int {
		return cmp.Compare(a.ClientID, b.ClientID)
	})

	var samples, loss, accuracy float64
	contributions := make([]Contribution, 0, len(ordered))
	contributors := make([]string, 0, len(ordered))
	for _, u := range ordered {
		w := float64(u.Samples)
		samples += w
		loss += w * u.Loss
		accuracy += w * u.Accuracy

		contributors = append(contributors, u.ClientID)
		contributions = append(contributions, Contribution{
			ClientID: u.ClientID,
			Samples:  u.Samples,
			Loss:     u.Loss,
			Accuracy: u.Accuracy,
		})
	}

	rec.Contributors = contributors
	rec.Contributions = contributions
	rec.TotalSamples = int64(samples)
	if samples > 0 {
		rec.Loss = loss / samples
		rec.Accuracy = accuracy / samples
	}

	return rec
}
