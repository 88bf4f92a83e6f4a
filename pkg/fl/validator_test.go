package fl_test

import (
	"errors"
	"math"
	"testing"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	valid := update("a", 10, []float32{1, 2, 3}, 0.5)

	cases := []struct {
		desc   string
		update func() fl.Update
		round  uint64
		reason fl.RejectReason
	}{
		{
			desc:   "valid update",
			update: func() fl.Update { return valid },
			round:  1,
		},
		{
			desc:   "stale round",
			update: func() fl.Update { return valid },
			round:  2,
			reason: fl.ReasonRoundMismatch,
		},
		{
			desc: "premature round",
			update: func() fl.Update {
				u := valid
				u.Round = 5

				return u
			},
			round:  1,
			reason: fl.ReasonRoundMismatch,
		},
		{
			desc: "zero samples",
			update: func() fl.Update {
				u := valid
				u.Samples = 0

				return u
			},
			round:  1,
			reason: fl.ReasonSampleCount,
		},
		{
			desc: "negative samples",
			update: func() fl.Update {
				u := valid
				u.Samples = -3

				return u
			},
			round:  1,
			reason: fl.ReasonSampleCount,
		},
		{
			desc: "missing layer",
			update: func() fl.Update {
				u := valid
				u.Params = fl.Params{"dense": {1, 2, 3}, "extra": {1}}

				return u
			},
			round:  1,
			reason: fl.ReasonLayerSet,
		},
		{
			desc: "extra layer",
			update: func() fl.Update {
				u := valid
				u.Params = fl.Params{"dense": {1, 2, 3}, "bias": {1}, "extra": {1}}

				return u
			},
			round:  1,
			reason: fl.ReasonLayerSet,
		},
		{
			desc: "wrong layer length",
			update: func() fl.Update {
				return update("a", 10, []float32{1, 2}, 0.5)
			},
			round:  1,
			reason: fl.ReasonLayerLength,
		},
		{
			desc: "NaN value",
			update: func() fl.Update {
				return update("a", 10, []float32{1, float32(math.NaN()), 3}, 0.5)
			},
			round:  1,
			reason: fl.ReasonNonFinite,
		},
		{
			desc: "infinite value",
			update: func() fl.Update {
				return update("a", 10, []float32{1, 2, 3}, float32(math.Inf(-1)))
			},
			round:  1,
			reason: fl.ReasonNonFinite,
		},
		{
			desc: "NaN loss",
			update: func() fl.Update {
				u := update("a", 10, []float32{1, 2, 3}, 0.5)
				u.Loss = math.NaN()

				return u
			},
			round:  1,
			reason: fl.ReasonNonFiniteStat,
		},
		{
			desc: "infinite accuracy",
			update: func() fl.Update {
				u := update("a", 10, []float32{1, 2, 3}, 0.5)
				u.Accuracy = math.Inf(1)

				return u
			},
			round:  1,
			reason: fl.ReasonNonFiniteStat,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := fl.Validate(tc.update(), tc.round, testShape)
			if tc.reason == "" {
				assert.NoError(t, err)

				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, fl.ErrValidation))

			var verr *fl.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.reason, verr.Reason)
		})
	}
}
