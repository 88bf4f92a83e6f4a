package client

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/absmach/fedcoord/pkg/fl"
)

var ErrNoSamples = errors.New("trainer has no local samples")

// Trainer runs local training on a snapshot. A trainer that cannot produce
// an update returns an error, and the round simply hears nothing back.
type Trainer interface {
	Train(ctx context.Context, params fl.Params, cfg fl.RoundConfig) (fl.Update, error)
}

var _ Trainer = (*SimTrainer)(nil)

// SimTrainer pulls every parameter toward a fixed per-client optimum. It does
// no real learning but gives the coordinator realistic, reproducible updates.
type SimTrainer struct {
	ClientID string
	Samples  int64
	Seed     uint64
}

func (s *SimTrainer) Train(ctx context.Context, params fl.Params, cfg fl.RoundConfig) (fl.Update, error) {
	if s.Samples <= 0 {
		return fl.Update{}, ErrNoSamples
	}

	epochs := max(cfg.LocalEpochs, 1)
	rate := cfg.LearningRate
	if rate <= 0 || rate > 1 {
		rate = 0.1
	}

	out := params.Clone()
	var sq float64
	var n int
	for _, name := range out.Shape().Layers() {
		if err := ctx.Err(); err != nil {
			return fl.Update{}, err
		}
		layer := out[name]
		rng := s.layerRand(name)
		for i := range layer {
			target := rng.Float64()*2 - 1
			v := float64(layer[i])
			for range epochs {
				v += rate * (target - v)
			}
			layer[i] = float32(v)
			sq += (target - v) * (target - v)
			n++
		}
	}

	loss := 0.0
	if n > 0 {
		loss = sq / float64(n)
	}

	return fl.Update{
		ClientID: s.ClientID,
		Round:    cfg.Round,
		Params:   out,
		Samples:  s.Samples,
		Loss:     loss,
		Accuracy: 1 / (1 + loss),
	}, nil
}

// layerRand yields the same optimum for a layer on every round.
func (s *SimTrainer) layerRand(layer string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s.ClientID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(layer))

	return rand.New(rand.NewPCG(s.Seed, h.Sum64()))
}

// Finite reports whether every value in p is a real number.
func Finite(p fl.Params) bool {
	for _, layer := range p {
		for _, v := range layer {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return false
			}
		}
	}

	return true
}
