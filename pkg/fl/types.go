package fl

import (
	"maps"
	"slices"
	"time"
)

// Params maps a layer name to its parameter array.
type Params map[string][]float32

// Clone returns a deep copy of p.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for name, layer := range p {
		out[name] = slices.Clone(layer)
	}

	return out
}

// Shape returns the layer name to length contract of p.
func (p Params) Shape() Shape {
	shape := make(Shape, len(p))
	for name, layer := range p {
		shape[name] = len(layer)
	}

	return shape
}

// Shape is the layer name to array length contract every update must match.
type Shape map[string]int

// Layers returns the layer names in sorted order.
func (s Shape) Layers() []string {
	return slices.Sorted(maps.Keys(s))
}

// Equal reports whether both shapes have the same layers with the same lengths.
func (s Shape) Equal(other Shape) bool {
	return maps.Equal(s, other)
}

// GlobalModel is the authoritative, versioned parameter set. A value handed
// out by the coordinator is never mutated afterwards.
type GlobalModel struct {
	Version   uint64    `json:"version"`
	Params    Params    `json:"params"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewGlobalModel builds a version 0 model with zero-valued layers of the given lengths.
func NewGlobalModel(layers Shape) GlobalModel {
	params := make(Params, len(layers))
	for name, n := range layers {
		params[name] = make([]float32, n)
	}

	return GlobalModel{
		Params:    params,
		UpdatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy of m.
func (m GlobalModel) Clone() GlobalModel {
	m.Params = m.Params.Clone()

	return m
}

type Availability uint8

const (
	Available Availability = iota
	Unreachable
	Excluded
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "AVAILABLE"
	case Unreachable:
		return "UNREACHABLE"
	case Excluded:
		return "EXCLUDED"
	default:
		return "UNKNOWN"
	}
}

func (a Availability) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Availability) UnmarshalText(text []byte) error {
	switch string(text) {
	case "AVAILABLE":
		*a = Available
	case "UNREACHABLE":
		*a = Unreachable
	case "EXCLUDED":
		*a = Excluded
	default:
		return ErrUnknownAvailability
	}

	return nil
}

// ClientRecord tracks one member of the static client population.
type ClientRecord struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Availability  Availability `json:"availability"`
	Participation uint64       `json:"participation"`
	LastRound     uint64       `json:"last_round"`
	MissedRounds  uint64       `json:"missed_rounds"`
	LastSeen      time.Time    `json:"last_seen"`
}

type ClientPage struct {
	Total   uint64         `json:"total"`
	Clients []ClientRecord `json:"clients"`
}

type RoundStatus uint8

const (
	RoundPending RoundStatus = iota
	RoundCollecting
	RoundAggregating
	RoundCompleted
	RoundFailed
)

func (s RoundStatus) String() string {
	switch s {
	case RoundPending:
		return "PENDING"
	case RoundCollecting:
		return "COLLECTING"
	case RoundAggregating:
		return "AGGREGATING"
	case RoundCompleted:
		return "COMPLETED"
	case RoundFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s RoundStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RoundStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "PENDING":
		*s = RoundPending
	case "COLLECTING":
		*s = RoundCollecting
	case "AGGREGATING":
		*s = RoundAggregating
	case "COMPLETED":
		*s = RoundCompleted
	case "FAILED":
		*s = RoundFailed
	default:
		return ErrUnknownRoundStatus
	}

	return nil
}

// Terminal reports whether a round in this status can no longer change.
func (s RoundStatus) Terminal() bool {
	return s == RoundCompleted || s == RoundFailed
}

// Contribution is the per-client share of a completed round.
type Contribution struct {
	ClientID string  `json:"client_id"`
	Samples  int64   `json:"samples"`
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

// Rejection records a dropped submission and why it was dropped.
type Rejection struct {
	ClientID string       `json:"client_id"`
	Reason   RejectReason `json:"reason"`
	Detail   string       `json:"detail,omitempty"`
	At       time.Time    `json:"at"`
}

// RoundRecord is the history entry of one round attempt. Round n produces
// model version n; a retried round number gets a new record with a higher Attempt.
type RoundRecord struct {
	ID                string         `json:"id"`
	Number            uint64         `json:"number"`
	Attempt           uint32         `json:"attempt"`
	Status            RoundStatus    `json:"status"`
	Selected          []string       `json:"selected"`
	Contributors      []string       `json:"contributors"`
	Contributions     []Contribution `json:"contributions,omitempty"`
	Rejections        []Rejection    `json:"rejections,omitempty"`
	BroadcastFailures []string       `json:"broadcast_failures,omitempty"`
	Required          int            `json:"required"`
	StartedAt         time.Time      `json:"started_at"`
	Deadline          time.Time      `json:"deadline"`
	FinishedAt        time.Time      `json:"finished_at"`
	Loss              float64        `json:"loss"`
	Accuracy          float64        `json:"accuracy"`
	TotalSamples      int64          `json:"total_samples"`
	FailureReason     string         `json:"failure_reason,omitempty"`
}

// Clone returns a copy of r that shares no slices with it.
func (r RoundRecord) Clone() RoundRecord {
	r.Selected = slices.Clone(r.Selected)
	r.Contributors = slices.Clone(r.Contributors)
	r.Contributions = slices.Clone(r.Contributions)
	r.Rejections = slices.Clone(r.Rejections)
	r.BroadcastFailures = slices.Clone(r.BroadcastFailures)

	return r
}

type RoundPage struct {
	Offset uint64        `json:"offset"`
	Limit  uint64        `json:"limit"`
	Total  uint64        `json:"total"`
	Rounds []RoundRecord `json:"rounds"`
}

// Update is a single client's result for one round.
type Update struct {
	ClientID   string    `json:"client_id"   cbor:"client_id"`
	Round      uint64    `json:"round"       cbor:"round"`
	Params     Params    `json:"params"      cbor:"params"`
	Samples    int64     `json:"samples"     cbor:"samples"`
	Loss       float64   `json:"loss"        cbor:"loss"`
	Accuracy   float64   `json:"accuracy"    cbor:"accuracy"`
	ReceivedAt time.Time `json:"received_at" cbor:"received_at"`
}

// RoundConfig is sent to every selected client alongside the model snapshot.
type RoundConfig struct {
	Round        uint64    `json:"round"`
	ModelVersion uint64    `json:"model_version"`
	Deadline     time.Time `json:"deadline"`
	LocalEpochs  int       `json:"local_epochs"`
	BatchSize    int       `json:"batch_size"`
	LearningRate float64   `json:"learning_rate"`
}

// TrainTask is the broadcast payload a client trains from.
type TrainTask struct {
	ClientID string      `json:"client_id"`
	Config   RoundConfig `json:"config"`
	Model    GlobalModel `json:"model"`
}

// Verdict is the outcome of a single submission.
type Verdict struct {
	Accepted bool         `json:"accepted"`
	Replaced bool         `json:"replaced,omitempty"`
	Reason   RejectReason `json:"reason,omitempty"`
	Detail   string       `json:"detail,omitempty"`
}

// Aggregator combines validated updates into a new parameter set.
type Aggregator interface {
	Aggregate(updates []Update, shape Shape) (Params, error)
}
