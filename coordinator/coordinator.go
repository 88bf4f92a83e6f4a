// Package coordinator drives federated training rounds: it selects clients,
// distributes the global model, collects and validates their updates, and
// commits a new model version once enough of them have arrived.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
)

var (
	ErrInvalidState = errors.New("operation not allowed in current state")
	ErrTerminated   = errors.New("coordinator terminated")
	ErrHalted       = errors.New("coordinator halted after a persistence failure")
	ErrInvalidCfg   = errors.New("invalid coordinator configuration")
)

type State uint8

const (
	Init State = iota
	Selecting
	Broadcasting
	Collecting
	Aggregating
	Committed
	Failed
	Terminated
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Selecting:
		return "SELECTING"
	case Broadcasting:
		return "BROADCASTING"
	case Collecting:
		return "COLLECTING"
	case Aggregating:
		return "AGGREGATING"
	case Committed:
		return "COMMITTED"
	case Failed:
		return "FAILED"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for candidate := Init; candidate <= Terminated; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate

			return nil
		}
	}

	return fmt.Errorf("unknown coordinator state %q", text)
}

type Config struct {
	ExperimentID     string        `env:"EXPERIMENT_ID"     envDefault:"default"`
	TotalRounds      uint64        `env:"TOTAL_ROUNDS"      envDefault:"3"`
	Fraction         float64       `env:"FRACTION"          envDefault:"1.0"`
	MinParticipants  int           `env:"MIN_PARTICIPANTS"  envDefault:"5"`
	RoundDeadline    time.Duration `env:"ROUND_DEADLINE"    envDefault:"5m"`
	BroadcastTimeout time.Duration `env:"BROADCAST_TIMEOUT" envDefault:"10s"`
	LocalEpochs      int           `env:"LOCAL_EPOCHS"      envDefault:"1"`
	BatchSize        int           `env:"BATCH_SIZE"        envDefault:"32"`
	LearningRate     float64       `env:"LEARNING_RATE"     envDefault:"0.01"`
}

func (c Config) Validate() error {
	switch {
	case c.ExperimentID == "":
		return fmt.Errorf("%w: experiment ID is required", ErrInvalidCfg)
	case c.TotalRounds == 0:
		return fmt.Errorf("%w: total rounds must be positive", ErrInvalidCfg)
	case math.IsNaN(c.Fraction) || c.Fraction <= 0 || c.Fraction > 1:
		return fmt.Errorf("%w: fraction must be in (0, 1], got %v", ErrInvalidCfg, c.Fraction)
	case c.MinParticipants < 1:
		return fmt.Errorf("%w: minimum participants must be at least 1", ErrInvalidCfg)
	case c.RoundDeadline <= 0:
		return fmt.Errorf("%w: round deadline must be positive", ErrInvalidCfg)
	case c.BroadcastTimeout <= 0:
		return fmt.Errorf("%w: broadcast timeout must be positive", ErrInvalidCfg)
	default:
		return nil
	}
}

// Transport delivers the round snapshot to a single client. Implementations
// must not modify the snapshot.
type Transport interface {
	Broadcast(ctx context.Context, clientID string, snapshot fl.GlobalModel, cfg fl.RoundConfig) error
}

type Status struct {
	State        State           `json:"state"`
	ModelVersion uint64          `json:"model_version"`
	TotalRounds  uint64          `json:"total_rounds"`
	Accepted     int             `json:"accepted"`
	Round        *fl.RoundRecord `json:"round,omitempty"`
	Halted       string          `json:"halted,omitempty"`
}

// ClientHistory lists what one client contributed to, or had rejected in,
// every persisted round.
type ClientHistory struct {
	Client        fl.ClientRecord      `json:"client"`
	Contributions []RoundContribution `json:"contributions"`
	Rejections    []RoundRejection    `json:"rejections"`
}

type RoundContribution struct {
	RoundID string `json:"round_id"`
	Round   uint64 `json:"round"`
	fl.Contribution
}

type RoundRejection struct {
	RoundID string `json:"round_id"`
	Round   uint64 `json:"round"`
	fl.Rejection
}

type Service interface {
	// StartRound selects participants and broadcasts the current model.
	StartRound(ctx context.Context) (fl.RoundRecord, error)
	// SubmitUpdate never fails on a malformed update; the verdict says
	// whether it was counted.
	SubmitUpdate(ctx context.Context, clientID string, update fl.Update) (fl.Verdict, error)
	// Tick closes collection when enough updates arrived or the deadline
	// passed, and returns the current round record.
	Tick(ctx context.Context) (fl.RoundRecord, error)
	// Ready fires when the accepted count reaches the minimum.
	Ready() <-chan struct{}
	Terminate(ctx context.Context) error

	Status(ctx context.Context) (Status, error)
	CurrentModel(ctx context.Context) (fl.GlobalModel, error)
	GetModel(ctx context.Context, version uint64) (fl.GlobalModel, error)
	GetRound(ctx context.Context, id string) (fl.RoundRecord, error)
	ListRounds(ctx context.Context, offset, limit uint64) (fl.RoundPage, error)

	GetClient(ctx context.Context, id string) (fl.ClientRecord, error)
	ListClients(ctx context.Context, offset, limit uint64) (fl.ClientPage, error)
	ClientHistory(ctx context.Context, id string) (ClientHistory, error)
	ExcludeClient(ctx context.Context, id string) (fl.ClientRecord, error)
	IncludeClient(ctx context.Context, id string) (fl.ClientRecord, error)
}
