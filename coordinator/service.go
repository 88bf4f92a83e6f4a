package coordinator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/registry"
	"github.com/absmach/fedcoord/pkg/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const historyPageSize = 100

var _ Service = (*service)(nil)

type Option func(*service)

// WithClock replaces time.Now, for tests that need to move past a deadline.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

type service struct {
	cfg        Config
	registry   *registry.Registry
	repo       storage.Repository
	transport  Transport
	aggregator fl.Aggregator
	logger     *slog.Logger
	now        func() time.Time

	// model is swapped whole on commit and read without taking mu.
	model atomic.Pointer[fl.GlobalModel]
	ready chan struct{}

	mu        sync.Mutex
	state     State
	round     *fl.RoundRecord
	shape     fl.Shape
	selected  map[string]struct{}
	responded map[string]struct{}
	accepted  map[string]fl.Update
	halted    error
}

// NewService restores the latest persisted model, or persists initial as
// version 0 when the repository is empty.
func NewService(ctx context.Context, cfg Config, reg *registry.Registry, repo storage.Repository, transport Transport, aggregator fl.Aggregator, initial fl.GlobalModel, logger *slog.Logger, opts ...Option) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinParticipants > reg.Len() {
		return nil, fmt.Errorf("%w: minimum participants %d exceeds the population of %d", ErrInvalidCfg, cfg.MinParticipants, reg.Len())
	}

	svc := &service{
		cfg:        cfg,
		registry:   reg,
		repo:       repo,
		transport:  transport,
		aggregator: aggregator,
		logger:     logger,
		now:        time.Now,
		ready:      make(chan struct{}, 1),
		state:      Init,
	}
	for _, opt := range opts {
		opt(svc)
	}

	model, err := repo.LatestModel(ctx)
	switch {
	case err == nil:
		logger.Info("restored global model", slog.Uint64("version", model.Version))
		if !model.Params.Shape().Equal(initial.Params.Shape()) {
			logger.Warn("persisted model shape differs from configured initial model, keeping persisted model")
		}
	case errors.Is(err, pkgerrors.ErrNotFound):
		model = initial.Clone()
		model.Version = 0
		if model.UpdatedAt.IsZero() {
			model.UpdatedAt = svc.now().UTC()
		}
		if err := repo.SaveModel(ctx, model); err != nil {
			return nil, fmt.Errorf("%w: %w", fl.ErrPersistence, err)
		}
		logger.Info("seeded initial global model", slog.Int("layers", len(model.Params)))
	default:
		return nil, fmt.Errorf("%w: %w", fl.ErrPersistence, err)
	}
	if len(model.Params) == 0 {
		return nil, fmt.Errorf("%w: global model has no layers", ErrInvalidCfg)
	}
	svc.model.Store(&model)

	return svc, nil
}

func (svc *service) StartRound(ctx context.Context) (fl.RoundRecord, error) {
	svc.mu.Lock()
	if err := svc.checkStartable(); err != nil {
		svc.mu.Unlock()

		return fl.RoundRecord{}, err
	}

	snapshot := svc.model.Load()
	if snapshot.Version >= svc.cfg.TotalRounds {
		svc.state = Terminated
		svc.mu.Unlock()
		svc.logger.Info("configured number of rounds reached", slog.Uint64("version", snapshot.Version))

		return fl.RoundRecord{}, ErrTerminated
	}

	number := snapshot.Version + 1
	attempt := uint32(1)
	if svc.round != nil && svc.round.Number == number {
		attempt = svc.round.Attempt + 1
	}

	prev := svc.state
	svc.state = Selecting
	selected, err := svc.registry.Select(svc.cfg.Fraction, svc.cfg.MinParticipants, number)
	if err != nil {
		svc.state = prev
		svc.mu.Unlock()

		return fl.RoundRecord{}, err
	}

	now := svc.now().UTC()
	rec := &fl.RoundRecord{
		ID:        uuid.NewString(),
		Number:    number,
		Attempt:   attempt,
		Status:    fl.RoundPending,
		Selected:  selected,
		Required:  svc.cfg.MinParticipants,
		StartedAt: now,
		Deadline:  now.Add(svc.cfg.RoundDeadline),
	}
	svc.round = rec
	svc.shape = snapshot.Params.Shape()
	svc.accepted = make(map[string]fl.Update, len(selected))
	svc.responded = make(map[string]struct{}, len(selected))
	svc.selected = make(map[string]struct{}, len(selected))
	for _, id := range selected {
		svc.selected[id] = struct{}{}
	}
	svc.drainReady()

	if len(selected) < svc.cfg.MinParticipants {
		err := svc.failRound(ctx, &fl.InsufficientParticipationError{
			Round:    number,
			Accepted: 0,
			Required: svc.cfg.MinParticipants,
			Deadline: rec.Deadline,
		})
		out := rec.Clone()
		svc.mu.Unlock()

		return out, err
	}

	svc.state = Broadcasting
	if err := svc.repo.SaveRound(ctx, rec.Clone()); err != nil {
		err = svc.halt(err)
		out := rec.Clone()
		svc.mu.Unlock()

		return out, err
	}

	roundCfg := fl.RoundConfig{
		Round:        number,
		ModelVersion: snapshot.Version,
		Deadline:     rec.Deadline,
		LocalEpochs:  svc.cfg.LocalEpochs,
		BatchSize:    svc.cfg.BatchSize,
		LearningRate: svc.cfg.LearningRate,
	}
	svc.mu.Unlock()

	svc.logger.Info("broadcasting round",
		slog.Uint64("round", number),
		slog.Any("attempt", attempt),
		slog.Int("selected", len(selected)),
	)
	failures := svc.broadcast(ctx, selected, *snapshot, roundCfg)

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.round != rec || svc.state != Broadcasting {
		// Terminated while the snapshot was being sent.
		return rec.Clone(), ErrTerminated
	}

	rec.BroadcastFailures = failures
	rec.Status = fl.RoundCollecting
	svc.state = Collecting
	if err := svc.repo.SaveRound(ctx, rec.Clone()); err != nil {
		return rec.Clone(), svc.halt(err)
	}
	if len(svc.accepted) >= rec.Required {
		svc.signalReady()
	}

	return rec.Clone(), nil
}

func (svc *service) checkStartable() error {
	switch {
	case svc.halted != nil:
		return fmt.Errorf("%w: %w", ErrHalted, svc.halted)
	case svc.state == Terminated:
		return ErrTerminated
	case svc.state == Init, svc.state == Committed, svc.state == Failed:
		return nil
	default:
		return fmt.Errorf("%w: cannot start a round while %s", ErrInvalidState, svc.state)
	}
}

// broadcast sends the snapshot to every selected client in parallel. A
// failed delivery is recorded and never aborts the round.
func (svc *service) broadcast(ctx context.Context, clients []string, snapshot fl.GlobalModel, cfg fl.RoundConfig) []string {
	var (
		mu       sync.Mutex
		failures []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range clients {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, svc.cfg.BroadcastTimeout)
			defer cancel()

			if err := svc.transport.Broadcast(cctx, id, snapshot, cfg); err != nil {
				svc.logger.Warn("failed to deliver round to client",
					slog.String("client_id", id),
					slog.Uint64("round", cfg.Round),
					slog.Any("error", fmt.Errorf("%w: %w", fl.ErrTransport, err)),
				)
				mu.Lock()
				failures = append(failures, id)
				mu.Unlock()
			}

			return nil
		})
	}
	_ = g.Wait()
	slices.Sort(failures)

	return failures
}

func (svc *service) SubmitUpdate(ctx context.Context, clientID string, update fl.Update) (fl.Verdict, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	switch {
	case svc.halted != nil:
		return fl.Verdict{}, fmt.Errorf("%w: %w", ErrHalted, svc.halted)
	case svc.state == Terminated:
		return fl.Verdict{}, ErrTerminated
	}

	if update.ClientID == "" {
		update.ClientID = clientID
	}

	switch {
	case update.ClientID != clientID:
		return svc.reject(clientID, fl.ReasonClientMismatch, fmt.Sprintf("update claims client %q", update.ClientID)), nil
	case svc.state != Broadcasting && svc.state != Collecting:
		return svc.reject(clientID, fl.ReasonNotCollecting, fmt.Sprintf("coordinator is %s", svc.state)), nil
	case !svc.registry.Contains(clientID):
		return svc.reject(clientID, fl.ReasonUnknownClient, ""), nil
	}
	if _, ok := svc.selected[clientID]; !ok {
		return svc.reject(clientID, fl.ReasonNotSelected, fmt.Sprintf("round %d", svc.round.Number)), nil
	}

	svc.responded[clientID] = struct{}{}

	if err := fl.Validate(update, svc.round.Number, svc.shape); err != nil {
		var verr *fl.ValidationError
		if errors.As(err, &verr) {
			return svc.reject(clientID, verr.Reason, verr.Detail), nil
		}

		return svc.reject(clientID, "", err.Error()), nil
	}

	update.Params = update.Params.Clone()
	update.ReceivedAt = svc.now().UTC()
	_, replaced := svc.accepted[clientID]
	svc.accepted[clientID] = update

	svc.logger.Debug("accepted update",
		slog.String("client_id", clientID),
		slog.Uint64("round", update.Round),
		slog.Int64("samples", update.Samples),
		slog.Bool("replaced", replaced),
	)

	if len(svc.accepted) >= svc.round.Required && svc.state == Collecting {
		svc.signalReady()
	}

	return fl.Verdict{Accepted: true, Replaced: replaced}, nil
}

// reject records a dropped submission against the active round, if any.
func (svc *service) reject(clientID string, reason fl.RejectReason, detail string) fl.Verdict {
	svc.logger.Info("rejected update",
		slog.String("client_id", clientID),
		slog.String("reason", string(reason)),
		slog.String("detail", detail),
	)

	if svc.round != nil && (svc.state == Broadcasting || svc.state == Collecting) {
		svc.round.Rejections = append(svc.round.Rejections, fl.Rejection{
			ClientID: clientID,
			Reason:   reason,
			Detail:   detail,
			At:       svc.now().UTC(),
		})
	}

	return fl.Verdict{Reason: reason, Detail: detail}
}

func (svc *service) Tick(ctx context.Context) (fl.RoundRecord, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.round == nil {
		return fl.RoundRecord{}, nil
	}
	if svc.halted != nil {
		return svc.round.Clone(), fmt.Errorf("%w: %w", ErrHalted, svc.halted)
	}
	if svc.state != Collecting {
		return svc.round.Clone(), nil
	}

	var err error
	switch accepted := len(svc.accepted); {
	case accepted >= svc.round.Required:
		err = svc.aggregate(ctx)
	case !svc.now().Before(svc.round.Deadline):
		err = svc.failRound(ctx, &fl.InsufficientParticipationError{
			Round:    svc.round.Number,
			Accepted: accepted,
			Required: svc.round.Required,
			Deadline: svc.round.Deadline,
		})
	}

	return svc.round.Clone(), err
}

// aggregate must be called with mu held.
func (svc *service) aggregate(ctx context.Context) error {
	svc.state = Aggregating
	svc.round.Status = fl.RoundAggregating

	updates := make([]fl.Update, 0, len(svc.accepted))
	for _, u := range svc.accepted {
		updates = append(updates, u)
	}
	slices.SortFunc(updates, func(a, b fl.Update) int {
		return cmp.Compare(a.ClientID, b.ClientID)
	})

	params, err := svc.aggregator.Aggregate(updates, svc.shape)
	if err != nil {
		svc.logger.Error("aggregation failed",
			slog.Uint64("round", svc.round.Number),
			slog.Any("error", err),
		)

		return svc.failRound(ctx, err)
	}

	now := svc.now().UTC()
	rec := fl.Record(*svc.round, updates)
	rec.Status = fl.RoundCompleted
	rec.FinishedAt = now
	next := &fl.GlobalModel{
		Version:   rec.Number,
		Params:    params,
		UpdatedAt: now,
	}

	svc.model.Store(next)
	svc.round = &rec
	svc.state = Committed
	svc.closeRound()

	svc.logger.Info("round completed",
		slog.Uint64("round", rec.Number),
		slog.Any("attempt", rec.Attempt),
		slog.Int("contributors", len(rec.Contributors)),
		slog.Int64("samples", rec.TotalSamples),
		slog.Float64("loss", rec.Loss),
		slog.Float64("accuracy", rec.Accuracy),
	)

	if err := svc.repo.Commit(ctx, *next, rec.Clone()); err != nil {
		return svc.halt(err)
	}

	return nil
}

// failRound must be called with mu held. It returns cause unless persisting
// the failed record fails.
func (svc *service) failRound(ctx context.Context, cause error) error {
	svc.round.Status = fl.RoundFailed
	svc.round.FailureReason = cause.Error()
	svc.round.FinishedAt = svc.now().UTC()
	if svc.state != Selecting {
		svc.closeRound()
	}
	svc.state = Failed

	svc.logger.Warn("round failed",
		slog.Uint64("round", svc.round.Number),
		slog.Any("attempt", svc.round.Attempt),
		slog.String("reason", svc.round.FailureReason),
	)

	if err := svc.repo.SaveRound(ctx, svc.round.Clone()); err != nil {
		return svc.halt(err)
	}

	return cause
}

// closeRound reports every selected client's responsiveness to the registry.
func (svc *service) closeRound() {
	for _, id := range svc.round.Selected {
		_, responded := svc.responded[id]
		if err := svc.registry.MarkOutcome(id, responded); err != nil {
			svc.logger.Warn("failed to record client outcome", slog.String("client_id", id), slog.Any("error", err))
		}
	}
	svc.accepted = nil
	svc.responded = nil
	svc.selected = nil
}

func (svc *service) halt(err error) error {
	svc.halted = fmt.Errorf("%w: %w", fl.ErrPersistence, err)
	svc.logger.Error("coordinator halted", slog.Any("error", svc.halted))

	return svc.halted
}

func (svc *service) signalReady() {
	select {
	case svc.ready <- struct{}{}:
	default:
	}
}

func (svc *service) drainReady() {
	select {
	case <-svc.ready:
	default:
	}
}

func (svc *service) Ready() <-chan struct{} {
	return svc.ready
}

func (svc *service) Terminate(ctx context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.state == Terminated {
		return nil
	}

	var err error
	if svc.round != nil && !svc.round.Status.Terminal() && svc.halted == nil {
		err = svc.failRound(ctx, ErrTerminated)
		if errors.Is(err, ErrTerminated) {
			err = nil
		}
	}
	svc.state = Terminated

	return err
}

func (svc *service) Status(_ context.Context) (Status, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	st := Status{
		State:        svc.state,
		ModelVersion: svc.model.Load().Version,
		TotalRounds:  svc.cfg.TotalRounds,
		Accepted:     len(svc.accepted),
	}
	if svc.round != nil {
		rec := svc.round.Clone()
		st.Round = &rec
	}
	if svc.halted != nil {
		st.Halted = svc.halted.Error()
	}

	return st, nil
}

func (svc *service) CurrentModel(_ context.Context) (fl.GlobalModel, error) {
	return svc.model.Load().Clone(), nil
}

func (svc *service) GetModel(ctx context.Context, version uint64) (fl.GlobalModel, error) {
	if current := svc.model.Load(); current.Version == version {
		return current.Clone(), nil
	}

	return svc.repo.GetModel(ctx, version)
}

func (svc *service) GetRound(ctx context.Context, id string) (fl.RoundRecord, error) {
	svc.mu.Lock()
	if svc.round != nil && svc.round.ID == id {
		rec := svc.round.Clone()
		svc.mu.Unlock()

		return rec, nil
	}
	svc.mu.Unlock()

	return svc.repo.GetRound(ctx, id)
}

func (svc *service) ListRounds(ctx context.Context, offset, limit uint64) (fl.RoundPage, error) {
	return svc.repo.ListRounds(ctx, offset, limit)
}

func (svc *service) GetClient(_ context.Context, id string) (fl.ClientRecord, error) {
	return svc.registry.Get(id)
}

func (svc *service) ListClients(_ context.Context, offset, limit uint64) (fl.ClientPage, error) {
	return svc.registry.List(offset, limit), nil
}

func (svc *service) ClientHistory(ctx context.Context, id string) (ClientHistory, error) {
	client, err := svc.registry.Get(id)
	if err != nil {
		return ClientHistory{}, err
	}

	history := ClientHistory{
		Client:        client,
		Contributions: []RoundContribution{},
		Rejections:    []RoundRejection{},
	}
	for offset := uint64(0); ; offset += historyPageSize {
		page, err := svc.repo.ListRounds(ctx, offset, historyPageSize)
		if err != nil {
			return ClientHistory{}, err
		}
		for _, rec := range page.Rounds {
			for _, c := range rec.Contributions {
				if c.ClientID == id {
					history.Contributions = append(history.Contributions, RoundContribution{RoundID: rec.ID, Round: rec.Number, Contribution: c})
				}
			}
			for _, r := range rec.Rejections {
				if r.ClientID == id {
					history.Rejections = append(history.Rejections, RoundRejection{RoundID: rec.ID, Round: rec.Number, Rejection: r})
				}
			}
		}
		if offset+historyPageSize >= page.Total {
			break
		}
	}

	return history, nil
}

func (svc *service) ExcludeClient(_ context.Context, id string) (fl.ClientRecord, error) {
	return svc.registry.Exclude(id)
}

func (svc *service) IncludeClient(_ context.Context, id string) (fl.ClientRecord, error) {
	return svc.registry.Include(id)
}
