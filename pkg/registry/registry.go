// Package registry holds the static client population and decides who takes
// part in each round.
package registry

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/0x6flab/namegenerator"
	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/fl"
)

var (
	ErrNoClients       = errors.New("no selectable clients")
	ErrDuplicateClient = errors.New("duplicate client ID")
	ErrInvalidFraction = errors.New("participation fraction must be in (0, 1]")
)

// Member is a configured client. Name is optional.
type Member struct {
	ID   string `json:"id"   toml:"id"`
	Name string `json:"name" toml:"name"`
}

type Registry struct {
	mu        sync.Mutex
	clients   map[string]*fl.ClientRecord
	ids       []string
	threshold uint64
	now       func() time.Time
}

// New builds a registry from the configured population. A client becomes
// UNREACHABLE after threshold consecutive rounds without a response; a zero
// threshold disables that transition.
func New(members []Member, threshold uint64) (*Registry, error) {
	if len(members) == 0 {
		return nil, ErrNoClients
	}

	names := namegenerator.NewGenerator()
	r := &Registry{
		clients:   make(map[string]*fl.ClientRecord, len(members)),
		ids:       make([]string, 0, len(members)),
		threshold: threshold,
		now:       time.Now,
	}
	for _, m := range members {
		if m.ID == "" {
			return nil, pkgerrors.ErrEmptyKey
		}
		if _, ok := r.clients[m.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateClient, m.ID)
		}
		name := m.Name
		if name == "" {
			name = names.Generate()
		}
		r.clients[m.ID] = &fl.ClientRecord{
			ID:           m.ID,
			Name:         name,
			Availability: fl.Available,
		}
		r.ids = append(r.ids, m.ID)
	}
	slices.Sort(r.ids)

	return r, nil
}

// Select picks max(minimum, ceil(fraction*N)) clients for round, capped at
// the number of clients that are not EXCLUDED. Reachable clients come first,
// then those selected least often, then by ID. Selected clients have their
// participation count and last round updated.
func (r *Registry) Select(fraction float64, minimum int, round uint64) ([]string, error) {
	if fraction <= 0 || fraction > 1 || math.IsNaN(fraction) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFraction, fraction)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := make([]*fl.ClientRecord, 0, len(r.ids))
	for _, id := range r.ids {
		if c := r.clients[id]; c.Availability != fl.Excluded {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoClients
	}

	slices.SortFunc(candidates, func(a, b *fl.ClientRecord) int {
		return cmp.Or(
			cmp.Compare(unreachableRank(a), unreachableRank(b)),
			cmp.Compare(a.Participation, b.Participation),
			cmp.Compare(a.ID, b.ID),
		)
	})

	count := max(minimum, fractionOf(fraction, len(r.ids)))
	count = min(count, len(candidates))

	selected := make([]string, 0, count)
	for _, c := range candidates[:count] {
		c.Participation++
		c.LastRound = round
		selected = append(selected, c.ID)
	}
	slices.Sort(selected)

	return selected, nil
}

// fractionOf is ceil(fraction*n), ignoring float error so that 0.55*100 is 55.
func fractionOf(fraction float64, n int) int {
	x := fraction * float64(n)
	if r := math.Round(x); math.Abs(x-r) < 1e-9 {
		return int(r)
	}

	return int(math.Ceil(x))
}

func unreachableRank(c *fl.ClientRecord) int {
	if c.Availability == fl.Unreachable {
		return 1
	}

	return 0
}

// MarkOutcome records whether a selected client responded in a closed round.
func (r *Registry) MarkOutcome(id string, responded bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return fmt.Errorf("client %s %w", id, pkgerrors.ErrNotFound)
	}

	if responded {
		c.MissedRounds = 0
		c.LastSeen = r.now().UTC()
		if c.Availability == fl.Unreachable {
			c.Availability = fl.Available
		}

		return nil
	}

	c.MissedRounds++
	if r.threshold > 0 && c.MissedRounds >= r.threshold && c.Availability == fl.Available {
		c.Availability = fl.Unreachable
	}

	return nil
}

// Exclude removes a client from selection until Include is called.
func (r *Registry) Exclude(id string) (fl.ClientRecord, error) {
	return r.setAvailability(id, fl.Excluded)
}

func (r *Registry) Include(id string) (fl.ClientRecord, error) {
	return r.setAvailability(id, fl.Available)
}

func (r *Registry) setAvailability(id string, a fl.Availability) (fl.ClientRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return fl.ClientRecord{}, fmt.Errorf("client %s %w", id, pkgerrors.ErrNotFound)
	}
	c.Availability = a
	if a == fl.Available {
		c.MissedRounds = 0
	}

	return *c, nil
}

func (r *Registry) Get(id string) (fl.ClientRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return fl.ClientRecord{}, fmt.Errorf("client %s %w", id, pkgerrors.ErrNotFound)
	}

	return *c, nil
}

// Contains reports whether id belongs to the population.
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.clients[id]

	return ok
}

// List returns clients ordered by ID.
func (r *Registry) List(offset, limit uint64) fl.ClientPage {
	r.mu.Lock()
	defer r.mu.Unlock()

	page := fl.ClientPage{
		Total:   uint64(len(r.ids)),
		Clients: []fl.ClientRecord{},
	}
	if offset >= page.Total {
		return page
	}
	for _, id := range r.ids[offset:min(offset+limit, page.Total)] {
		page.Clients = append(page.Clients, *r.clients[id])
	}

	return page
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.ids)
}
