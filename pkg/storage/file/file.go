package file

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/fl"
)

var (
	ErrInvalidRoundID = errors.New("invalid round ID")
	ErrWrite          = errors.New("write error")
	ErrRead           = errors.New("read error")
)

// Repository keeps one JSON document per model version and per round record
// under a directory tree. Files are written to a temporary name and renamed.
type Repository struct {
	roundsDir string
	modelsDir string
	mu        sync.RWMutex
}

func NewRepository(dir string) (*Repository, error) {
	roundsDir := filepath.Join(dir, "rounds")
	modelsDir := filepath.Join(dir, "models")
	if err := os.MkdirAll(roundsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create rounds directory: %w", err)
	}
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return &Repository{
		roundsDir: roundsDir,
		modelsDir: modelsDir,
	}, nil
}

func (r *Repository) SaveModel(_ context.Context, m fl.GlobalModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.writeModel(m)
}

func (r *Repository) LatestModel(_ context.Context) (fl.GlobalModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, err := r.listModels()
	if err != nil {
		return fl.GlobalModel{}, err
	}
	if len(versions) == 0 {
		return fl.GlobalModel{}, fmt.Errorf("model %w", pkgerrors.ErrNotFound)
	}

	return r.readModel(slices.Max(versions))
}

func (r *Repository) GetModel(_ context.Context, version uint64) (fl.GlobalModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.readModel(version)
}

func (r *Repository) SaveRound(_ context.Context, rec fl.RoundRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.writeRound(rec)
}

func (r *Repository) GetRound(_ context.Context, id string) (fl.RoundRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	path, err := r.roundPath(id)
	if err != nil {
		return fl.RoundRecord{}, err
	}

	var rec fl.RoundRecord
	if err := readJSON(path, &rec); err != nil {
		return fl.RoundRecord{}, err
	}

	return rec, nil
}

func (r *Repository) ListRounds(_ context.Context, offset, limit uint64) (fl.RoundPage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.roundsDir)
	if err != nil {
		return fl.RoundPage{}, fmt.Errorf("%w: %w", ErrRead, err)
	}

	all := make([]fl.RoundRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "round_") || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		var rec fl.RoundRecord
		if err := readJSON(filepath.Join(r.roundsDir, entry.Name()), &rec); err != nil {
			return fl.RoundPage{}, err
		}
		all = append(all, rec)
	}
	slices.SortFunc(all, func(a, b fl.RoundRecord) int {
		return cmp.Or(cmp.Compare(a.Number, b.Number), cmp.Compare(a.Attempt, b.Attempt))
	})

	page := fl.RoundPage{
		Offset: offset,
		Limit:  limit,
		Total:  uint64(len(all)),
		Rounds: []fl.RoundRecord{},
	}
	if offset < page.Total {
		page.Rounds = all[offset:min(offset+limit, page.Total)]
	}

	return page, nil
}

// Commit writes the model before the round so that a crash in between leaves
// a model version without its record rather than the reverse.
func (r *Repository) Commit(_ context.Context, m fl.GlobalModel, rec fl.RoundRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writeModel(m); err != nil {
		return err
	}

	return r.writeRound(rec)
}

func (r *Repository) Close() error {
	return nil
}

func (r *Repository) writeModel(m fl.GlobalModel) error {
	return writeJSON(r.modelPath(m.Version), m)
}

func (r *Repository) readModel(version uint64) (fl.GlobalModel, error) {
	var m fl.GlobalModel
	if err := readJSON(r.modelPath(version), &m); err != nil {
		return fl.GlobalModel{}, err
	}

	return m, nil
}

func (r *Repository) writeRound(rec fl.RoundRecord) error {
	path, err := r.roundPath(rec.ID)
	if err != nil {
		return err
	}

	return writeJSON(path, rec)
}

func (r *Repository) modelPath(version uint64) string {
	return filepath.Join(r.modelsDir, fmt.Sprintf("model_v%d.json", version))
}

func (r *Repository) roundPath(id string) (string, error) {
	sanitized := sanitizeRoundID(id)
	if sanitized == "" || sanitized != id {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoundID, id)
	}

	return filepath.Join(r.roundsDir, fmt.Sprintf("round_%s.json", sanitized)), nil
}

func (r *Repository) listModels() ([]uint64, error) {
	entries, err := os.ReadDir(r.modelsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	var versions []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var version uint64
		if _, err := fmt.Sscanf(entry.Name(), "model_v%d.json", &version); err == nil {
			versions = append(versions, version)
		}
	}

	return versions, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s %w", filepath.Base(path), pkgerrors.ErrNotFound)
		}

		return fmt.Errorf("%w: %w", ErrRead, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrRead, err)
	}

	return nil
}

// sanitizeRoundID keeps only characters that are safe in a file name.
func sanitizeRoundID(roundID string) string {
	var b strings.Builder
	for _, r := range roundID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
