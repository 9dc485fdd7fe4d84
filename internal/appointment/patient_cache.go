package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// cachedRepository memoizes patient lookups. Patients never change once
// registered, so entries need no invalidation. Doctors are never cached:
// capacity and the closed flag must be read fresh for every booking.
type cachedRepository struct {
	Repository
	patients *lru.Cache[uuid.UUID, Patient]
}

func WithPatientCache(repo Repository, size int) (Repository, error) {
	if size <= 0 {
		return repo, nil
	}
	cache, err := lru.New[uuid.UUID, Patient](size)
	if err != nil {
		return nil, fmt.Errorf("create patient cache: %w", err)
	}
	return &cachedRepository{Repository: repo, patients: cache}, nil
}

func (r *cachedRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	if p, ok := r.patients.Get(id); ok {
		return &p, nil
	}
	p, err := r.Repository.GetPatientByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.patients.Add(id, *p)
	return p, nil
}
