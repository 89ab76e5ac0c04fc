package scheduling

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedDoctorRepository fronts a DoctorRepository with an LRU of profiles.
// Resolving availability reads the doctor on every request, while profiles
// change only through Upsert, which refreshes the entry.
type CachedDoctorRepository struct {
	next  DoctorRepository
	cache *lru.Cache[int64, Doctor]
}

func NewCachedDoctorRepository(next DoctorRepository, size int) (*CachedDoctorRepository, error) {
	cache, err := lru.New[int64, Doctor](size)
	if err != nil {
		return nil, fmt.Errorf("doctor cache: %w", err)
	}
	return &CachedDoctorRepository{next: next, cache: cache}, nil
}

func (r *CachedDoctorRepository) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	if d, ok := r.cache.Get(id); ok {
		return &d, nil
	}
	d, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Add(id, *d)
	return d, nil
}

func (r *CachedDoctorRepository) ListByHospital(ctx context.Context, hospitalID int64, limit, offset int) ([]*Doctor, int, error) {
	return r.next.ListByHospital(ctx, hospitalID, limit, offset)
}

func (r *CachedDoctorRepository) Upsert(ctx context.Context, d *Doctor) error {
	if err := r.next.Upsert(ctx, d); err != nil {
		r.cache.Remove(d.ID)
		return err
	}
	r.cache.Add(d.ID, *d)
	return nil
}

// Len reports how many profiles are cached.
func (r *CachedDoctorRepository) Len() int { return r.cache.Len() }
