package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"vetreview/internal/domain"
)

// ---- datastore ----

type fakeStore struct {
	mu       sync.Mutex
	rowLock  sync.Mutex // held for a whole transaction, like a FOR UPDATE row lock
	onGet    func()     // runs before each GetClinic read
	clinics  map[int64]domain.Clinic
	getErr   error
	openErr  error
	opened   int
	closed   int
	sessions []*fakeSession

	insertErr   error
	updateErr   error
	rollbackErr error
	commitErr   error

	reviews []domain.ReviewSubmission
	updates []ratingUpdate
	nextID  int64
}

type ratingUpdate struct {
	ClinicID int64
	Agg      domain.RatingAggregate
	At       time.Time
}

func newFakeStore(clinics ...domain.Clinic) *fakeStore {
	m := make(map[int64]domain.Clinic, len(clinics))
	for _, c := range clinics {
		m[c.ID] = c
	}
	return &fakeStore{clinics: m, nextID: 1000}
}

func (f *fakeStore) Session(ctx context.Context) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	s := &fakeSession{store: f}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeStore) openSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened - f.closed
}

type fakeSession struct {
	store  *fakeStore
	closed bool
}

func (s *fakeSession) GetClinic(ctx context.Context, id int64) (domain.Clinic, error) {
	f := s.store
	if f.onGet != nil {
		f.onGet()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.Clinic{}, f.getErr
	}
	c, ok := f.clinics[id]
	if !ok {
		return domain.Clinic{}, domain.ErrNotFound
	}
	return c, nil
}

// RunInTx stages writes and only publishes them on success, like a real
// transaction.
func (s *fakeSession) RunInTx(ctx context.Context, fn func(context.Context, domain.ReviewWriter) error) error {
	s.store.rowLock.Lock()
	defer s.store.rowLock.Unlock()

	tx := &fakeTx{store: s.store}
	if err := fn(ctx, tx); err != nil {
		if s.store.rollbackErr != nil {
			// rollback failed: the staged writes leak
			s.store.commit(tx)
			return errors.Join(err, domain.ErrRollbackFailed, s.store.rollbackErr)
		}
		return err
	}
	if s.store.commitErr != nil {
		return s.store.commitErr
	}
	s.store.commit(tx)
	return nil
}

func (s *fakeSession) Close() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.store.closed++
	}
	return nil
}

func (f *fakeStore) commit(tx *fakeTx) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews = append(f.reviews, tx.reviews...)
	f.updates = append(f.updates, tx.updates...)
	for _, u := range tx.updates {
		c := f.clinics[u.ClinicID]
		c.Rating, c.ReviewCount, c.UpdateTime = u.Agg.Average, u.Agg.Count, u.At
		f.clinics[u.ClinicID] = c
	}
}

type fakeTx struct {
	store   *fakeStore
	reviews []domain.ReviewSubmission
	updates []ratingUpdate
}

func (t *fakeTx) LockClinicAggregate(ctx context.Context, clinicID int64) (domain.RatingAggregate, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	c, ok := t.store.clinics[clinicID]
	if !ok {
		return domain.RatingAggregate{}, domain.ErrNotFound
	}
	return domain.RatingAggregate{Average: c.Rating, Count: c.ReviewCount}, nil
}

func (t *fakeTx) InsertReview(ctx context.Context, s domain.ReviewSubmission) (int64, error) {
	if t.store.insertErr != nil {
		return 0, t.store.insertErr
	}
	t.reviews = append(t.reviews, s)
	t.store.mu.Lock()
	t.store.nextID++
	id := t.store.nextID
	t.store.mu.Unlock()
	return id, nil
}

func (t *fakeTx) UpdateClinicRating(ctx context.Context, clinicID int64, agg domain.RatingAggregate, at time.Time) error {
	if t.store.updateErr != nil {
		return t.store.updateErr
	}
	t.updates = append(t.updates, ratingUpdate{ClinicID: clinicID, Agg: agg, At: at})
	return nil
}

// ---- external collaborators ----

type fakeFetcher struct {
	mu    sync.Mutex
	data  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.data, f.err
}

type fakeDetector struct {
	mu    sync.Mutex
	out   []domain.Detection
	err   error
	calls int
}

func (f *fakeDetector) DetectText(ctx context.Context, img []byte) ([]domain.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.out, f.err
}

type fakeOCR struct {
	mu     sync.Mutex
	blocks []string
	err    error
	calls  int
}

func (f *fakeOCR) ExtractText(ctx context.Context, img []byte) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.blocks, f.err
}

// ---- cache ----

type fakeCache struct {
	mu      sync.Mutex
	store   map[string]any
	deleted []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return false, nil
	}
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	if d, ok := dst.(*[]domain.Review); ok {
		*d = v.([]domain.Review)
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, key)
	delete(c.store, key)
	return nil
}
