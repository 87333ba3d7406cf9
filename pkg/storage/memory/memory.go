// Package memory provides a process-local storage.Storage. It backs the
// service when no database is configured and serves as a fast fake in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"usermgmt/pkg/domain"
	"usermgmt/pkg/serrors"
	"usermgmt/pkg/storage"

	"github.com/riverqueue/river"
)

// record is the stored form of a user. Users are rebuilt from it through the
// domain constructors, the same way a database adapter maps rows.
type record struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func toRecord(u *domain.User) record {
	return record{
		ID:        u.ID().Value(),
		Email:     u.Email().Value(),
		FirstName: u.Name().FirstName(),
		LastName:  u.Name().LastName(),
		Active:    u.IsActive(),
		CreatedAt: u.CreatedAt(),
		UpdatedAt: u.UpdatedAt(),
	}
}

func (r record) toDomain() (*domain.User, error) {
	id, err := domain.NewUserID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("could not map user id: %w", err)
	}
	email, err := domain.NewEmail(r.Email)
	if err != nil {
		return nil, fmt.Errorf("could not map email of user %s: %w", r.ID, err)
	}
	name, err := domain.NewName(r.FirstName, r.LastName)
	if err != nil {
		return nil, fmt.Errorf("could not map name of user %s: %w", r.ID, err)
	}

	return domain.ReconstituteUser(id, email, name, r.Active, domain.WithTimestamps(r.CreatedAt, r.UpdatedAt))
}

// Job is an enqueued background job.
type Job struct {
	Args river.JobArgs
	Opts *river.InsertOpts
}

type state struct {
	mu    sync.RWMutex
	users map[string]record
	jobs  []Job
}

// Memory implements storage.Storage and storage.TxStorage. A transactional
// handle stages its writes in an overlay that is applied atomically on Commit.
type Memory struct {
	state *state

	// tx-only fields
	overlay map[string]*record // nil value marks a deletion
	jobs    []Job
	done    bool
}

// Ensure Memory implements the storage interfaces.
var (
	_ storage.Storage   = (*Memory)(nil)
	_ storage.TxStorage = (*Memory)(nil)
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("transaction already committed or rolled back")

func New() *Memory {
	return &Memory{state: &state{users: map[string]record{}}}
}

func (m *Memory) inTx() bool { return m.overlay != nil }

func (m *Memory) checkTx() error {
	if m.done {
		return ErrTxDone
	}

	return nil
}

// snapshot returns the records visible to this handle.
func (m *Memory) snapshot() map[string]record {
	m.state.mu.RLock()
	out := make(map[string]record, len(m.state.users)+len(m.overlay))
	for k, v := range m.state.users {
		out[k] = v
	}
	m.state.mu.RUnlock()

	for k, v := range m.overlay {
		if v == nil {
			delete(out, k)

			continue
		}
		out[k] = *v
	}

	return out
}

func (m *Memory) find(match func(r record) bool) ([]record, error) {
	if err := m.checkTx(); err != nil {
		return nil, err
	}

	var out []record
	for _, r := range m.snapshot() {
		if match(r) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return out, nil
}

func (m *Memory) findOne(match func(r record) bool) (*domain.User, error) {
	rows, err := m.find(match)
	if err != nil || len(rows) == 0 {
		return nil, err
	}

	return rows[0].toDomain()
}

func (m *Memory) findAll(match func(r record) bool) ([]*domain.User, error) {
	rows, err := m.find(match)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.User, 0, len(rows))
	for _, r := range rows {
		u, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}

	return out, nil
}

func (m *Memory) count(match func(r record) bool) (int64, error) {
	rows, err := m.find(match)

	return int64(len(rows)), err
}

func all(record) bool      { return true }
func active(r record) bool { return r.Active }

func byID(id string) func(record) bool {
	return func(r record) bool { return r.ID == id }
}

func byEmail(email string) func(record) bool {
	return func(r record) bool { return r.Email == email }
}

func (m *Memory) UserByID(_ context.Context, id domain.UserID) (*domain.User, error) {
	return m.findOne(byID(id.Value()))
}

func (m *Memory) UserByEmail(_ context.Context, email domain.Email) (*domain.User, error) {
	return m.findOne(byEmail(email.Value()))
}

func (m *Memory) Users(_ context.Context) ([]*domain.User, error) {
	return m.findAll(all)
}

func (m *Memory) ActiveUsers(_ context.Context) ([]*domain.User, error) {
	return m.findAll(active)
}

// UsersByNameContaining performs a case-sensitive substring match.
func (m *Memory) UsersByNameContaining(_ context.Context, fragment string) ([]*domain.User, error) {
	return m.findAll(func(r record) bool {
		return strings.Contains(r.FirstName, fragment) || strings.Contains(r.LastName, fragment)
	})
}

func (m *Memory) UserExists(_ context.Context, id domain.UserID) (bool, error) {
	n, err := m.count(byID(id.Value()))

	return n > 0, err
}

func (m *Memory) EmailExists(_ context.Context, email domain.Email) (bool, error) {
	n, err := m.count(byEmail(email.Value()))

	return n > 0, err
}

func (m *Memory) UserCount(_ context.Context) (int64, error) {
	return m.count(all)
}

func (m *Memory) ActiveUserCount(_ context.Context) (int64, error) {
	return m.count(active)
}

// SaveUser upserts the user. The creation time of an existing record is kept
// and a second user with the same email is rejected as a conflict.
func (m *Memory) SaveUser(_ context.Context, user *domain.User) (*domain.User, error) {
	if err := m.checkTx(); err != nil {
		return nil, err
	}

	rec := toRecord(user)

	if !m.inTx() {
		m.state.mu.Lock()
		defer m.state.mu.Unlock()
	}

	// m.snapshot takes the read lock itself, so inspect the state directly.
	visible := m.state.users
	if m.inTx() {
		visible = m.snapshot()
	}
	for _, other := range visible {
		if other.Email == rec.Email && other.ID != rec.ID {
			return nil, serrors.With(serrors.ErrConflict, "email %s is already taken", rec.Email)
		}
	}
	if existing, ok := visible[rec.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
	}

	if m.inTx() {
		m.overlay[rec.ID] = &rec
	} else {
		m.state.users[rec.ID] = rec
	}

	return rec.toDomain()
}

// DeleteUser removes the user; unknown ids are ignored.
func (m *Memory) DeleteUser(_ context.Context, id domain.UserID) error {
	if err := m.checkTx(); err != nil {
		return err
	}

	if m.inTx() {
		m.overlay[id.Value()] = nil

		return nil
	}

	m.state.mu.Lock()
	delete(m.state.users, id.Value())
	m.state.mu.Unlock()

	return nil
}

// AddJob records the job. Jobs added in a transaction are kept only if it
// commits. Nothing executes them.
func (m *Memory) AddJob(_ context.Context, args river.JobArgs, opts *river.InsertOpts) (bool, error) {
	if err := m.checkTx(); err != nil {
		return false, err
	}

	if m.inTx() {
		m.jobs = append(m.jobs, Job{Args: args, Opts: opts})

		return true, nil
	}

	m.state.mu.Lock()
	m.state.jobs = append(m.state.jobs, Job{Args: args, Opts: opts})
	m.state.mu.Unlock()

	return true, nil
}

// Jobs returns the committed jobs in insertion order.
func (m *Memory) Jobs() []Job {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()

	return slices.Clone(m.state.jobs)
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Begin(_ context.Context) (storage.TxStorage, error) {
	if m.inTx() {
		return nil, storage.ErrAlreadyInTx
	}

	return &Memory{state: m.state, overlay: map[string]*record{}}, nil
}

func (m *Memory) Commit() error {
	if !m.inTx() {
		return storage.ErrNotInTx
	}
	if err := m.checkTx(); err != nil {
		return err
	}

	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	// concurrent transactions may have claimed the same email since the
	// staged writes were checked
	if err := m.checkStagedEmails(); err != nil {
		m.done = true

		return err
	}

	for id, rec := range m.overlay {
		if rec == nil {
			delete(m.state.users, id)

			continue
		}
		m.state.users[id] = *rec
	}
	m.state.jobs = append(m.state.jobs, m.jobs...)
	m.done = true

	return nil
}

// checkStagedEmails reports a conflict when a staged record shares its email
// with another user of the state the commit would produce. The caller holds
// the write lock.
func (m *Memory) checkStagedEmails() error {
	owners := make(map[string]string, len(m.state.users))
	for id, rec := range m.state.users {
		if _, staged := m.overlay[id]; !staged {
			owners[rec.Email] = id
		}
	}
	for id, rec := range m.overlay {
		if rec == nil {
			continue
		}
		if owner, ok := owners[rec.Email]; ok && owner != id {
			return serrors.With(serrors.ErrConflict, "email %s is already taken", rec.Email)
		}
		owners[rec.Email] = id
	}

	return nil
}

func (m *Memory) Rollback() error {
	if !m.inTx() {
		return storage.ErrNotInTx
	}
	if err := m.checkTx(); err != nil {
		return err
	}

	m.done = true

	return nil
}

func (m *Memory) WithTx(ctx context.Context, cb func(storage storage.AllStorage) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	if err := cb(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit tx: %w", err)
	}

	return nil
}
