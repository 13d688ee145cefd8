package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/repository"
)

// UserRepository is the in-memory user store.
type UserRepository struct{ db *db }

func (r *UserRepository) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	u, ok := r.db.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, u := range r.db.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) Create(_ context.Context, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.users {
		if existing.Email == u.Email {
			return repository.ErrConflict
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now().UTC()
	r.db.users[u.ID] = *u
	return nil
}

func (r *UserRepository) UpdateDepartment(_ context.Context, id uuid.UUID, department string) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u.Department = department
	r.db.users[id] = u
	return &u, nil
}

func (r *UserRepository) List(_ context.Context) ([]model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	users := make([]model.User, 0, len(r.db.users))
	for _, u := range r.db.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (r *UserRepository) Count(_ context.Context) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return len(r.db.users), nil
}

// DeviceRepository is the in-memory device store.
type DeviceRepository struct{ db *db }

func (r *DeviceRepository) Register(_ context.Context, hostname, mac string, at time.Time) (*model.Device, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for id, d := range r.db.devices {
		if d.Hostname == hostname {
			d.LastSeen = timePtr(at)
			r.db.devices[id] = d
			return &d, false, nil
		}
	}
	d := model.Device{ID: uuid.New(), Hostname: hostname, MacAddress: mac, LastSeen: timePtr(at), CreatedAt: at}
	r.db.devices[d.ID] = d
	return &d, true, nil
}

func (r *DeviceRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Device, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	d, ok := r.db.devices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r *DeviceRepository) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if d, ok := r.db.devices[id]; ok {
		d.LastSeen = timePtr(at)
		r.db.devices[id] = d
	}
	return nil
}

func (r *DeviceRepository) List(_ context.Context) ([]model.Device, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	devices := make([]model.Device, 0, len(r.db.devices))
	for _, d := range r.db.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Hostname < devices[j].Hostname })
	return devices, nil
}

func (r *DeviceRepository) Approve(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	d, ok := r.db.devices[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.Approved = true
	r.db.devices[id] = d
	return nil
}

func (r *DeviceRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.devices[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.devices, id)
	for sid, s := range r.db.sessions {
		if s.DeviceID != nil && *s.DeviceID == id {
			s.DeviceID = nil
			r.db.sessions[sid] = s
		}
	}
	return nil
}

func (r *DeviceRepository) CountApproved(_ context.Context) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	n := 0
	for _, d := range r.db.devices {
		if d.Approved {
			n++
		}
	}
	return n, nil
}
