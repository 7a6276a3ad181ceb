package ride

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
)

// MemoryDirectory serves collaborator data from process memory. It backs
// local runs without a database and the package tests.
type MemoryDirectory struct {
	mu           sync.RWMutex
	rides        map[string]Ride
	participants map[string]map[string]Participant
	users        map[string]UserDisplay
	checkpoints  map[string][]Checkpoint
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		rides:        map[string]Ride{},
		participants: map[string]map[string]Participant{},
		users:        map[string]UserDisplay{},
		checkpoints:  map[string][]Checkpoint{},
	}
}

func (d *MemoryDirectory) PutRide(r Ride) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rides[r.ID] = r
}

func (d *MemoryDirectory) PutParticipant(p Participant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.participants[p.RideID] == nil {
		d.participants[p.RideID] = map[string]Participant{}
	}
	d.participants[p.RideID][p.UserID] = p
}

func (d *MemoryDirectory) PutUser(u UserDisplay) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

// PutCheckpoint appends in creation order.
func (d *MemoryDirectory) PutCheckpoint(cp Checkpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkpoints[cp.RideID] = append(d.checkpoints[cp.RideID], cp)
}

func (d *MemoryDirectory) GetRide(_ context.Context, rideID string) (Ride, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rides[rideID]
	if !ok {
		return Ride{}, ErrRideNotFound
	}
	return r, nil
}

func (d *MemoryDirectory) GetParticipant(_ context.Context, rideID, userID string) (Participant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.participants[rideID][userID]
	if !ok {
		return Participant{}, ErrNotParticipant
	}
	return p, nil
}

func (d *MemoryDirectory) ListParticipants(_ context.Context, rideID string) ([]Participant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Participant, 0, len(d.participants[rideID]))
	for _, p := range d.participants[rideID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (d *MemoryDirectory) GetUserDisplay(_ context.Context, userID string) (UserDisplay, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return UserDisplay{}, ErrUserNotFound
	}
	return u, nil
}

func (d *MemoryDirectory) ListUserDisplays(_ context.Context, userIDs []string) ([]UserDisplay, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]UserDisplay, 0, len(userIDs))
	for _, id := range userIDs {
		if u, ok := d.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *MemoryDirectory) ListCheckpoints(_ context.Context, rideID string) ([]Checkpoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Checkpoint(nil), d.checkpoints[rideID]...), nil
}

// Fixture is the JSON document accepted by LoadFixture.
type Fixture struct {
	Rides        []Ride        `json:"rides"`
	Participants []Participant `json:"participants"`
	Users        []UserDisplay `json:"users"`
	Checkpoints  []Checkpoint  `json:"checkpoints"`
}

// LoadFixture seeds the directory from a JSON fixture.
func (d *MemoryDirectory) LoadFixture(r io.Reader) error {
	var f Fixture
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return Error.Wrap(err)
	}
	for _, rd := range f.Rides {
		rd.Status = ParseStatus(string(rd.Status))
		d.PutRide(rd)
	}
	for _, p := range f.Participants {
		p.Role = ParseRole(string(p.Role))
		d.PutParticipant(p)
	}
	for _, u := range f.Users {
		d.PutUser(u)
	}
	for _, cp := range f.Checkpoints {
		cp.Type = ParseCheckpointType(string(cp.Type))
		d.PutCheckpoint(cp)
	}
	return nil
}
