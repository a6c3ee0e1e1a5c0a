package memory

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/adwski/tandem/backend/model"
	"github.com/oklog/ulid/v2"
)

const (
	maxIDAttempts = 8
)

var (
	ErrRoomNotFound  = errors.New("room is not found")
	ErrIDExhausted   = errors.New("unable to generate unique room id")
	ErrSameMember    = errors.New("room members must be distinct")
	ErrAlreadyInRoom = errors.New("participant is already in a room")
)

// IDGenerator produces room identifiers.
type IDGenerator func() string

func ulidGenerator() string {
	return ulid.Make().String()
}

// Rooms is an in-memory registry of active rooms.
// Rooms is not safe for concurrent use.
type Rooms struct {
	newID  IDGenerator
	db     map[string]*model.Room
	member map[string]string
}

// NewRooms creates room registry. If newID is nil, ULIDs are used.
func NewRooms(newID IDGenerator) *Rooms {
	if newID == nil {
		newID = ulidGenerator
	}
	return &Rooms{
		newID:  newID,
		db:     make(map[string]*model.Room),
		member: make(map[string]string),
	}
}

// Create stores a new room for participants a and b.
// Participant a is the first member.
func (rs *Rooms) Create(a, b, topic string, now time.Time) (*model.Room, error) {
	if a == b {
		return nil, ErrSameMember
	}
	for _, id := range []string{a, b} {
		if _, ok := rs.member[id]; ok {
			return nil, ErrAlreadyInRoom
		}
	}

	roomID, err := rs.uniqueID()
	if err != nil {
		return nil, err
	}
	room := &model.Room{
		ID:           roomID,
		Members:      [2]string{a, b},
		Topic:        topic,
		CreatedAt:    now,
		LastActivity: now,
	}
	rs.db[roomID] = room
	rs.member[a] = roomID
	rs.member[b] = roomID
	return room, nil
}

func (rs *Rooms) uniqueID() (string, error) {
	for range maxIDAttempts {
		id := rs.newID()
		if _, ok := rs.db[id]; !ok && id != "" {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

func (rs *Rooms) Get(roomID string) (*model.Room, error) {
	room, ok := rs.db[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// RoomOf returns id of the room participant is a member of.
func (rs *Rooms) RoomOf(participantID string) (string, bool) {
	roomID, ok := rs.member[participantID]
	return roomID, ok
}

// Delete removes room and returns it. It is a no-op for unknown rooms.
func (rs *Rooms) Delete(roomID string) (*model.Room, bool) {
	room, ok := rs.db[roomID]
	if !ok {
		return nil, false
	}
	delete(rs.db, roomID)
	for _, id := range room.Members {
		if rs.member[id] == roomID {
			delete(rs.member, id)
		}
	}
	return room, true
}

// Touch updates last activity time of room.
func (rs *Rooms) Touch(roomID string, now time.Time) bool {
	room, ok := rs.db[roomID]
	if !ok {
		return false
	}
	if now.After(room.LastActivity) {
		room.LastActivity = now
	}
	return true
}

// Idle returns ids of rooms with last activity before cutoff, least recently active first.
func (rs *Rooms) Idle(cutoff time.Time) []string {
	var idle []*model.Room
	for _, room := range rs.db {
		if room.LastActivity.Before(cutoff) {
			idle = append(idle, room)
		}
	}
	slices.SortFunc(idle, func(a, b *model.Room) int {
		return a.LastActivity.Compare(b.LastActivity)
	})
	ids := make([]string, 0, len(idle))
	for _, room := range idle {
		ids = append(ids, room.ID)
	}
	return ids
}

func (rs *Rooms) Len() int {
	return len(rs.db)
}

// All returns copies of all active rooms ordered by creation time.
func (rs *Rooms) All() []model.Room {
	rooms := make([]model.Room, 0, len(rs.db))
	for _, room := range rs.db {
		rooms = append(rooms, *room)
	}
	slices.SortFunc(rooms, func(a, b model.Room) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return rooms
}
