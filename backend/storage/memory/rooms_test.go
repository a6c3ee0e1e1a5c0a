package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(ids ...string) IDGenerator {
	var i int
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func TestRooms_Create(t *testing.T) {
	now := time.Now()
	rs := NewRooms(nil)

	room, err := rs.Create("a", "b", "es", now)
	require.NoError(t, err)
	assert.NotEmpty(t, room.ID)
	assert.Equal(t, [2]string{"a", "b"}, room.Members)
	assert.Equal(t, "es", room.Topic)
	assert.Equal(t, now, room.LastActivity)

	got, err := rs.Get(room.ID)
	require.NoError(t, err)
	assert.Same(t, room, got)

	roomID, ok := rs.RoomOf("b")
	require.True(t, ok)
	assert.Equal(t, room.ID, roomID)
	assert.Equal(t, 1, rs.Len())
}

func TestRooms_CreateRejectsInvalidMembers(t *testing.T) {
	rs := NewRooms(nil)

	_, err := rs.Create("a", "a", "es", time.Now())
	assert.ErrorIs(t, err, ErrSameMember)

	_, err = rs.Create("a", "b", "es", time.Now())
	require.NoError(t, err)

	_, err = rs.Create("c", "b", "es", time.Now())
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
	assert.Equal(t, 1, rs.Len())
}

func TestRooms_CreateRegeneratesCollidingID(t *testing.T) {
	rs := NewRooms(sequence("r1", "r1", "r2"))

	first, err := rs.Create("a", "b", "es", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "r1", first.ID)

	second, err := rs.Create("c", "d", "es", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "r2", second.ID)
}

func TestRooms_CreateIDExhausted(t *testing.T) {
	rs := NewRooms(sequence("r1"))

	_, err := rs.Create("a", "b", "es", time.Now())
	require.NoError(t, err)

	_, err = rs.Create("c", "d", "es", time.Now())
	assert.ErrorIs(t, err, ErrIDExhausted)

	_, ok := rs.RoomOf("c")
	assert.False(t, ok)
}

func TestRooms_Delete(t *testing.T) {
	rs := NewRooms(nil)
	room, err := rs.Create("a", "b", "es", time.Now())
	require.NoError(t, err)

	deleted, ok := rs.Delete(room.ID)
	require.True(t, ok)
	assert.Equal(t, room.ID, deleted.ID)

	_, err = rs.Get(room.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, ok = rs.RoomOf("a")
	assert.False(t, ok)

	_, ok = rs.Delete(room.ID)
	assert.False(t, ok)
}

func TestRooms_TouchAndIdle(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rs := NewRooms(sequence("r1", "r2", "r3"))

	_, err := rs.Create("a", "b", "es", start)
	require.NoError(t, err)
	_, err = rs.Create("c", "d", "es", start.Add(time.Minute))
	require.NoError(t, err)
	_, err = rs.Create("e", "f", "es", start.Add(2*time.Minute))
	require.NoError(t, err)

	assert.True(t, rs.Touch("r1", start.Add(10*time.Minute)))
	assert.False(t, rs.Touch("missing", start))

	assert.Equal(t, []string{"r2", "r3"}, rs.Idle(start.Add(5*time.Minute)))
	assert.Empty(t, rs.Idle(start))

	// touch never moves activity backwards
	rs.Touch("r1", start)
	r1, err := rs.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, start.Add(10*time.Minute), r1.LastActivity)

	all := rs.All()
	require.Len(t, all, 3)
	assert.Equal(t, "r1", all[0].ID)
}
