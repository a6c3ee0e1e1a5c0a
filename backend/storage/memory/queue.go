package memory

import (
	"slices"
	"strings"

	"github.com/adwski/tandem/backend/model"
)

type queueKey struct {
	role  model.Role
	topic string
}

// Queue holds per-(role, topic) FIFO queues of waiting participants.
// A participant occupies at most one queue slot at a time.
// Queue is not safe for concurrent use.
type Queue struct {
	queues map[queueKey][]string
	index  map[string]queueKey
}

func NewQueue() *Queue {
	return &Queue{
		queues: make(map[queueKey][]string),
		index:  make(map[string]queueKey),
	}
}

// Push appends participant to the tail of (role, topic) queue.
// Previous queue slot of participant, if any, is released first.
func (q *Queue) Push(role model.Role, topic, participantID string) {
	q.Remove(participantID)

	key := queueKey{role: role, topic: topic}
	q.queues[key] = append(q.queues[key], participantID)
	q.index[participantID] = key
}

// PushFront places participant at the head of (role, topic) queue.
func (q *Queue) PushFront(role model.Role, topic, participantID string) {
	q.Remove(participantID)

	key := queueKey{role: role, topic: topic}
	q.queues[key] = slices.Insert(q.queues[key], 0, participantID)
	q.index[participantID] = key
}

// Pop removes and returns the oldest participant waiting in (role, topic) queue.
func (q *Queue) Pop(role model.Role, topic string) (string, bool) {
	key := queueKey{role: role, topic: topic}
	waiting := q.queues[key]
	if len(waiting) == 0 {
		return "", false
	}
	head := waiting[0]
	q.set(key, waiting[1:])
	delete(q.index, head)
	return head, true
}

// Remove releases queue slot of participant. It returns false if participant is not queued.
func (q *Queue) Remove(participantID string) bool {
	key, ok := q.index[participantID]
	if !ok {
		return false
	}
	delete(q.index, participantID)

	waiting := q.queues[key]
	if i := slices.Index(waiting, participantID); i >= 0 {
		q.set(key, slices.Delete(waiting, i, i+1))
	}
	return true
}

// Position returns the queue participant is waiting in.
func (q *Queue) Position(participantID string) (model.Role, string, bool) {
	key, ok := q.index[participantID]
	return key.role, key.topic, ok
}

func (q *Queue) Len(role model.Role, topic string) int {
	return len(q.queues[queueKey{role: role, topic: topic}])
}

// Counts returns sizes of all non-empty queues ordered by topic and role.
func (q *Queue) Counts() []model.QueueStat {
	stats := make([]model.QueueStat, 0, len(q.queues))
	for key, waiting := range q.queues {
		stats = append(stats, model.QueueStat{
			Role:    key.role,
			Topic:   key.topic,
			Waiting: len(waiting),
		})
	}
	slices.SortFunc(stats, func(a, b model.QueueStat) int {
		if c := strings.Compare(a.Topic, b.Topic); c != 0 {
			return c
		}
		return strings.Compare(string(a.Role), string(b.Role))
	})
	return stats
}

func (q *Queue) set(key queueKey, waiting []string) {
	if len(waiting) == 0 {
		delete(q.queues, key)
		return
	}
	q.queues[key] = waiting
}
