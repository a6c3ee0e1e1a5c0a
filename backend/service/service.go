package service

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/adwski/tandem/backend/model"
	"github.com/rs/zerolog"
)

const (
	defaultIdleTimeout = time.Hour

	maxTopicLength = 64
)

var (
	ErrInvalidRole        = errors.New("role must be seeker or helper")
	ErrInvalidTopic       = errors.New("topic must be a non-empty identifier")
	ErrJoin               = errors.New("unable to join matchmaking")
	ErrInvalidMessageType = errors.New("message type cannot be relayed")
	ErrNoRoom             = errors.New("room does not exist")
	ErrNotAMember         = errors.New("participant is not a member of this room")
	ErrDeliver            = errors.New("unable to deliver message")
	ErrNotify             = errors.New("unable to notify room members")
)

type (
	WaitingQueue interface {
		Push(role model.Role, topic, participantID string)
		PushFront(role model.Role, topic, participantID string)
		Pop(role model.Role, topic string) (string, bool)
		Remove(participantID string) bool
		Counts() []model.QueueStat
	}

	RoomRegistry interface {
		Create(a, b, topic string, now time.Time) (*model.Room, error)
		Get(roomID string) (*model.Room, error)
		RoomOf(participantID string) (string, bool)
		Delete(roomID string) (*model.Room, bool)
		Touch(roomID string, now time.Time) bool
		Idle(cutoff time.Time) []string
		Len() int
		All() []model.Room
	}

	// Notifier delivers events to participants. Implementations must not block.
	Notifier interface {
		Notify(participantID string, ev model.Event) error
	}

	// Service pairs waiting participants into rooms and relays signaling
	// between room members. Every exported method runs to completion under
	// a single lock, so queue and room state are never observed mid-mutation.
	Service struct {
		queue    WaitingQueue
		rooms    RoomRegistry
		notifier Notifier
		clock    func() time.Time
		logger   zerolog.Logger

		idleTimeout time.Duration

		mx           sync.Mutex
		participants map[string]*model.Participant
	}

	Config struct {
		Queue       WaitingQueue
		Rooms       RoomRegistry
		Notifier    Notifier
		Logger      *zerolog.Logger
		Clock       func() time.Time
		IdleTimeout time.Duration
	}
)

func NewService(cfg Config) *Service {
	svc := &Service{
		queue:        cfg.Queue,
		rooms:        cfg.Rooms,
		notifier:     cfg.Notifier,
		clock:        cfg.Clock,
		idleTimeout:  cfg.IdleTimeout,
		logger:       cfg.Logger.With().Str("component", "matchmaking").Logger(),
		participants: make(map[string]*model.Participant),
	}
	if svc.clock == nil {
		svc.clock = time.Now
	}
	if svc.idleTimeout <= 0 {
		svc.idleTimeout = defaultIdleTimeout
	}
	return svc
}

func (svc *Service) IdleTimeout() time.Duration {
	return svc.idleTimeout
}

// participant returns participant record, registering it if needed.
func (svc *Service) participant(id string) *model.Participant {
	p, ok := svc.participants[id]
	if !ok {
		p = &model.Participant{
			ID:          id,
			State:       model.StateIdle,
			ConnectedAt: svc.clock(),
		}
		svc.participants[id] = p
	}
	return p
}

func (svc *Service) notify(participantID string, ev model.Event) error {
	err := svc.notifier.Notify(participantID, ev)
	if err != nil {
		svc.logger.Debug().Err(err).
			Str("participant", participantID).
			Str("type", ev.Type).
			Msg("notification failed")
	}
	return err
}

func (svc *Service) Participant(id string) (model.Participant, bool) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	p, ok := svc.participants[id]
	if !ok {
		return model.Participant{}, false
	}
	return *p, true
}

func (svc *Service) Stats() model.Stats {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	return model.Stats{
		Participants: len(svc.participants),
		Rooms:        svc.rooms.Len(),
		Queues:       svc.queue.Counts(),
	}
}

func (svc *Service) Snapshot() model.Snapshot {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	participants := make([]model.Participant, 0, len(svc.participants))
	for _, p := range svc.participants {
		participants = append(participants, *p)
	}
	slices.SortFunc(participants, func(a, b model.Participant) int {
		if c := a.ConnectedAt.Compare(b.ConnectedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return model.Snapshot{
		Participants: participants,
		Rooms:        svc.rooms.All(),
		Queues:       svc.queue.Counts(),
	}
}
