package service

import (
	"errors"
	"strings"

	"github.com/adwski/tandem/backend/model"
)

// Join enters participant into matchmaking for topic with given role.
// If an opposite-role participant is already waiting for the same topic, the
// oldest one is paired with participant and both receive match event, the
// waiter being the offer side. Otherwise participant is queued and receives
// waiting event.
//
// Joining again while queued or paired starts over: previous queue slot is
// released and current room is closed.
func (svc *Service) Join(participantID, topic string, role model.Role) error {
	topic = strings.TrimSpace(topic)
	if !role.Valid() {
		return ErrInvalidRole
	}
	if topic == "" || len(topic) > maxTopicLength {
		return ErrInvalidTopic
	}

	svc.mx.Lock()
	defer svc.mx.Unlock()

	logger := svc.logger.With().
		Str("participant", participantID).
		Str("topic", topic).
		Str("role", string(role)).Logger()

	p := svc.participant(participantID)
	svc.queue.Remove(participantID)
	if roomID, ok := svc.rooms.RoomOf(participantID); ok {
		if err := svc.destroyRoom(roomID, model.ReasonPeerLeft); err != nil {
			logger.Warn().Err(err).Str("room", roomID).Msg("rejoin: previous room closed with errors")
		}
	}
	p.Topic = topic
	p.Role = role
	p.Room = ""
	p.State = model.StateIdle

	peerID, ok := svc.queue.Pop(role.Opposite(), topic)
	if !ok {
		svc.queue.Push(role, topic, participantID)
		p.State = model.StateQueued
		logger.Debug().Msg("participant is waiting")

		_ = svc.notify(participantID, model.Event{
			Type:  model.EventWaiting,
			Topic: topic,
			Role:  role,
		})
		return nil
	}

	room, err := svc.rooms.Create(peerID, participantID, topic, svc.clock())
	if err != nil {
		svc.queue.PushFront(role.Opposite(), topic, peerID)
		logger.Error().Err(err).Str("peer", peerID).Msg("failed to create room")
		return errors.Join(ErrJoin, err)
	}

	peer := svc.participant(peerID)
	for _, member := range []*model.Participant{peer, p} {
		member.Room = room.ID
		member.State = model.StatePaired
	}
	logger.Debug().
		Str("peer", peerID).
		Str("room", room.ID).
		Msg("participants matched")

	offer, answer := true, false
	_ = svc.notify(peerID, model.Event{
		Type:      model.EventMatch,
		Room:      room.ID,
		Topic:     topic,
		Role:      peer.Role,
		OfferSide: &offer,
	})
	_ = svc.notify(participantID, model.Event{
		Type:      model.EventMatch,
		Room:      room.ID,
		Topic:     topic,
		Role:      role,
		OfferSide: &answer,
	})
	return nil
}

// Cancel releases queue slot of participant. It is a no-op if participant is not queued.
func (svc *Service) Cancel(participantID string) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	svc.cancel(participantID)
}

func (svc *Service) cancel(participantID string) {
	if !svc.queue.Remove(participantID) {
		return
	}
	if p, ok := svc.participants[participantID]; ok && p.State == model.StateQueued {
		p.State = model.StateIdle
	}
	svc.logger.Debug().
		Str("participant", participantID).
		Msg("participant left queue")
}
