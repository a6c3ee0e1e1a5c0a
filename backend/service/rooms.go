package service

import (
	"errors"

	"github.com/adwski/tandem/backend/model"
)

// CreateRoom pairs two participants directly, bypassing queues.
// Participant a is the offer side.
func (svc *Service) CreateRoom(a, b, topic string) (string, error) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	room, err := svc.rooms.Create(a, b, topic, svc.clock())
	if err != nil {
		return "", err
	}
	for _, id := range room.Members {
		svc.cancel(id)
		p := svc.participant(id)
		p.Topic = topic
		p.Room = room.ID
		p.State = model.StatePaired
	}
	return room.ID, nil
}

func (svc *Service) GetRoom(roomID string) (model.Room, error) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	room, err := svc.rooms.Get(roomID)
	if err != nil {
		return model.Room{}, errors.Join(ErrNoRoom, err)
	}
	return *room, nil
}

// DestroyRoom removes room and notifies both members with room-closed event.
// Destroying a nonexistent room is a no-op. Room is always removed, returned
// error only reports failed notifications.
func (svc *Service) DestroyRoom(roomID, reason string) error {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	return svc.destroyRoom(roomID, reason)
}

func (svc *Service) destroyRoom(roomID, reason string) error {
	room, ok := svc.rooms.Delete(roomID)
	if !ok {
		return nil
	}

	var errs []error
	for _, id := range room.Members {
		if p, ok := svc.participants[id]; ok && p.Room == roomID {
			p.Room = ""
			p.State = model.StateIdle
		}
		if err := svc.notify(id, model.Event{
			Type:   model.EventRoomClosed,
			Room:   roomID,
			Reason: reason,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	svc.logger.Debug().
		Str("room", roomID).
		Str("reason", reason).
		Msg("room destroyed")

	if len(errs) > 0 {
		return errors.Join(ErrNotify, errors.Join(errs...))
	}
	return nil
}

// Touch marks room as active.
func (svc *Service) Touch(roomID string) bool {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	return svc.rooms.Touch(roomID, svc.clock())
}
