package service

import (
	"encoding/json"
	"errors"

	"github.com/adwski/tandem/backend/model"
)

// Forward delivers signaling payload from participant to the other member of room.
// Payload is passed unmodified. Messages for unknown rooms or from non-members
// are dropped.
func (svc *Service) Forward(roomID, participantID, msgType string, payload json.RawMessage) error {
	logger := svc.logger.With().
		Str("room", roomID).
		Str("participant", participantID).
		Str("type", msgType).Logger()

	if !model.IsRelayType(msgType) {
		logger.Debug().Msg("relay dropped, invalid type")
		return ErrInvalidMessageType
	}

	svc.mx.Lock()
	defer svc.mx.Unlock()

	room, err := svc.rooms.Get(roomID)
	if err != nil {
		logger.Debug().Msg("relay dropped, room not found")
		return errors.Join(ErrNoRoom, err)
	}
	if !room.Has(participantID) {
		logger.Warn().Msg("relay dropped, sender is not a member")
		return ErrNotAMember
	}

	dst := room.Other(participantID)
	if err = svc.notify(dst, model.Event{
		Type:    msgType,
		Room:    roomID,
		Payload: payload,
	}); err != nil {
		return errors.Join(ErrDeliver, err)
	}
	svc.rooms.Touch(roomID, svc.clock())

	logger.Trace().Str("dst", dst).Msg("message relayed")
	return nil
}
