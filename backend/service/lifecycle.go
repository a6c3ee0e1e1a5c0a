package service

import (
	"github.com/adwski/tandem/backend/model"
)

// Connect registers newly connected participant.
func (svc *Service) Connect(participantID string) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	svc.participant(participantID)
	svc.logger.Debug().
		Str("participant", participantID).
		Msg("participant connected")
}

// Leave takes participant out of matchmaking: it leaves its queue and its room
// is closed for both members.
func (svc *Service) Leave(participantID string) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	svc.release(participantID, model.ReasonPeerLeft)
	if p, ok := svc.participants[participantID]; ok {
		p.State = model.StateIdle
		p.Room = ""
	}
}

// Disconnect cleans up all state of participant.
func (svc *Service) Disconnect(participantID string) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	svc.release(participantID, model.ReasonPeerDisconnected)
	delete(svc.participants, participantID)

	svc.logger.Debug().
		Str("participant", participantID).
		Msg("participant disconnected")
}

func (svc *Service) release(participantID, reason string) {
	svc.cancel(participantID)

	roomID, ok := svc.rooms.RoomOf(participantID)
	if !ok {
		return
	}
	if err := svc.destroyRoom(roomID, reason); err != nil {
		svc.logger.Debug().Err(err).
			Str("participant", participantID).
			Str("room", roomID).
			Msg("room closed with errors")
	}
}
