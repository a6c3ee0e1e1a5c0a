package model

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleSeeker Role = "seeker"
	RoleHelper Role = "helper"
)

func (r Role) Valid() bool {
	return r == RoleSeeker || r == RoleHelper
}

// Opposite returns the role a participant of role r is matched with.
func (r Role) Opposite() Role {
	switch r {
	case RoleSeeker:
		return RoleHelper
	case RoleHelper:
		return RoleSeeker
	}
	return ""
}

type ParticipantState string

const (
	StateIdle   ParticipantState = "idle"
	StateQueued ParticipantState = "queued"
	StatePaired ParticipantState = "paired"
)

type Participant struct {
	ID          string           `json:"id"`
	Topic       string           `json:"topic,omitempty"`
	Role        Role             `json:"role,omitempty"`
	Room        string           `json:"room,omitempty"`
	State       ParticipantState `json:"state"`
	ConnectedAt time.Time        `json:"connected_at"`
}

// Room pairs exactly two participants. Members[0] is the one who was waiting
// in queue and produces the initial offer.
type Room struct {
	ID           string    `json:"room_id"`
	Members      [2]string `json:"members"`
	Topic        string    `json:"topic"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

func (r *Room) Has(participantID string) bool {
	return r.Members[0] == participantID || r.Members[1] == participantID
}

// Other returns the peer of participantID, or empty string if it is not a member.
func (r *Room) Other(participantID string) string {
	switch participantID {
	case r.Members[0]:
		return r.Members[1]
	case r.Members[1]:
		return r.Members[0]
	}
	return ""
}

// Event types exchanged over signaling connection.
const (
	EventJoin       = "join"
	EventLeave      = "leave"
	EventWelcome    = "welcome"
	EventWaiting    = "waiting"
	EventMatch      = "match"
	EventOffer      = "offer"
	EventAnswer     = "answer"
	EventCandidate  = "candidate"
	EventRoomClosed = "room-closed"
	EventError      = "error"
)

// Room close reasons.
const (
	ReasonPeerDisconnected = "peer-disconnected"
	ReasonPeerLeft         = "peer-left"
	ReasonTimeout          = "timeout"
)

// IsRelayType reports whether messages of type t are relayed between room members.
func IsRelayType(t string) bool {
	return t == EventOffer || t == EventAnswer || t == EventCandidate
}

// Inbound is a message sent by client.
type Inbound struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Role    Role            `json:"role,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is a message sent by server.
type Event struct {
	Type        string          `json:"type"`
	Participant string          `json:"participant,omitempty"`
	Room        string          `json:"room,omitempty"`
	Topic       string          `json:"topic,omitempty"`
	Role        Role            `json:"role,omitempty"`
	OfferSide   *bool           `json:"offerSide,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Code        string          `json:"code,omitempty"`
	Message     string          `json:"message,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Wire is an outbound event channel of a single connection.
type Wire struct {
	TX chan Event
}

func NewWire(size int) Wire {
	return Wire{
		TX: make(chan Event, size),
	}
}

type QueueStat struct {
	Role    Role   `json:"role"`
	Topic   string `json:"topic"`
	Waiting int    `json:"waiting"`
}

type Stats struct {
	Participants int         `json:"participants"`
	Rooms        int         `json:"rooms"`
	Queues       []QueueStat `json:"queues"`
}

// Snapshot is a point-in-time copy of matchmaking state.
type Snapshot struct {
	Participants []Participant `json:"participants"`
	Rooms        []Room        `json:"rooms"`
	Queues       []QueueStat   `json:"queues"`
}
