package _switch

import (
	"errors"
	"sync"

	"github.com/adwski/tandem/backend/model"
	"github.com/rs/zerolog"
)

var (
	ErrEndpointNotFound = errors.New("endpoint is not connected")
	ErrEndpointBusy     = errors.New("endpoint outbound buffer is full")
)

// Switch maps participant ids to outbound wires of their connections.
type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	wires  map[string]model.Wire
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		wires:  make(map[string]model.Wire),
	}
}

func (sw *Switch) Connect(endpoint string, wire model.Wire) {
	sw.mx.Lock()
	sw.wires[endpoint] = wire
	sw.mx.Unlock()

	sw.logger.Debug().
		Str("endpoint", endpoint).
		Msg("endpoint connected")
}

func (sw *Switch) Disconnect(endpoint string) {
	sw.mx.Lock()
	delete(sw.wires, endpoint)
	sw.mx.Unlock()

	sw.logger.Debug().
		Str("endpoint", endpoint).
		Msg("endpoint disconnected")
}

// Notify queues event for delivery to endpoint. It never blocks:
// if endpoint's buffer is full the event is dropped.
func (sw *Switch) Notify(endpoint string, ev model.Event) error {
	sw.mx.RLock()
	wire, ok := sw.wires[endpoint]
	sw.mx.RUnlock()

	logger := sw.logger.With().
		Str("endpoint", endpoint).
		Str("type", ev.Type).Logger()

	if !ok {
		logger.Debug().Msg("cannot notify, endpoint not found")
		return ErrEndpointNotFound
	}
	select {
	case wire.TX <- ev:
		logger.Trace().Msg("event is queued")
		return nil
	default:
		logger.Warn().Msg("dead endpoint, event dropped")
		return ErrEndpointBusy
	}
}

func (sw *Switch) Len() int {
	sw.mx.RLock()
	defer sw.mx.RUnlock()
	return len(sw.wires)
}
