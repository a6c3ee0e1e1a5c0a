package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/adwski/tandem/backend/model"
	"github.com/adwski/tandem/backend/service"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultSendBuffer = 32

	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 64 * 1024 // SDP with many codecs
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	// defaultPongWait - defaultPingInterval == is how long we give client to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second
)

// Error codes sent to clients.
const (
	CodeBadMessage  = "bad-message"
	CodeUnknownType = "unknown-type"
	CodeInvalidJoin = "invalid-join"
	CodeJoinFailed  = "join-failed"
	CodeRelayFailed = "relay-failed"
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type (
	SignalingService interface {
		Connect(participantID string)
		Disconnect(participantID string)
		Join(participantID, topic string, role model.Role) error
		Leave(participantID string)
		Forward(roomID, participantID, msgType string, payload json.RawMessage) error
	}

	Switch interface {
		Connect(endpoint string, wire model.Wire)
		Disconnect(endpoint string)
	}

	Config struct {
		Logger           *zerolog.Logger
		SignalingService SignalingService
		Switch           Switch
		ListenAddr       string
		SendBuffer       int
	}

	Server struct {
		svc SignalingService
		sw  Switch
		ws  *websocket.Upgrader
		*http.Server

		sendBuffer int

		// sessions outlive http handlers, they are stopped on shutdown
		sessCtx    context.Context
		sessCancel context.CancelFunc

		logger zerolog.Logger
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:     cfg.Logger.With().Str("component", "websocket-server").Logger(),
		svc:        cfg.SignalingService,
		sw:         cfg.Switch,
		sendBuffer: cfg.SendBuffer,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}
	if srv.sendBuffer <= 0 {
		srv.sendBuffer = defaultSendBuffer
	}
	srv.sessCtx, srv.sessCancel = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /signal", srv.signal)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	return srv
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.sessCancel()
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	errSrv := make(chan error)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

func (srv *Server) signal(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	participantID := uuid.NewString()
	wire := model.NewWire(srv.sendBuffer)
	wire.TX <- model.Event{
		Type:        model.EventWelcome,
		Participant: participantID,
	}

	srv.sw.Connect(participantID, wire)
	srv.svc.Connect(participantID)
	srv.logger.Debug().
		Str("participant", participantID).
		Str("remote", r.RemoteAddr).
		Msg("signaling session created")

	ctx, cancel := context.WithCancel(srv.sessCtx)
	go srv.handleWSConn(ctx, cancel, conn, participantID, wire)
}

func (srv *Server) destroySession(participantID string, logger *zerolog.Logger) {
	srv.sw.Disconnect(participantID)
	srv.svc.Disconnect(participantID)
	logger.Debug().Msg("signaling session ended")
}

func (srv *Server) handleWSConn(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	participantID string,
	wire model.Wire,
) {
	wg := &sync.WaitGroup{}

	logger := srv.logger.With().
		Str("participant", participantID).
		Logger()

	wg.Add(2)
	go func() {
		srv.webSocketReceiver(ctx, wg, conn, participantID, wire.TX, &logger)
		cancel()
	}()
	go func() {
		webSocketSender(ctx, wg, conn, wire.TX, &logger)
		cancel()
	}()
	go func() {
		// unblock pending read once session is over
		<-ctx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	wg.Wait()
	webSocketCloser(conn, &logger)
	srv.destroySession(participantID, &logger)
}

// dispatch handles inbound message and returns error event for the sender, if any.
func (srv *Server) dispatch(participantID string, msg *model.Inbound) *model.Event {
	switch {
	case msg.Type == model.EventJoin:
		err := srv.svc.Join(participantID, msg.Topic, msg.Role)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrInvalidRole), errors.Is(err, service.ErrInvalidTopic):
			return errorEvent(CodeInvalidJoin, err.Error())
		default:
			return errorEvent(CodeJoinFailed, "unable to join, try again")
		}
	case msg.Type == model.EventLeave:
		srv.svc.Leave(participantID)
	case model.IsRelayType(msg.Type):
		if err := srv.svc.Forward(msg.Room, participantID, msg.Type, msg.Payload); err != nil {
			ev := errorEvent(CodeRelayFailed, "message was not delivered")
			ev.Room = msg.Room
			return ev
		}
	default:
		return errorEvent(CodeUnknownType, "unknown message type")
	}
	return nil
}

func errorEvent(code, message string) *model.Event {
	return &model.Event{
		Type:    model.EventError,
		Code:    code,
		Message: message,
	}
}

// reply queues event for the connection itself. Replies are best-effort.
func reply(tx chan<- model.Event, ev *model.Event, logger *zerolog.Logger) {
	select {
	case tx <- *ev:
	default:
		logger.Warn().Str("code", ev.Code).Msg("reply dropped, outbound buffer is full")
	}
}

func webSocketSender(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	tx <-chan model.Event,
	logger *zerolog.Logger,
) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()
SendLoop:
	for {
		select {
		case <-ctx.Done():
			break SendLoop
		case <-pingTicker.C:
			wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsErr = conn.WriteMessage(websocket.PingMessage, []byte{})
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
				break SendLoop
			}
			logger.Trace().Msg("ping sent")

		case ev := <-tx:
			wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsW, wsErr := conn.NextWriter(websocket.TextMessage)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to get websocket text writer")
				break SendLoop
			}
			enc := json.NewEncoder(wsW)
			enc.SetEscapeHTML(false)
			if wsErr = enc.Encode(&ev); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to write outgoing message")
				break SendLoop
			}
			if wsErr = wsW.Close(); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to close websocket writer")
				break SendLoop
			}
			logger.Trace().Str("type", ev.Type).Msg("event sent")
		}
	}
}

func (srv *Server) webSocketReceiver(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	participantID string,
	tx chan<- model.Event,
	logger *zerolog.Logger,
) {
	defer wg.Done()

	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	readDeadLineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc(defaultPongWait)
	})
	err := readDeadLineFunc(defaultPongWait)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

RecvLoop:
	for {
		select {
		case <-ctx.Done():
			break RecvLoop
		default:
			_, msg, wsErr := conn.ReadMessage()
			if wsErr != nil {
				if websocket.IsCloseError(wsErr,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway) {
					logger.Debug().Err(wsErr).Msg("connection closed")
				} else if ctx.Err() == nil {
					logger.Warn().Err(wsErr).Msg("unexpected error during receive")
				}
				break RecvLoop
			}

			var in model.Inbound
			if wsErr = json.Unmarshal(msg, &in); wsErr != nil {
				logger.Debug().Err(wsErr).Msg("failed to unmarshall incoming message")
				reply(tx, errorEvent(CodeBadMessage, "message is not valid json"), logger)
				continue
			}
			logger.Trace().Str("type", in.Type).Str("room", in.Room).Msg("message received")
			if ev := srv.dispatch(participantID, &in); ev != nil {
				reply(tx, ev, logger)
			}
		}
	}
}

func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil {
		logger.Debug().Err(wsErr).Msg("failed to set websocket write deadline during closing")
	} else {
		wsErr = conn.WriteMessage(websocket.CloseMessage, []byte{})
		if wsErr != nil {
			logger.Debug().Err(wsErr).Msg("failed to write close message")
		}
	}
	wsErr = conn.Close()
	if wsErr != nil {
		logger.Debug().Err(wsErr).Msg("failed to close websocket connection")
	}
}
