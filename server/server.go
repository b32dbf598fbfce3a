package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/roundtable/broadcast"
	"github.com/wfunc/roundtable/engine"
	"github.com/wfunc/roundtable/logger"
	"github.com/wfunc/roundtable/models"
	"github.com/wfunc/roundtable/monitor"
	"github.com/wfunc/roundtable/network"
	"github.com/wfunc/roundtable/room"
	"github.com/wfunc/roundtable/services"
	"github.com/wfunc/roundtable/session"
)

// RoundEngine is what the transport needs from the round engine.
type RoundEngine interface {
	Snapshot(ctx context.Context, gameID uint) (models.Snapshot, error)
	EnqueueAction(ctx context.Context, gameID, participantID uint, text string) (models.Action, error)
	ResolveRound(ctx context.Context, gameID uint, force bool) (engine.Result, error)
}

// Deps are the collaborators a GameServer routes commands to.
type Deps struct {
	Engine      RoundEngine
	Games       *services.GameService
	Players     *services.PlayerService
	Rooms       *room.Manager
	Sessions    *session.Manager
	Broadcaster *broadcast.ChannelBroadcaster
	Monitor     *monitor.Monitor
	Heartbeat   time.Duration
}

type handlerFunc func(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error)

type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	engine         RoundEngine
	games          *services.GameService
	players        *services.PlayerService
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    *broadcast.ChannelBroadcaster
	monitor        *monitor.Monitor
	heartbeat      time.Duration
	handlers       map[uint16]handlerFunc
}

func NewGameServer(addr string, deps Deps) *GameServer {
	if deps.Rooms == nil {
		deps.Rooms = room.NewRoomManager(0)
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewManager()
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = broadcast.NewChannelBroadcaster(deps.Rooms, deps.Sessions)
	}
	s := &GameServer{
		addr:           addr,
		engine:         deps.Engine,
		games:          deps.Games,
		players:        deps.Players,
		roomManager:    deps.Rooms,
		sessionManager: deps.Sessions,
		broadcaster:    deps.Broadcaster,
		monitor:        deps.Monitor,
		heartbeat:      deps.Heartbeat,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	s.registerHandlers()
	return s
}

// Router mounts the websocket endpoint, the JSON API and the metrics.
func (s *GameServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", healthz)
	r.Get("/ws", s.handleWebSocket)
	if s.monitor != nil {
		r.Method(http.MethodGet, "/metrics", s.monitor.Handler())
	}
	r.Route("/api/games/{gameID}", func(r chi.Router) {
		r.Get("/state", s.getState)
		r.Post("/actions", s.postAction)
		r.Post("/rounds", s.postRound)
	})
	return r
}

// Run serves HTTP until ctx is done.
func (s *GameServer) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Router()}

	serveErr := make(chan error, 1)
	go func() {
		logger.Log.Infof("Game server listening on %s", s.addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	// 已升级的 websocket 连接不受 Shutdown 管理
	s.sessionManager.CloseAll()
	<-serveErr
	return err
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(r.Context(), conn)
}

func (s *GameServer) handleConnection(ctx context.Context, conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	if s.heartbeat > 0 {
		wsConn.SetHeartbeat(s.heartbeat)
	}
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlineConnections()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.roomManager.Leave(sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlineConnections()
		wsConn.Close()
	}()

	for {
		packet, err := wsConn.ReadPacket()
		if errors.Is(err, network.ErrShortPacket) {
			s.reply(sess, 0, network.Reply{}, err)
			continue
		}
		if err != nil {
			return
		}
		s.handlePacket(ctx, sess, packet)
	}
}

func (s *GameServer) handlePacket(ctx context.Context, sess *session.Session, packet *network.Packet) {
	s.monitor.IncMessagesReceived()
	start := time.Now()
	defer func() { s.monitor.ObserveMessageLatency(time.Since(start)) }()

	if packet.MsgID == network.MsgTypeHeartbeat {
		sess.Touch()
		return
	}

	handler, ok := s.handlers[packet.MsgID]
	if !ok {
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		s.reply(sess, packet.MsgID, network.Reply{}, errUnknownCommand)
		return
	}
	reply, err := handler(ctx, sess, packet)
	s.reply(sess, packet.MsgID, reply, err)
}

func (s *GameServer) reply(sess *session.Session, command uint16, reply network.Reply, err error) {
	reply.Command = command
	reply.OK = err == nil
	if err != nil {
		reply.Message = userMessage(err)
		reply.Data = nil
		if statusFor(err) >= http.StatusInternalServerError {
			logger.Log.Errorf("Command %d from session %s failed: %v", command, sess.GetID(), err)
		}
	}
	if sendErr := sess.SendJSON(network.MsgTypeReply, reply); sendErr != nil {
		logger.Log.Debugf("Reply to session %s failed: %v", sess.GetID(), sendErr)
	}
}
