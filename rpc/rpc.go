package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/roundtable/engine"
	"github.com/wfunc/roundtable/logger"
	"github.com/wfunc/roundtable/models"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr. Services are registered with Register before
// Start.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      rpc.NewServer(),
	}, nil
}

func (s *Server) Register(service interface{}) error {
	return s.rpc.Register(service)
}

func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoundEngine is the part of the engine exposed to operators.
type RoundEngine interface {
	ResolveRound(ctx context.Context, gameID uint, force bool) (engine.Result, error)
}

// GameLister lists games eligible for resolution.
type GameLister interface {
	ListActiveGames(ctx context.Context) ([]models.Game, error)
}

// GameService is the struct that exposes RPC methods.
type GameService struct {
	engine  RoundEngine
	games   GameLister
	timeout time.Duration
}

func NewGameService(e RoundEngine, games GameLister, timeout time.Duration) *GameService {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &GameService{engine: e, games: games, timeout: timeout}
}

// ResolveRound methods must follow the net/rpc signature: exported method,
// exported arguments, second argument is a pointer, return type is error.
type ResolveRoundArgs struct {
	GameID uint
	Force  bool
}

type ResolveRoundReply struct {
	Result engine.Result
}

func (gs *GameService) ResolveRound(args *ResolveRoundArgs, reply *ResolveRoundReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	res, err := gs.engine.ResolveRound(ctx, args.GameID, args.Force)
	if err != nil {
		return err
	}
	reply.Result = res
	return nil
}

type ListActiveGamesArgs struct{}

type ListActiveGamesReply struct {
	Games []models.Game
}

func (gs *GameService) ListActiveGames(args *ListActiveGamesArgs, reply *ListActiveGamesReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	games, err := gs.games.ListActiveGames(ctx)
	if err != nil {
		return err
	}
	reply.Games = games
	return nil
}
