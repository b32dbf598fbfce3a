package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wfunc/roundtable/dice"
	"github.com/wfunc/roundtable/models"
	"github.com/wfunc/roundtable/network"
	"github.com/wfunc/roundtable/services"
	"github.com/wfunc/roundtable/session"
)

var (
	errUnknownCommand = errors.New("unknown command")
	errNotIdentified  = errors.New("session not identified")
	errNoChannel      = errors.New("session has not joined a channel")
	errNotDM          = errors.New("command requires the DM role")
	errChannelFull    = errors.New("channel is full")
)

func (s *GameServer) registerHandlers() {
	s.handlers = map[uint16]handlerFunc{
		network.MsgTypeIdentify:        s.handleIdentify,
		network.MsgTypeJoinChannel:     s.handleJoinChannel,
		network.MsgTypeLeaveChannel:    s.handleLeaveChannel,
		network.MsgTypeCreateCharacter: s.handleCreateCharacter,
		network.MsgTypeAction:          s.handleAction,
		network.MsgTypeRoll:            s.handleRoll,
		network.MsgTypeStats:           s.handleStats,
		network.MsgTypeInventory:       s.handleInventory,
		network.MsgTypeForceRound:      s.dmOnly(s.handleForceRound),
		network.MsgTypeDMStart:         s.dmOnly(s.handleDMStart),
		network.MsgTypeDMPause:         s.dmOnly(s.handleDMPause),
		network.MsgTypeDMResume:        s.dmOnly(s.handleDMResume),
		network.MsgTypeDMEnd:           s.dmOnly(s.handleDMEnd),
		network.MsgTypeDMLocation:      s.dmOnly(s.handleDMLocation),
		network.MsgTypeDMEncounter:     s.dmOnly(s.handleDMEncounter),
		network.MsgTypeState:           s.handleState,
	}
}

// dmOnly requires an identified DM session in a channel.
func (s *GameServer) dmOnly(next handlerFunc) handlerFunc {
	return func(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
		if _, err := channelOf(sess); err != nil {
			return network.Reply{}, err
		}
		if !sess.IsDM() {
			return network.Reply{}, errNotDM
		}
		return next(ctx, sess, packet)
	}
}

func userOf(sess *session.Session) (string, error) {
	if id := sess.UserID(); id != "" {
		return id, nil
	}
	return "", errNotIdentified
}

func channelOf(sess *session.Session) (string, error) {
	if _, err := userOf(sess); err != nil {
		return "", err
	}
	if id := sess.ChannelID(); id != "" {
		return id, nil
	}
	return "", errNoChannel
}

func decodeText(packet *network.Packet) (string, error) {
	var req network.TextRequest
	if err := packet.Decode(&req); err != nil {
		return "", fmt.Errorf("%w: %v", services.ErrInvalidArgument, err)
	}
	return strings.TrimSpace(req.Text), nil
}

func (s *GameServer) handleIdentify(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	var req network.IdentifyRequest
	if err := packet.Decode(&req); err != nil {
		return network.Reply{}, fmt.Errorf("%w: %v", services.ErrInvalidArgument, err)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return network.Reply{}, fmt.Errorf("%w: user_id is required", services.ErrInvalidArgument)
	}
	sess.Identify(req.UserID, req.GuildID, req.IsDM)
	return network.Reply{Message: "Welcome, " + req.UserID}, nil
}

func (s *GameServer) handleJoinChannel(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	if _, err := userOf(sess); err != nil {
		return network.Reply{}, err
	}
	var req network.JoinChannelRequest
	if err := packet.Decode(&req); err != nil || strings.TrimSpace(req.ChannelID) == "" {
		return network.Reply{}, fmt.Errorf("%w: channel_id is required", services.ErrInvalidArgument)
	}
	if !s.roomManager.Join(req.ChannelID, sess) {
		return network.Reply{}, errChannelFull
	}
	sess.SetChannelID(req.ChannelID)

	reply := network.Reply{Message: "Joined #" + req.ChannelID}
	if game, err := s.games.ActiveGameInChannel(ctx, req.ChannelID); err == nil {
		reply.Data = game
	}
	return reply, nil
}

func (s *GameServer) handleLeaveChannel(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	s.roomManager.Leave(sess.GetID())
	sess.SetChannelID("")
	return network.Reply{Message: "Left channel"}, nil
}

func (s *GameServer) handleCreateCharacter(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	userID, err := userOf(sess)
	if err != nil {
		return network.Reply{}, err
	}
	var req network.CreateCharacterRequest
	if err := packet.Decode(&req); err != nil {
		return network.Reply{}, fmt.Errorf("%w: %v", services.ErrInvalidArgument, err)
	}
	p, err := s.players.CreateCharacter(ctx, services.CharacterRequest{
		PlatformUserID: userID,
		Name:           req.Name,
		Class:          req.Class,
		Backstory:      req.Backstory,
		Stats:          req.Stats,
	})
	if err != nil {
		return network.Reply{}, err
	}
	return network.Reply{Message: fmt.Sprintf("✅ Character **%s** created successfully!", p.Name), Data: p}, nil
}

func (s *GameServer) handleAction(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	channelID, err := channelOf(sess)
	if err != nil {
		return network.Reply{}, err
	}
	text, err := decodeText(packet)
	if err != nil {
		return network.Reply{}, err
	}
	player, err := s.players.GetByPlatformUser(ctx, sess.UserID())
	if err != nil {
		return network.Reply{}, err
	}
	game, err := s.games.ActiveGameInChannel(ctx, channelID)
	if err != nil {
		return network.Reply{}, err
	}
	action, err := s.engine.EnqueueAction(ctx, game.ID, player.ID, text)
	if err != nil {
		return network.Reply{}, err
	}
	return network.Reply{
		Message: fmt.Sprintf("✅ Action queued: **%s**\nWaiting for other players or round resolution...", text),
		Data:    action,
	}, nil
}

func (s *GameServer) handleRoll(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	notation, err := decodeText(packet)
	if err != nil {
		return network.Reply{}, err
	}
	if notation == "" {
		notation = "1d20"
	}
	res, err := dice.Roll(notation)
	if err != nil {
		return network.Reply{}, err
	}
	return network.Reply{Message: fmt.Sprintf("🎲 Rolling %s:\n%s", notation, res.Explanation), Data: res}, nil
}

func (s *GameServer) handleStats(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	userID, err := userOf(sess)
	if err != nil {
		return network.Reply{}, err
	}
	p, err := s.players.GetByPlatformUser(ctx, userID)
	if err != nil {
		return network.Reply{}, err
	}
	return network.Reply{Message: characterSheet(p), Data: p}, nil
}

func characterSheet(p models.Participant) string {
	return fmt.Sprintf("**%s** the %s\n**HP:** %d/%d\n**Stats:** %s", p.Name, p.Class, p.HP, p.MaxHP, p.Stats)
}

func (s *GameServer) handleInventory(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	userID, err := userOf(sess)
	if err != nil {
		return network.Reply{}, err
	}
	p, err := s.players.GetByPlatformUser(ctx, userID)
	if err != nil {
		return network.Reply{}, err
	}
	if len(p.Inventory.Items) == 0 {
		return network.Reply{Message: fmt.Sprintf("**%s's Inventory:**\n*Empty*", p.Name), Data: p.Inventory}, nil
	}
	lines := make([]string, len(p.Inventory.Items))
	for i, item := range p.Inventory.Items {
		lines[i] = fmt.Sprintf("• %s (%g lbs)", item.Name, item.Weight)
	}
	msg := fmt.Sprintf("**%s's Inventory:**\n%s\n\n**Weight:** %.1f/%.1f lbs",
		p.Name, strings.Join(lines, "\n"), p.Inventory.Weight(), s.players.Capacity(p))
	return network.Reply{Message: msg, Data: p.Inventory}, nil
}

func (s *GameServer) handleForceRound(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	game, err := s.games.ActiveGameInChannel(ctx, sess.ChannelID())
	if err != nil {
		return network.Reply{}, err
	}
	res, err := s.engine.ResolveRound(ctx, game.ID, true)
	if err != nil {
		return network.Reply{}, err
	}
	switch {
	case !res.Resolved:
		return network.Reply{Message: "No round to resolve.", Data: res}, nil
	case res.Narrative == "":
		return network.Reply{Message: fmt.Sprintf("Round %d closed with no actions.", res.Round), Data: res}, nil
	}
	return network.Reply{Message: fmt.Sprintf("Round %d resolved.", res.Round), Data: res}, nil
}

func (s *GameServer) handleDMStart(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	campaign, err := decodeText(packet)
	if err != nil {
		return network.Reply{}, err
	}
	game, opening, err := s.games.StartGame(ctx, services.StartRequest{
		GuildID:   sess.GuildID(),
		ChannelID: sess.ChannelID(),
		CreatedBy: sess.UserID(),
		Campaign:  campaign,
	})
	if err != nil {
		return network.Reply{}, err
	}
	s.broadcaster.AnnounceRound(game, 0, opening)
	return network.Reply{
		Message: fmt.Sprintf("✅ Game started!\n**Campaign:** %s\n**Location:** %s\n\n📖 **Opening Scene:**\n%s\n\nPlayers can now use `/action` to participate.",
			game.CampaignName, game.Location, opening),
		Data: game,
	}, nil
}

func (s *GameServer) handleDMPause(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	game, err := s.games.PauseGame(ctx, sess.ChannelID())
	if err != nil {
		return network.Reply{}, err
	}
	return network.Reply{Message: "⏸️ Game paused. Use `/dm resume` to continue.", Data: game}, nil
}

func (s *GameServer) handleDMResume(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	game, err := s.games.ResumeGame(ctx, sess.ChannelID())
	if err != nil {
		return network.Reply{}, err
	}
	return network.Reply{Message: "▶️ Game resumed! Players can continue their actions.", Data: game}, nil
}

func (s *GameServer) handleDMEnd(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	game, err := s.games.EndGame(ctx, sess.ChannelID())
	if err != nil {
		return network.Reply{}, err
	}
	return network.Reply{Message: "🏁 Game ended. Thank you for playing!", Data: game}, nil
}

func (s *GameServer) handleDMLocation(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	location, err := decodeText(packet)
	if err != nil {
		return network.Reply{}, err
	}
	game, err := s.games.SetLocation(ctx, sess.ChannelID(), location)
	if err != nil {
		return network.Reply{}, err
	}
	return network.Reply{Message: fmt.Sprintf("📍 Location updated: **%s**", game.Location), Data: game}, nil
}

func (s *GameServer) handleDMEncounter(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	description, err := decodeText(packet)
	if err != nil {
		return network.Reply{}, err
	}
	updated, err := s.games.AddEncounter(ctx, sess.ChannelID(), sess.UserID(), description)
	if err != nil {
		return network.Reply{}, err
	}
	return network.Reply{Message: fmt.Sprintf("✅ Encounter added: **%s**", description), Data: updated}, nil
}

func (s *GameServer) handleState(ctx context.Context, sess *session.Session, packet *network.Packet) (network.Reply, error) {
	channelID, err := channelOf(sess)
	if err != nil {
		return network.Reply{}, err
	}
	snap, err := s.games.GetState(ctx, channelID)
	if err != nil {
		return network.Reply{}, err
	}
	return network.Reply{
		Message: fmt.Sprintf("**%s** (%s) at %s, round %d, %d pending action(s)",
			snap.Game.CampaignName, snap.Game.Status, snap.Game.Location, snap.Session.RoundNumber, len(snap.Pending)),
		Data: snap,
	}, nil
}
