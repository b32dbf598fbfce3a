// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"errors"

	"github.com/wfunc/roundtable/logger"
	"github.com/wfunc/roundtable/models"
	"github.com/wfunc/roundtable/network"
	"github.com/wfunc/roundtable/room"
	"github.com/wfunc/roundtable/session"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

// 广播接口
type Broadcaster interface {
	BroadcastToChannel(channelID string, msgID uint16, data []byte) error
	BroadcastToUsers(userIDs []string, msgID uint16, data []byte) error
}

// ChannelBroadcaster 基于频道的广播器. It also announces resolved rounds.
type ChannelBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
}

func NewChannelBroadcaster(roomManager *room.Manager, sessionManager *session.Manager) *ChannelBroadcaster {
	return &ChannelBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
	}
}

func (b *ChannelBroadcaster) BroadcastToChannel(channelID string, msgID uint16, data []byte) error {
	r, exists := b.roomManager.GetRoom(channelID)
	if !exists {
		return ErrRoomNotFound
	}
	if failed := r.Broadcast(msgID, data); failed > 0 {
		// 发送失败的连接由读循环负责清理
		logger.Log.Debugf("Broadcast to channel %s: %d send(s) failed", channelID, failed)
	}
	return nil
}

func (b *ChannelBroadcaster) BroadcastToUsers(userIDs []string, msgID uint16, data []byte) error {
	for _, userID := range userIDs {
		for _, s := range b.sessionManager.GetByUserID(userID) {
			if err := s.Send(msgID, data); err != nil {
				continue
			}
		}
	}
	return nil
}

// AnnounceRound pushes a round's narrative to everyone in the game's channel.
func (b *ChannelBroadcaster) AnnounceRound(game models.Game, round int, narrative string) {
	data, err := json.Marshal(network.NarrativeEvent{
		GameID:    game.ID,
		ChannelID: game.ChannelID,
		Round:     round,
		Narrative: narrative,
	})
	if err != nil {
		logger.Log.Errorf("Failed to encode round %d of game %d: %v", round, game.ID, err)
		return
	}
	if err := b.BroadcastToChannel(game.ChannelID, network.MsgTypeNarrative, data); err != nil {
		logger.Log.Debugf("No listeners for game %d in channel %s", game.ID, game.ChannelID)
	}
}
