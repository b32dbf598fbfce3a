// network/protocol.go
package network

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/wfunc/roundtable/models"
)

const (
	MsgTypeHeartbeat = 1

	// 连接与频道
	MsgTypeIdentify     = 101
	MsgTypeJoinChannel  = 102
	MsgTypeLeaveChannel = 103

	// 玩家命令
	MsgTypeCreateCharacter = 201
	MsgTypeAction          = 202
	MsgTypeRoll            = 203
	MsgTypeStats           = 204
	MsgTypeInventory       = 205

	// DM 命令
	MsgTypeForceRound  = 301
	MsgTypeDMStart     = 302
	MsgTypeDMPause     = 303
	MsgTypeDMResume    = 304
	MsgTypeDMEnd       = 305
	MsgTypeDMLocation  = 306
	MsgTypeDMEncounter = 307

	MsgTypeState = 401

	// 服务端推送
	MsgTypeReply     = 501
	MsgTypeNarrative = 502
)

var (
	ErrShortPacket    = errors.New("packet shorter than its header")
	ErrPacketTooLarge = errors.New("packet body exceeds 65535 bytes")
)

const headerSize = 4

type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint16
}

// Frame packs a message: 2-byte id, 2-byte body length, body. Big endian.
func Frame(msgID uint16, data []byte) ([]byte, error) {
	if len(data) > math.MaxUint16 {
		return nil, ErrPacketTooLarge
	}
	packet := make([]byte, headerSize+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[headerSize:], data)
	return packet, nil
}

// ParseFrame is the inverse of Frame. Trailing bytes past the declared
// length are ignored.
func ParseFrame(data []byte) (*Packet, error) {
	if len(data) < headerSize {
		return nil, ErrShortPacket
	}
	msgID := binary.BigEndian.Uint16(data[0:2])
	length := binary.BigEndian.Uint16(data[2:4])
	if len(data) < headerSize+int(length) {
		return nil, fmt.Errorf("%w: want %d body bytes, have %d", ErrShortPacket, length, len(data)-headerSize)
	}
	return &Packet{MsgID: msgID, Length: length, Data: data[headerSize : headerSize+int(length)]}, nil
}

// Decode unmarshals a packet body. An empty body leaves v untouched.
func (p *Packet) Decode(v interface{}) error {
	if len(p.Data) == 0 {
		return nil
	}
	return json.Unmarshal(p.Data, v)
}

type IdentifyRequest struct {
	UserID  string `json:"user_id"`
	GuildID string `json:"guild_id"`
	IsDM    bool   `json:"is_dm"`
}

type JoinChannelRequest struct {
	ChannelID string `json:"channel_id"`
}

type CreateCharacterRequest struct {
	Name      string       `json:"name"`
	Class     string       `json:"class"`
	Backstory string       `json:"backstory,omitempty"`
	Stats     models.Stats `json:"stats"`
}

// TextRequest carries the free-text argument of most commands: the action,
// the dice notation, the campaign name, the location or the encounter.
type TextRequest struct {
	Text string `json:"text"`
}

type Reply struct {
	Command uint16      `json:"command"`
	OK      bool        `json:"ok"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type NarrativeEvent struct {
	GameID    uint   `json:"game_id"`
	ChannelID string `json:"channel_id"`
	Round     int    `json:"round"`
	Narrative string `json:"narrative"`
}
