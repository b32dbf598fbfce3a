package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/wfunc/roundtable/logger"
	"github.com/wfunc/roundtable/models"
	"github.com/wfunc/roundtable/network"
)

const help = `Commands:
  join <channel>                       switch channel
  create <name> <class> STR DEX CON INT WIS CHA
  action <text>                        queue an action
  roll [dice]                          roll dice, default 1d20
  stats | inventory | state
  start [campaign]                     DM: start a game
  round                                DM: force the round
  pause | resume | end                 DM: lifecycle
  location <text> | encounter <text>   DM: scene
  quit`

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, v interface{}) error {
	var data []byte
	if v != nil {
		var err error
		if data, err = json.Marshal(v); err != nil {
			return err
		}
	}
	packet, err := network.Frame(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

// parseLine turns an input line into a packet.
func parseLine(line string) (uint16, interface{}, error) {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	text := network.TextRequest{Text: rest}

	switch strings.ToLower(cmd) {
	case "join":
		return network.MsgTypeJoinChannel, network.JoinChannelRequest{ChannelID: rest}, nil
	case "leave":
		return network.MsgTypeLeaveChannel, nil, nil
	case "create":
		fields := strings.Fields(rest)
		if len(fields) != 2+len(models.StatNames) {
			return 0, nil, fmt.Errorf("usage: create <name> <class> STR DEX CON INT WIS CHA")
		}
		stats := models.Stats{}
		for i, name := range models.StatNames {
			v, err := strconv.Atoi(fields[2+i])
			if err != nil {
				return 0, nil, fmt.Errorf("%s must be a number", name)
			}
			stats[name] = v
		}
		return network.MsgTypeCreateCharacter, network.CreateCharacterRequest{Name: fields[0], Class: fields[1], Stats: stats}, nil
	case "action":
		return network.MsgTypeAction, text, nil
	case "roll":
		return network.MsgTypeRoll, text, nil
	case "stats":
		return network.MsgTypeStats, nil, nil
	case "inventory", "inv":
		return network.MsgTypeInventory, nil, nil
	case "state":
		return network.MsgTypeState, nil, nil
	case "start":
		return network.MsgTypeDMStart, text, nil
	case "round", "next":
		return network.MsgTypeForceRound, nil, nil
	case "pause":
		return network.MsgTypeDMPause, nil, nil
	case "resume":
		return network.MsgTypeDMResume, nil, nil
	case "end":
		return network.MsgTypeDMEnd, nil, nil
	case "location":
		return network.MsgTypeDMLocation, text, nil
	case "encounter":
		return network.MsgTypeDMEncounter, text, nil
	}
	return 0, nil, fmt.Errorf("unknown command %q, type 'help'", cmd)
}

func printPacket(p *network.Packet) {
	switch p.MsgID {
	case network.MsgTypeReply:
		var reply network.Reply
		if err := p.Decode(&reply); err == nil && reply.Message != "" {
			fmt.Println(reply.Message)
		}
	case network.MsgTypeNarrative:
		var ev network.NarrativeEvent
		if err := p.Decode(&ev); err == nil {
			if ev.Round > 0 {
				fmt.Printf("\n📖 **Round %d**\n%s\n\n", ev.Round, ev.Narrative)
			} else {
				fmt.Printf("\n📖 %s\n\n", ev.Narrative)
			}
		}
	default:
		fmt.Printf("<- (ID: %d) %s\n", p.MsgID, string(p.Data))
	}
}

func main() {
	addr := pflag.String("addr", "localhost:8080", "server address")
	user := pflag.String("user", "test_user_123", "platform user id")
	guild := pflag.String("guild", "test_guild_789", "guild id")
	channel := pflag.String("channel", "test_channel_456", "channel to join")
	dm := pflag.Bool("dm", false, "identify as the DM")
	pflag.Parse()

	logger.Init("info")
	defer logger.Sync()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	fmt.Printf("Connecting to %s\n", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				logger.Log.Infof("Read error: %v", err)
				return
			}
			p, err := network.ParseFrame(message)
			if err != nil {
				logger.Log.Warnf("Received invalid packet of size %d", len(message))
				continue
			}
			printPacket(p)
		}
	}()

	if err := send(c, network.MsgTypeIdentify, network.IdentifyRequest{UserID: *user, GuildID: *guild, IsDM: *dm}); err != nil {
		logger.Log.Fatalf("Write error: %v", err)
	}
	if err := send(c, network.MsgTypeJoinChannel, network.JoinChannelRequest{ChannelID: *channel}); err != nil {
		logger.Log.Fatalf("Write error: %v", err)
	}
	fmt.Println(help)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	heartbeat := time.NewTicker(20 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return
		case <-heartbeat.C:
			if err := send(c, network.MsgTypeHeartbeat, nil); err != nil {
				logger.Log.Errorf("Heartbeat failed: %v", err)
				return
			}
		case <-interrupt:
			fmt.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				logger.Log.Warnf("Write close error: %v", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "help":
				fmt.Println(help)
				continue
			case "quit", "exit":
				return
			}
			msgID, payload, err := parseLine(line)
			if err != nil {
				fmt.Println("❌", err)
				continue
			}
			if err := send(c, msgID, payload); err != nil {
				logger.Log.Errorf("Write error: %v", err)
				return
			}
		}
	}
}
