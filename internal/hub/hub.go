package hub

import (
	"context"
	"crypto/rand"
	"math/big"

	"go.uber.org/zap"

	"github.com/kkingfung/CavalryFight-sub004/internal/game"
	"github.com/kkingfung/CavalryFight-sub004/internal/room"
)

type HubMsg interface{ isHubMsg() }

// CreateRoom allocates a fresh join code and spins up the room actor.
type CreateRoom struct {
	Settings game.RoomSettings
	Reply    chan CreateReply
}

type CreateReply struct {
	Code string
	Room *room.Room
	Err  error
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

type RemoveRoom struct {
	Code string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Hub owns the join-code table. Like the rooms it manages, it is an actor:
// one loop, one writer.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	log    *zap.Logger
	opts   room.Options
	sink   room.ResultsSink
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger, opts room.Options, sink room.ResultsSink) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		log:    log,
		opts:   opts,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				msg.Reply <- h.create(msg.Settings)

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // may be nil

			case RemoveRoom:
				delete(h.rooms, msg.Code)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(settings game.RoomSettings) CreateReply {
	if err := settings.Validate(); err != nil {
		return CreateReply{Err: err}
	}

	var code string
	for {
		c, err := GenerateCode()
		if err != nil {
			return CreateReply{Err: err}
		}
		if h.rooms[c] == nil {
			code = c
			break
		}
		h.log.Debug("join code collision, regenerating")
	}

	rm := room.NewRoom(h.ctx, code, settings, h.log, h.opts, h.sink, func() {
		// Reap the code once the room loop has stopped.
		select {
		case h.inbox <- RemoveRoom{Code: code}:
		case <-h.ctx.Done():
		}
	})
	h.rooms[code] = rm
	h.log.Info("room created", zap.String("room", code), zap.String("mode", string(settings.Mode)))
	return CreateReply{Code: code, Room: rm}
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Inbox() <- room.Shutdown{}
	}
	clear(h.rooms)
	h.cancel()
}

// GenerateCode returns a 6-character join code.
func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}
