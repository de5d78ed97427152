package server

import (
	"log"
	"sync"

	"github.com/storyroom/storyroom/internal/database"
	"github.com/storyroom/storyroom/internal/stats"
	"github.com/storyroom/storyroom/internal/types"
)

type unloadReq struct {
	roomId  string
	deleted bool
}

type ChatServer struct {
	log            *log.Logger
	db             database.StoryRepository
	router         *TurnRouter
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *ClientMessage
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan unloadReq
	turnChan       chan types.Conversation
	rooms          map[string]*Room
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.StoryRepository, router *TurnRouter, sp stats.StatsProvider) (*ChatServer, error) {
	sp.RegisterMetric("ActiveClients")
	sp.RegisterMetric("ActiveRooms")

	return &ChatServer{
		log:            logger,
		db:             db,
		router:         router,
		stats:          sp,
		joinChan:       make(chan *ClientMessage),
		clients:        make(map[*Client]struct{}),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		unloadRoomChan: make(chan unloadReq),
		turnChan:       make(chan types.Conversation, 256),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		rooms:          make(map[string]*Room),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoin(joinMsg)
		case client := <-cs.RegisterChan:
			cs.log.Printf("adding connection from %q", client.userName)
			cs.addClient(client)
			cs.stats.Incr("ActiveClients")
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection from %q", client.userName)
			cs.removeClient(client)
			cs.stats.Decr("ActiveClients")
		case req := <-cs.unloadRoomChan:
			cs.handleUnloadRoom(req)
		case conv := <-cs.turnChan:
			cs.handleTurn(conv)
		case <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				cs.stopRoom(r, false)
			}

			close(cs.done)
			return
		}
	}
}

func (cs *ChatServer) handleJoin(joinMsg *ClientMessage) {
	if room, ok := cs.rooms[joinMsg.Join.RoomId]; ok {
		select {
		case room.joinChan <- joinMsg:
		default:
			cs.log.Printf("join channel full on room %q", room.id)
		}
		return
	}

	dbRoom, err := cs.db.GetRoom(joinMsg.Join.RoomId)
	if err != nil {
		joinMsg.client.queueMessage(ErrRoomNotFound(joinMsg.Id))
		return
	}

	room := &Room{
		id:            dbRoom.Id,
		cs:            cs,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		turnChan:      make(chan types.Conversation, 256),
		clients:       make(map[*Client]struct{}),
		log:           cs.log,
		exit:          make(chan exitReq),
	}

	cs.rooms[room.id] = room
	cs.stats.Incr("ActiveRooms")
	room.joinChan <- joinMsg

	go room.start()
}

// handleTurn routes an AI-authored turn to its room's goroutine. Turns
// for rooms with no live subscribers are dropped; they are already
// persisted and readable over the REST surface.
func (cs *ChatServer) handleTurn(conv types.Conversation) {
	room, ok := cs.rooms[conv.RoomId]
	if !ok {
		cs.log.Printf("dropping turn for unloaded room %q", conv.RoomId)
		return
	}

	select {
	case room.turnChan <- conv:
	default:
		cs.log.Printf("turn channel full on room %q", room.id)
	}
}

func (cs *ChatServer) handleUnloadRoom(req unloadReq) {
	r, ok := cs.rooms[req.roomId]
	if !ok {
		return
	}

	delete(cs.rooms, req.roomId)
	cs.stopRoom(r, req.deleted)
	cs.stats.Decr("ActiveRooms")
}

func (cs *ChatServer) stopRoom(r *Room, deleted bool) {
	done := make(chan bool)
	r.exit <- exitReq{deleted: deleted, done: done}
	<-done
}

// BroadcastTurn hands an AI-authored turn to the server loop. It never
// blocks the caller; the bridge read goroutine must not stall on a slow
// room.
func (cs *ChatServer) BroadcastTurn(conv types.Conversation) {
	select {
	case cs.turnChan <- conv:
	case <-cs.done:
	default:
		cs.log.Printf("turn broadcast channel full, dropping turn for room %q", conv.RoomId)
	}
}

// UnloadRoom evicts a loaded room, notifying its subscribers when the
// room was deleted. Called by the REST layer after a room delete.
func (cs *ChatServer) UnloadRoom(roomId string) {
	select {
	case cs.unloadRoomChan <- unloadReq{roomId: roomId, deleted: true}:
	case <-cs.done:
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.RegisterChan <- c
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	delete(cs.clients, c)
}

func (cs *ChatServer) Shutdown() {
	cs.log.Println("received shutdown signal")

	cs.clientsLock.Lock()
	for c := range cs.clients {
		close(c.stop)
	}
	cs.clientsLock.Unlock()

	close(cs.stop)

	<-cs.done
}
