package server

import (
	"log"
	"sync"
	"time"

	"github.com/storyroom/storyroom/internal/types"
)

const idleRoomTimeout = time.Minute * 5

type exitReq struct {
	deleted bool
	done    chan bool
}

type Room struct {
	id            string
	cs            *ChatServer
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	turnChan      chan types.Conversation
	clients       map[*Client]struct{}
	clientLock    sync.RWMutex
	log           *log.Logger
	// killTimer unloads the room once it has been empty for a while
	killTimer *time.Timer
	// exit is used to signal the room to shut down
	exit chan exitReq
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.id)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			if msg.Publish != nil {
				r.handlePublish(msg)
			}
		case conv := <-r.turnChan:
			r.broadcast(&ServerMessage{
				BaseMessage: BaseMessage{Timestamp: Now()},
				Turn:        &conv,
			})
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleJoin(join *ClientMessage) {
	// stop the kill timer since we have a new client
	r.killTimer.Stop()

	c := join.client
	r.addClient(c)

	room, err := r.cs.db.GetRoom(r.id)
	if err != nil {
		r.log.Println("GetRoom:", err)
		c.queueMessage(ErrInternalError(join.Id))
		return
	}

	c.queueMessage(NoErrOK(join.Id, types.Room{
		Id:        room.Id,
		Name:      room.Name,
		Worldview: room.Worldview,
		Locations: room.Locations,
		CreatorId: room.CreatorId,
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
	}))

	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		System:      NewSystemNotice(r.id, join.Join.UserId, join.Join.UserName+" joined the room"),
	})
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	client := leaveMsg.client
	r.removeClient(client)

	if leaveMsg.Id > 0 {
		client.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}

	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		System:      NewSystemNotice(r.id, leaveMsg.Leave.UserId, leaveMsg.Leave.UserName+" left the room"),
		SkipClient:  client,
	})
}

// handlePublish persists a user-submitted turn through the turn router
// and fans it out to everyone in the room, the author included.
func (r *Room) handlePublish(msg *ClientMessage) {
	conv, err := r.cs.router.SubmitTurn(TurnParams{
		RoomId:      r.id,
		CharacterId: msg.Publish.CharacterId,
		Content:     msg.Publish.Content,
		Location:    msg.Publish.Location,
		Status:      msg.Publish.Status,
		NextSpeaker: msg.Publish.NextSpeaker,
	})
	if err != nil {
		r.log.Println("error saving turn:", err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	msg.client.queueMessage(NoErrAccepted(msg.Id))

	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Id:        msg.Id,
			Timestamp: msg.Timestamp,
		},
		Turn: &conv,
	})
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.id)
	select {
	case r.cs.unloadRoomChan <- unloadReq{roomId: r.id}:
	default:
		// server loop busy, try again next cycle
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.id)
	if e.deleted {
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			System:      NewSystemNotice(r.id, "", "room has been deleted"),
		})
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.id)
	}
	r.clientLock.Unlock()

	// notify the chat server the room is done cleaning up
	if e.done != nil {
		e.done <- true
	}
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		r.log.Printf("client %q not found in room %q", c.userName, r.id)
		return
	}

	delete(r.clients, c)
	c.delRoom(r.id)

	// last one out starts the kill timer
	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.id)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}
