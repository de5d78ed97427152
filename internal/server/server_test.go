package server

import (
	"database/sql"
	"testing"
	"time"

	"github.com/storyroom/storyroom/internal/database"
	"github.com/storyroom/storyroom/internal/stats"
	"github.com/storyroom/storyroom/internal/testutil"
	"github.com/storyroom/storyroom/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestChatServer(t *testing.T, db database.StoryRepository) *ChatServer {
	logger := testutil.TestLogger(t)
	su := stats.NewPermissiveMockStatsUpdater()

	router := NewTurnRouter(db, &fakeSender{}, su, logger)
	cs, err := NewChatServer(logger, db, router, su)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	router.SetBroadcaster(cs)

	return cs
}

func newTestClient(userId, userName string, cs *ChatServer, t *testing.T) *Client {
	return NewClient(userId, userName, nil, cs, testutil.TestLogger(t))
}

func recvMessage(t *testing.T, c *Client) *ServerMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message to client")
		return nil
	}
}

func TestNewChatServer(t *testing.T) {
	db := &database.MockStoryRepository{}
	defer db.AssertExpectations(t)

	cs := newTestChatServer(t, db)
	assert.NotNil(t, cs, "expected ChatServer to be non-nil")
	assert.NotNil(t, cs.joinChan, "expected joinChan to be initialized")
	assert.NotNil(t, cs.unloadRoomChan, "expected unloadRoomChan to be initialized")
	assert.NotNil(t, cs.turnChan, "expected turnChan to be initialized")
	assert.NotNil(t, cs.stop, "expected stop channel to be initialized")
	assert.NotNil(t, cs.clients, "expected clients map to be initialized")
	assert.NotNil(t, cs.rooms, "expected rooms map to be initialized")
}

func TestJoinLoadsRoomAndNotifies(t *testing.T) {
	db := &database.MockStoryRepository{}
	room := database.Room{
		Id:        "r1",
		Name:      "The Tavern",
		Worldview: "medieval fantasy",
		Locations: []string{"bar", "cellar"},
		CreatorId: "u1",
	}
	db.On("GetRoom", "r1").Return(room, nil)

	cs := newTestChatServer(t, db)
	go cs.Run()
	defer cs.Shutdown()

	client := newTestClient("u1", "alice", cs, t)
	cs.joinChan <- &ClientMessage{
		BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
		Join:        &Join{RoomId: "r1", UserId: "u1", UserName: "alice"},
		client:      client,
	}

	// first the join ack with room info, then the broadcast notice
	ack := recvMessage(t, client)
	assert.NotNil(t, ack.Response, "expected a response message")
	assert.Equal(t, 200, ack.Response.ResponseCode, "expected OK response")
	roomInfo, ok := ack.Response.Data.(types.Room)
	assert.True(t, ok, "expected room info in response data")
	assert.Equal(t, "The Tavern", roomInfo.Name, "expected room name to match")

	notice := recvMessage(t, client)
	assert.NotNil(t, notice.System, "expected a system notice")
	assert.Equal(t, "system", notice.System.Type, "expected system type")
	assert.Equal(t, "alice joined the room", notice.System.Message, "expected join message")
	assert.Equal(t, "r1", notice.System.RoomId, "expected room id on notice")
	assert.Equal(t, "u1", notice.System.UserId, "expected user id on notice")

	assert.NotNil(t, client.getRoom("r1"), "expected client to track the joined room")
}

func TestJoinUnknownRoom(t *testing.T) {
	db := &database.MockStoryRepository{}
	db.On("GetRoom", "missing").Return(database.Room{}, sql.ErrNoRows)

	cs := newTestChatServer(t, db)
	go cs.Run()
	defer cs.Shutdown()

	client := newTestClient("u1", "alice", cs, t)
	cs.joinChan <- &ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		Join:        &Join{RoomId: "missing", UserId: "u1", UserName: "alice"},
		client:      client,
	}

	msg := recvMessage(t, client)
	assert.NotNil(t, msg.Response, "expected a response message")
	assert.Equal(t, 404, msg.Response.ResponseCode, "expected room not found")
	assert.Nil(t, client.getRoom("missing"), "expected client not to track the room")
}

func TestLeaveNotifiesRemainingClients(t *testing.T) {
	db := &database.MockStoryRepository{}
	db.On("GetRoom", "r1").Return(database.Room{Id: "r1", Name: "The Tavern"}, nil)

	cs := newTestChatServer(t, db)
	go cs.Run()
	defer cs.Shutdown()

	alice := newTestClient("u1", "alice", cs, t)
	bob := newTestClient("u2", "bob", cs, t)

	for _, c := range []*Client{alice, bob} {
		cs.joinChan <- &ClientMessage{
			BaseMessage: BaseMessage{Id: 1},
			Join:        &Join{RoomId: "r1", UserId: c.userId, UserName: c.userName},
			client:      c,
		}
		recvMessage(t, c) // join ack
	}

	// drain join notices
	recvMessage(t, alice) // alice joined
	recvMessage(t, alice) // bob joined
	recvMessage(t, bob) // bob joined

	room := alice.getRoom("r1")
	assert.NotNil(t, room, "expected alice to track the room")

	room.leaveChan <- &ClientMessage{
		BaseMessage: BaseMessage{Id: 2},
		Leave:       &Leave{RoomId: "r1", UserId: "u1", UserName: "alice"},
		client:      alice,
	}

	ack := recvMessage(t, alice)
	assert.NotNil(t, ack.Response, "expected leave ack for alice")
	assert.Equal(t, 200, ack.Response.ResponseCode, "expected OK response")

	notice := recvMessage(t, bob)
	assert.NotNil(t, notice.System, "expected system notice for bob")
	assert.Equal(t, "alice left the room", notice.System.Message, "expected leave message")

	assert.Nil(t, alice.getRoom("r1"), "expected alice to stop tracking the room")
}

func TestPublishPersistsAndBroadcasts(t *testing.T) {
	db := &database.MockStoryRepository{}
	db.On("GetRoom", "r1").Return(database.Room{Id: "r1", Name: "The Tavern"}, nil)
	db.On("CreateConversation", mock.MatchedBy(func(p database.CreateConversationParams) bool {
		return p.RoomId == "r1" && p.CharacterId == "ch1" && p.Content == "hello"
	})).Return(database.Conversation{
		Id:          "c1",
		RoomId:      "r1",
		CharacterId: "ch1",
		Content:     "hello",
	}, nil).Once()
	db.On("GetCharacterName", "ch1").Return("Alice's Hero", nil).Once()

	cs := newTestChatServer(t, db)
	go cs.Run()
	defer cs.Shutdown()

	alice := newTestClient("u1", "alice", cs, t)
	bob := newTestClient("u2", "bob", cs, t)

	for _, c := range []*Client{alice, bob} {
		cs.joinChan <- &ClientMessage{
			BaseMessage: BaseMessage{Id: 1},
			Join:        &Join{RoomId: "r1", UserId: c.userId, UserName: c.userName},
			client:      c,
		}
		recvMessage(t, c)
	}
	recvMessage(t, alice)
	recvMessage(t, alice)
	recvMessage(t, bob)

	room := alice.getRoom("r1")
	room.clientMsgChan <- &ClientMessage{
		BaseMessage: BaseMessage{Id: 2, Timestamp: Now()},
		Publish:     &Publish{RoomId: "r1", CharacterId: "ch1", Content: "hello"},
		client:      alice,
	}

	ack := recvMessage(t, alice)
	assert.NotNil(t, ack.Response, "expected publish ack")
	assert.Equal(t, 202, ack.Response.ResponseCode, "expected accepted response")

	for _, c := range []*Client{alice, bob} {
		turn := recvMessage(t, c)
		assert.NotNil(t, turn.Turn, "expected turn broadcast to %s", c.userName)
		assert.Equal(t, "c1", turn.Turn.Id, "expected persisted turn id")
		assert.Equal(t, "Alice's Hero", turn.Turn.CharacterName, "expected resolved character name")
	}
}

func TestBroadcastTurnToLoadedRoom(t *testing.T) {
	db := &database.MockStoryRepository{}
	db.On("GetRoom", "r1").Return(database.Room{Id: "r1", Name: "The Tavern"}, nil)

	cs := newTestChatServer(t, db)
	go cs.Run()
	defer cs.Shutdown()

	client := newTestClient("u1", "alice", cs, t)
	cs.joinChan <- &ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		Join:        &Join{RoomId: "r1", UserId: "u1", UserName: "alice"},
		client:      client,
	}
	recvMessage(t, client)
	recvMessage(t, client)

	cs.BroadcastTurn(types.Conversation{
		Id:            "c9",
		RoomId:        "r1",
		CharacterId:   "ai_c1",
		CharacterName: "AI Admin",
		Content:       "the plot thickens",
	})

	turn := recvMessage(t, client)
	assert.NotNil(t, turn.Turn, "expected turn message")
	assert.Equal(t, "c9", turn.Turn.Id, "expected broadcast turn id")
	assert.Equal(t, "the plot thickens", turn.Turn.Content, "expected broadcast content")
}

func TestBroadcastTurnUnloadedRoomIsDropped(t *testing.T) {
	db := &database.MockStoryRepository{}

	cs := newTestChatServer(t, db)
	go cs.Run()
	defer cs.Shutdown()

	// no room loaded for r1, the turn is silently discarded
	cs.BroadcastTurn(types.Conversation{Id: "c1", RoomId: "r1"})

	assert.Eventually(t, func() bool {
		return len(cs.turnChan) == 0
	}, time.Second, 10*time.Millisecond, "expected the turn to be consumed and dropped")
}

func TestUnloadRoomNotifiesOnDelete(t *testing.T) {
	db := &database.MockStoryRepository{}
	db.On("GetRoom", "r1").Return(database.Room{Id: "r1", Name: "The Tavern"}, nil)

	cs := newTestChatServer(t, db)
	go cs.Run()
	defer cs.Shutdown()

	client := newTestClient("u1", "alice", cs, t)
	cs.joinChan <- &ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		Join:        &Join{RoomId: "r1", UserId: "u1", UserName: "alice"},
		client:      client,
	}
	recvMessage(t, client)
	recvMessage(t, client)

	cs.UnloadRoom("r1")

	notice := recvMessage(t, client)
	assert.NotNil(t, notice.System, "expected a system notice")
	assert.Equal(t, "room has been deleted", notice.System.Message, "expected deletion message")
	assert.Nil(t, client.getRoom("r1"), "expected client to stop tracking the room")
}

func TestShutdownStopsActiveRooms(t *testing.T) {
	db := &database.MockStoryRepository{}
	db.On("GetRoom", "r1").Return(database.Room{Id: "r1", Name: "The Tavern"}, nil)

	cs := newTestChatServer(t, db)
	go cs.Run()

	client := newTestClient("u1", "alice", cs, t)
	cs.joinChan <- &ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		Join:        &Join{RoomId: "r1", UserId: "u1", UserName: "alice"},
		client:      client,
	}
	recvMessage(t, client)

	done := make(chan struct{})
	go func() {
		cs.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for shutdown")
	}
}

func TestRoomTimeoutWithFullUnloadChannel(t *testing.T) {
	db := &database.MockStoryRepository{}

	cs := newTestChatServer(t, db)
	room := &Room{
		id:        "r1",
		cs:        cs,
		log:       testutil.TestLogger(t),
		killTimer: time.NewTimer(0),
	}
	<-room.killTimer.C

	// server loop isn't draining, the room must not block
	cs.unloadRoomChan = make(chan unloadReq)

	room.handleRoomTimeout()
	assert.True(t, room.killTimer.Stop(), "expected kill timer to be rearmed after failed unload request")
}
