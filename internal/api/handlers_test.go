package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/storyroom/storyroom/internal/bridge"
	"github.com/storyroom/storyroom/internal/config"
	"github.com/storyroom/storyroom/internal/database"
	"github.com/storyroom/storyroom/internal/server"
	"github.com/storyroom/storyroom/internal/stats"
	"github.com/storyroom/storyroom/internal/testutil"
	"github.com/storyroom/storyroom/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type nopSender struct{}

func (nopSender) Send(bridge.TurnPayload) error { return nil }

func newTestApp(t *testing.T, db database.StoryRepository) *StoryRoomApp {
	logger := testutil.TestLogger(t)
	su := stats.NewPermissiveMockStatsUpdater()

	router := server.NewTurnRouter(db, nopSender{}, su, logger)
	cs, err := server.NewChatServer(logger, db, router, su)
	if err != nil {
		t.Fatalf("failed to create chat server: %v", err)
	}
	router.SetBroadcaster(cs)
	go cs.Run()
	t.Cleanup(cs.Shutdown)

	cfg, err := config.NewConfig("localhost:8000", "test-dsn", "ws://localhost:8765/ws", nil)
	if err != nil {
		t.Fatalf("failed to create config: %v", err)
	}

	app := NewStoryRoomApp(http.NewServeMux(), logger, cs, db, cfg)
	app.generateShortId = func() (string, error) {
		return "EoGKUXPHgz", nil
	}
	return app
}

func doRequest(t *testing.T, app *StoryRoomApp, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db := &database.MockStoryRepository{}
		defer db.AssertExpectations(t)
		db.On("Ping").Return(nil).Once()

		app := newTestApp(t, db)
		rec := doRequest(t, app, http.MethodGet, "/api/health", "")
		assert.Equal(t, http.StatusOK, rec.Code, "expected 200 OK")
	})

	t.Run("database down", func(t *testing.T) {
		db := &database.MockStoryRepository{}
		defer db.AssertExpectations(t)
		db.On("Ping").Return(sql.ErrConnDone).Once()

		app := newTestApp(t, db)
		rec := doRequest(t, app, http.MethodGet, "/api/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "expected 503 unavailable")
	})
}

func TestCreateRoom(t *testing.T) {
	db := &database.MockStoryRepository{}
	defer db.AssertExpectations(t)

	db.On("CreateRoom", mock.MatchedBy(func(p database.CreateRoomParams) bool {
		return p.Id == "EoGKUXPHgz" &&
			p.Name == "The Tavern" &&
			p.Worldview == "medieval fantasy" &&
			p.CreatorId == "u1"
	})).Return(database.Room{
		Id:        "EoGKUXPHgz",
		Name:      "The Tavern",
		Worldview: "medieval fantasy",
		Locations: []string{"bar"},
		CreatorId: "u1",
	}, nil).Once()

	// a new room always gets its two default characters
	db.On("CreateCharacter", mock.MatchedBy(func(p database.CreateCharacterParams) bool {
		return p.Type == "ai_admin" && p.Name == "AI Admin" && p.RoomId == "EoGKUXPHgz" && p.Id != ""
	})).Return(database.Character{}, nil).Once()
	db.On("CreateCharacter", mock.MatchedBy(func(p database.CreateCharacterParams) bool {
		return p.Type == "narrator" && p.Name == "Narrator" && p.RoomId == "EoGKUXPHgz" && p.Id != ""
	})).Return(database.Character{}, nil).Once()

	app := newTestApp(t, db)
	rec := doRequest(t, app, http.MethodPost, "/api/rooms",
		`{"name":"The Tavern","worldview":"medieval fantasy","locations":["bar"],"creator_id":"u1"}`)

	assert.Equal(t, http.StatusCreated, rec.Code, "expected 201 created")

	var room types.Room
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&room))
	assert.Equal(t, "EoGKUXPHgz", room.Id, "expected generated room id")
	assert.Equal(t, "The Tavern", room.Name, "expected room name")
}

func TestCreateRoomValidation(t *testing.T) {
	tcases := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{{{`},
		{name: "missing name", body: `{"worldview":"w","creator_id":"u1"}`},
		{name: "missing worldview", body: `{"name":"n","creator_id":"u1"}`},
		{name: "missing creator", body: `{"name":"n","worldview":"w"}`},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockStoryRepository{}
			defer db.AssertExpectations(t)

			app := newTestApp(t, db)
			rec := doRequest(t, app, http.MethodPost, "/api/rooms", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "expected 400 bad request")
			db.AssertNotCalled(t, "CreateRoom", mock.Anything)
		})
	}
}

func TestGetRoom(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db := &database.MockStoryRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoom", "r1").Return(database.Room{Id: "r1", Name: "The Tavern"}, nil).Once()

		app := newTestApp(t, db)
		rec := doRequest(t, app, http.MethodGet, "/api/rooms/r1", "")
		assert.Equal(t, http.StatusOK, rec.Code, "expected 200 OK")

		var room types.Room
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&room))
		assert.Equal(t, "r1", room.Id, "expected room id")
	})

	t.Run("not found", func(t *testing.T) {
		db := &database.MockStoryRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoom", "missing").Return(database.Room{}, sql.ErrNoRows).Once()

		app := newTestApp(t, db)
		rec := doRequest(t, app, http.MethodGet, "/api/rooms/missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code, "expected 404 not found")
	})
}

func TestListRooms(t *testing.T) {
	db := &database.MockStoryRepository{}
	defer db.AssertExpectations(t)
	db.On("ListRooms").Return([]database.Room{
		{Id: "r1", Name: "one"},
		{Id: "r2", Name: "two"},
	}, nil).Once()

	app := newTestApp(t, db)
	rec := doRequest(t, app, http.MethodGet, "/api/rooms", "")
	assert.Equal(t, http.StatusOK, rec.Code, "expected 200 OK")

	var rooms []types.Room
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&rooms))
	assert.Len(t, rooms, 2, "expected both rooms")
}

func TestDeleteRoomCascades(t *testing.T) {
	db := &database.MockStoryRepository{}
	defer db.AssertExpectations(t)

	var order []string
	db.On("GetRoom", "r1").Return(database.Room{Id: "r1"}, nil).Once()
	db.On("DeleteConversationsByRoom", "r1").Run(func(args mock.Arguments) {
		order = append(order, "conversations")
	}).Return(nil).Once()
	db.On("DeleteCharactersByRoom", "r1").Run(func(args mock.Arguments) {
		order = append(order, "characters")
	}).Return(nil).Once()
	db.On("DeleteRoom", "r1").Run(func(args mock.Arguments) {
		order = append(order, "room")
	}).Return(nil).Once()

	app := newTestApp(t, db)
	rec := doRequest(t, app, http.MethodDelete, "/api/rooms/r1", "")

	assert.Equal(t, http.StatusNoContent, rec.Code, "expected 204 no content")
	// turns reference characters and characters reference the room
	assert.Equal(t, []string{"conversations", "characters", "room"}, order,
		"expected top-down delete order")
}

func TestDeleteRoomNotFound(t *testing.T) {
	db := &database.MockStoryRepository{}
	defer db.AssertExpectations(t)
	db.On("GetRoom", "missing").Return(database.Room{}, sql.ErrNoRows).Once()

	app := newTestApp(t, db)
	rec := doRequest(t, app, http.MethodDelete, "/api/rooms/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "expected 404 not found")
	db.AssertNotCalled(t, "DeleteRoom", mock.Anything)
}

func TestCreateCharacter(t *testing.T) {
	db := &database.MockStoryRepository{}
	defer db.AssertExpectations(t)

	db.On("GetRoom", "r1").Return(database.Room{Id: "r1"}, nil).Once()
	db.On("CreateCharacter", mock.MatchedBy(func(p database.CreateCharacterParams) bool {
		return p.Name == "Hero" && p.RoomId == "r1" && p.Type == "user" && p.Id != ""
	})).Return(database.Character{Id: "ch1", Name: "Hero", RoomId: "r1", Type: "user"}, nil).Once()

	app := newTestApp(t, db)
	rec := doRequest(t, app, http.MethodPost, "/api/characters",
		`{"name":"Hero","description":"a brave adventurer","room_id":"r1"}`)

	assert.Equal(t, http.StatusCreated, rec.Code, "expected 201 created")

	var char types.Character
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&char))
	assert.Equal(t, "ch1", char.Id, "expected character id")
	assert.Equal(t, "user", char.Type, "expected default type")
}

func TestCreateCharacterRoomMissing(t *testing.T) {
	db := &database.MockStoryRepository{}
	defer db.AssertExpectations(t)
	db.On("GetRoom", "missing").Return(database.Room{}, sql.ErrNoRows).Once()

	app := newTestApp(t, db)
	rec := doRequest(t, app, http.MethodPost, "/api/characters",
		`{"name":"Hero","description":"d","room_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code, "expected 404 not found")
	db.AssertNotCalled(t, "CreateCharacter", mock.Anything)
}

func TestDeleteCharacter(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db := &database.MockStoryRepository{}
		defer db.AssertExpectations(t)
		db.On("DeleteCharacter", "ch1").Return(nil).Once()

		app := newTestApp(t, db)
		rec := doRequest(t, app, http.MethodDelete, "/api/characters/ch1", "")
		assert.Equal(t, http.StatusNoContent, rec.Code, "expected 204 no content")
	})

	t.Run("character has turns", func(t *testing.T) {
		db := &database.MockStoryRepository{}
		defer db.AssertExpectations(t)
		db.On("DeleteCharacter", "ch1").Return(database.ErrCharacterInConversation).Once()

		app := newTestApp(t, db)
		rec := doRequest(t, app, http.MethodDelete, "/api/characters/ch1", "")
		assert.Equal(t, http.StatusConflict, rec.Code, "expected 409 conflict")

		var apiErr ApiError
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
		assert.Contains(t, apiErr.Message, "conversation turns", "expected reason in response")
	})

	t.Run("not found", func(t *testing.T) {
		db := &database.MockStoryRepository{}
		defer db.AssertExpectations(t)
		db.On("DeleteCharacter", "missing").Return(sql.ErrNoRows).Once()

		app := newTestApp(t, db)
		rec := doRequest(t, app, http.MethodDelete, "/api/characters/missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code, "expected 404 not found")
	})
}

func TestCreateConversation(t *testing.T) {
	db := &database.MockStoryRepository{}
	defer db.AssertExpectations(t)

	db.On("CreateConversation", mock.MatchedBy(func(p database.CreateConversationParams) bool {
		return p.RoomId == "r1" && p.CharacterId == "ch1" && p.Content == "hello" && p.Id != ""
	})).Return(database.Conversation{
		Id:          "c1",
		RoomId:      "r1",
		CharacterId: "ch1",
		Content:     "hello",
		NextSpeaker: "ai_admin",
	}, nil).Once()
	db.On("GetCharacterName", "ch1").Return("Hero", nil).Once()

	app := newTestApp(t, db)
	rec := doRequest(t, app, http.MethodPost, "/api/conversations",
		`{"room_id":"r1","character_id":"ch1","content":"hello","next_speaker":"ai_admin"}`)

	assert.Equal(t, http.StatusCreated, rec.Code, "expected 201 created")

	var conv types.Conversation
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&conv))
	assert.Equal(t, "c1", conv.Id, "expected conversation id")
	assert.Equal(t, "Hero", conv.CharacterName, "expected resolved character name")
}

func TestCreateConversationValidation(t *testing.T) {
	db := &database.MockStoryRepository{}
	defer db.AssertExpectations(t)

	app := newTestApp(t, db)
	rec := doRequest(t, app, http.MethodPost, "/api/conversations",
		`{"room_id":"r1","character_id":"ch1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "expected 400 bad request")
	db.AssertNotCalled(t, "CreateConversation", mock.Anything)
}

func TestListConversations(t *testing.T) {
	db := &database.MockStoryRepository{}
	defer db.AssertExpectations(t)
	db.On("ListConversationsByRoom", "r1").Return([]database.Conversation{
		{Id: "c1", RoomId: "r1"},
		{Id: "c2", RoomId: "r1"},
	}, nil).Once()

	app := newTestApp(t, db)
	rec := doRequest(t, app, http.MethodGet, "/api/conversations?room_id=r1", "")
	assert.Equal(t, http.StatusOK, rec.Code, "expected 200 OK")

	var convs []types.Conversation
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&convs))
	assert.Len(t, convs, 2, "expected both turns")

	rec = doRequest(t, app, http.MethodGet, "/api/conversations", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "expected 400 without room_id")
}

func TestCreateUser(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db := &database.MockStoryRepository{}
		defer db.AssertExpectations(t)

		db.On("CreateUser", mock.MatchedBy(func(p database.CreateUserParams) bool {
			// the password must be hashed before it reaches the gateway
			return p.Username == "alice" && p.Id != "" &&
				p.PasswordHash != "" && p.PasswordHash != "s3cret"
		})).Return(database.User{Id: "u1", Username: "alice", PasswordHash: "$2a$10$hash"}, nil).Once()

		app := newTestApp(t, db)
		rec := doRequest(t, app, http.MethodPost, "/api/users",
			`{"username":"alice","password":"s3cret"}`)

		assert.Equal(t, http.StatusCreated, rec.Code, "expected 201 created")
		assert.NotContains(t, rec.Body.String(), "hash", "expected password material to be omitted")

		var user types.User
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
		assert.Equal(t, "u1", user.Id, "expected user id")
		assert.Equal(t, "alice", user.Username, "expected username")
	})

	t.Run("duplicate username", func(t *testing.T) {
		db := &database.MockStoryRepository{}
		defer db.AssertExpectations(t)
		db.On("CreateUser", mock.Anything).Return(database.User{}, database.ErrUsernameTaken).Once()

		app := newTestApp(t, db)
		rec := doRequest(t, app, http.MethodPost, "/api/users",
			`{"username":"alice","password":"s3cret"}`)
		assert.Equal(t, http.StatusConflict, rec.Code, "expected 409 conflict")
	})

	t.Run("missing fields", func(t *testing.T) {
		db := &database.MockStoryRepository{}
		defer db.AssertExpectations(t)

		app := newTestApp(t, db)
		rec := doRequest(t, app, http.MethodPost, "/api/users", `{"username":"alice"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "expected 400 bad request")
		db.AssertNotCalled(t, "CreateUser", mock.Anything)
	})
}

func TestServeWsRequiresUserId(t *testing.T) {
	db := &database.MockStoryRepository{}
	defer db.AssertExpectations(t)

	app := newTestApp(t, db)
	rec := doRequest(t, app, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "expected 400 without user_id")
}
