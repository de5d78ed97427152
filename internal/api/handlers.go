package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/storyroom/storyroom/internal/database"
	"github.com/storyroom/storyroom/internal/server"
	"github.com/storyroom/storyroom/internal/types"
	"golang.org/x/crypto/bcrypt"
)

// Every new room gets these two characters, in addition to anything the
// creator sets up later.
var defaultCharacters = []struct {
	name        string
	description string
	charType    string
}{
	{
		name:        "AI Admin",
		description: "The room's AI moderator, responsible for analyzing and advancing the story",
		charType:    "ai_admin",
	},
	{
		name:        "Narrator",
		description: "Provides scene description and helps move the plot forward",
		charType:    "narrator",
	},
}

type CreateRoomRequest struct {
	Name      string   `json:"name"`
	Worldview string   `json:"worldview"`
	Locations []string `json:"locations"`
	CreatorId string   `json:"creator_id"`
}

type CreateCharacterRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	RoomId          string `json:"room_id"`
	CurrentLocation string `json:"current_location"`
	Status          string `json:"status"`
	Type            string `json:"type"`
}

type CreateConversationRequest struct {
	RoomId          string `json:"room_id"`
	CharacterId     string `json:"character_id"`
	Content         string `json:"content"`
	CurrentLocation string `json:"current_location"`
	Status          string `json:"status"`
	NextSpeaker     string `json:"next_speaker"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *StoryRoomApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func roomFromDb(dbRoom database.Room) types.Room {
	return types.Room{
		Id:        dbRoom.Id,
		Name:      dbRoom.Name,
		Worldview: dbRoom.Worldview,
		Locations: dbRoom.Locations,
		CreatorId: dbRoom.CreatorId,
		CreatedAt: dbRoom.CreatedAt,
		UpdatedAt: dbRoom.UpdatedAt,
	}
}

func characterFromDb(dbChar database.Character) types.Character {
	return types.Character{
		Id:              dbChar.Id,
		Name:            dbChar.Name,
		Description:     dbChar.Description,
		RoomId:          dbChar.RoomId,
		CurrentLocation: dbChar.CurrentLocation,
		Status:          dbChar.Status,
		Type:            dbChar.Type,
		CreatedAt:       dbChar.CreatedAt,
		UpdatedAt:       dbChar.UpdatedAt,
	}
}

func conversationFromDb(dbConv database.Conversation) types.Conversation {
	return types.Conversation{
		Id:              dbConv.Id,
		RoomId:          dbConv.RoomId,
		CharacterId:     dbConv.CharacterId,
		Content:         dbConv.Content,
		CurrentLocation: dbConv.CurrentLocation,
		Status:          dbConv.Status,
		NextSpeaker:     dbConv.NextSpeaker,
		CreatedAt:       dbConv.CreatedAt,
		UpdatedAt:       dbConv.UpdatedAt,
	}
}

func (s *StoryRoomApp) health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		s.writeJson(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *StoryRoomApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" || req.Worldview == "" || req.CreatorId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newRoom, err := s.db.CreateRoom(database.CreateRoomParams{
		Id:        sid,
		Name:      req.Name,
		Worldview: req.Worldview,
		Locations: req.Locations,
		CreatorId: req.CreatorId,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	for _, dc := range defaultCharacters {
		if _, err := s.db.CreateCharacter(database.CreateCharacterParams{
			Id:          database.NewId(),
			Name:        dc.name,
			Description: dc.description,
			RoomId:      newRoom.Id,
			Type:        dc.charType,
		}); err != nil {
			s.log.Printf("create default character %q: %v", dc.charType, err)
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	s.writeJson(w, http.StatusCreated, roomFromDb(newRoom))
}

func (s *StoryRoomApp) listRooms(w http.ResponseWriter, r *http.Request) {
	dbRooms, err := s.db.ListRooms()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms := make([]types.Room, 0, len(dbRooms))
	for _, dbRoom := range dbRooms {
		rooms = append(rooms, roomFromDb(dbRoom))
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *StoryRoomApp) getRoom(w http.ResponseWriter, r *http.Request) {
	dbRoom, err := s.db.GetRoom(r.PathValue("id"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, roomFromDb(dbRoom))
}

func (s *StoryRoomApp) updateRoom(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	dbRoom, err := s.db.GetRoom(id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbRoom.Name = req.Name
	dbRoom.Worldview = req.Worldview
	dbRoom.Locations = req.Locations

	if err := s.db.UpdateRoom(dbRoom); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, roomFromDb(dbRoom))
}

// deleteRoom removes a room and everything in it. Turns reference
// characters and characters reference the room, so the delete runs
// top-down: conversations, then characters, then the room itself.
func (s *StoryRoomApp) deleteRoom(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := s.db.GetRoom(id); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteConversationsByRoom(id); err != nil {
		s.log.Println("delete conversations:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteCharactersByRoom(id); err != nil {
		s.log.Println("delete characters:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteRoom(id); err != nil {
		s.log.Println("delete room:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.UnloadRoom(id)

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *StoryRoomApp) createCharacter(w http.ResponseWriter, r *http.Request) {
	var req CreateCharacterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" || req.Description == "" || req.RoomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetRoom(req.RoomId); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	charType := req.Type
	if charType == "" {
		charType = "user"
	}

	newChar, err := s.db.CreateCharacter(database.CreateCharacterParams{
		Id:              database.NewId(),
		Name:            req.Name,
		Description:     req.Description,
		RoomId:          req.RoomId,
		CurrentLocation: req.CurrentLocation,
		Status:          req.Status,
		Type:            charType,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, characterFromDb(newChar))
}

func (s *StoryRoomApp) listCharacters(w http.ResponseWriter, r *http.Request) {
	roomId := r.URL.Query().Get("room_id")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbChars, err := s.db.ListCharactersByRoom(roomId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	chars := make([]types.Character, 0, len(dbChars))
	for _, dbChar := range dbChars {
		chars = append(chars, characterFromDb(dbChar))
	}

	s.writeJson(w, http.StatusOK, chars)
}

func (s *StoryRoomApp) getCharacter(w http.ResponseWriter, r *http.Request) {
	dbChar, err := s.db.GetCharacter(r.PathValue("id"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, characterFromDb(dbChar))
}

func (s *StoryRoomApp) updateCharacter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	dbChar, err := s.db.GetCharacter(id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateCharacterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbChar.Name = req.Name
	dbChar.Description = req.Description
	dbChar.CurrentLocation = req.CurrentLocation
	dbChar.Status = req.Status
	if req.Type != "" {
		dbChar.Type = req.Type
	}

	if err := s.db.UpdateCharacter(dbChar); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, characterFromDb(dbChar))
}

func (s *StoryRoomApp) deleteCharacter(w http.ResponseWriter, r *http.Request) {
	err := s.db.DeleteCharacter(r.PathValue("id"))
	if err != nil {
		var errResp *ApiError
		switch {
		case errors.Is(err, database.ErrCharacterInConversation):
			errResp = NewConflictError("character has authored conversation turns")
		case errors.Is(err, sql.ErrNoRows):
			errResp = NewNotFoundError()
		default:
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

// createConversation appends a turn over REST. Unlike the chat path, it
// never hands the turn to the AI bridge.
func (s *StoryRoomApp) createConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.RoomId == "" || req.CharacterId == "" || req.Content == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newConv, err := s.db.CreateConversation(database.CreateConversationParams{
		Id:              database.NewId(),
		RoomId:          req.RoomId,
		CharacterId:     req.CharacterId,
		Content:         req.Content,
		CurrentLocation: req.CurrentLocation,
		Status:          req.Status,
		NextSpeaker:     req.NextSpeaker,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv := conversationFromDb(newConv)
	name, err := s.db.GetCharacterName(conv.CharacterId)
	if err != nil {
		s.log.Printf("failed to resolve name for character %q: %v", conv.CharacterId, err)
	}
	conv.CharacterName = name

	s.writeJson(w, http.StatusCreated, conv)
}

func (s *StoryRoomApp) listConversations(w http.ResponseWriter, r *http.Request) {
	roomId := r.URL.Query().Get("room_id")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbConvs, err := s.db.ListConversationsByRoom(roomId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	convs := make([]types.Conversation, 0, len(dbConvs))
	for _, dbConv := range dbConvs {
		convs = append(convs, conversationFromDb(dbConv))
	}

	s.writeJson(w, http.StatusOK, convs)
}

func (s *StoryRoomApp) getConversation(w http.ResponseWriter, r *http.Request) {
	dbConv, err := s.db.GetConversation(r.PathValue("id"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, conversationFromDb(dbConv))
}

func (s *StoryRoomApp) createUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newUser, err := s.db.CreateUser(database.CreateUserParams{
		Id:           database.NewId(),
		Username:     req.Username,
		PasswordHash: pwdHash,
	})
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrUsernameTaken) {
			errResp = NewConflictError("username already taken")
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.User{
		Id:        newUser.Id,
		Username:  newUser.Username,
		CreatedAt: newUser.CreatedAt,
		UpdatedAt: newUser.UpdatedAt,
	})
}

func (s *StoryRoomApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId := r.URL.Query().Get("user_id")
	userName := r.URL.Query().Get("user_name")
	if userId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if userName == "" {
		userName = userId
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(userId, userName, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}
