package server

import (
	"net/http"
	"time"

	"github.com/storyroom/storyroom/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Publish *Publish `json:"publish,omitempty"`
	Join    *Join    `json:"join,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`
	client  *Client  `json:"-"`
}

// Publish submits one conversation turn to a room.
type Publish struct {
	RoomId      string `json:"room_id"`
	CharacterId string `json:"character_id"`
	Content     string `json:"content"`
	Location    string `json:"location"`
	Status      string `json:"status"`
	NextSpeaker string `json:"next_speaker"`
}

type Join struct {
	RoomId   string `json:"room_id"`
	UserId   string `json:"user_id"`
	UserName string `json:"user_name"`
}

type Leave struct {
	RoomId   string `json:"room_id"`
	UserId   string `json:"user_id"`
	UserName string `json:"user_name"`
}

type ServerMessage struct {
	BaseMessage
	Response   *Response           `json:"response,omitempty"`
	Turn       *types.Conversation `json:"turn,omitempty"`
	System     *SystemNotice       `json:"system,omitempty"`
	SkipClient *Client             `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

// SystemNotice is an ephemeral room event (join/leave, room deletion).
// It is broadcast to subscribers but never persisted.
type SystemNotice struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	RoomId    string `json:"roomId"`
	UserId    string `json:"userId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func NewSystemNotice(roomId, userId, message string) *SystemNotice {
	return &SystemNotice{
		Type:      "system",
		Message:   message,
		RoomId:    roomId,
		UserId:    userId,
		Timestamp: time.Now().UnixMilli(),
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrRoomNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "room not found",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
