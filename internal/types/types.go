package types

import (
	"time"
)

type Room struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Worldview string    `json:"worldview"`
	Locations []string  `json:"locations"`
	CreatorId string    `json:"creator_id"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Character struct {
	Id              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	RoomId          string    `json:"room_id"`
	CurrentLocation string    `json:"current_location,omitempty"`
	Status          string    `json:"status,omitempty"`
	Type            string    `json:"type"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// Conversation is one persisted turn within a room. CharacterName is
// denormalized at creation time, not stored.
type Conversation struct {
	Id              string    `json:"id"`
	RoomId          string    `json:"room_id"`
	CharacterId     string    `json:"character_id"`
	CharacterName   string    `json:"character_name,omitempty"`
	Content         string    `json:"content"`
	CurrentLocation string    `json:"current_location,omitempty"`
	Status          string    `json:"status,omitempty"`
	NextSpeaker     string    `json:"next_speaker,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

type User struct {
	Id        string    `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
