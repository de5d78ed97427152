package database

import "time"

type Room struct {
	Id        string
	Name      string
	Worldview string
	Locations []string
	CreatorId string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Character struct {
	Id              string
	Name            string
	Description     string
	RoomId          string
	CurrentLocation string
	Status          string
	Type            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Conversation struct {
	Id              string
	RoomId          string
	CharacterId     string
	Content         string
	CurrentLocation string
	Status          string
	NextSpeaker     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type User struct {
	Id           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateRoomParams struct {
	Id        string
	Name      string
	Worldview string
	Locations []string
	CreatorId string
}

type CreateCharacterParams struct {
	Id              string
	Name            string
	Description     string
	RoomId          string
	CurrentLocation string
	Status          string
	Type            string
}

type CreateConversationParams struct {
	Id              string
	RoomId          string
	CharacterId     string
	Content         string
	CurrentLocation string
	Status          string
	NextSpeaker     string
}

type CreateUserParams struct {
	Id           string
	Username     string
	PasswordHash string
}
