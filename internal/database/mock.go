package database

import (
	"github.com/stretchr/testify/mock"
)

type MockStoryRepository struct {
	mock.Mock
}

func (m *MockStoryRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStoryRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockStoryRepository) ListRooms() ([]Room, error) {
	args := m.Called()
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockStoryRepository) GetRoom(id string) (Room, error) {
	args := m.Called(id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockStoryRepository) UpdateRoom(room Room) error {
	args := m.Called(room)
	return args.Error(0)
}
func (m *MockStoryRepository) DeleteRoom(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockStoryRepository) CreateCharacter(params CreateCharacterParams) (Character, error) {
	args := m.Called(params)
	return args.Get(0).(Character), args.Error(1)
}
func (m *MockStoryRepository) ListCharactersByRoom(roomId string) ([]Character, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Character), args.Error(1)
}
func (m *MockStoryRepository) GetCharacter(id string) (Character, error) {
	args := m.Called(id)
	return args.Get(0).(Character), args.Error(1)
}
func (m *MockStoryRepository) GetCharacterName(id string) (string, error) {
	args := m.Called(id)
	return args.String(0), args.Error(1)
}
func (m *MockStoryRepository) GetCharacterByTypeAndRoom(charType, roomId string) (Character, error) {
	args := m.Called(charType, roomId)
	return args.Get(0).(Character), args.Error(1)
}
func (m *MockStoryRepository) UpdateCharacter(character Character) error {
	args := m.Called(character)
	return args.Error(0)
}
func (m *MockStoryRepository) DeleteCharacter(id string) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockStoryRepository) DeleteCharactersByRoom(roomId string) error {
	args := m.Called(roomId)
	return args.Error(0)
}

func (m *MockStoryRepository) CreateConversation(params CreateConversationParams) (Conversation, error) {
	args := m.Called(params)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockStoryRepository) ListConversationsByRoom(roomId string) ([]Conversation, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Conversation), args.Error(1)
}
func (m *MockStoryRepository) GetConversation(id string) (Conversation, error) {
	args := m.Called(id)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockStoryRepository) UpdateConversation(conversation Conversation) error {
	args := m.Called(conversation)
	return args.Error(0)
}
func (m *MockStoryRepository) DeleteConversationsByRoom(roomId string) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockStoryRepository) CountConversationsByCharacter(characterId string) (int, error) {
	args := m.Called(characterId)
	return args.Int(0), args.Error(1)
}

func (m *MockStoryRepository) CreateUser(params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStoryRepository) GetUserByUsername(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
