package database

type StoryRepository interface {
	Ping() error

	CreateRoom(params CreateRoomParams) (Room, error)
	ListRooms() ([]Room, error)
	GetRoom(id string) (Room, error)
	UpdateRoom(room Room) error
	DeleteRoom(id string) error

	CreateCharacter(params CreateCharacterParams) (Character, error)
	ListCharactersByRoom(roomId string) ([]Character, error)
	GetCharacter(id string) (Character, error)
	GetCharacterName(id string) (string, error)
	GetCharacterByTypeAndRoom(charType, roomId string) (Character, error)
	UpdateCharacter(character Character) error
	DeleteCharacter(id string) error
	DeleteCharactersByRoom(roomId string) error

	CreateConversation(params CreateConversationParams) (Conversation, error)
	ListConversationsByRoom(roomId string) ([]Conversation, error)
	GetConversation(id string) (Conversation, error)
	UpdateConversation(conversation Conversation) error
	DeleteConversationsByRoom(roomId string) error
	CountConversationsByCharacter(characterId string) (int, error)

	CreateUser(params CreateUserParams) (User, error)
	GetUserByUsername(username string) (User, error)
}
