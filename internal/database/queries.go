package database

import (
	"encoding/json"
	"time"
)

func (db *PgStoryRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	locations, err := json.Marshal(params.Locations)
	if err != nil {
		return Room{}, err
	}

	res := db.conn.QueryRow(
		"INSERT INTO rooms (id, name, worldview, locations, creator_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, name, worldview, creator_id, created_at, updated_at",
		params.Id,
		params.Name,
		params.Worldview,
		locations,
		params.CreatorId,
		time.Now().UTC(),
		time.Now().UTC(),
	)

	var room Room
	err = res.Scan(
		&room.Id,
		&room.Name,
		&room.Worldview,
		&room.CreatorId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	room.Locations = params.Locations

	return room, err
}

func (db *PgStoryRepository) ListRooms() ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, worldview, locations, creator_id, created_at, updated_at FROM rooms ORDER BY created_at",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		var locations []byte
		if err = rows.Scan(&room.Id, &room.Name, &room.Worldview, &locations,
			&room.CreatorId, &room.CreatedAt, &room.UpdatedAt); err != nil {
			break
		}

		if len(locations) > 0 {
			if err = json.Unmarshal(locations, &room.Locations); err != nil {
				break
			}
		}

		rooms = append(rooms, room)
	}

	return rooms, err
}

func (db *PgStoryRepository) GetRoom(id string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, worldview, locations, creator_id, created_at, updated_at FROM rooms "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var room Room
	var locations []byte
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Worldview,
		&locations,
		&room.CreatorId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return room, err
	}

	if len(locations) > 0 {
		err = json.Unmarshal(locations, &room.Locations)
	}

	return room, err
}

func (db *PgStoryRepository) UpdateRoom(room Room) error {
	locations, err := json.Marshal(room.Locations)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(
		"UPDATE rooms SET name = $2, worldview = $3, locations = $4, updated_at = $5 WHERE id = $1",
		room.Id,
		room.Name,
		room.Worldview,
		locations,
		time.Now().UTC(),
	)

	return err
}

func (db *PgStoryRepository) DeleteRoom(id string) error {
	_, err := db.conn.Exec("DELETE FROM rooms WHERE id = $1", id)

	return err
}

func (db *PgStoryRepository) CreateCharacter(params CreateCharacterParams) (Character, error) {
	res := db.conn.QueryRow(
		"INSERT INTO characters (id, name, description, room_id, current_location, status, type, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) "+
			"RETURNING id, name, description, room_id, current_location, status, type, created_at, updated_at",
		params.Id,
		params.Name,
		params.Description,
		params.RoomId,
		params.CurrentLocation,
		params.Status,
		params.Type,
		time.Now().UTC(),
		time.Now().UTC(),
	)

	var c Character
	err := res.Scan(
		&c.Id,
		&c.Name,
		&c.Description,
		&c.RoomId,
		&c.CurrentLocation,
		&c.Status,
		&c.Type,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	return c, err
}

func (db *PgStoryRepository) ListCharactersByRoom(roomId string) ([]Character, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, description, room_id, current_location, status, type, created_at, updated_at "+
			"FROM characters WHERE room_id = $1 ORDER BY created_at",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var characters []Character
	for rows.Next() {
		var c Character
		if err = rows.Scan(&c.Id, &c.Name, &c.Description, &c.RoomId,
			&c.CurrentLocation, &c.Status, &c.Type, &c.CreatedAt, &c.UpdatedAt); err != nil {
			break
		}

		characters = append(characters, c)
	}

	return characters, err
}

func (db *PgStoryRepository) GetCharacter(id string) (Character, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, description, room_id, current_location, status, type, created_at, updated_at "+
			"FROM characters WHERE id = $1 LIMIT 1",
		id,
	)

	var c Character
	err := row.Scan(
		&c.Id,
		&c.Name,
		&c.Description,
		&c.RoomId,
		&c.CurrentLocation,
		&c.Status,
		&c.Type,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	return c, err
}

func (db *PgStoryRepository) GetCharacterName(id string) (string, error) {
	row := db.conn.QueryRow(
		"SELECT name FROM characters WHERE id = $1 LIMIT 1",
		id,
	)

	var name string
	err := row.Scan(&name)

	return name, err
}

func (db *PgStoryRepository) GetCharacterByTypeAndRoom(charType, roomId string) (Character, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, description, room_id, current_location, status, type, created_at, updated_at "+
			"FROM characters WHERE type = $1 AND room_id = $2 LIMIT 1",
		charType,
		roomId,
	)

	var c Character
	err := row.Scan(
		&c.Id,
		&c.Name,
		&c.Description,
		&c.RoomId,
		&c.CurrentLocation,
		&c.Status,
		&c.Type,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	return c, err
}

func (db *PgStoryRepository) UpdateCharacter(character Character) error {
	_, err := db.conn.Exec(
		"UPDATE characters SET name = $2, description = $3, current_location = $4, status = $5, type = $6, updated_at = $7 "+
			"WHERE id = $1",
		character.Id,
		character.Name,
		character.Description,
		character.CurrentLocation,
		character.Status,
		character.Type,
		time.Now().UTC(),
	)

	return err
}

// DeleteCharacter refuses to delete a character that has authored any
// conversation turns.
func (db *PgStoryRepository) DeleteCharacter(id string) error {
	count, err := db.CountConversationsByCharacter(id)
	if err != nil {
		return err
	}

	if count > 0 {
		return ErrCharacterInConversation
	}

	_, err = db.conn.Exec("DELETE FROM characters WHERE id = $1", id)

	return err
}

func (db *PgStoryRepository) DeleteCharactersByRoom(roomId string) error {
	_, err := db.conn.Exec("DELETE FROM characters WHERE room_id = $1", roomId)

	return err
}

func (db *PgStoryRepository) CreateConversation(params CreateConversationParams) (Conversation, error) {
	res := db.conn.QueryRow(
		"INSERT INTO conversations (id, room_id, character_id, content, current_location, status, next_speaker, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) "+
			"RETURNING id, room_id, character_id, content, current_location, status, next_speaker, created_at, updated_at",
		params.Id,
		params.RoomId,
		params.CharacterId,
		params.Content,
		params.CurrentLocation,
		params.Status,
		params.NextSpeaker,
		time.Now().UTC(),
		time.Now().UTC(),
	)

	var conv Conversation
	err := res.Scan(
		&conv.Id,
		&conv.RoomId,
		&conv.CharacterId,
		&conv.Content,
		&conv.CurrentLocation,
		&conv.Status,
		&conv.NextSpeaker,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)

	return conv, err
}

func (db *PgStoryRepository) ListConversationsByRoom(roomId string) ([]Conversation, error) {
	rows, err := db.conn.Query(
		"SELECT id, room_id, character_id, content, current_location, status, next_speaker, created_at, updated_at "+
			"FROM conversations WHERE room_id = $1 ORDER BY created_at",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var conv Conversation
		if err = rows.Scan(&conv.Id, &conv.RoomId, &conv.CharacterId, &conv.Content,
			&conv.CurrentLocation, &conv.Status, &conv.NextSpeaker, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			break
		}

		conversations = append(conversations, conv)
	}

	return conversations, err
}

func (db *PgStoryRepository) GetConversation(id string) (Conversation, error) {
	row := db.conn.QueryRow(
		"SELECT id, room_id, character_id, content, current_location, status, next_speaker, created_at, updated_at "+
			"FROM conversations WHERE id = $1 LIMIT 1",
		id,
	)

	var conv Conversation
	err := row.Scan(
		&conv.Id,
		&conv.RoomId,
		&conv.CharacterId,
		&conv.Content,
		&conv.CurrentLocation,
		&conv.Status,
		&conv.NextSpeaker,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)

	return conv, err
}

func (db *PgStoryRepository) UpdateConversation(conversation Conversation) error {
	_, err := db.conn.Exec(
		"UPDATE conversations SET content = $2, current_location = $3, status = $4, next_speaker = $5, updated_at = $6 "+
			"WHERE id = $1",
		conversation.Id,
		conversation.Content,
		conversation.CurrentLocation,
		conversation.Status,
		conversation.NextSpeaker,
		time.Now().UTC(),
	)

	return err
}

func (db *PgStoryRepository) DeleteConversationsByRoom(roomId string) error {
	_, err := db.conn.Exec("DELETE FROM conversations WHERE room_id = $1", roomId)

	return err
}

func (db *PgStoryRepository) CountConversationsByCharacter(characterId string) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM conversations WHERE character_id = $1",
		characterId,
	)

	var count int
	err := row.Scan(&count)

	return count, err
}

// CreateUser enforces username uniqueness before insert.
func (db *PgStoryRepository) CreateUser(params CreateUserParams) (User, error) {
	if _, err := db.GetUserByUsername(params.Username); err == nil {
		return User{}, ErrUsernameTaken
	}

	res := db.conn.QueryRow(
		"INSERT INTO users (id, username, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, username, created_at, updated_at",
		params.Id,
		params.Username,
		params.PasswordHash,
		time.Now().UTC(),
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgStoryRepository) GetUserByUsername(username string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, password_hash, created_at, updated_at FROM users "+
			"WHERE username = $1 LIMIT 1",
		username,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}
