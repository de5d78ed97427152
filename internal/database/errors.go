package database

import "errors"

var (
	// ErrCharacterInConversation is returned when deleting a character
	// that has authored at least one conversation turn.
	ErrCharacterInConversation = errors.New("character has authored conversations and cannot be deleted")
	// ErrUsernameTaken is returned when registering a user with a
	// username that already exists.
	ErrUsernameTaken = errors.New("username already exists")
)
