package bridge

import (
	"encoding/json"
	"fmt"
)

// TurnPayload is the flat wire format exchanged with the AI process.
// There is no envelope, no versioning, and no acknowledgment frame.
type TurnPayload struct {
	RoomId      string `json:"roomId"`
	CharacterId string `json:"characterId"`
	Content     string `json:"content"`
	Location    string `json:"location"`
	Status      string `json:"status"`
	NextSpeaker string `json:"nextSpeaker"`
}

// ParseTurnPayload decodes an inbound frame into a TurnPayload and
// validates the required fields.
func ParseTurnPayload(raw []byte) (TurnPayload, error) {
	var p TurnPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return TurnPayload{}, fmt.Errorf("decode payload: %w", err)
	}

	if p.RoomId == "" || p.CharacterId == "" || p.Content == "" {
		return TurnPayload{}, fmt.Errorf("payload missing required fields: %q", raw)
	}

	return p, nil
}
