package server

import (
	"log"
	"strings"
	"sync"

	"github.com/storyroom/storyroom/internal/bridge"
	"github.com/storyroom/storyroom/internal/database"
	"github.com/storyroom/storyroom/internal/stats"
	"github.com/storyroom/storyroom/internal/types"
)

// AutomatedPrefix marks a character id as AI-driven. A turn whose
// next_speaker carries this prefix is forwarded to the AI process.
const AutomatedPrefix = "ai_"

// maxAIChain caps consecutive AI-originated turns per room so two
// automated speakers handing off to each other cannot loop forever.
const maxAIChain = 8

// Sender is the outbound half of the AI bridge.
type Sender interface {
	Send(bridge.TurnPayload) error
}

// Broadcaster fans a persisted turn out to a room's live subscribers.
type Broadcaster interface {
	BroadcastTurn(conv types.Conversation)
}

type TurnParams struct {
	RoomId      string
	CharacterId string
	Content     string
	Location    string
	Status      string
	NextSpeaker string
}

// TurnRouter persists conversation turns and decides whether each one is
// handed to the AI bridge. It serves both directions: turns submitted by
// connected users and turns arriving from the AI process.
type TurnRouter struct {
	log         *log.Logger
	db          database.StoryRepository
	sender      Sender
	broadcaster Broadcaster
	stats       stats.StatsProvider

	mu       sync.Mutex
	chainLen map[string]int
}

func NewTurnRouter(db database.StoryRepository, sender Sender, sp stats.StatsProvider, logger *log.Logger) *TurnRouter {
	sp.RegisterMetric("TurnsPersisted")

	return &TurnRouter{
		log:      logger,
		db:       db,
		sender:   sender,
		stats:    sp,
		chainLen: make(map[string]int),
	}
}

// SetBroadcaster wires the chat server in after construction. The chat
// server itself depends on the router, so this cannot happen in New.
func (tr *TurnRouter) SetBroadcaster(b Broadcaster) {
	tr.broadcaster = b
}

func IsAutomated(characterId string) bool {
	return strings.HasPrefix(characterId, AutomatedPrefix)
}

// SubmitTurn persists a user-submitted turn and forwards it to the AI
// process when the next speaker is automated. Forwarding is best effort:
// a bridge failure is logged and the persisted turn is still returned.
func (tr *TurnRouter) SubmitTurn(params TurnParams) (types.Conversation, error) {
	conv, err := tr.persistTurn(params)
	if err != nil {
		return types.Conversation{}, err
	}

	tr.resetChain(params.RoomId)
	tr.maybeForward(conv)

	return conv, nil
}

// HandleBridgeTurn processes a turn produced by the AI process: persist,
// broadcast to the room's subscribers, then hand back to the AI if it
// nominated another automated speaker. Runs on the bridge read goroutine.
func (tr *TurnRouter) HandleBridgeTurn(p bridge.TurnPayload) {
	conv, err := tr.persistTurn(TurnParams{
		RoomId:      p.RoomId,
		CharacterId: p.CharacterId,
		Content:     p.Content,
		Location:    p.Location,
		Status:      p.Status,
		NextSpeaker: p.NextSpeaker,
	})
	if err != nil {
		tr.log.Printf("failed to persist ai turn for room %q: %v", p.RoomId, err)
		return
	}

	if tr.broadcaster != nil {
		tr.broadcaster.BroadcastTurn(conv)
	}

	if !IsAutomated(conv.NextSpeaker) {
		tr.resetChain(conv.RoomId)
		return
	}

	if n := tr.bumpChain(conv.RoomId); n > maxAIChain {
		tr.log.Printf("ai turn chain in room %q exceeded %d hops, not forwarding", conv.RoomId, maxAIChain)
		return
	}

	tr.maybeForward(conv)
}

func (tr *TurnRouter) persistTurn(params TurnParams) (types.Conversation, error) {
	conv, err := tr.db.CreateConversation(database.CreateConversationParams{
		Id:              database.NewId(),
		RoomId:          params.RoomId,
		CharacterId:     params.CharacterId,
		Content:         params.Content,
		CurrentLocation: params.Location,
		Status:          params.Status,
		NextSpeaker:     params.NextSpeaker,
	})
	if err != nil {
		return types.Conversation{}, err
	}

	tr.stats.Incr("TurnsPersisted")

	name, err := tr.db.GetCharacterName(conv.CharacterId)
	if err != nil {
		// automated speakers are sometimes addressed by their type tag
		// rather than a character id
		char, typeErr := tr.db.GetCharacterByTypeAndRoom(conv.CharacterId, conv.RoomId)
		if typeErr != nil {
			tr.log.Printf("failed to resolve name for character %q: %v", conv.CharacterId, err)
		} else {
			name = char.Name
		}
	}

	return types.Conversation{
		Id:              conv.Id,
		RoomId:          conv.RoomId,
		CharacterId:     conv.CharacterId,
		CharacterName:   name,
		Content:         conv.Content,
		CurrentLocation: conv.CurrentLocation,
		Status:          conv.Status,
		NextSpeaker:     conv.NextSpeaker,
		CreatedAt:       conv.CreatedAt,
	}, nil
}

func (tr *TurnRouter) maybeForward(conv types.Conversation) {
	if !IsAutomated(conv.NextSpeaker) {
		return
	}

	err := tr.sender.Send(bridge.TurnPayload{
		RoomId:      conv.RoomId,
		CharacterId: conv.CharacterId,
		Content:     conv.Content,
		Location:    conv.CurrentLocation,
		Status:      conv.Status,
		NextSpeaker: conv.NextSpeaker,
	})
	if err != nil {
		tr.log.Printf("failed to forward turn to ai process: %v", err)
	}
}

func (tr *TurnRouter) bumpChain(roomId string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.chainLen[roomId]++
	return tr.chainLen[roomId]
}

func (tr *TurnRouter) resetChain(roomId string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	delete(tr.chainLen, roomId)
}
