// Package protocol defines the closed message vocabulary exchanged between
// the host and players over a room channel. Messages are ephemeral and never
// persisted; the underlying channel is assumed reliable and ordered, which
// NEXT_CALL depends on so every client's call history matches the host's
// exactly.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/jestadalan-dotcom/Jes-Bingo/models"
)

// Type tags a message envelope.
type Type string

const (
	// TypeJoinRequest is sent client->host once on connect, and again after
	// a legacy reset-style round change.
	TypeJoinRequest Type = "JOIN_REQUEST"
	// TypeWelcome is sent host->client once per successful join or rejoin.
	TypeWelcome Type = "WELCOME"
	// TypeNextCall is broadcast host->all; clients must apply calls in the
	// exact order issued.
	TypeNextCall Type = "NEXT_CALL"
	// TypeClaimBingo is sent client->host and may arrive multiple times for
	// the same card; the host is idempotent.
	TypeClaimBingo Type = "CLAIM_BINGO"
	// TypeBingoAnnounced is broadcast host->all at most once per card.
	TypeBingoAnnounced Type = "BINGO_ANNOUNCED"
	// TypeClaimRejected is sent host->claimant only, when verification of a
	// claim fails against the host's own call history.
	TypeClaimRejected Type = "CLAIM_REJECTED"
	// TypeGameReset is the legacy broadcast asking clients to re-send
	// JOIN_REQUEST. New rounds are pushed directly via TypeNewGame instead.
	TypeGameReset Type = "GAME_RESET"
	// TypeNewGame pushes fresh round state directly to each known
	// connection. The payload is WELCOME-shaped.
	TypeNewGame Type = "NEW_GAME"
	// TypeChatMessage is bidirectional; the host relays a client's message
	// to every other connected client, never echoing it back to the sender.
	TypeChatMessage Type = "CHAT_MESSAGE"
)

// Envelope is the wire frame for every message.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinRequest identifies a player to the host. SessionToken, issued in the
// first WELCOME, reclaims the player's owner slot on reconnect.
type JoinRequest struct {
	PlayerName   string `json:"playerName"`
	SessionToken string `json:"sessionToken,omitempty"`
}

// Welcome carries a player's cards plus the full current round context. The
// same shape rides under TypeNewGame when the host pushes a fresh round.
type Welcome struct {
	OwnerIndex   int                 `json:"ownerIndex"`
	PlayerName   string              `json:"playerName"`
	SessionToken string              `json:"sessionToken"`
	Mode         models.Mode         `json:"mode"`
	Theme        string              `json:"theme,omitempty"`
	Prize        string              `json:"prize,omitempty"`
	Cards        []*models.BingoCard `json:"cards"`
	CurrentCall  string              `json:"currentCall"`
	CalledItems  []string            `json:"calledItems"`
	WinPatterns  []models.WinPattern `json:"winPatterns"`
	WinnerIDs    []string            `json:"winnerIds"`
}

// NextCall announces one drawn item.
type NextCall struct {
	Item string `json:"item"`
}

// ClaimBingo asserts that one of the sender's cards has won.
type ClaimBingo struct {
	CardID     string `json:"cardId"`
	OwnerIndex int    `json:"ownerIndex"`
}

// BingoAnnounced certifies a winning card to all participants.
type BingoAnnounced struct {
	OwnerIndex int    `json:"ownerIndex"`
	CardID     string `json:"cardId"`
}

// ClaimRejected tells the claimant why their claim did not hold.
type ClaimRejected struct {
	CardID string `json:"cardId"`
	Reason string `json:"reason"`
}

// ChatMessage is relayed by the host to all other clients.
type ChatMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Encode frames a payload under a type tag.
func Encode(t Type, payload any) ([]byte, error) {
	env := Envelope{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode parses a wire frame. A malformed frame is a protocol violation; the
// caller logs and ignores it rather than crashing the session.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode envelope: missing type tag")
	}
	return &env, nil
}

// Bind unmarshals the envelope payload into a typed struct.
func (e *Envelope) Bind(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("bind %s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("bind %s payload: %w", e.Type, err)
	}
	return nil
}
