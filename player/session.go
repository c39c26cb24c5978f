// Package player implements the client side of a bingo session: dialing a
// room, keeping a local shadow of the host's game state, pre-checking wins
// locally, and asking the host to certify them. The host remains the single
// authority; everything here only serves the player's own display.
package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jestadalan-dotcom/Jes-Bingo/game"
	"github.com/jestadalan-dotcom/Jes-Bingo/models"
	"github.com/jestadalan-dotcom/Jes-Bingo/protocol"
	"github.com/jestadalan-dotcom/Jes-Bingo/utils/logger"
)

// State is the session's connection lifecycle phase. Game messages are only
// processed in StateConnected.
type State string

const (
	StateIdle           State = "IDLE"
	StateConnecting     State = "CONNECTING"
	StateWaitingForHost State = "WAITING_FOR_HOST"
	StateConnected      State = "CONNECTED"
	// StateError is reachable from any state on transport failure, dial
	// timeout, or channel close, and permits a fresh connect attempt.
	StateError State = "ERROR"
)

var (
	// ErrNotConnected is returned for game operations outside StateConnected.
	ErrNotConnected = errors.New("session is not connected")
	// ErrChannelClosed marks the host ending the session or the network
	// dropping. Re-dialing plus a new JOIN_REQUEST is the only recovery.
	ErrChannelClosed = errors.New("room channel closed")
	// ErrAlreadyConnected rejects a dial while a channel is already up.
	ErrAlreadyConnected = errors.New("session already has an open channel")
)

// DefaultConnectTimeout bounds the dial before the session moves to
// StateError.
const DefaultConnectTimeout = 10 * time.Second

// Session is a player's connection to one room plus the local shadow of the
// round. The shadow is initialized from WELCOME and advanced by NEXT_CALL in
// the exact order the host issued them.
type Session struct {
	mu sync.Mutex

	state   State
	lastErr error

	baseURL    string // e.g. ws://host:4000
	playerName string
	dialer     *websocket.Dialer
	conn       *websocket.Conn
	closing    bool

	// writeMu serializes outbound frames; the connection allows at most one
	// concurrent writer.
	writeMu sync.Mutex

	roomCode     string
	ownerIndex   int
	sessionToken string

	// local shadow
	cards        []*models.BingoCard
	calledItems  []string
	currentCall  string
	winPatterns  []models.WinPattern
	theme        string
	prize        string
	knownWinners map[string]bool
	chatLog      []protocol.ChatMessage
	lastReject   *protocol.ClaimRejected

	// autoMark daubs matching cells as calls arrive; manual mode requires an
	// explicit toggle instead. Switching modes never re-applies past calls.
	autoMark bool
}

// New builds an idle session for a named player against a host base URL such
// as "ws://127.0.0.1:4000".
func New(baseURL, playerName string) *Session {
	return &Session{
		state:      StateIdle,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		playerName: playerName,
		dialer: &websocket.Dialer{
			HandshakeTimeout: DefaultConnectTimeout,
		},
		ownerIndex:   -1,
		autoMark:     true,
		knownWinners: make(map[string]bool),
	}
}

// SetConnectTimeout adjusts the dial timeout before Connect is called.
func (s *Session) SetConnectTimeout(d time.Duration) {
	s.mu.Lock()
	s.dialer.HandshakeTimeout = d
	s.mu.Unlock()
}

// Connect dials the room and sends JOIN_REQUEST. On success the session sits
// in StateWaitingForHost until the WELCOME arrives; on failure it moves to
// StateError, from which Connect may be attempted again.
func (s *Session) Connect(ctx context.Context, roomCode string) error {
	roomCode = strings.ToUpper(strings.TrimSpace(roomCode))

	s.mu.Lock()
	if s.state == StateConnected || s.state == StateWaitingForHost || s.state == StateConnecting {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.roomCode = roomCode
	s.closing = false
	url := fmt.Sprintf("%s/ws/%s", s.baseURL, roomCode)
	dialer := s.dialer
	s.mu.Unlock()

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		s.fail(fmt.Errorf("connect room %s: %w", roomCode, err))
		return fmt.Errorf("connect room %s: %w", roomCode, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateWaitingForHost
	join := protocol.JoinRequest{PlayerName: s.playerName, SessionToken: s.sessionToken}
	s.mu.Unlock()

	if err := s.write(protocol.TypeJoinRequest, join); err != nil {
		s.fail(err)
		return err
	}

	go s.readLoop(conn)
	return nil
}

// Close tears the channel down deliberately; the session returns to
// StateIdle rather than StateError.
func (s *Session) Close() {
	s.mu.Lock()
	s.closing = true
	conn := s.conn
	s.conn = nil
	s.state = StateIdle
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateError
	s.lastErr = err
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			deliberate := s.closing
			s.mu.Unlock()
			if !deliberate {
				s.fail(fmt.Errorf("%w: %v", ErrChannelClosed, err))
			}
			return
		}
		s.handle(data)
	}
}

// handle applies one inbound frame to the shadow. Malformed frames are
// ignored; they never end the session.
func (s *Session) handle(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		logger.Warnf("[player %s] ignoring malformed frame: %v", s.playerName, err)
		return
	}

	switch env.Type {
	case protocol.TypeWelcome, protocol.TypeNewGame:
		var welcome protocol.Welcome
		if err := env.Bind(&welcome); err != nil {
			logger.Warnf("[player %s] ignoring bad %s: %v", s.playerName, env.Type, err)
			return
		}
		s.applyWelcome(&welcome)
	case protocol.TypeNextCall:
		var call protocol.NextCall
		if err := env.Bind(&call); err != nil {
			logger.Warnf("[player %s] ignoring bad NEXT_CALL: %v", s.playerName, err)
			return
		}
		s.applyCall(call.Item)
	case protocol.TypeBingoAnnounced:
		var won protocol.BingoAnnounced
		if err := env.Bind(&won); err != nil {
			return
		}
		s.mu.Lock()
		s.knownWinners[won.CardID] = true
		s.mu.Unlock()
	case protocol.TypeClaimRejected:
		var rej protocol.ClaimRejected
		if err := env.Bind(&rej); err != nil {
			return
		}
		s.mu.Lock()
		s.lastReject = &rej
		s.mu.Unlock()
		logger.Infof("[player %s] claim for card %s rejected: %s", s.playerName, rej.CardID, rej.Reason)
	case protocol.TypeChatMessage:
		var chat protocol.ChatMessage
		if err := env.Bind(&chat); err != nil {
			return
		}
		s.mu.Lock()
		s.chatLog = append(s.chatLog, chat)
		s.mu.Unlock()
	case protocol.TypeGameReset:
		// Legacy reset flow: the host expects a fresh JOIN_REQUEST.
		s.mu.Lock()
		join := protocol.JoinRequest{PlayerName: s.playerName, SessionToken: s.sessionToken}
		s.state = StateWaitingForHost
		s.mu.Unlock()
		if err := s.write(protocol.TypeJoinRequest, join); err != nil {
			s.fail(err)
		}
	default:
		logger.Warnf("[player %s] ignoring unexpected %s", s.playerName, env.Type)
	}
}

// applyWelcome initializes (or, for NEW_GAME, replaces) the local shadow.
func (s *Session) applyWelcome(w *protocol.Welcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ownerIndex = w.OwnerIndex
	if w.SessionToken != "" {
		s.sessionToken = w.SessionToken
	}
	s.cards = w.Cards
	s.calledItems = append([]string(nil), w.CalledItems...)
	s.currentCall = w.CurrentCall
	s.winPatterns = w.WinPatterns
	s.theme = w.Theme
	s.prize = w.Prize
	s.knownWinners = make(map[string]bool)
	for _, id := range w.WinnerIDs {
		s.knownWinners[id] = true
	}
	s.lastReject = nil
	s.state = StateConnected

	s.recomputeLocked()
}

// applyCall appends a call to the shadow history and recomputes every card's
// local win flag. Calls arrive in the host's exact order; the history is kept
// most recent first, matching the host.
func (s *Session) applyCall(item string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return
	}
	s.calledItems = append([]string{item}, s.calledItems...)
	s.currentCall = item

	if s.autoMark {
		for _, card := range s.cards {
			card.MarkValue(item)
		}
	}
	s.recomputeLocked()
}

// recomputeLocked refreshes each card's HasBingo from its current marks.
// Never cached across state changes.
func (s *Session) recomputeLocked() {
	for _, card := range s.cards {
		card.HasBingo = game.Evaluate(card.Cells, s.winPatterns)
	}
}

// SetAutoMark switches between automatic daubing and manual taps. The switch
// only changes future behavior; past calls are not re-applied.
func (s *Session) SetAutoMark(on bool) {
	s.mu.Lock()
	s.autoMark = on
	s.mu.Unlock()
}

// ToggleCell flips a manual daub. Free spaces cannot be toggled.
func (s *Session) ToggleCell(cardID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return ErrNotConnected
	}
	for _, card := range s.cards {
		if card.ID != cardID {
			continue
		}
		cell := card.Cell(index)
		if cell == nil {
			return fmt.Errorf("cell index %d out of range", index)
		}
		if cell.IsFreeSpace {
			return nil
		}
		cell.Marked = !cell.Marked
		s.recomputeLocked()
		return nil
	}
	return fmt.Errorf("no card %s in this session", cardID)
}

// ClaimableCards lists card ids that are winning locally and not already
// known to have won. This is a display guard only; the host re-verifies every
// claim independently.
func (s *Session) ClaimableCards() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.cards))
	for _, card := range s.cards {
		if card.HasBingo && !s.knownWinners[card.ID] {
			ids = append(ids, card.ID)
		}
	}
	return ids
}

// Claim asks the host to certify a card.
func (s *Session) Claim(cardID string) error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	claim := protocol.ClaimBingo{CardID: cardID, OwnerIndex: s.ownerIndex}
	s.mu.Unlock()

	return s.write(protocol.TypeClaimBingo, claim)
}

// SendChat sends a message for the host to relay to the other players.
func (s *Session) SendChat(text string) error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	chat := protocol.ChatMessage{
		Sender:    s.playerName,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
	s.mu.Unlock()

	return s.write(protocol.TypeChatMessage, chat)
}

func (s *Session) write(t protocol.Type, payload any) error {
	data, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// -------------------- accessors --------------------

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to StateError, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) OwnerIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownerIndex
}

// Cards exposes the local shadow cards for rendering.
func (s *Session) Cards() []*models.BingoCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cards
}

func (s *Session) CurrentCall() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentCall
}

// CalledItems returns a copy of the shadow call history, most recent first.
func (s *Session) CalledItems() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calledItems...)
}

// KnownWinner reports whether a card id was announced as a winner.
func (s *Session) KnownWinner(cardID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.knownWinners[cardID]
}

// LastRejection returns the most recent CLAIM_REJECTED, or nil.
func (s *Session) LastRejection() *protocol.ClaimRejected {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReject
}

// Chat returns the relayed messages received so far.
func (s *Session) Chat() []protocol.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.ChatMessage(nil), s.chatLog...)
}
