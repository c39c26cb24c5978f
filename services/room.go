package services

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jestadalan-dotcom/Jes-Bingo/game"
	"github.com/jestadalan-dotcom/Jes-Bingo/models"
	"github.com/jestadalan-dotcom/Jes-Bingo/protocol"
	"github.com/jestadalan-dotcom/Jes-Bingo/utils/logger"
)

var (
	// ErrPoolExhausted surfaces the terminal condition where every item in
	// the pool has been called. No call is issued; this is not an error in
	// the round itself.
	ErrPoolExhausted = errors.New("all items have been called")

	// ErrCardNotFound is returned for a claim naming an unknown card id.
	ErrCardNotFound = errors.New("card not found")
)

// ClaimResult classifies the host's verdict on a CLAIM_BINGO.
type ClaimResult int

const (
	// ClaimVerified means the first valid claim for the card: the winner is
	// recorded and BINGO_ANNOUNCED goes out exactly once.
	ClaimVerified ClaimResult = iota
	// ClaimDuplicate means the card was already certified; the claim is a
	// no-op.
	ClaimDuplicate
	// ClaimFailed means verification against the host's own call history
	// found no satisfied pattern. Host-local only, never broadcast.
	ClaimFailed
)

// RoundConfig describes one round of play.
type RoundConfig struct {
	Mode  models.Mode `json:"mode"`
	Theme string      `json:"theme,omitempty"`
	Prize string      `json:"prize,omitempty"`
	// Pattern selects the win-pattern preset; empty means ANY_LINE.
	Pattern       game.Preset `json:"pattern,omitempty"`
	CustomPattern []int       `json:"customPattern,omitempty"`
	// Items overrides the themed pool when the host already has one; when
	// empty, a themed round fetches items from the room's ItemSource.
	Items []string `json:"items,omitempty"`
}

// ownerSlot is a player's stable identity within the session. A slot is never
// reclaimed on disconnect, so reconnecting under the same name (or with the
// session token) resumes the same cards mid-round.
type ownerSlot struct {
	Name  string
	Token string
	conn  *Client
}

// Room is the single authoritative holder of one session's game state. All
// mutation happens through its methods under one lock; broadcasts are
// fire-and-forget and never retried.
type Room struct {
	Code string

	mu      sync.RWMutex
	cfg     RoundConfig
	state   *models.GameState
	clients map[*Client]bool
	owners  map[int]*ownerSlot
	source  ItemSource

	autoCancel chan struct{}

	verifyFailures int
}

// NewRoom builds a room with a fresh round for the given config. A themed
// config with fewer than 24 usable items fails with *game.GenerationError.
func NewRoom(code string, cfg RoundConfig, source ItemSource) (*Room, error) {
	r := &Room{
		Code:    code,
		cfg:     cfg,
		clients: make(map[*Client]bool),
		owners:  make(map[int]*ownerSlot),
		source:  source,
	}
	state, err := r.buildState(cfg)
	if err != nil {
		return nil, err
	}
	r.state = state
	return r, nil
}

// buildState resolves the item pool and win patterns for a round config.
func (r *Room) buildState(cfg RoundConfig) (*models.GameState, error) {
	patterns, err := game.PatternsForPreset(cfg.Pattern, cfg.CustomPattern)
	if err != nil {
		return nil, err
	}

	var pool []string
	if cfg.Mode == models.ModeThemed {
		pool = cfg.Items
		if len(pool) == 0 && r.source != nil {
			pool, err = r.source.ThemedItems(cfg.Theme)
			if err != nil {
				return nil, fmt.Errorf("fetch themed items: %w", err)
			}
		}
		if len(pool) < game.MinThemedItems {
			return nil, &game.GenerationError{Need: game.MinThemedItems, Got: len(pool)}
		}
	} else {
		pool = game.StandardPool()
	}

	return &models.GameState{
		Mode:        cfg.Mode,
		Theme:       cfg.Theme,
		Prize:       cfg.Prize,
		AllItems:    pool,
		CalledItems: []string{},
		Cards:       []*models.BingoCard{},
		WinnerIDs:   []string{},
		WinPatterns: patterns,
	}, nil
}

// -------------------- Client management --------------------

// Register attaches a websocket client and starts its pumps.
func (r *Room) Register(c *Client) {
	r.attach(c)
	go c.writePump()
	go c.readPump()
}

func (r *Room) attach(c *Client) {
	r.mu.Lock()
	r.clients[c] = true
	total := len(r.clients)
	r.mu.Unlock()
	logger.Infof("[room %s] channel opened (total=%d)", r.Code, total)
}

// Unregister drops a closed channel. The owner slot keeps its index and
// cards so a later reconnect under the same name resumes seamlessly.
func (r *Room) Unregister(c *Client) {
	r.mu.Lock()
	delete(r.clients, c)
	if slot, ok := r.owners[c.ownerIndex]; ok && slot.conn == c {
		slot.conn = nil
	}
	r.mu.Unlock()
	c.Close()
	logger.Infof("[room %s] channel closed (owner=%d)", r.Code, c.ownerIndex)
}

func (r *Room) clientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// -------------------- Inbound messages --------------------

// handleMessage dispatches one inbound frame. Malformed or unexpected frames
// are logged and ignored; they never end the session.
func (r *Room) handleMessage(c *Client, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		logger.Warnf("[room %s] ignoring malformed frame from owner=%d: %v", r.Code, c.ownerIndex, err)
		return
	}

	switch env.Type {
	case protocol.TypeJoinRequest:
		var req protocol.JoinRequest
		if err := env.Bind(&req); err != nil {
			logger.Warnf("[room %s] ignoring bad JOIN_REQUEST: %v", r.Code, err)
			return
		}
		r.handleJoin(c, req)
	case protocol.TypeClaimBingo:
		var claim protocol.ClaimBingo
		if err := env.Bind(&claim); err != nil {
			logger.Warnf("[room %s] ignoring bad CLAIM_BINGO: %v", r.Code, err)
			return
		}
		r.handleClaim(c, claim)
	case protocol.TypeChatMessage:
		var chat protocol.ChatMessage
		if err := env.Bind(&chat); err != nil {
			logger.Warnf("[room %s] ignoring bad CHAT_MESSAGE: %v", r.Code, err)
			return
		}
		r.relayChat(c, chat)
	default:
		logger.Warnf("[room %s] ignoring unexpected %s from owner=%d", r.Code, env.Type, c.ownerIndex)
	}
}

// handleJoin allocates or reclaims an owner slot and answers with WELCOME.
// Joining is idempotent per player: a rejoin mid-round never duplicates a
// card set. The session token issued in the first WELCOME reclaims the slot
// outright; a bare name reclaims it only while the slot has no live channel.
func (r *Room) handleJoin(c *Client, req protocol.JoinRequest) {
	r.mu.Lock()

	idx := -1
	if req.SessionToken != "" {
		for i, slot := range r.owners {
			if slot.Token == req.SessionToken {
				idx = i
				break
			}
		}
	}
	if idx == -1 && req.PlayerName != "" {
		for i, slot := range r.owners {
			if strings.EqualFold(slot.Name, req.PlayerName) && slot.conn == nil {
				idx = i
				break
			}
		}
	}

	if idx == -1 {
		idx = r.smallestUnusedOwnerLocked()
		name := strings.TrimSpace(req.PlayerName)
		if name == "" {
			name = fmt.Sprintf("Player %d", idx+1)
		}
		cards, err := game.GenerateCards(r.state.AllItems, r.state.Mode, name, idx)
		if err != nil {
			// The pool was validated at round start, so this is unexpected.
			r.mu.Unlock()
			logger.Errorf("[room %s] card generation for %q failed: %v", r.Code, name, err)
			return
		}
		r.state.Cards = append(r.state.Cards, cards...)
		r.owners[idx] = &ownerSlot{Name: name, Token: uuid.NewString()}
		logger.Infof("[room %s] new player %q -> owner=%d", r.Code, name, idx)
	} else if old := r.owners[idx].conn; old != nil && old != c {
		// Token reclaim supersedes a lingering connection for the slot.
		delete(r.clients, old)
		defer old.Close()
	}

	slot := r.owners[idx]
	slot.conn = c
	c.ownerIndex = idx
	c.name = slot.Name

	welcome := r.welcomeLocked(idx)
	r.mu.Unlock()

	r.sendTo(c, protocol.TypeWelcome, welcome)
}

// smallestUnusedOwnerLocked returns the smallest non-negative integer not yet
// allocated as an owner index this round.
func (r *Room) smallestUnusedOwnerLocked() int {
	for i := 0; ; i++ {
		if _, taken := r.owners[i]; !taken {
			return i
		}
	}
}

// welcomeLocked assembles the WELCOME payload for one owner: their cards plus
// the full current round context.
func (r *Room) welcomeLocked(idx int) *protocol.Welcome {
	slot := r.owners[idx]
	cards := make([]*models.BingoCard, 0, game.CardsPerPlayer)
	for _, card := range r.state.Cards {
		if card.OwnerIndex == idx {
			cards = append(cards, card)
		}
	}
	return &protocol.Welcome{
		OwnerIndex:   idx,
		PlayerName:   slot.Name,
		SessionToken: slot.Token,
		Mode:         r.state.Mode,
		Theme:        r.state.Theme,
		Prize:        r.state.Prize,
		Cards:        cards,
		CurrentCall:  r.state.CurrentCall,
		CalledItems:  append([]string(nil), r.state.CalledItems...),
		WinPatterns:  r.state.WinPatterns,
		WinnerIDs:    append([]string(nil), r.state.WinnerIDs...),
	}
}

// -------------------- Calling --------------------

// CallNext draws uniformly among the uncalled items, records the call, marks
// matching cells for host-side display, and broadcasts NEXT_CALL. Once the
// pool runs dry it returns ErrPoolExhausted and issues nothing.
func (r *Room) CallNext() (string, error) {
	r.mu.Lock()

	called := make(map[string]bool, len(r.state.CalledItems))
	for _, it := range r.state.CalledItems {
		called[it] = true
	}
	remaining := make([]string, 0, len(r.state.AllItems))
	for _, it := range r.state.AllItems {
		if !called[it] {
			remaining = append(remaining, it)
		}
	}
	if len(remaining) == 0 {
		r.mu.Unlock()
		return "", ErrPoolExhausted
	}

	item := remaining[rand.Intn(len(remaining))]
	r.state.CalledItems = append([]string{item}, r.state.CalledItems...)
	r.state.CurrentCall = item
	for _, card := range r.state.Cards {
		card.MarkValue(item)
	}
	callNo := len(r.state.CalledItems)
	r.mu.Unlock()

	logger.Infof("[room %s] call #%d: %s", r.Code, callNo, item)
	r.broadcast(protocol.TypeNextCall, protocol.NextCall{Item: item})
	return item, nil
}

// StartAutoCall drives CallNext on a fixed interval until the pool is
// exhausted or StopAutoCall is invoked. Calling it while a caller is already
// running is a no-op.
func (r *Room) StartAutoCall(interval time.Duration) {
	r.mu.Lock()
	if r.autoCancel != nil {
		r.mu.Unlock()
		return
	}
	cancel := make(chan struct{})
	r.autoCancel = cancel
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-cancel:
				return
			case <-ticker.C:
				if _, err := r.CallNext(); err != nil {
					logger.Infof("[room %s] auto-caller stopping: %v", r.Code, err)
					r.StopAutoCall()
					return
				}
			}
		}
	}()
}

func (r *Room) StopAutoCall() {
	r.mu.Lock()
	if r.autoCancel != nil {
		close(r.autoCancel)
		r.autoCancel = nil
	}
	r.mu.Unlock()
}

// -------------------- Claims --------------------

// handleClaim verifies a claim and answers the claimant directly when it
// fails. Verified wins are broadcast; duplicates stay silent.
func (r *Room) handleClaim(c *Client, claim protocol.ClaimBingo) {
	result, err := r.Claim(claim.CardID)
	if err != nil {
		logger.Warnf("[room %s] claim for unknown card %s from owner=%d", r.Code, claim.CardID, claim.OwnerIndex)
		r.sendTo(c, protocol.TypeClaimRejected, protocol.ClaimRejected{
			CardID: claim.CardID,
			Reason: "unknown card",
		})
		return
	}
	if result == ClaimFailed {
		r.sendTo(c, protocol.TypeClaimRejected, protocol.ClaimRejected{
			CardID: claim.CardID,
			Reason: "card does not satisfy any win pattern",
		})
	}
}

// Claim re-derives the card's marks purely from the host's own call history
// (client-reported marks are never trusted) and evaluates the round's win
// patterns. The first valid claim records the card id into WinnerIDs and
// broadcasts BINGO_ANNOUNCED; every later claim for that id observes it
// already present and becomes a no-op, so racing duplicate claims resolve to
// exactly one announcement.
func (r *Room) Claim(cardID string) (ClaimResult, error) {
	r.mu.Lock()

	card := r.state.CardByID(cardID)
	if card == nil {
		r.mu.Unlock()
		return ClaimFailed, ErrCardNotFound
	}
	if r.state.HasWinner(cardID) {
		r.mu.Unlock()
		logger.Debugf("[room %s] duplicate claim for card %s", r.Code, cardID)
		return ClaimDuplicate, nil
	}

	called := make(map[string]bool, len(r.state.CalledItems))
	for _, it := range r.state.CalledItems {
		called[it] = true
	}
	verified := make([]*models.BingoCell, len(card.Cells))
	for i, cell := range card.Cells {
		verified[i] = &models.BingoCell{
			Value:       cell.Value,
			IsFreeSpace: cell.IsFreeSpace,
			Marked:      called[cell.Value],
		}
	}

	if !game.Evaluate(verified, r.state.WinPatterns) {
		r.verifyFailures++
		owner := card.OwnerIndex
		r.mu.Unlock()
		logger.Warnf("[room %s] claim for card %s (owner=%d) failed verification", r.Code, cardID, owner)
		return ClaimFailed, nil
	}

	r.state.WinnerIDs = append(r.state.WinnerIDs, cardID)
	announce := protocol.BingoAnnounced{OwnerIndex: card.OwnerIndex, CardID: cardID}
	r.mu.Unlock()

	logger.Infof("[room %s] BINGO certified: card %s (owner=%d)", r.Code, cardID, announce.OwnerIndex)
	r.broadcast(protocol.TypeBingoAnnounced, announce)
	return ClaimVerified, nil
}

// -------------------- Rounds --------------------

// StartNewRound replaces the whole round state: fresh pool and patterns,
// cleared call history and winners, and four newly generated cards for every
// owner slot still known to the session. Fresh state is pushed directly to
// each live connection as NEW_GAME; no re-join round trip is required.
func (r *Room) StartNewRound(cfg RoundConfig) error {
	state, err := r.buildState(cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()

	indexes := make([]int, 0, len(r.owners))
	for idx := range r.owners {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		cards, err := game.GenerateCards(state.AllItems, state.Mode, r.owners[idx].Name, idx)
		if err != nil {
			r.mu.Unlock()
			return err
		}
		state.Cards = append(state.Cards, cards...)
	}

	r.cfg = cfg
	r.state = state
	r.verifyFailures = 0

	type push struct {
		conn    *Client
		welcome *protocol.Welcome
	}
	pushes := make([]push, 0, len(indexes))
	for _, idx := range indexes {
		if conn := r.owners[idx].conn; conn != nil {
			pushes = append(pushes, push{conn: conn, welcome: r.welcomeLocked(idx)})
		}
	}
	r.mu.Unlock()

	logger.Infof("[room %s] new round: mode=%s theme=%q players=%d", r.Code, cfg.Mode, cfg.Theme, len(indexes))
	for _, p := range pushes {
		r.sendTo(p.conn, protocol.TypeNewGame, p.welcome)
	}
	return nil
}

// -------------------- Chat --------------------

// relayChat forwards a chat message to every other connected client. The
// sender gets no echo; the host stamps id, sender name, and timestamp.
func (r *Room) relayChat(from *Client, chat protocol.ChatMessage) {
	if strings.TrimSpace(chat.Text) == "" {
		return
	}
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if chat.Timestamp == 0 {
		chat.Timestamp = time.Now().UnixMilli()
	}
	if from.name != "" {
		chat.Sender = from.name
	}

	data, err := protocol.Encode(protocol.TypeChatMessage, chat)
	if err != nil {
		logger.Errorf("[room %s] encode chat: %v", r.Code, err)
		return
	}

	r.mu.RLock()
	targets := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		if c != from {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		r.deliver(c, data)
	}
}

// -------------------- Broadcast --------------------

// broadcast fans a message out to every open channel. Sends are
// fire-and-forget: a closed or backed-up channel is skipped, never retried
// or queued.
func (r *Room) broadcast(t protocol.Type, payload any) {
	data, err := protocol.Encode(t, payload)
	if err != nil {
		logger.Errorf("[room %s] encode %s: %v", r.Code, t, err)
		return
	}

	r.mu.RLock()
	targets := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		r.deliver(c, data)
	}
}

func (r *Room) sendTo(c *Client, t protocol.Type, payload any) {
	data, err := protocol.Encode(t, payload)
	if err != nil {
		logger.Errorf("[room %s] encode %s: %v", r.Code, t, err)
		return
	}
	r.deliver(c, data)
}

// deliver writes to a client's send channel without blocking. The recover
// guards the race between a broadcast and the channel closing.
func (r *Room) deliver(c *Client, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Debugf("[room %s] dropped message to closed channel owner=%d", r.Code, c.ownerIndex)
		}
	}()
	select {
	case c.send <- data:
	default:
		logger.Warnf("[room %s] dropping message to slow client owner=%d", r.Code, c.ownerIndex)
	}
}

// -------------------- Host view --------------------

// PlayerView is one owner slot in the host operator's room snapshot.
type PlayerView struct {
	OwnerIndex int      `json:"ownerIndex"`
	Name       string   `json:"name"`
	Connected  bool     `json:"connected"`
	CardIDs    []string `json:"cardIds"`
}

// Snapshot is the host operator's read-only view of the room.
type Snapshot struct {
	Code                 string       `json:"code"`
	Mode                 models.Mode  `json:"mode"`
	Theme                string       `json:"theme,omitempty"`
	Prize                string       `json:"prize,omitempty"`
	CurrentCall          string       `json:"currentCall"`
	CalledItems          []string     `json:"calledItems"`
	RemainingItems       int          `json:"remainingItems"`
	Players              []PlayerView `json:"players"`
	WinnerIDs            []string     `json:"winnerIds"`
	VerificationFailures int          `json:"verificationFailures"`
	Connections          int          `json:"connections"`
}

// Snapshot assembles the operator view under the read lock.
func (r *Room) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	indexes := make([]int, 0, len(r.owners))
	for idx := range r.owners {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	players := make([]PlayerView, 0, len(indexes))
	for _, idx := range indexes {
		slot := r.owners[idx]
		view := PlayerView{
			OwnerIndex: idx,
			Name:       slot.Name,
			Connected:  slot.conn != nil,
			CardIDs:    []string{},
		}
		for _, card := range r.state.Cards {
			if card.OwnerIndex == idx {
				view.CardIDs = append(view.CardIDs, card.ID)
			}
		}
		players = append(players, view)
	}

	return &Snapshot{
		Code:                 r.Code,
		Mode:                 r.state.Mode,
		Theme:                r.state.Theme,
		Prize:                r.state.Prize,
		CurrentCall:          r.state.CurrentCall,
		CalledItems:          append([]string(nil), r.state.CalledItems...),
		RemainingItems:       len(r.state.AllItems) - len(r.state.CalledItems),
		Players:              players,
		WinnerIDs:            append([]string(nil), r.state.WinnerIDs...),
		VerificationFailures: r.verifyFailures,
		Connections:          len(r.clients),
	}
}
