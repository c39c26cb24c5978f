package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jestadalan-dotcom/Jes-Bingo/models"
	"github.com/jestadalan-dotcom/Jes-Bingo/protocol"
)

func testRoom(t *testing.T) *Room {
	t.Helper()
	room, err := NewRoom("TESTROOM", RoundConfig{Mode: models.ModeStandard}, nil)
	require.NoError(t, err)
	return room
}

// fakeClient attaches a connection-less client so tests can observe frames
// queued on its send channel.
func fakeClient(room *Room) *Client {
	c := newClient(room, nil)
	room.attach(c)
	return c
}

// drainFrames empties a client's send channel into decoded envelopes.
func drainFrames(t *testing.T, c *Client) []*protocol.Envelope {
	t.Helper()
	var out []*protocol.Envelope
	for {
		select {
		case data := <-c.send:
			env, err := protocol.Decode(data)
			require.NoError(t, err)
			out = append(out, env)
		default:
			return out
		}
	}
}

func countType(envs []*protocol.Envelope, want protocol.Type) int {
	n := 0
	for _, env := range envs {
		if env.Type == want {
			n++
		}
	}
	return n
}

func joinPlayer(t *testing.T, room *Room, name string) (*Client, *protocol.Welcome) {
	t.Helper()
	c := fakeClient(room)
	room.handleJoin(c, protocol.JoinRequest{PlayerName: name})

	frames := drainFrames(t, c)
	require.NotEmpty(t, frames, "join must produce a WELCOME")
	last := frames[len(frames)-1]
	require.Equal(t, protocol.TypeWelcome, last.Type)

	var welcome protocol.Welcome
	require.NoError(t, last.Bind(&welcome))
	return c, &welcome
}

// plantCard injects a card whose row 0 holds the given five values; the rest
// of the grid is filled with values that are never called.
func plantCard(room *Room, owner int, row0 [5]string) *models.BingoCard {
	cells := make([]*models.BingoCell, models.CardCells)
	for i := range cells {
		cells[i] = &models.BingoCell{Value: fmt.Sprintf("filler-%d", i)}
	}
	for i, v := range row0 {
		cells[i] = &models.BingoCell{Value: v}
	}
	cells[models.FreeSpaceIndex] = &models.BingoCell{IsFreeSpace: true}

	card := &models.BingoCard{
		ID:         fmt.Sprintf("planted-%d", owner),
		OwnerIndex: owner,
		PlayerName: "Planted",
		Cells:      cells,
	}
	room.mu.Lock()
	room.state.Cards = append(room.state.Cards, card)
	room.mu.Unlock()
	return card
}

// -------------------- joins --------------------

func TestJoin_AllocatesOwnersAndCards(t *testing.T) {
	room := testRoom(t)

	_, alice := joinPlayer(t, room, "Alice")
	assert.Equal(t, 0, alice.OwnerIndex)
	assert.Equal(t, "Alice", alice.PlayerName)
	assert.Len(t, alice.Cards, 4)
	assert.NotEmpty(t, alice.SessionToken)
	assert.Len(t, alice.WinPatterns, 12)

	_, bob := joinPlayer(t, room, "Bob")
	assert.Equal(t, 1, bob.OwnerIndex)
	assert.Len(t, bob.Cards, 4)

	snap := room.Snapshot()
	assert.Len(t, snap.Players, 2)
}

func TestJoin_EmptyNameGetsDefault(t *testing.T) {
	room := testRoom(t)
	_, w := joinPlayer(t, room, "")
	assert.Equal(t, "Player 1", w.PlayerName)
}

func TestJoin_ReconnectByNameKeepsCards(t *testing.T) {
	room := testRoom(t)

	c1, first := joinPlayer(t, room, "Alice")
	room.Unregister(c1)

	// Case-insensitive name match reclaims the slot and its exact cards.
	_, second := joinPlayer(t, room, "ALICE")
	assert.Equal(t, first.OwnerIndex, second.OwnerIndex)

	require.Len(t, second.Cards, 4)
	for i, card := range second.Cards {
		assert.Equal(t, first.Cards[i].ID, card.ID, "reconnect must keep identical cards")
	}

	snap := room.Snapshot()
	assert.Len(t, snap.Players, 1, "rejoin must not duplicate the card set")
	assert.Len(t, snap.Players[0].CardIDs, 4)
}

func TestJoin_SameNameWhileConnectedGetsNewSlot(t *testing.T) {
	room := testRoom(t)

	_, first := joinPlayer(t, room, "Alice")
	_, second := joinPlayer(t, room, "alice")

	// A bare name cannot hijack a live slot.
	assert.NotEqual(t, first.OwnerIndex, second.OwnerIndex)
}

func TestJoin_TokenReclaimsLiveSlot(t *testing.T) {
	room := testRoom(t)

	c1, first := joinPlayer(t, room, "Alice")

	c2 := fakeClient(room)
	room.handleJoin(c2, protocol.JoinRequest{PlayerName: "Alice", SessionToken: first.SessionToken})

	frames := drainFrames(t, c2)
	require.NotEmpty(t, frames)
	var second protocol.Welcome
	require.NoError(t, frames[len(frames)-1].Bind(&second))

	assert.Equal(t, first.OwnerIndex, second.OwnerIndex)
	assert.Equal(t, first.Cards[0].ID, second.Cards[0].ID)

	room.mu.RLock()
	_, oldStillAttached := room.clients[c1]
	room.mu.RUnlock()
	assert.False(t, oldStillAttached, "token reclaim supersedes the old channel")
}

// -------------------- calling --------------------

func TestCallNext_DrawsWithoutDuplicatesUntilExhausted(t *testing.T) {
	room := testRoom(t)
	room.mu.Lock()
	room.state.AllItems = []string{"a", "b", "c"}
	room.mu.Unlock()

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		item, err := room.CallNext()
		require.NoError(t, err)
		assert.False(t, seen[item], "item %q called twice", item)
		seen[item] = true

		snap := room.Snapshot()
		assert.Equal(t, item, snap.CurrentCall)
		assert.Equal(t, item, snap.CalledItems[0], "history is most recent first")
	}

	_, err := room.CallNext()
	assert.ErrorIs(t, err, ErrPoolExhausted)

	snap := room.Snapshot()
	assert.Len(t, snap.CalledItems, 3)
	assert.Equal(t, 0, snap.RemainingItems)
}

func TestCallNext_BroadcastsAndMarksHostCards(t *testing.T) {
	room := testRoom(t)
	card := plantCard(room, 0, [5]string{"3", "20", "38", "52", "68"})
	observer := fakeClient(room)

	room.mu.Lock()
	room.state.AllItems = []string{"3"}
	room.mu.Unlock()

	item, err := room.CallNext()
	require.NoError(t, err)
	assert.Equal(t, "3", item)
	assert.True(t, card.Cells[0].Marked, "host-side display marks the called value")

	frames := drainFrames(t, observer)
	require.Equal(t, 1, countType(frames, protocol.TypeNextCall))
}

func TestStartAutoCall(t *testing.T) {
	room := testRoom(t)
	room.StartAutoCall(5 * time.Millisecond)
	defer room.StopAutoCall()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(room.Snapshot().CalledItems) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("auto-caller issued no calls")
}

// -------------------- claims --------------------

func TestClaim_RowZeroWin(t *testing.T) {
	room := testRoom(t)
	card := plantCard(room, 0, [5]string{"3", "20", "38", "52", "68"})
	observer := fakeClient(room)

	room.mu.Lock()
	room.state.CalledItems = []string{"68", "52", "38", "20", "3"}
	room.mu.Unlock()

	result, err := room.Claim(card.ID)
	require.NoError(t, err)
	assert.Equal(t, ClaimVerified, result)

	snap := room.Snapshot()
	assert.Equal(t, []string{card.ID}, snap.WinnerIDs)

	frames := drainFrames(t, observer)
	require.Equal(t, 1, countType(frames, protocol.TypeBingoAnnounced))

	var announce protocol.BingoAnnounced
	for _, env := range frames {
		if env.Type == protocol.TypeBingoAnnounced {
			require.NoError(t, env.Bind(&announce))
		}
	}
	assert.Equal(t, card.ID, announce.CardID)
	assert.Equal(t, 0, announce.OwnerIndex)
}

func TestClaim_ClientMarksAreNeverTrusted(t *testing.T) {
	room := testRoom(t)
	card := plantCard(room, 0, [5]string{"3", "20", "38", "52", "68"})
	observer := fakeClient(room)

	// The claimant marked a full row client-side, but none of those values
	// were actually called.
	for i := 0; i < 5; i++ {
		card.Cells[i].Marked = true
	}

	result, err := room.Claim(card.ID)
	require.NoError(t, err)
	assert.Equal(t, ClaimFailed, result)

	snap := room.Snapshot()
	assert.Empty(t, snap.WinnerIDs)
	assert.Equal(t, 1, snap.VerificationFailures)

	frames := drainFrames(t, observer)
	assert.Zero(t, countType(frames, protocol.TypeBingoAnnounced), "failed claims are never broadcast")
}

func TestClaim_Idempotent(t *testing.T) {
	room := testRoom(t)
	card := plantCard(room, 0, [5]string{"3", "20", "38", "52", "68"})
	observer := fakeClient(room)

	room.mu.Lock()
	room.state.CalledItems = []string{"3", "20", "38", "52", "68"}
	room.mu.Unlock()

	first, err := room.Claim(card.ID)
	require.NoError(t, err)
	assert.Equal(t, ClaimVerified, first)

	second, err := room.Claim(card.ID)
	require.NoError(t, err)
	assert.Equal(t, ClaimDuplicate, second)

	snap := room.Snapshot()
	assert.Equal(t, []string{card.ID}, snap.WinnerIDs, "winner recorded exactly once")

	frames := drainFrames(t, observer)
	assert.Equal(t, 1, countType(frames, protocol.TypeBingoAnnounced))
}

func TestClaim_ConcurrentDuplicatesAnnounceOnce(t *testing.T) {
	room := testRoom(t)
	card := plantCard(room, 0, [5]string{"3", "20", "38", "52", "68"})
	observer := fakeClient(room)

	room.mu.Lock()
	room.state.CalledItems = []string{"3", "20", "38", "52", "68"}
	room.mu.Unlock()

	var wg sync.WaitGroup
	results := make([]ClaimResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := room.Claim(card.ID)
			require.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	verified := 0
	for _, r := range results {
		if r == ClaimVerified {
			verified++
		}
	}
	assert.Equal(t, 1, verified, "exactly one racing claim wins")

	snap := room.Snapshot()
	assert.Equal(t, []string{card.ID}, snap.WinnerIDs)

	frames := drainFrames(t, observer)
	assert.Equal(t, 1, countType(frames, protocol.TypeBingoAnnounced))
}

func TestClaim_UnknownCard(t *testing.T) {
	room := testRoom(t)
	_, err := room.Claim("no-such-card")
	assert.ErrorIs(t, err, ErrCardNotFound)
}

func TestHandleClaim_RejectionGoesToClaimantOnly(t *testing.T) {
	room := testRoom(t)
	card := plantCard(room, 0, [5]string{"3", "20", "38", "52", "68"})
	claimant := fakeClient(room)
	observer := fakeClient(room)

	room.handleClaim(claimant, protocol.ClaimBingo{CardID: card.ID, OwnerIndex: 0})

	claimantFrames := drainFrames(t, claimant)
	require.Equal(t, 1, countType(claimantFrames, protocol.TypeClaimRejected))

	var rej protocol.ClaimRejected
	require.NoError(t, claimantFrames[0].Bind(&rej))
	assert.Equal(t, card.ID, rej.CardID)
	assert.NotEmpty(t, rej.Reason)

	assert.Empty(t, drainFrames(t, observer), "rejections are host-local plus claimant only")
}

// -------------------- rounds --------------------

func TestStartNewRound_ResetsStateAndRedealsEveryone(t *testing.T) {
	room := testRoom(t)
	c1, alice := joinPlayer(t, room, "Alice")
	c2, bob := joinPlayer(t, room, "Bob")

	_, err := room.CallNext()
	require.NoError(t, err)
	planted := plantCard(room, alice.OwnerIndex, [5]string{"3", "20", "38", "52", "68"})
	room.mu.Lock()
	room.state.WinnerIDs = []string{planted.ID}
	room.mu.Unlock()
	drainFrames(t, c1)
	drainFrames(t, c2)

	require.NoError(t, room.StartNewRound(RoundConfig{Mode: models.ModeStandard, Prize: "Trophy"}))

	snap := room.Snapshot()
	assert.Empty(t, snap.CalledItems)
	assert.Empty(t, snap.CurrentCall)
	assert.Empty(t, snap.WinnerIDs)
	require.Len(t, snap.Players, 2)
	for _, p := range snap.Players {
		assert.Len(t, p.CardIDs, 4, "every known player gets a fresh 4-card set")
	}

	for i, c := range []*Client{c1, c2} {
		frames := drainFrames(t, c)
		require.Equal(t, 1, countType(frames, protocol.TypeNewGame), "client %d", i)

		var fresh protocol.Welcome
		for _, env := range frames {
			if env.Type == protocol.TypeNewGame {
				require.NoError(t, env.Bind(&fresh))
			}
		}
		assert.Len(t, fresh.Cards, 4)
		assert.Equal(t, "Trophy", fresh.Prize)
		assert.Empty(t, fresh.CalledItems)
	}

	// Fresh cards, not the previous round's.
	freshBob := ownerCards(room, bob.OwnerIndex)
	assert.NotEqual(t, bob.Cards[0].ID, freshBob[0].ID)
}

// ownerCards fetches the current cards for an owner straight from state.
func ownerCards(room *Room, owner int) []*models.BingoCard {
	room.mu.RLock()
	defer room.mu.RUnlock()
	var cards []*models.BingoCard
	for _, card := range room.state.Cards {
		if card.OwnerIndex == owner {
			cards = append(cards, card)
		}
	}
	return cards
}

func TestNewRoom_ThemedPoolTooSmall(t *testing.T) {
	_, err := NewRoom("TESTROOM", RoundConfig{
		Mode:  models.ModeThemed,
		Theme: "space",
		Items: []string{"moon", "star", "comet"},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool too small")
}

// -------------------- protocol hygiene --------------------

func TestHandleMessage_MalformedFramesAreIgnored(t *testing.T) {
	room := testRoom(t)
	c := fakeClient(room)

	assert.NotPanics(t, func() {
		room.handleMessage(c, []byte("junk"))
		room.handleMessage(c, []byte(`{"payload":{}}`))
		room.handleMessage(c, []byte(`{"type":"NO_SUCH_TAG"}`))
		room.handleMessage(c, []byte(`{"type":"CLAIM_BINGO","payload":"not-an-object"}`))
	})

	// The session keeps working afterwards.
	_, w := joinPlayer(t, room, "Alice")
	assert.Len(t, w.Cards, 4)
}

// -------------------- chat --------------------

func TestRelayChat_SkipsSender(t *testing.T) {
	room := testRoom(t)
	sender, _ := joinPlayer(t, room, "Alice")
	receiver, _ := joinPlayer(t, room, "Bob")
	drainFrames(t, sender)
	drainFrames(t, receiver)

	room.relayChat(sender, protocol.ChatMessage{Text: "good luck!"})

	assert.Empty(t, drainFrames(t, sender), "no echo back to the sender")

	frames := drainFrames(t, receiver)
	require.Equal(t, 1, countType(frames, protocol.TypeChatMessage))

	var chat protocol.ChatMessage
	require.NoError(t, frames[0].Bind(&chat))
	assert.Equal(t, "Alice", chat.Sender)
	assert.Equal(t, "good luck!", chat.Text)
	assert.NotEmpty(t, chat.ID)
	assert.NotZero(t, chat.Timestamp)
}
