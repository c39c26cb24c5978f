package services

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/jestadalan-dotcom/Jes-Bingo/utils/logger"
)

const (
	roomCodeLength  = 8
	roomCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ErrRoomNotFound is returned when a dialed room code matches no live room.
var ErrRoomNotFound = errors.New("room not found")

// Registry maps advertised room codes to their live rooms.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	source ItemSource
}

func NewRegistry(source ItemSource) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		source: source,
	}
}

// CreateRoom allocates a fresh room code and builds the first round from the
// given config.
func (reg *Registry) CreateRoom(cfg RoundConfig) (*Room, error) {
	code, err := reg.allocateRoomCode()
	if err != nil {
		return nil, err
	}
	room, err := NewRoom(code, cfg, reg.source)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	reg.rooms[code] = room
	reg.mu.Unlock()

	logger.Infof("[registry] room %s created (mode=%s)", code, cfg.Mode)
	return room, nil
}

// Lookup resolves a dialed code. Codes are case-normalized to uppercase at
// entry.
func (reg *Registry) Lookup(code string) (*Room, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	reg.mu.RLock()
	room, ok := reg.rooms[code]
	reg.mu.RUnlock()
	return room, ok
}

// allocateRoomCode draws an 8-character uppercase alphanumeric identifier
// from crypto/rand, retrying on the unlikely collision with a live room.
func (reg *Registry) allocateRoomCode() (string, error) {
	for {
		var b strings.Builder
		for i := 0; i < roomCodeLength; i++ {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeCharset))))
			if err != nil {
				return "", err
			}
			b.WriteByte(roomCodeCharset[n.Int64()])
		}
		code := b.String()

		reg.mu.RLock()
		_, taken := reg.rooms[code]
		reg.mu.RUnlock()
		if !taken {
			return code, nil
		}
	}
}
