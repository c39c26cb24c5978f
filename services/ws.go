package services

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jestadalan-dotcom/Jes-Bingo/utils/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades a player's dial into a room channel. The player
// identifies itself afterwards with a JOIN_REQUEST over the channel.
func HandleWebSocket(reg *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, ok := reg.Lookup(c.Param("code"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": ErrRoomNotFound.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warnf("[ws] upgrade error: %v", err)
			return
		}

		room.Register(newClient(room, conn))
	}
}
