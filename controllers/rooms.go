package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/jestadalan-dotcom/Jes-Bingo/config"
	"github.com/jestadalan-dotcom/Jes-Bingo/game"
	"github.com/jestadalan-dotcom/Jes-Bingo/services"
)

// CreateRoom opens a new session for a host. The response carries the room
// code players dial.
func CreateRoom(cfg *config.Config, reg *services.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var round services.RoundConfig
		if err := c.ShouldBindJSON(&round); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		room, err := reg.CreateRoom(round)
		if err != nil {
			status := http.StatusBadRequest
			var genErr *game.GenerationError
			if errors.As(err, &genErr) {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"code":    room.Code,
			"joinUrl": fmt.Sprintf("%s/join/%s", cfg.BaseURL(c.Request.Host), room.Code),
		})
	}
}

// GetRoom returns the host operator's snapshot of a room.
func GetRoom(reg *services.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, ok := reg.Lookup(c.Param("code"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": services.ErrRoomNotFound.Error()})
			return
		}
		c.JSON(http.StatusOK, room.Snapshot())
	}
}

// CallNext lets the host draw the next item manually.
func CallNext(reg *services.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, ok := reg.Lookup(c.Param("code"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": services.ErrRoomNotFound.Error()})
			return
		}

		item, err := room.CallNext()
		if err != nil {
			if errors.Is(err, services.ErrPoolExhausted) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "exhausted": true})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"item": item})
	}
}

// NewRound resets a room to a fresh round. Every known player receives newly
// generated cards pushed over their live connection.
func NewRound(reg *services.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, ok := reg.Lookup(c.Param("code"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": services.ErrRoomNotFound.Error()})
			return
		}

		var round services.RoundConfig
		if err := c.ShouldBindJSON(&round); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := room.StartNewRound(round); err != nil {
			status := http.StatusBadRequest
			var genErr *game.GenerationError
			if errors.As(err, &genErr) {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, room.Snapshot())
	}
}

type autoCallRequest struct {
	Action          string `json:"action" binding:"required"` // start | stop
	IntervalSeconds int    `json:"intervalSeconds,omitempty"`
}

// AutoCall starts or stops a room's periodic caller.
func AutoCall(cfg *config.Config, reg *services.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, ok := reg.Lookup(c.Param("code"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": services.ErrRoomNotFound.Error()})
			return
		}

		var req autoCallRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		switch req.Action {
		case "start":
			interval := cfg.CallInterval
			if req.IntervalSeconds > 0 {
				interval = time.Duration(req.IntervalSeconds) * time.Second
			}
			room.StartAutoCall(interval)
			c.JSON(http.StatusOK, gin.H{"autoCall": true, "interval": interval.String()})
		case "stop":
			room.StopAutoCall()
			c.JSON(http.StatusOK, gin.H{"autoCall": false})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "action must be start or stop"})
		}
	}
}

// RoomQR renders the join link as a PNG QR code hosts can put on a screen.
func RoomQR(cfg *config.Config, reg *services.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, ok := reg.Lookup(c.Param("code"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": services.ErrRoomNotFound.Error()})
			return
		}

		joinURL := fmt.Sprintf("%s/join/%s", cfg.BaseURL(c.Request.Host), room.Code)
		png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	}
}
