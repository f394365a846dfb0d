package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skosovsky/chatbridge"
)

// legacyStatus is the status field reported in legacy error bodies.
const legacyStatus = http.StatusInternalServerError

type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, chatbridge.ErrMissingToken):
		return "need token"
	case errors.Is(err, chatbridge.ErrMissingMessages):
		return "need message"
	default:
		return err.Error()
	}
}

// reject reports a client error before any provider call.
func (s *Server) reject(c *gin.Context, err *chatbridge.RequestError) {
	msg := clientMessage(err.Err)
	if s.legacyErrors {
		c.JSON(http.StatusOK, errorBody{Status: legacyStatus, Message: msg})
		return
	}
	c.JSON(err.Status, errorBody{Status: err.Status, Message: msg})
}

// providerFailure reports an upstream failure before any response byte was written.
func (s *Server) providerFailure(c *gin.Context, err error) {
	if s.legacyErrors {
		c.JSON(http.StatusOK, errorBody{Status: legacyStatus, Message: err.Error()})
		return
	}
	c.JSON(http.StatusBadGateway, errorBody{Status: http.StatusBadGateway, Message: err.Error()})
}
