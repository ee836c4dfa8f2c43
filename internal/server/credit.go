package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/licentia/pkg/apperr"
)

type dealerCreditRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
	Consume     bool   `json:"consume"`
}

func (s *Server) assignDealerCredit(c *gin.Context) {
	dealerID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req dealerCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, apperr.Validation("invalid request body"))
		return
	}

	conn, actor, err := s.tenantConn(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	write := s.creditSvc.Assign
	message := "credit assigned"
	if req.Consume {
		write = s.creditSvc.Consume
		message = "credit consumed"
	}

	tran, err := write(c.Request.Context(), conn, dealerID, req.AmountCents, req.Reason, actor.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, message, tran)
}

func (s *Server) getDealerCredit(c *gin.Context) {
	dealerID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	conn, _, err := s.tenantConn(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.creditSvc.Balance(c.Request.Context(), conn, dealerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, "", gin.H{"dealer_id": dealerID, "balance_cents": balance})
}
