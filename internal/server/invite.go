package server

import (
	"github.com/gin-gonic/gin"
	invitedomain "github.com/smallbiznis/licentia/internal/invite/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
)

func (s *Server) createInvite(c *gin.Context) {
	tenantID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req invitedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, apperr.Validation("invalid request body"))
		return
	}
	req.TenantID = tenantID

	inv, err := s.inviteSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, "invite created", inv)
}

type inviteTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) acceptInvite(c *gin.Context) {
	var req inviteTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, apperr.Validation("invalid request body"))
		return
	}

	inv, err := s.inviteSvc.Accept(c.Request.Context(), req.Token)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, "invite accepted", inv)
}

func (s *Server) rejectInvite(c *gin.Context) {
	var req inviteTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, apperr.Validation("invalid request body"))
		return
	}

	inv, err := s.inviteSvc.Reject(c.Request.Context(), req.Token)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, "invite rejected", inv)
}

type inviteCancelRequest struct {
	InviteID int64 `json:"invite_id,string"`
}

func (s *Server) cancelInvite(c *gin.Context) {
	var req inviteCancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, apperr.Validation("invalid request body"))
		return
	}

	inv, err := s.inviteSvc.Cancel(c.Request.Context(), snowflakeID(req.InviteID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, "invite cancelled", inv)
}

type inviteDeregisterRequest struct {
	TenantID   int64  `json:"tenant_id,string"`
	Identifier string `json:"identifier"`
}

func (s *Server) deregisterInvite(c *gin.Context) {
	var req inviteDeregisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, apperr.Validation("invalid request body"))
		return
	}

	inv, err := s.inviteSvc.Deregister(c.Request.Context(), snowflakeID(req.TenantID), req.Identifier)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, "invite deregistered", inv)
}
