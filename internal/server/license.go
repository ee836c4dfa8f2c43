package server

import (
	"github.com/gin-gonic/gin"
	licensedomain "github.com/smallbiznis/licentia/internal/license/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
)

type generateLicenseRequest struct {
	ProductID   int64  `json:"product_id,string"`
	VariantID   int64  `json:"variant_id,string"`
	HolderName  string `json:"holder_name"`
	HolderEmail string `json:"holder_email"`
	HolderPhone string `json:"holder_phone"`
	SeatCount   int    `json:"seat_count"`
	DealerID    int64  `json:"dealer_id,string"`
	CreditCents int64  `json:"credit_cents"`
	Scheme      string `json:"scheme"`
	PaymentRef  string `json:"payment_ref"`
	AmountCents int64  `json:"amount_cents"`
}

func (s *Server) generateLicense(c *gin.Context) {
	var req generateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, apperr.Validation("invalid request body"))
		return
	}

	conn, actor, err := s.tenantConn(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	issued, err := s.licenseSvc.Generate(c.Request.Context(), conn, licensedomain.GenerateRequest{
		ProductID:   snowflakeID(req.ProductID),
		VariantID:   snowflakeID(req.VariantID),
		HolderName:  req.HolderName,
		HolderEmail: req.HolderEmail,
		HolderPhone: req.HolderPhone,
		SeatCount:   req.SeatCount,
		DealerID:    snowflakeID(req.DealerID),
		CreditCents: req.CreditCents,
		Scheme:      req.Scheme,
		PaymentRef:  req.PaymentRef,
		AmountCents: req.AmountCents,
		ActorID:     actor.UserID,
	})
	if err != nil {
		s.metrics.ObserveLicenseFailure(apperr.KindOf(err).String())
		AbortWithError(c, err)
		return
	}
	if no := issued.Detail.LicenseNo; len(no) >= 2 {
		s.metrics.ObserveLicenseIssued(no[:2])
	}
	respondOK(c, "license generated", issued)
}

type validateLicenseRequest struct {
	LicenseNo string `json:"license_no"`
}

func (s *Server) validateLicense(c *gin.Context) {
	var req validateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, apperr.Validation("invalid request body"))
		return
	}

	conn, _, err := s.tenantConn(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.licenseSvc.Validate(c.Request.Context(), conn, req.LicenseNo)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, "", result)
}

type modifyLicenseRequest struct {
	Months      int    `json:"months"`
	SeatCount   int    `json:"seat_count"`
	DealerID    int64  `json:"dealer_id,string"`
	AddonType   string `json:"addon_type"`
	AddonValue  int    `json:"addon_value"`
	Consume     bool   `json:"consume"`
	Scheme      string `json:"scheme"`
	PaymentRef  string `json:"payment_ref"`
	AmountCents int64  `json:"amount_cents"`
}

func (s *Server) modifyRequest(c *gin.Context) (modifyLicenseRequest, licensedomain.ModifyRequest, error) {
	var body modifyLicenseRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return body, licensedomain.ModifyRequest{}, apperr.Validation("invalid request body")
	}
	actor, err := s.resolver.CurrentActor(c.Request.Context())
	if err != nil {
		return body, licensedomain.ModifyRequest{}, err
	}
	return body, licensedomain.ModifyRequest{
		LicenseNo:   c.Param("no"),
		Scheme:      body.Scheme,
		PaymentRef:  body.PaymentRef,
		AmountCents: body.AmountCents,
		ActorID:     actor.UserID,
	}, nil
}

func (s *Server) extendLicense(c *gin.Context) {
	body, req, err := s.modifyRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	conn, _, err := s.tenantConn(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status, err := s.licenseSvc.ExtendValidity(c.Request.Context(), conn, req, body.Months)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, "license extended", status)
}

func (s *Server) changeLicenseSeats(c *gin.Context) {
	body, req, err := s.modifyRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	conn, _, err := s.tenantConn(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status, err := s.licenseSvc.ChangeSeats(c.Request.Context(), conn, req, body.SeatCount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, "seat count updated", status)
}

func (s *Server) reassignLicenseDealer(c *gin.Context) {
	body, req, err := s.modifyRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	conn, _, err := s.tenantConn(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status, err := s.licenseSvc.ReassignDealer(c.Request.Context(), conn, req, snowflakeID(body.DealerID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, "dealer reassigned", status)
}

func (s *Server) applyLicenseAddon(c *gin.Context) {
	body, req, err := s.modifyRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	conn, _, err := s.tenantConn(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	apply := s.licenseSvc.PurchaseAddon
	message := "addon purchased"
	if body.Consume {
		apply = s.licenseSvc.ConsumeAddon
		message = "addon consumed"
	}

	status, err := apply(c.Request.Context(), conn, req, body.AddonType, body.AddonValue)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, message, status)
}
