package server

import (
	"time"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/smallbiznis/licentia/internal/pricing/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
)

type savePricingRequest struct {
	ProductID int64 `json:"product_id,string"`
	VariantID int64 `json:"variant_id,string"`

	VariantPricing        []*pricingdomain.VariantPricing       `json:"variant_pricing"`
	AddonPlans            []*pricingdomain.AddonPlan            `json:"addon_plans"`
	UserDiscountSlabs     []*pricingdomain.UserDiscountSlab     `json:"user_discount_slabs"`
	ValidityDiscountSlabs []*pricingdomain.ValidityDiscountSlab `json:"validity_discount_slabs"`
}

func (s *Server) savePricing(c *gin.Context) {
	var req savePricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, apperr.Validation("invalid request body"))
		return
	}

	conn, _, err := s.tenantConn(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	set := pricingdomain.PricingSet{
		ProductID:             snowflakeID(req.ProductID),
		VariantID:             snowflakeID(req.VariantID),
		VariantPricing:        req.VariantPricing,
		AddonPlans:            req.AddonPlans,
		UserDiscountSlabs:     req.UserDiscountSlabs,
		ValidityDiscountSlabs: req.ValidityDiscountSlabs,
	}
	if err := s.pricingSvc.SavePricing(c.Request.Context(), conn, set); err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, "pricing saved", set)
}

type pricingView struct {
	VariantPricing        pricingdomain.Resolution[*pricingdomain.VariantPricing]       `json:"variant_pricing"`
	AddonPlans            pricingdomain.Resolution[*pricingdomain.AddonPlan]            `json:"addon_plans"`
	UserDiscountSlabs     pricingdomain.Resolution[*pricingdomain.UserDiscountSlab]     `json:"user_discount_slabs"`
	ValidityDiscountSlabs pricingdomain.Resolution[*pricingdomain.ValidityDiscountSlab] `json:"validity_discount_slabs"`
}

func (s *Server) getPricing(c *gin.Context) {
	productID := parseID(c.Query("product_id"))
	variantID := parseID(c.Query("variant_id"))
	if productID == 0 || variantID == 0 {
		AbortWithError(c, apperr.Validation("product_id and variant_id are required"))
		return
	}

	asOf := s.clk.Now()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			AbortWithError(c, apperr.Validation("as_of must be YYYY-MM-DD"))
			return
		}
		asOf = parsed
	}

	conn, _, err := s.tenantConn(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	var view pricingView
	if view.VariantPricing, err = s.pricingSvc.ResolveVariantPricing(ctx, conn, productID, variantID, asOf); err != nil {
		AbortWithError(c, err)
		return
	}
	if view.AddonPlans, err = s.pricingSvc.ResolveAddonPlans(ctx, conn, productID, variantID, asOf); err != nil {
		AbortWithError(c, err)
		return
	}
	if view.UserDiscountSlabs, err = s.pricingSvc.ResolveUserDiscountSlabs(ctx, conn, productID, variantID, asOf); err != nil {
		AbortWithError(c, err)
		return
	}
	if view.ValidityDiscountSlabs, err = s.pricingSvc.ResolveValidityDiscountSlabs(ctx, conn, productID, variantID, asOf); err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, "", view)
}
