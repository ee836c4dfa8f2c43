package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/licentia/internal/catalog/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
	pkgdb "github.com/smallbiznis/licentia/pkg/db"
	"gorm.io/gorm"
)

type createProductRequest struct {
	Name          string `json:"name"`
	LicensePrefix string `json:"license_prefix"`

	Variants []struct {
		Name         string `json:"name"`
		UserCount    int    `json:"user_count"`
		ValidityDays int    `json:"validity_days"`
		GraceDays    int    `json:"grace_days"`
	} `json:"variants"`
}

// createProduct is the thin catalog write the licensing flows depend on;
// richer catalog management lives in the back-office UI service.
func (s *Server) createProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, apperr.Validation("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		AbortWithError(c, apperr.Validation("product name is required"))
		return
	}
	if len(req.LicensePrefix) != 2 {
		AbortWithError(c, apperr.Validation("license prefix must be two characters"))
		return
	}

	conn, actor, err := s.tenantConn(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	now := s.clk.Now()
	product := catalogdomain.Product{
		ID:            s.genID.Generate(),
		Name:          req.Name,
		LicensePrefix: strings.ToUpper(req.LicensePrefix),
		CreatedBy:     actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	variants := make([]catalogdomain.ProductVariant, 0, len(req.Variants))
	for _, v := range req.Variants {
		variants = append(variants, catalogdomain.ProductVariant{
			ID:           s.genID.Generate(),
			ProductID:    product.ID,
			Name:         v.Name,
			UserCount:    v.UserCount,
			ValidityDays: v.ValidityDays,
			GraceDays:    v.GraceDays,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	err = conn.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&product).Error; err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return apperr.Conflict("license prefix already in use")
			}
			return apperr.Persistence("could not create product", err)
		}
		if len(variants) > 0 {
			if err := tx.Create(&variants).Error; err != nil {
				return apperr.Persistence("could not create product variants", err)
			}
		}
		return nil
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondOK(c, "product created", gin.H{"product": product, "variants": variants})
}

func (s *Server) listProducts(c *gin.Context) {
	conn, _, err := s.tenantConn(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var products []catalogdomain.Product
	if err := conn.WithContext(c.Request.Context()).Order("created_at").Find(&products).Error; err != nil {
		AbortWithError(c, apperr.Persistence("could not list products", err))
		return
	}
	respondOK(c, "", products)
}
