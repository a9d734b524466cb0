package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/coursepay/internal/order/domain"
	promodomain "github.com/smallbiznis/coursepay/internal/promo/domain"
)

type ValidatePromoRequest struct {
	Code        string `json:"code"`
	Email       string `json:"email"`
	ProductCode string `json:"product_code"`
}

type ValidatePromoResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
	Type       string `json:"type,omitempty"`
	Value      string `json:"value,omitempty"`
	Amount     string `json:"amount,omitempty"`
	BaseAmount string `json:"base_amount,omitempty"`
}

// ValidatePromo quotes a product with a promo code. Rejections are reported
// in the body with a 200 so the checkout form can show the reason.
func (s *Server) ValidatePromo(c *gin.Context) {
	var req ValidatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, ValidatePromoResponse{Error: ErrInvalidRequest.Error()})
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		c.JSON(http.StatusBadRequest, ValidatePromoResponse{Error: orderdomain.ErrInvalidEmail.Error()})
		return
	}

	quote, err := s.orders.Quote(c.Request.Context(), orderdomain.QuoteRequest{
		Email:       req.Email,
		ProductCode: req.ProductCode,
		PromoCode:   req.Code,
	})
	var promoErr *orderdomain.PromoError
	switch {
	case errors.As(err, &promoErr):
		c.JSON(http.StatusOK, ValidatePromoResponse{Error: string(promoErr.Reason)})
		return
	case err != nil:
		AbortWithError(c, err)
		return
	case quote.PromoCode == "":
		// Promo support is switched off.
		c.JSON(http.StatusOK, ValidatePromoResponse{Error: string(promodomain.ReasonNotFound)})
		return
	}

	c.JSON(http.StatusOK, ValidatePromoResponse{
		Success:    true,
		Code:       quote.PromoCode,
		Type:       quote.PromoType,
		Value:      quote.PromoValue,
		Amount:     quote.Amount,
		BaseAmount: quote.BaseAmount,
	})
}
