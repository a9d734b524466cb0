package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/coursepay/internal/order/domain"
)

type CreateOrderRequest struct {
	Email       string `json:"email"`
	ProductCode string `json:"product_code"`
	PromoCode   string `json:"promo_code"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	checkout, err := s.orders.CreateOrder(c.Request.Context(), orderdomain.CreateOrderRequest{
		Email:       req.Email,
		ProductCode: req.ProductCode,
		PromoCode:   req.PromoCode,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	_, withPromo := checkout.Params["Shp_promo"]
	s.metrics.RecordOrderCreated(checkout.Params["Shp_product"], withPromo)

	c.JSON(http.StatusOK, checkout)
}
