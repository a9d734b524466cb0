package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/coursepay/internal/payment/domain"
)

// HandlePaymentResult answers the gateway result callback with a bare text
// body. Query string and form fields are merged.
func (s *Server) HandlePaymentResult(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, paymentdomain.ErrBadRequest.Error())
		return
	}

	res := s.reconciler.HandleResult(c.Request.Context(), c.Request.Form)
	c.String(res.Status, res.Body)
}
