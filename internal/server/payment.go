package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/sitecraft/internal/payment/domain"
)

type createOrderRequest struct {
	UserID string `json:"userId"`
	Amount *int64 `json:"amount"`
}

// verifyPaymentRequest accepts both our field names and the ones the
// checkout widget hands back to the browser.
type verifyPaymentRequest struct {
	OrderID           string `json:"orderId"`
	PaymentID         string `json:"paymentId"`
	Signature         string `json:"signature"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

func (r verifyPaymentRequest) toDomain() paymentdomain.VerifyPaymentRequest {
	return paymentdomain.VerifyPaymentRequest{
		OrderID:   firstNonEmpty(r.OrderID, r.RazorpayOrderID),
		PaymentID: firstNonEmpty(r.PaymentID, r.RazorpayPaymentID),
		Signature: firstNonEmpty(r.Signature, r.RazorpaySignature),
	}
}

type cancelOrderRequest struct {
	OrderID string `json:"orderId"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.CreateOrder(c.Request.Context(), paymentdomain.CreateOrderRequest{
		UserID: req.UserID,
		Amount: req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, createOrderResponse{
		Success:   true,
		OrderID:   resp.OrderID,
		Amount:    resp.Amount,
		Currency:  resp.Currency,
		Key:       resp.KeyID,
		PaymentID: resp.PaymentID.String(),
	})
}

func (s *Server) GetPaymentStatus(c *gin.Context) {
	payment, err := s.paymentSvc.GetByOrderID(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": newPaymentView(payment)})
}

func (s *Server) GetActivePayment(c *gin.Context) {
	entitlement, err := s.entitlementSvc.GetEntitlementDetail(c.Request.Context(), c.Param("userId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, activePaymentResponse{
		HasActivePayment: entitlement.Active,
		Payment:          newEntitlementPaymentView(entitlement),
	})
}

func (s *Server) ListPaymentHistory(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPagination)
		return
	}
	offset, err := parseOptionalInt(c.Query("offset"))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPagination)
		return
	}

	page, err := s.paymentSvc.ListHistory(c.Request.Context(), c.Param("userId"), derefInt(limit), derefInt(offset))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]paymentView, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, *newPaymentView(&page.Items[i]))
	}
	c.JSON(http.StatusOK, historyResponse{
		Payments: items,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
}

func (s *Server) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payment, err := s.paymentSvc.VerifyPayment(c.Request.Context(), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, paymentResponse{Success: true, Payment: newPaymentView(payment)})
}

func (s *Server) CancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payment, err := s.paymentSvc.CancelOrder(c.Request.Context(), req.OrderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, paymentResponse{Success: true, Payment: newPaymentView(payment)})
}

func (s *Server) GetCheckoutConfig(c *gin.Context) {
	cfg := s.paymentSvc.PublicConfig()
	c.JSON(http.StatusOK, checkoutConfigResponse{
		Key:           cfg.KeyID,
		Currency:      cfg.Currency,
		DefaultAmount: cfg.DefaultAmount,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
