package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/dermalens/dermalens/internal/auth"
	"github.com/dermalens/dermalens/internal/notify"
	"github.com/dermalens/dermalens/internal/otp"
	"github.com/dermalens/dermalens/internal/services"
	"github.com/dermalens/dermalens/pkg/errors"
	"github.com/dermalens/dermalens/pkg/logger"
	"github.com/dermalens/dermalens/pkg/metrics"
	"github.com/dermalens/dermalens/pkg/response"
)

// OTPHandler issues and verifies step-up codes gating history access.
type OTPHandler struct {
	users      *services.UserService
	codes      *otp.Service
	dispatcher *notify.Dispatcher
	jwt        *iauth.JWTService
	log        *zap.Logger
}

func NewOTPHandler(users *services.UserService, codes *otp.Service, dispatcher *notify.Dispatcher, jwt *iauth.JWTService) *OTPHandler {
	return &OTPHandler{
		users:      users,
		codes:      codes,
		dispatcher: dispatcher,
		jwt:        jwt,
		log:        logger.WithModule("otp"),
	}
}

// POST /api/otp/request
// Delivers a code to the account's email, falling back to SMS when email
// delivery fails and a phone number is on file.
func (h *OTPHandler) Request(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	code, err := h.codes.Issue(user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	ttl := h.codes.TTL()
	ctx := requestContext(c)

	if h.dispatcher.HasEmailChannel() {
		if err := h.dispatcher.SendOTPEmail(ctx, user.Email, code, ttl); err == nil {
			response.Success(c, http.StatusOK, gin.H{
				"channel":     "email",
				"destination": maskEmail(user.Email),
				"expires_in":  int(ttl.Seconds()),
			})
			return
		}
		h.log.Warn("otp email delivery failed, trying sms", zap.String("user_id", user.ID))
	}

	if h.dispatcher.HasSMSChannel() && user.PhoneNumber != "" {
		if err := h.dispatcher.SendOTPSMS(ctx, user.PhoneNumber, code, ttl); err == nil {
			response.Success(c, http.StatusOK, gin.H{
				"channel":     "sms",
				"destination": maskPhone(user.PhoneNumber),
				"expires_in":  int(ttl.Seconds()),
			})
			return
		}
	}

	response.Error(c, errors.New("OTP_DELIVERY_FAILED", "Could not deliver verification code", http.StatusServiceUnavailable))
}

type otpVerifyRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// POST /api/otp/verify
// A correct code yields a short-lived session token carrying the
// otp_verified claim.
func (h *OTPHandler) Verify(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req otpVerifyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.codes.Verify(userID, req.Code); err != nil {
		metrics.OTPVerifications.WithLabelValues(verifyFailureLabel(err)).Inc()
		// All failure modes collapse to the same client error.
		response.Error(c, errors.ErrOTPInvalid)
		return
	}
	metrics.OTPVerifications.WithLabelValues("success").Inc()

	token, err := h.jwt.GenerateStepUpToken(iauth.AccessTokenInput{UserID: userID, Role: currentRole(c)})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"session_token": token,
		"expires_in":    int(h.jwt.StepUpTokenTTL().Seconds()),
	})
}

func verifyFailureLabel(err error) string {
	switch err {
	case otp.ErrTooManyAttempts:
		return "too_many_attempts"
	case otp.ErrCodeExpired:
		return "expired"
	default:
		return "invalid"
	}
}

func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return email
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
