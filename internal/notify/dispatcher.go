package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dermalens/dermalens/internal/models"
	"github.com/dermalens/dermalens/pkg/logger"
	"github.com/dermalens/dermalens/pkg/metrics"
)

// dispatchTimeout bounds how long a background delivery may run.
const dispatchTimeout = 30 * time.Second

// Dispatcher sends analysis reports and OTP codes, respecting per-user
// notification preferences and recording delivery flags on the record.
type Dispatcher struct {
	email EmailSender
	sms   SMSSender
	db    *gorm.DB
	log   *zap.Logger
}

// NewDispatcher wires the delivery channels. Either channel may be nil when
// unconfigured.
func NewDispatcher(email EmailSender, sms SMSSender, db *gorm.DB) *Dispatcher {
	return &Dispatcher{
		email: email,
		sms:   sms,
		db:    db,
		log:   logger.WithModule("notify"),
	}
}

// DispatchPredictionAsync delivers the report in the background so the
// upload request does not wait on provider round trips.
func (d *Dispatcher) DispatchPredictionAsync(user *models.User, pred *models.Prediction) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		d.DispatchPrediction(ctx, user, pred)
	}()
}

// DispatchPrediction sends the analysis report over each channel the user
// has opted into, then persists which channels succeeded.
func (d *Dispatcher) DispatchPrediction(ctx context.Context, user *models.User, pred *models.Prediction) {
	if user == nil || pred == nil {
		return
	}

	urgency := UrgencyFor(pred.Confidence)
	var emailSent, smsSent bool

	if user.EmailNotifications && d.email != nil {
		subject, text, html := reportEmail(user.Name, pred, urgency)
		if err := d.email.SendEmail(ctx, user.Email, subject, text, html); err != nil {
			metrics.NotificationsSent.WithLabelValues("email", "failure").Inc()
			d.log.Error("report email delivery failed",
				zap.String("prediction_id", pred.ID),
				zap.Error(err))
		} else {
			metrics.NotificationsSent.WithLabelValues("email", "success").Inc()
			emailSent = true
		}
	}

	if user.SMSNotifications && user.PhoneNumber != "" && d.sms != nil {
		if err := d.sms.SendSMS(ctx, user.PhoneNumber, reportSMS(pred, urgency)); err != nil {
			metrics.NotificationsSent.WithLabelValues("sms", "failure").Inc()
			d.log.Error("report sms delivery failed",
				zap.String("prediction_id", pred.ID),
				zap.Error(err))
		} else {
			metrics.NotificationsSent.WithLabelValues("sms", "success").Inc()
			smsSent = true
		}
	}

	if !emailSent && !smsSent {
		return
	}

	updates := map[string]any{"email_sent": emailSent, "sms_sent": smsSent}
	if err := d.db.WithContext(ctx).Model(&models.Prediction{}).
		Where("id = ?", pred.ID).
		Updates(updates).Error; err != nil {
		d.log.Error("failed to record delivery flags",
			zap.String("prediction_id", pred.ID),
			zap.Error(err))
	}
}

// SendOTPEmail delivers a verification code over email.
func (d *Dispatcher) SendOTPEmail(ctx context.Context, to, code string, ttl time.Duration) error {
	if d.email == nil {
		return ErrNoEmailChannel
	}

	subject := "Your DermaLens verification code"
	text := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(ttl.Minutes()))
	html := fmt.Sprintf("<p>Your verification code is <strong>%s</strong>.</p><p>It expires in %d minutes.</p>",
		code, int(ttl.Minutes()))

	err := d.email.SendEmail(ctx, to, subject, text, html)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("email", "failure").Inc()
		return err
	}
	metrics.NotificationsSent.WithLabelValues("email", "success").Inc()
	return nil
}

// SendOTPSMS delivers a verification code over SMS.
func (d *Dispatcher) SendOTPSMS(ctx context.Context, to, code string, ttl time.Duration) error {
	if d.sms == nil {
		return fmt.Errorf("notify: no sms channel configured")
	}

	body := fmt.Sprintf("DermaLens verification code: %s (valid for %d minutes)",
		code, int(ttl.Minutes()))

	err := d.sms.SendSMS(ctx, to, body)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("sms", "failure").Inc()
		return err
	}
	metrics.NotificationsSent.WithLabelValues("sms", "success").Inc()
	return nil
}

// HasEmailChannel reports whether an email channel is configured.
func (d *Dispatcher) HasEmailChannel() bool { return d.email != nil }

// HasSMSChannel reports whether an SMS channel is configured.
func (d *Dispatcher) HasSMSChannel() bool { return d.sms != nil }

func reportEmail(name string, pred *models.Prediction, urgency Urgency) (subject, text, html string) {
	greeting := "Hello"
	if name != "" {
		greeting = "Hello " + name
	}

	subject = "Your DermaLens analysis report"
	text = fmt.Sprintf(`%s,

Your skin lesion analysis is complete.

Result: %s
Confidence: %.1f%%
Urgency: %s

%s

This automated analysis is not a medical diagnosis. Always consult a qualified dermatologist.`,
		greeting, pred.PredictedClass, pred.Confidence*100, urgency, urgency.Advice())

	html = fmt.Sprintf(`<p>%s,</p>
<p>Your skin lesion analysis is complete.</p>
<ul>
<li><strong>Result:</strong> %s</li>
<li><strong>Confidence:</strong> %.1f%%</li>
<li><strong>Urgency:</strong> %s</li>
</ul>
<p>%s</p>
<p><em>This automated analysis is not a medical diagnosis. Always consult a qualified dermatologist.</em></p>`,
		greeting, pred.PredictedClass, pred.Confidence*100, urgency, urgency.Advice())

	return subject, text, html
}

func reportSMS(pred *models.Prediction, urgency Urgency) string {
	return fmt.Sprintf("DermaLens result: %s (%.1f%% confidence). Urgency: %s. %s",
		pred.PredictedClass, pred.Confidence*100, urgency, urgency.Advice())
}
