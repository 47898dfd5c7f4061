package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dermalens/dermalens/internal/database/testutil"
	"github.com/dermalens/dermalens/internal/models"
)

type fakeEmailSender struct {
	err      error
	to       []string
	subjects []string
	bodies   []string
}

func (f *fakeEmailSender) SendEmail(_ context.Context, to, subject, textBody, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, textBody)
	return nil
}

type fakeSMSSender struct {
	err    error
	to     []string
	bodies []string
}

func (f *fakeSMSSender) SendSMS(_ context.Context, to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.bodies = append(f.bodies, body)
	return nil
}

func seedUserAndPrediction(t *testing.T, d *Dispatcher, user *models.User) *models.Prediction {
	t.Helper()

	require.NoError(t, d.db.Create(user).Error)

	pred := &models.Prediction{
		ImageURL:       "/static/img.png",
		PredictedClass: "Melanoma",
		Confidence:     0.92,
		UserID:         &user.ID,
	}
	require.NoError(t, d.db.Create(pred).Error)
	return pred
}

func TestDispatchPredictionSendsBothChannels(t *testing.T) {
	email := &fakeEmailSender{}
	sms := &fakeSMSSender{}
	d := NewDispatcher(email, sms, testutil.MustOpenTestDB(t))

	user := &models.User{
		Email:              "user@example.com",
		Password:           "hash",
		PhoneNumber:        "+15551234567",
		EmailNotifications: true,
		SMSNotifications:   true,
		Name:               "Ada",
	}
	pred := seedUserAndPrediction(t, d, user)

	d.DispatchPrediction(context.Background(), user, pred)

	require.Equal(t, []string{"user@example.com"}, email.to)
	require.Contains(t, email.bodies[0], "Melanoma")
	require.Contains(t, email.bodies[0], "92.0%")
	require.Contains(t, email.bodies[0], "High")
	require.Equal(t, []string{"+15551234567"}, sms.to)
	require.Contains(t, sms.bodies[0], "3-7 days")

	var stored models.Prediction
	require.NoError(t, d.db.First(&stored, "id = ?", pred.ID).Error)
	require.True(t, stored.EmailSent)
	require.True(t, stored.SMSSent)
}

func TestDispatchPredictionHonorsPreferences(t *testing.T) {
	email := &fakeEmailSender{}
	sms := &fakeSMSSender{}
	d := NewDispatcher(email, sms, testutil.MustOpenTestDB(t))

	user := &models.User{
		Email:              "quiet@example.com",
		Password:           "hash",
		PhoneNumber:        "+15551234567",
		EmailNotifications: false,
		SMSNotifications:   false,
	}
	pred := seedUserAndPrediction(t, d, user)

	d.DispatchPrediction(context.Background(), user, pred)

	require.Empty(t, email.to)
	require.Empty(t, sms.to)

	var stored models.Prediction
	require.NoError(t, d.db.First(&stored, "id = ?", pred.ID).Error)
	require.False(t, stored.EmailSent)
	require.False(t, stored.SMSSent)
}

func TestDispatchPredictionSkipsSMSWithoutPhoneNumber(t *testing.T) {
	sms := &fakeSMSSender{}
	d := NewDispatcher(&fakeEmailSender{}, sms, testutil.MustOpenTestDB(t))

	user := &models.User{
		Email:              "nophone@example.com",
		Password:           "hash",
		EmailNotifications: true,
		SMSNotifications:   true,
	}
	pred := seedUserAndPrediction(t, d, user)

	d.DispatchPrediction(context.Background(), user, pred)

	require.Empty(t, sms.to)

	var stored models.Prediction
	require.NoError(t, d.db.First(&stored, "id = ?", pred.ID).Error)
	require.True(t, stored.EmailSent)
	require.False(t, stored.SMSSent)
}

func TestDispatchPredictionRecordsPartialFailure(t *testing.T) {
	email := &fakeEmailSender{err: errors.New("smtp down")}
	sms := &fakeSMSSender{}
	d := NewDispatcher(email, sms, testutil.MustOpenTestDB(t))

	user := &models.User{
		Email:              "user@example.com",
		Password:           "hash",
		PhoneNumber:        "+15551234567",
		EmailNotifications: true,
		SMSNotifications:   true,
	}
	pred := seedUserAndPrediction(t, d, user)

	d.DispatchPrediction(context.Background(), user, pred)

	var stored models.Prediction
	require.NoError(t, d.db.First(&stored, "id = ?", pred.ID).Error)
	require.False(t, stored.EmailSent)
	require.True(t, stored.SMSSent)
}

func TestSendOTPEmail(t *testing.T) {
	email := &fakeEmailSender{}
	d := NewDispatcher(email, nil, testutil.MustOpenTestDB(t))

	require.NoError(t, d.SendOTPEmail(context.Background(), "user@example.com", "123456", 10*time.Minute))
	require.Contains(t, email.bodies[0], "123456")
	require.Contains(t, email.bodies[0], "10 minutes")
}

func TestSendOTPEmailWithoutChannel(t *testing.T) {
	d := NewDispatcher(nil, &fakeSMSSender{}, testutil.MustOpenTestDB(t))

	err := d.SendOTPEmail(context.Background(), "user@example.com", "123456", 10*time.Minute)
	require.ErrorIs(t, err, ErrNoEmailChannel)
}

func TestSendOTPSMS(t *testing.T) {
	sms := &fakeSMSSender{}
	d := NewDispatcher(nil, sms, testutil.MustOpenTestDB(t))

	require.NoError(t, d.SendOTPSMS(context.Background(), "+15551234567", "654321", 10*time.Minute))
	require.Contains(t, sms.bodies[0], "654321")
}

func TestFallbackEmailSenderUsesSecondary(t *testing.T) {
	primary := &fakeEmailSender{err: errors.New("primary down")}
	secondary := &fakeEmailSender{}
	sender := NewFallbackEmailSender(primary, secondary)

	require.NoError(t, sender.SendEmail(context.Background(), "a@example.com", "s", "t", ""))
	require.Equal(t, []string{"a@example.com"}, secondary.to)
}

func TestFallbackEmailSenderPrimaryWins(t *testing.T) {
	primary := &fakeEmailSender{}
	secondary := &fakeEmailSender{}
	sender := NewFallbackEmailSender(primary, secondary)

	require.NoError(t, sender.SendEmail(context.Background(), "a@example.com", "s", "t", ""))
	require.Equal(t, []string{"a@example.com"}, primary.to)
	require.Empty(t, secondary.to)
}

func TestFallbackEmailSenderNoChannels(t *testing.T) {
	sender := NewFallbackEmailSender(nil, nil)

	err := sender.SendEmail(context.Background(), "a@example.com", "s", "t", "")
	require.ErrorIs(t, err, ErrNoEmailChannel)
}
