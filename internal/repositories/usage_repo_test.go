package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/campaign-hub/backend/internal/models"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	lockUsageSQL    = regexp.QuoteMeta("SELECT count, reserved FROM message_usage")
	reserveSQL      = regexp.QuoteMeta("SET reserved = reserved + 1")
	lockReceiptSQL  = regexp.QuoteMeta("FROM delivery_receipts WHERE provider_message_id = $1 FOR UPDATE")
	confirmSQL      = regexp.QuoteMeta("SET status = 'confirmed', last_provider_status = $2")
	touchReceiptSQL = regexp.QuoteMeta("UPDATE delivery_receipts SET last_provider_status = $2")
	decrementSQL    = regexp.QuoteMeta("SET reserved = GREATEST(reserved - 1, 0)")
	incrementSQL    = regexp.QuoteMeta("DO UPDATE SET count = message_usage.count + 1")
	receiptColumns  = []string{"organisation_id", "channel", "period_start", "status"}
)

func TestUsageRepo_Reserve(t *testing.T) {
	org := uuid.New()
	period := models.PeriodStart(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	sms := string(models.ChannelSMS)

	tests := []struct {
		name     string
		count    int
		reserved int
		limit    int
		want     bool
	}{
		{"under limit", 3, 1, 5, true},
		{"reservations reach limit", 3, 2, 5, false},
		{"confirmed at limit", 5, 0, 5, false},
		{"zero limit is unlimited", 900, 40, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockDB(t)
			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (organisation_id, channel, period_start) DO NOTHING")).
				WithArgs(org, sms, period).
				WillReturnResult(pgxmock.NewResult("INSERT", 0))
			mock.ExpectQuery(lockUsageSQL).
				WithArgs(org, sms, period).
				WillReturnRows(mock.NewRows([]string{"count", "reserved"}).AddRow(tt.count, tt.reserved))
			if tt.want {
				mock.ExpectExec(reserveSQL).
					WithArgs(org, sms, period).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			ok, err := NewUsageRepo(mock).Reserve(context.Background(), org, models.ChannelSMS, period, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUsageRepo_SentThenDeliveredCountsOnce(t *testing.T) {
	mock := newMockDB(t)
	repo := NewUsageRepo(mock)
	ctx := context.Background()
	org := uuid.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	period := models.PeriodStart(now)
	sms := string(models.ChannelSMS)

	// "sent" is intermediate; the first success status settles the receipt.
	mock.ExpectBegin()
	mock.ExpectQuery(lockReceiptSQL).
		WithArgs("SM1").
		WillReturnRows(mock.NewRows(receiptColumns).AddRow(org, sms, period, models.ReceiptStatusReserved))
	mock.ExpectExec(confirmSQL).WithArgs("SM1", "delivered").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(decrementSQL).WithArgs(org, sms, period).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(incrementSQL).WithArgs(org, sms, period).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	counted, err := repo.ConfirmDelivery(ctx, "SM1", org, models.ChannelSMS, "delivered", now)
	require.NoError(t, err)
	assert.True(t, counted)

	// A repeated success report only refreshes the provider status.
	mock.ExpectBegin()
	mock.ExpectQuery(lockReceiptSQL).
		WithArgs("SM1").
		WillReturnRows(mock.NewRows(receiptColumns).AddRow(org, sms, period, models.ReceiptStatusConfirmed))
	mock.ExpectExec(touchReceiptSQL).WithArgs("SM1", "read").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	counted, err = repo.ConfirmDelivery(ctx, "SM1", org, models.ChannelSMS, "read", now)
	require.NoError(t, err)
	assert.False(t, counted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepo_ConfirmExpiredReceipt(t *testing.T) {
	mock := newMockDB(t)
	org := uuid.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	period := models.PeriodStart(now)
	sms := string(models.ChannelSMS)

	mock.ExpectBegin()
	mock.ExpectQuery(lockReceiptSQL).
		WithArgs("SM-late").
		WillReturnRows(mock.NewRows(receiptColumns).AddRow(org, sms, period, models.ReceiptStatusExpired))
	mock.ExpectExec(confirmSQL).WithArgs("SM-late", "delivered").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	// The sweep already gave the hold back, so only the count moves.
	mock.ExpectExec(incrementSQL).WithArgs(org, sms, period).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	counted, err := NewUsageRepo(mock).ConfirmDelivery(context.Background(), "SM-late", org, models.ChannelSMS, "delivered", now)
	require.NoError(t, err)
	assert.True(t, counted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepo_WebhookBeforeSubmission(t *testing.T) {
	mock := newMockDB(t)
	repo := NewUsageRepo(mock)
	ctx := context.Background()
	org := uuid.New()
	postID, contactID := uuid.New(), uuid.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	period := models.PeriodStart(now)
	sms := string(models.ChannelSMS)

	mock.ExpectBegin()
	mock.ExpectQuery(lockReceiptSQL).WithArgs("SM2").WillReturnRows(mock.NewRows(receiptColumns))
	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, 'confirmed', $5)")).
		WithArgs("SM2", org, sms, period, "delivered").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(incrementSQL).WithArgs(org, sms, period).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	counted, err := repo.ConfirmDelivery(ctx, "SM2", org, models.ChannelSMS, "delivered", now)
	require.NoError(t, err)
	assert.True(t, counted)

	// The late submission finds the receipt and hands its reservation back.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, 'reserved')")).
		WithArgs("SM2", org, sms, &postID, &contactID, period).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(decrementSQL).WithArgs(org, sms, period).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = repo.RecordSubmission(ctx, &models.DeliveryReceipt{
		ProviderMessageID: "SM2",
		OrganisationID:    org,
		Channel:           models.ChannelSMS,
		PostID:            &postID,
		ContactID:         &contactID,
		PeriodStart:       period,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepo_ConcurrentFirstReportIsDuplicate(t *testing.T) {
	mock := newMockDB(t)
	org := uuid.New()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(lockReceiptSQL).WithArgs("SM3").WillReturnRows(mock.NewRows(receiptColumns))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (provider_message_id) DO NOTHING")).
		WithArgs("SM3", org, string(models.ChannelWhatsApp), models.PeriodStart(now), "delivered").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	counted, err := NewUsageRepo(mock).ConfirmDelivery(context.Background(), "SM3", org, models.ChannelWhatsApp, "delivered", now)
	require.NoError(t, err)
	assert.False(t, counted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepo_ReleaseDeliveryOnlyReserved(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SET status = 'released'")).
		WithArgs("SM4", "undelivered").
		WillReturnRows(mock.NewRows([]string{"organisation_id", "channel", "period_start"}))
	mock.ExpectRollback()

	released, err := NewUsageRepo(mock).ReleaseDelivery(context.Background(), "SM4", "undelivered")
	require.NoError(t, err)
	assert.False(t, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}
