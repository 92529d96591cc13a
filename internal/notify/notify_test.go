package notify_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/01moynul/taptosell-orders/internal/events"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/notify"
	"github.com/01moynul/taptosell-orders/internal/store/memstore"
)

type captureSender struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (c *captureSender) Send(_ context.Context, m notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, m)
	return nil
}

func sampleOrder() *models.Order {
	code := "SAVE100"
	tracking := "TRK-991"
	eta := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	return &models.Order{
		OrderNumber: "TTS-000042",
		UserID:      7,
		Currency:    "MYR",
		Items: []models.LineItem{
			{ProductName: "Kettle", Quantity: 4, LineTotal: decimal.NewFromInt(1000)},
		},
		Subtotal:            decimal.NewFromInt(1000),
		Discount:            decimal.NewFromInt(100),
		Total:               decimal.NewFromInt(900),
		CouponCode:          &code,
		TrackingNumber:      &tracking,
		EstimatedDeliveryAt: &eta,
	}
}

func TestNotifier_Handle(t *testing.T) {
	tests := []struct {
		event   events.Type
		reason  string
		inApp   string
		subject string
		body    []string
	}{
		{events.OrderConfirmed, "", "Your order TTS-000042 is confirmed.", "Order TTS-000042 confirmed",
			[]string{"Kettle x4  1000.00", "Coupon SAVE100: -100.00", "Total paid: 900.00 MYR"}},
		{events.OrderDispatched, "", "Your order TTS-000042 is on its way.", "Order TTS-000042 dispatched",
			[]string{"Tracking number: TRK-991", "Estimated delivery: 03 Jun 2024"}},
		{events.OrderDelivered, "", "Order TTS-000042 was delivered. Tell us what you think!", "Order TTS-000042 delivered",
			[]string{"review"}},
		{events.OrderCancelled, "changed my mind", "Order TTS-000042 was cancelled.", "Order TTS-000042 cancelled",
			[]string{"Reason: changed my mind"}},
		{events.PaymentFailed, "card declined", "Payment for order TTS-000042 did not go through.", "Payment failed for order TTS-000042",
			[]string{"retry payment"}},
		{events.PaymentRefundInitiated, "", "A refund for order TTS-000042 has been initiated.", "Refund initiated for order TTS-000042",
			[]string{"refund 900.00 MYR"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			inbox := memstore.New().Notifications()
			sender := &captureSender{}
			n := notify.NewNotifier(inbox, sender)

			require.NoError(t, n.Handle(context.Background(), events.New(tt.event, sampleOrder(), tt.reason)))

			list, err := inbox.ListForUser(context.Background(), 7, 50)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, tt.inApp, list[0].Message)
			require.NotNil(t, list[0].Link)
			assert.Equal(t, "/orders/TTS-000042", *list[0].Link)

			require.Len(t, sender.sent, 1)
			assert.Equal(t, int64(7), sender.sent[0].UserID)
			assert.Equal(t, tt.subject, sender.sent[0].Subject)
			for _, want := range tt.body {
				assert.Contains(t, sender.sent[0].Body, want)
			}
		})
	}
}

func TestNotifier_RedeliveryIsIgnored(t *testing.T) {
	inbox := memstore.New().Notifications()
	sender := &captureSender{}
	n := notify.NewNotifier(inbox, sender)
	e := events.New(events.OrderConfirmed, sampleOrder(), "")

	require.NoError(t, n.Handle(context.Background(), e))
	require.NoError(t, n.Handle(context.Background(), e))

	list, err := inbox.ListForUser(context.Background(), 7, 50)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Len(t, sender.sent, 1)
}

func TestNotifier_OptionalFieldsOmitted(t *testing.T) {
	inbox := memstore.New().Notifications()
	sender := &captureSender{}
	o := sampleOrder()
	o.TrackingNumber, o.EstimatedDeliveryAt = nil, nil

	require.NoError(t, notify.NewNotifier(inbox, sender).Handle(context.Background(), events.New(events.OrderDispatched, o, "")))

	require.Len(t, sender.sent, 1)
	assert.NotContains(t, sender.sent[0].Body, "Tracking")
	assert.NotContains(t, sender.sent[0].Body, "Estimated")
}

func TestNotifier_RejectsOwnerlessEvent(t *testing.T) {
	n := notify.NewNotifier(memstore.New().Notifications(), notify.LogSender{})
	o := sampleOrder()
	o.UserID = 0

	assert.Error(t, n.Handle(context.Background(), events.New(events.OrderConfirmed, o, "")))
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, notify.LogSender{}.Send(context.Background(), notify.Message{UserID: 1, Subject: "s", Body: "b"}))
}
