// Package notify turns order lifecycle events into customer messages: an
// in-app notification plus a templated message handed to a Sender.
package notify

import (
	"bytes"
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/01moynul/taptosell-orders/internal/events"
	"github.com/01moynul/taptosell-orders/internal/models"
)

// Message is one outbound customer message.
type Message struct {
	UserID  int64
	Subject string
	Body    string
}

// Sender delivers messages. Email or SMS wiring lives behind it.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Inbox stores in-app notifications. Add reports false when the event was
// already recorded for that user, which makes redelivered events harmless.
type Inbox interface {
	Add(ctx context.Context, n *models.Notification) (bool, error)
	ListForUser(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, m Message) error {
	log.WithFields(log.Fields{"user_id": m.UserID, "subject": m.Subject}).Info("notification sent\n" + m.Body)
	return nil
}

type templates struct {
	inApp   *template.Template
	subject *template.Template
	body    *template.Template
}

var funcs = template.FuncMap{
	"money": func(v decimal.Decimal) string { return v.StringFixed(2) },
	"date":  func(t *time.Time) string { return t.Format("02 Jan 2006") },
}

func mustTemplates(name, inApp, subject, body string) templates {
	return templates{
		inApp:   template.Must(template.New(name + ".inapp").Funcs(funcs).Parse(inApp)),
		subject: template.Must(template.New(name + ".subject").Funcs(funcs).Parse(subject)),
		body:    template.Must(template.New(name + ".body").Funcs(funcs).Parse(body)),
	}
}

var catalog = map[events.Type]templates{
	events.OrderConfirmed: mustTemplates("confirmed",
		`Your order {{.Order.OrderNumber}} is confirmed.`,
		`Order {{.Order.OrderNumber}} confirmed`,
		`Thank you for your order!

Order: {{.Order.OrderNumber}}
{{range .Order.Items}}- {{.ProductName}} x{{.Quantity}}  {{money .LineTotal}}
{{end}}{{if .Order.CouponCode}}Coupon {{.Order.CouponCode}}: -{{money .Order.Discount}}
{{end}}Total paid: {{money .Order.Total}} {{.Order.Currency}}
`),
	events.OrderDispatched: mustTemplates("dispatched",
		`Your order {{.Order.OrderNumber}} is on its way.`,
		`Order {{.Order.OrderNumber}} dispatched`,
		`Good news, order {{.Order.OrderNumber}} has left our warehouse.
{{if .Order.TrackingNumber}}Tracking number: {{.Order.TrackingNumber}}
{{end}}{{if .Order.EstimatedDeliveryAt}}Estimated delivery: {{date .Order.EstimatedDeliveryAt}}
{{end}}`),
	events.OrderDelivered: mustTemplates("delivered",
		`Order {{.Order.OrderNumber}} was delivered. Tell us what you think!`,
		`Order {{.Order.OrderNumber}} delivered`,
		`Your order {{.Order.OrderNumber}} was delivered.
You can now review the products you bought.
`),
	events.OrderCancelled: mustTemplates("cancelled",
		`Order {{.Order.OrderNumber}} was cancelled.`,
		`Order {{.Order.OrderNumber}} cancelled`,
		`Order {{.Order.OrderNumber}} has been cancelled.{{if .Reason}}
Reason: {{.Reason}}{{end}}
`),
	events.PaymentFailed: mustTemplates("payment_failed",
		`Payment for order {{.Order.OrderNumber}} did not go through.`,
		`Payment failed for order {{.Order.OrderNumber}}`,
		`We could not take payment for order {{.Order.OrderNumber}}.
You can retry payment from your orders page; the order is kept for you.
`),
	events.PaymentRefundInitiated: mustTemplates("refund",
		`A refund for order {{.Order.OrderNumber}} has been initiated.`,
		`Refund initiated for order {{.Order.OrderNumber}}`,
		`We have asked our payment provider to refund {{money .Order.Total}} {{.Order.Currency}} for order {{.Order.OrderNumber}}.
Refunds usually reach you within 5-7 business days.
`),
}

// Notifier handles lifecycle events.
type Notifier struct {
	inbox  Inbox
	sender Sender
}

func NewNotifier(inbox Inbox, sender Sender) *Notifier {
	return &Notifier{inbox: inbox, sender: sender}
}

// Handle is an events.Handler.
func (n *Notifier) Handle(ctx context.Context, e events.Event) error {
	tpl, ok := catalog[e.Type]
	if !ok {
		log.WithField("event", e.Type).Debug("no notification for event")
		return nil
	}
	if e.Order == nil || e.Order.UserID == 0 {
		return errors.Errorf("notify: event %s has no order owner", e.ID)
	}

	inApp, err := render(tpl.inApp, e)
	if err != nil {
		return err
	}
	link := "/orders/" + e.Order.OrderNumber
	created, err := n.inbox.Add(ctx, &models.Notification{
		UserID:    e.Order.UserID,
		EventID:   e.ID,
		Message:   inApp,
		Link:      &link,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "notify: record notification")
	}
	if !created {
		log.WithFields(log.Fields{"event": e.Type, "event_id": e.ID}).Debug("notification already recorded")
		return nil
	}

	subject, err := render(tpl.subject, e)
	if err != nil {
		return err
	}
	body, err := render(tpl.body, e)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, Message{UserID: e.Order.UserID, Subject: subject, Body: body})
}

func render(t *template.Template, e events.Event) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, e); err != nil {
		return "", errors.Wrapf(err, "notify: render %s", t.Name())
	}
	return strings.TrimSpace(buf.String()), nil
}
