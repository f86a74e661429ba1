/*
Package notify renders and dispatches beneficiary messages.

PURPOSE:
  The engine sends a receipt after every successful distribution and a
  confirmation after every booking. Delivery is strictly best-effort:
  notification failures are logged and never fail or roll back the
  operation that triggered them.

DISPATCHERS:
  Dispatcher is the delivery abstraction. The default LogDispatcher writes
  messages to the structured log, which is what development and test
  environments run. An SMS gateway implementation plugs in behind the same
  interface.
*/
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartration/ration-engine/ration"
)

// Dispatcher delivers a rendered message to a destination (a mobile
// number). Implementations must be safe for concurrent use.
type Dispatcher interface {
	Send(ctx context.Context, destination, message string) error
}

// LogDispatcher writes messages to the structured log instead of an
// external gateway.
type LogDispatcher struct {
	Log *logrus.Logger
}

func NewLogDispatcher(log *logrus.Logger) *LogDispatcher {
	return &LogDispatcher{Log: log}
}

func (d *LogDispatcher) Send(_ context.Context, destination, message string) error {
	d.Log.WithFields(logrus.Fields{
		"destination": destination,
		"message":     message,
	}).Info("notification dispatched")
	return nil
}

// =============================================================================
// MESSAGE RENDERING
// =============================================================================

// Receipt renders the post-distribution message: what was handed over,
// the total charged, and the distribution id for later verification.
func Receipt(e ration.DistributionEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ration collected on %s.", e.Timestamp.UTC().Format("02 Jan 2006"))
	for _, item := range e.Items {
		fmt.Fprintf(&b, " %s %s%s @ Rs %s;", item.Commodity, item.Quantity, item.Unit, item.UnitPrice)
	}
	fmt.Fprintf(&b, " total Rs %s (%s). Ref %s.", e.TotalAmount, e.PaymentMethod, e.ID)
	return b.String()
}

// BookingConfirmation renders the post-reservation message.
func BookingConfirmation(r ration.Reservation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Slot booked for %s", r.TargetDate.UTC().Format("02 Jan 2006"))
	if r.ShopID != "" {
		fmt.Fprintf(&b, " at shop %s", r.ShopID)
	}
	b.WriteString(".")
	for _, c := range ration.Commodities {
		if q := r.Items.Get(c); !q.IsZero() {
			fmt.Fprintf(&b, " %s %s%s;", c, q, c.Unit())
		}
	}
	fmt.Fprintf(&b, " Ref %s.", r.ID)
	return b.String()
}

// ExpiryNotice renders the message sent when a held booking lapses.
func ExpiryNotice(r ration.Reservation, now time.Time) string {
	return fmt.Sprintf("Booking %s for %s expired on %s. Your monthly balance is unaffected; please book a new slot.",
		r.ID, r.TargetDate.UTC().Format("02 Jan 2006"), now.UTC().Format("02 Jan 2006"))
}
