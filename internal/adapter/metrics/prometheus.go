package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carshare"

// Prometheus records service events as counters on the given registerer.
type Prometheus struct {
	rentals       *prometheus.CounterVec
	rejected      prometheus.Counter
	sessions      prometheus.Counter
	confirmed     prometheus.Counter
	notifications *prometheus.CounterVec
}

func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)
	return &Prometheus{
		rentals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rentals_total",
			Help:      "Rentals opened and returned.",
		}, []string{"event"}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_rejected_total",
			Help:      "Rental requests rejected for lack of available units.",
		}),
		sessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_sessions_created_total",
			Help:      "Checkout sessions created at the payment provider.",
		}),
		confirmed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_confirmed_total",
			Help:      "Payments moved from PENDING to PAID.",
		}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by outcome.",
		}, []string{"outcome"}),
	}
}

func (p *Prometheus) RentalOpened()          { p.rentals.WithLabelValues("opened").Inc() }
func (p *Prometheus) RentalReturned()        { p.rentals.WithLabelValues("returned").Inc() }
func (p *Prometheus) ReservationRejected()   { p.rejected.Inc() }
func (p *Prometheus) PaymentSessionCreated() { p.sessions.Inc() }
func (p *Prometheus) PaymentConfirmed()      { p.confirmed.Inc() }
func (p *Prometheus) NotificationSent()      { p.notifications.WithLabelValues("sent").Inc() }
func (p *Prometheus) NotificationFailed()    { p.notifications.WithLabelValues("failed").Inc() }
func (p *Prometheus) NotificationDropped()   { p.notifications.WithLabelValues("dropped").Inc() }
