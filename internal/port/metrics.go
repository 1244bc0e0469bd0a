package port

type Metrics interface {
	RentalOpened()
	RentalReturned()
	ReservationRejected()
	PaymentSessionCreated()
	PaymentConfirmed()
	NotificationSent()
	NotificationFailed()
	NotificationDropped()
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) RentalOpened()          {}
func (NopMetrics) RentalReturned()        {}
func (NopMetrics) ReservationRejected()   {}
func (NopMetrics) PaymentSessionCreated() {}
func (NopMetrics) PaymentConfirmed()      {}
func (NopMetrics) NotificationSent()      {}
func (NopMetrics) NotificationFailed()    {}
func (NopMetrics) NotificationDropped()   {}
