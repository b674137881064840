package provider

// EventStatus is the normalized meaning of a vendor callback.
type EventStatus string

const (
	EventDelivered  EventStatus = "delivered"
	EventBounced    EventStatus = "bounced"
	EventDeferred   EventStatus = "deferred"
	EventOpened     EventStatus = "opened"
	EventClicked    EventStatus = "clicked"
	EventComplained EventStatus = "complained"
	EventFailed     EventStatus = "failed"
	EventUnknown    EventStatus = "unknown"
)

// Terminal reports whether the status is a final delivery outcome.
func (s EventStatus) Terminal() bool {
	switch s {
	case EventDelivered, EventBounced, EventComplained, EventFailed:
		return true
	}
	return false
}

// Vendor callback vocabularies. Every event type a vendor documents for its
// delivery webhooks is listed; the empty entry for anything else falls back
// to EventUnknown in TranslateEvent.

var postmarkEvents = map[string]EventStatus{
	"Delivery":           EventDelivered,
	"Bounce":             EventBounced,
	"Open":               EventOpened,
	"Click":              EventClicked,
	"SpamComplaint":      EventComplained,
	"SubscriptionChange": EventComplained,
}

var sendgridEvents = map[string]EventStatus{
	"delivered":          EventDelivered,
	"bounce":             EventBounced,
	"blocked":            EventBounced,
	"deferred":           EventDeferred,
	"dropped":            EventFailed,
	"open":               EventOpened,
	"click":              EventClicked,
	"spamreport":         EventComplained,
	"unsubscribe":        EventComplained,
	"group_unsubscribe":  EventComplained,
	"group_resubscribe":  EventUnknown,
	"processed":          EventUnknown,
}

var sesEvents = map[string]EventStatus{
	"Delivery":          EventDelivered,
	"Bounce":            EventBounced,
	"Complaint":         EventComplained,
	"Open":              EventOpened,
	"Click":             EventClicked,
	"Reject":            EventFailed,
	"Rendering Failure": EventFailed,
	"DeliveryDelay":     EventDeferred,
	"Send":              EventUnknown,
}

var twilioEvents = map[string]EventStatus{
	"queued":      EventUnknown,
	"sending":     EventUnknown,
	"sent":        EventUnknown,
	"delivered":   EventDelivered,
	"undelivered": EventBounced,
	"failed":      EventFailed,
}

var onesignalEvents = map[string]EventStatus{
	"notification.delivered": EventDelivered,
	"notification.clicked":   EventClicked,
	"notification.dismissed": EventUnknown,
	"notification.failed":    EventFailed,
}

var vendorEvents = map[string]map[string]EventStatus{
	"postmark":  postmarkEvents,
	"sendgrid":  sendgridEvents,
	"ses":       sesEvents,
	"twilio":    twilioEvents,
	"onesignal": onesignalEvents,
}

// TranslateEvent maps a vendor callback event type to its normalized status.
// Unknown vendors and unmapped event types yield EventUnknown; callers record
// those without changing delivery state.
func TranslateEvent(providerName, eventType string) EventStatus {
	events, ok := vendorEvents[providerName]
	if !ok {
		return EventUnknown
	}
	status, ok := events[eventType]
	if !ok {
		return EventUnknown
	}
	return status
}
