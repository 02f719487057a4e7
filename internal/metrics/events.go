package metrics

import "deskbot/internal/bus"

// BindEvents subscribes the pre-defined counters to engine events so
// the collector tracks routing activity without the engine knowing
// about metrics at all.
func BindEvents(eb *bus.EventBus) {
	count := func(eventType string, c *Counter) {
		eb.On(eventType, func(bus.Event) { c.Inc() })
	}
	count(bus.EventMessageReceived, MessagesReceived)
	count(bus.EventMessageSent, MessagesSent)
	count(bus.EventDeliveryFailed, DeliveryFailures)
	count(bus.EventFlowStarted, FlowsStarted)
	count(bus.EventFlowCompleted, FlowsCompleted)
	count(bus.EventSessionAborted, SessionsAborted)
	count(bus.EventSessionExpired, SessionsExpired)
	count(bus.EventDialogOpened, DialogsOpened)
	count(bus.EventDialogClosed, DialogsClosed)

	eb.On(bus.EventDialogOpened, func(bus.Event) { OpenDialogs.Inc() })
	eb.On(bus.EventDialogClosed, func(bus.Event) { OpenDialogs.Dec() })
}
