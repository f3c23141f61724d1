package services

import "realm-rivals/realtime"

// EventPublisher fans session changes out to live subscribers.
type EventPublisher interface {
	Publish(sessionID string, evt realtime.Event) realtime.Event
}

type nopPublisher struct{}

func (nopPublisher) Publish(_ string, evt realtime.Event) realtime.Event { return evt }

func publisherOrNop(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
