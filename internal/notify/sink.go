// Package notify drains dirty speaker state into outbound notification sinks.
package notify

import "errors"

// Sink receives serialized payloads. Delivery is fire-and-forget.
type Sink interface {
	Name() string
	Deliver(payload []byte) error
}

// MultiSink delivers every payload to each sink in order.
type MultiSink []Sink

func (m MultiSink) Name() string { return "multi" }

func (m MultiSink) Deliver(payload []byte) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
