package anpr

import (
	"context"
	"fmt"
	"strings"
)

// MultiEmitter fans one event out to several sinks. Every sink is attempted;
// failures are collected so a broken sink cannot starve the others.
type MultiEmitter []Emitter

// Record delivers the event to each sink in order.
func (m MultiEmitter) Record(ctx context.Context, event DetectionEvent) error {
	var failures []string
	for _, e := range m {
		if err := e.Record(ctx, event); err != nil {
			failures = append(failures, err.Error())
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("event %s: %s", event.ID, strings.Join(failures, "; "))
	}
	return nil
}
