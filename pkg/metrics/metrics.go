// Package metrics holds the Prometheus collectors for settlement, the outbox
// relay and the cron worker. Constructors accept a nil registerer and return
// a no-op recorder, and every recorder method is safe on a nil receiver.
package metrics

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
