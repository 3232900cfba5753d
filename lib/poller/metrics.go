package poller

type cycleMetrics struct {
	checked      int
	delivered    int
	filtered     int
	bootstrapped int
	unchanged    int
	errored      int
}

func (m *cycleMetrics) Add(other *cycleMetrics) {
	m.checked += other.checked
	m.delivered += other.delivered
	m.filtered += other.filtered
	m.bootstrapped += other.bootstrapped
	m.unchanged += other.unchanged
	m.errored += other.errored
}

// logArgs lists the non-zero counters as key/value pairs for Infow.
func (m *cycleMetrics) logArgs() []any {
	args := make([]any, 0)
	if m.errored != 0 {
		args = append(args, "errored", m.errored)
	}
	if m.delivered != 0 {
		args = append(args, "delivered", m.delivered)
	}
	if m.filtered != 0 {
		args = append(args, "filtered", m.filtered)
	}
	if m.bootstrapped != 0 {
		args = append(args, "bootstrapped", m.bootstrapped)
	}
	if m.unchanged != 0 {
		args = append(args, "unchanged", m.unchanged)
	}
	return args
}
