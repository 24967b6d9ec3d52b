package monitoring

import "time"

// ObserveSave records the outcome of a session save
func (m *Metrics) ObserveSave(err error) {
	if err != nil {
		m.Saves.WithLabelValues("error").Inc()
		m.mu.Lock()
		m.snapshot.SavesFailed++
		m.mu.Unlock()
		return
	}
	m.Saves.WithLabelValues("success").Inc()
}

// ObserveRebuild records one preview rebuild
func (m *Metrics) ObserveRebuild(d time.Duration, uncaught bool, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "failed"
	case uncaught:
		outcome = "uncaught"
	}
	m.Rebuilds.WithLabelValues(outcome).Inc()
	if err != nil {
		return
	}
	m.RebuildDuration.Observe(d.Seconds())

	m.mu.Lock()
	m.snapshot.Rebuilds++
	m.snapshot.rebuildTotal += d
	if uncaught {
		m.snapshot.Uncaught++
	}
	m.mu.Unlock()
}

// ConsoleEvent records a relayed console line
func (m *Metrics) ConsoleEvent(method string) {
	m.ConsoleEvents.WithLabelValues(method).Inc()
	m.mu.Lock()
	m.snapshot.ConsoleLines++
	m.mu.Unlock()
}

// ConsoleIgnored records a sandbox message the relay dropped
func (m *Metrics) ConsoleIgnored() {
	m.ConsoleDropped.Inc()
}
