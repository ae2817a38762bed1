package poller

type cycleMetrics struct {
	totalSelected int
	notified      int
	unchanged     int
	baselined     int
	errored       int
}

func (m *cycleMetrics) Add(other *cycleMetrics) {
	m.totalSelected += other.totalSelected
	m.notified += other.notified
	m.unchanged += other.unchanged
	m.baselined += other.baselined
	m.errored += other.errored
}
