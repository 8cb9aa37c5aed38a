package metrics

// MultiSink fans values out to several sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// LogValue forwards the value to all sinks, returning the first error.
func (m *MultiSink) LogValue(name string, value float64) error {
	var first error
	for _, s := range m.Sinks {
		if err := s.LogValue(name, value); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RecordClearing forwards to sinks able to record clearing results.
func (m *MultiSink) RecordClearing(ev ClearingEvent) error {
	var first error
	for _, s := range m.Sinks {
		if rec, ok := s.(ClearingRecorder); ok {
			if err := rec.RecordClearing(ev); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// RecordDispatch forwards dispatch events.
func (m *MultiSink) RecordDispatch(ev DispatchEvent) error {
	var first error
	for _, s := range m.Sinks {
		if rec, ok := s.(DispatchRecorder); ok {
			if err := rec.RecordDispatch(ev); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// RecordFallback forwards fallback events.
func (m *MultiSink) RecordFallback(ev FallbackEvent) error {
	var first error
	for _, s := range m.Sinks {
		if rec, ok := s.(FallbackRecorder); ok {
			if err := rec.RecordFallback(ev); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
