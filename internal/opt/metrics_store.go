package opt

import "sync"

type runKey struct {
	Problem string
	Mode    string
}

var (
	mu       sync.Mutex
	runStore = map[runKey]Metrics{}
)

// RecordMetrics keeps the latest run metrics for a problem and search mode.
func RecordMetrics(problem, mode string, m Metrics) {
	mu.Lock()
	runStore[runKey{Problem: problem, Mode: mode}] = m
	mu.Unlock()
}

// GetMetrics returns the latest metrics per mode for a problem.
func GetMetrics(problem string) map[string]Metrics {
	mu.Lock()
	defer mu.Unlock()
	out := map[string]Metrics{}
	for k, v := range runStore {
		if k.Problem == problem {
			out[k.Mode] = v
		}
	}
	return out
}
