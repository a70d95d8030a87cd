package normalizer

import "sync"

// CallStats counts completion attempts for a run.
type CallStats struct {
	TotalCalls      int `json:"total_calls"`
	SuccessfulCalls int `json:"successful_calls"`
	FailedCalls     int `json:"failed_calls"`
	TotalTokens     int `json:"total_tokens"`
}

type statsRecorder struct {
	mu    sync.Mutex
	stats CallStats
}

func (s *statsRecorder) success(tokens int) {
	s.mu.Lock()
	s.stats.TotalCalls++
	s.stats.SuccessfulCalls++
	s.stats.TotalTokens += tokens
	s.mu.Unlock()
}

func (s *statsRecorder) failure() {
	s.mu.Lock()
	s.stats.TotalCalls++
	s.stats.FailedCalls++
	s.mu.Unlock()
}

func (s *statsRecorder) snapshot() CallStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
