package limiter

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// State per-key persisted state, one section per algorithm
type State struct {
	Algorithm AlgorithmType `json:"algorithm"`

	// token bucket
	Tokens     float64 `json:"tokens,omitempty"`
	LastRefill float64 `json:"last_refill,omitempty"`

	// fixed window / approximate sliding window
	WindowStart int64 `json:"window_start,omitempty"`
	Count       int64 `json:"count,omitempty"`
	PrevCount   int64 `json:"prev_count,omitempty"`

	// sliding window, ascending
	Timestamps []float64 `json:"timestamps,omitempty"`

	// leaky bucket
	QueueLevel float64 `json:"queue_level,omitempty"`
	LastLeak   float64 `json:"last_leak,omitempty"`

	// multiple buckets
	Token  *State `json:"token,omitempty"`
	Window *State `json:"window,omitempty"`

	UpdatedAt float64 `json:"updated_at"`
}

// Clone deep copy
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Timestamps = slices.Clone(s.Timestamps)
	c.Token = s.Token.Clone()
	c.Window = s.Window.Clone()
	return &c
}

// EncodeState serializes state for storage
func EncodeState(s *State) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeState parses stored bytes and checks they belong to algo
func DecodeState(data []byte, algo AlgorithmType) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Algorithm != algo {
		return nil, fmt.Errorf("state belongs to %q, expected %q", s.Algorithm, algo)
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *State) check() error {
	for name, v := range map[string]float64{
		"tokens": s.Tokens, "last_refill": s.LastRefill,
		"queue_level": s.QueueLevel, "last_leak": s.LastLeak,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", name)
		}
	}
	for _, ts := range s.Timestamps {
		if math.IsNaN(ts) || math.IsInf(ts, 0) {
			return fmt.Errorf("timestamps contain a non-finite value")
		}
	}
	if !slices.IsSorted(s.Timestamps) {
		return fmt.Errorf("timestamps are not ascending")
	}
	for _, sub := range []*State{s.Token, s.Window} {
		if sub == nil {
			continue
		}
		if err := sub.check(); err != nil {
			return err
		}
	}
	return nil
}
