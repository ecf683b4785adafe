package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampler lets through num of every den calls. A zero ratio lets every
// call through.
type sampler struct {
	ratio atomic.Uint64 // num<<32 | den
	calls atomic.Uint64
}

func newSampler(num, den int) *sampler {
	s := &sampler{}
	s.Set(num, den)
	return s
}

func (s *sampler) Set(num, den int) {
	if num <= 0 || den <= 0 {
		num, den = 0, 0
	}
	num = min(num, den)
	s.ratio.Store(uint64(uint32(num))<<32 | uint64(uint32(den)))
	s.calls.Store(0)
}

func (s *sampler) Allow() bool {
	r := s.ratio.Load()
	num, den := r>>32, r&0xffffffff
	if den == 0 {
		return true
	}
	return (s.calls.Add(1)-1)%den < num
}

// parseRatio reads "1/50" or "50" (same as "1/50"). Anything unparsable or
// non-positive disables sampling.
func parseRatio(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	numPart, denPart, ok := strings.Cut(spec, "/")
	if !ok {
		numPart, denPart = "1", spec
	}
	num, err := strconv.Atoi(strings.TrimSpace(numPart))
	if err != nil {
		return 0, 0
	}
	den, err := strconv.Atoi(strings.TrimSpace(denPart))
	if err != nil || num <= 0 || den <= 0 {
		return 0, 0
	}
	return num, den
}
