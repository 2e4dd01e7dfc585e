// Package stats summarises the read sizes a stream server observed.
package stats

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Summary accumulates the size of every read on one connection.
type Summary struct {
	sizes   []float64
	total   int64
	started time.Time
	last    time.Time
}

// NewSummary starts a summary at now.
func NewSummary(now time.Time) *Summary {
	return &Summary{started: now, last: now}
}

// Add records one read of n bytes at time at.
func (s *Summary) Add(n int, at time.Time) {
	s.sizes = append(s.sizes, float64(n))
	s.total += int64(n)
	s.last = at
}

// Reads returns the number of reads recorded.
func (s *Summary) Reads() int { return len(s.sizes) }

// Bytes returns the total number of bytes read.
func (s *Summary) Bytes() int64 { return s.total }

// MeanStdDev returns the mean and sample standard deviation of the read
// sizes. With fewer than two reads the deviation is 0.
func (s *Summary) MeanStdDev() (mean, std float64) {
	switch len(s.sizes) {
	case 0:
		return 0, 0
	case 1:
		return s.sizes[0], 0
	}
	return stat.MeanStdDev(s.sizes, nil)
}

// Rate returns bytes per second between the first and last read.
func (s *Summary) Rate() float64 {
	elapsed := s.last.Sub(s.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.total) / elapsed
}

// String renders a one-line summary.
func (s *Summary) String() string {
	mean, std := s.MeanStdDev()
	return fmt.Sprintf("%d reads, %d bytes, mean %.1f B/read (sd %.1f), %.0f B/s",
		s.Reads(), s.Bytes(), mean, std, s.Rate())
}
