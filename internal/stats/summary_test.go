package stats

import (
	"math"
	"testing"
	"time"
)

func TestSummary(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewSummary(start)

	if mean, std := s.MeanStdDev(); mean != 0 || std != 0 {
		t.Errorf("empty MeanStdDev = %v, %v", mean, std)
	}

	s.Add(1024, start.Add(500*time.Millisecond))
	if mean, std := s.MeanStdDev(); mean != 1024 || std != 0 {
		t.Errorf("single MeanStdDev = %v, %v", mean, std)
	}

	s.Add(512, start.Add(time.Second))
	s.Add(0, start.Add(2*time.Second))

	if s.Reads() != 3 || s.Bytes() != 1536 {
		t.Fatalf("reads/bytes = %d/%d", s.Reads(), s.Bytes())
	}
	mean, std := s.MeanStdDev()
	if mean != 512 {
		t.Errorf("mean = %v, want 512", mean)
	}
	if math.Abs(std-512) > 1e-9 {
		t.Errorf("std = %v, want 512", std)
	}
	if s.Rate() != 768 {
		t.Errorf("Rate() = %v, want 768", s.Rate())
	}
	if s.String() == "" {
		t.Error("String() is empty")
	}
}

func TestSummary_ZeroElapsed(t *testing.T) {
	now := time.Now()
	s := NewSummary(now)
	s.Add(10, now)
	if s.Rate() != 0 {
		t.Errorf("Rate() = %v, want 0", s.Rate())
	}
}
