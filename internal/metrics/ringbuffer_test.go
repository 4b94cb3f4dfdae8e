package metrics

import "testing"

func TestRingBufferPercentiles(t *testing.T) {
	rb := newRingBuffer(1024)
	for i := 1; i <= 100; i++ {
		rb.Add(float64(i))
	}
	if p50 := rb.Percentile(50); p50 < 49 || p50 > 51 {
		t.Fatalf("expected p50 near 50, got %f", p50)
	}
	if p99 := rb.Percentile(99); p99 < 98 || p99 > 100 {
		t.Fatalf("expected p99 near 99, got %f", p99)
	}
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	rb := newRingBuffer(4)
	for i := 1; i <= 6; i++ {
		rb.Add(float64(i))
	}
	if rb.Len() != 4 {
		t.Fatalf("expected buffer capped at 4, got %d", rb.Len())
	}
	// only samples 3,4,5,6 should remain
	if p0 := rb.Percentile(0); p0 != 3 {
		t.Fatalf("expected min remaining sample 3, got %f", p0)
	}
}
