package clock

import (
	"testing"
	"time"
)

func TestManualAfterFiresOnAdvance(t *testing.T) {
	c := NewManual(time.Unix(0, 0))
	ch := c.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatalf("fired before advance")
	default:
	}
	c.Advance(5 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatalf("expected fire after advance")
	}
}

func TestManualTickerPeriodic(t *testing.T) {
	c := NewManual(time.Unix(0, 0))
	tk := c.NewTicker(time.Second)
	defer tk.Stop()

	c.Advance(time.Second)
	select {
	case <-tk.C():
	default:
		t.Fatalf("expected first tick")
	}

	c.Advance(time.Second)
	select {
	case <-tk.C():
	default:
		t.Fatalf("expected second tick")
	}
}

func TestManualTickerStopSuppressesFutureTicks(t *testing.T) {
	c := NewManual(time.Unix(0, 0))
	tk := c.NewTicker(time.Second)
	tk.Stop()
	c.Advance(10 * time.Second)
	select {
	case <-tk.C():
		t.Fatalf("stopped ticker should not fire")
	default:
	}
}
