package eventbus

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/swarmguard/taskqueue/internal/model"
)

func TestPublishFanOutToSubscribers(t *testing.T) {
	b := New()
	sub := b.Subscribe(nil)
	defer sub.Close()

	b.Publish(model.Event{Type: model.EventTaskQueued, TaskID: "t1"})

	select {
	case ev := <-sub.C:
		if ev.TaskID != "t1" {
			t.Fatalf("expected t1, got %q", ev.TaskID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeFilter(t *testing.T) {
	b := New()
	sub := b.Subscribe(func(ev model.Event) bool { return ev.Type == model.EventTaskFailed })
	defer sub.Close()

	b.Publish(model.Event{Type: model.EventTaskQueued})
	b.Publish(model.Event{Type: model.EventTaskFailed, TaskID: "t2"})

	select {
	case ev := <-sub.C:
		if ev.Type != model.EventTaskFailed || ev.TaskID != "t2" {
			t.Fatalf("expected filtered failed event for t2, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}

	select {
	case ev := <-sub.C:
		t.Fatalf("did not expect a second event, got %+v", ev)
	default:
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe(nil)
	defer sub.Close()

	for i := 0; i < DefaultSubscriberBuffer+10; i++ {
		b.Publish(model.Event{Type: model.EventTaskQueued, TaskID: "flood"})
	}
	// If Publish blocked, this test would hang rather than reach here.
}

func TestCloseStopsDelivery(t *testing.T) {
	b := New()
	sub := b.Subscribe(nil)
	sub.Close()
	b.Publish(model.Event{Type: model.EventTaskQueued})
	if _, ok := <-sub.C; ok {
		t.Fatal("expected channel closed with no pending events")
	}
}

func TestBoltJournalAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenBoltJournal(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("OpenBoltJournal: %v", err)
	}
	defer j.Close()

	want := []model.Event{
		{Type: model.EventTaskQueued, TaskID: "t1"},
		{Type: model.EventTaskAssigned, TaskID: "t1"},
		{Type: model.EventTaskCompleted, TaskID: "t1"},
	}
	for _, ev := range want {
		if err := j.Append(ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	var got []model.Event
	if err := j.Replay(func(ev model.Event) error {
		got = append(got, ev)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d replayed events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Type != want[i].Type || got[i].TaskID != want[i].TaskID {
			t.Fatalf("event %d mismatch: got %+v, want %+v", i, got[i], want[i])
		}
	}
}
