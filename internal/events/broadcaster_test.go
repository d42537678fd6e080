package events

import (
	"os"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	SetOutput(nil)
	os.Exit(m.Run())
}

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case e := <-s.C:
		return e
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func expectQuiet(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case e := <-s.C:
		t.Errorf("expected no more events, got %s %v", e.Name, e.Fields)
	default:
	}
}

func TestFilterMatch(t *testing.T) {
	trial := Event{Level: "info", Name: "trial.completed", Fields: map[string]interface{}{"section": "main", "trial": 3}}
	practiceTrial := Event{Level: "info", Name: "trial.completed", Fields: map[string]interface{}{"section": "practice"}}
	checkpoint := Event{Level: "debug", Name: "checkpoint.fired", Fields: map[string]interface{}{"section": "main", "action": "start_stimulus"}}
	transition := Event{Level: "info", Name: "section.transition", Fields: map[string]interface{}{"from": "practice", "to": "main"}}
	paused := Event{Level: "info", Name: "run.paused", Fields: map[string]interface{}{"run_id": "r1"}}

	tests := []struct {
		name   string
		filter Filter
		event  Event
		want   bool
	}{
		{"zero filter", Filter{}, checkpoint, true},
		{"prefix", Filter{Prefixes: []string{"trial."}}, trial, true},
		{"other prefix", Filter{Prefixes: []string{"trial.", "run."}}, checkpoint, false},
		{"section", Filter{Section: "main"}, trial, true},
		{"other section", Filter{Section: "main"}, practiceTrial, false},
		{"transition into section", Filter{Section: "main"}, transition, true},
		{"transition elsewhere", Filter{Section: "bonus"}, transition, false},
		{"run event in section scope", Filter{Section: "main"}, paused, true},
		{"checkpoints below info", Filter{MinLevel: "info"}, checkpoint, false},
		{"trial at info", Filter{MinLevel: "info", Section: "main"}, trial, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(tt.event); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSubscriptionReceivesOnlyMatchingEvents(t *testing.T) {
	sub := Subscribe(Filter{Section: "main", MinLevel: "info"})
	defer Unsubscribe(sub)

	Emit("debug", "checkpoint.fired", "", map[string]interface{}{"section": "main", "action": "end_scene", "frame": 30})
	Emit("info", "trial.completed", "", map[string]interface{}{"section": "practice", "trial": 7, "correct": true})
	Emit("info", "trial.completed", "", map[string]interface{}{"section": "main", "trial": 0, "correct": false})
	Emit("info", "section.transition", "", map[string]interface{}{"from": "main", "to": "practice"})

	e := receive(t, sub)
	if e.Name != "trial.completed" || e.Fields["section"] != "main" || e.Fields["correct"] != false {
		t.Errorf("expected the main trial, got %s %v", e.Name, e.Fields)
	}
	if e.Seq == 0 {
		t.Error("expected a sequence number on broadcast events")
	}
	if e := receive(t, sub); e.Name != "section.transition" {
		t.Errorf("expected the transition out of main, got %s", e.Name)
	}
	expectQuiet(t, sub)
}

func TestSubscriptionCountsDroppedEvents(t *testing.T) {
	sub := Subscribe(Filter{Prefixes: []string{"staircase."}})
	defer Unsubscribe(sub)

	for i := 0; i < subscriptionBuffer+6; i++ {
		Emit("info", "staircase.step", "", map[string]interface{}{"section": "main", "index": i})
	}
	// filtered events take no buffer space
	Emit("info", "scene.started", "", nil)

	if sub.Dropped() != 6 {
		t.Errorf("expected 6 dropped events, got %d", sub.Dropped())
	}
	if e := receive(t, sub); e.Fields["index"] != 0 {
		t.Errorf("expected the oldest step first, got %v", e.Fields["index"])
	}
}

func TestUnsubscribeClosesFeed(t *testing.T) {
	initial := SubscriberCount()
	sub := Subscribe(Filter{})
	if SubscriberCount() != initial+1 {
		t.Errorf("expected %d subscribers, got %d", initial+1, SubscriberCount())
	}

	Unsubscribe(sub)
	Unsubscribe(sub)
	if _, ok := <-sub.C; ok {
		t.Error("expected the feed to be closed")
	}
	if SubscriberCount() != initial {
		t.Errorf("expected %d subscribers, got %d", initial, SubscriberCount())
	}
}

func TestCloseAllSubscribers(t *testing.T) {
	CloseAllSubscribers()
	a := Subscribe(Filter{})
	b := Subscribe(Filter{Section: "main"})

	CloseAllSubscribers()
	_, okA := <-a.C
	_, okB := <-b.C
	if okA || okB {
		t.Error("expected every feed to be closed")
	}
	if SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", SubscriberCount())
	}
	// a feed closed on shutdown can still be unsubscribed by its reader
	Unsubscribe(a)
}

func TestRecentEventsAndSince(t *testing.T) {
	Clear()
	for i := 0; i < 6; i++ {
		Emit("debug", "checkpoint.fired", "", map[string]interface{}{"section": "main", "frame": i})
		Emit("info", "trial.completed", "", map[string]interface{}{"section": "main", "trial": i})
	}

	trials := Filter{Prefixes: []string{"trial."}}
	recent := RecentEvents(2, trials)
	if len(recent) != 2 || recent[0].Fields["trial"] != 4 || recent[1].Fields["trial"] != 5 {
		t.Fatalf("expected trials 4 and 5, got %+v", recent)
	}
	if len(RecentEvents(0, trials)) != 6 {
		t.Errorf("expected all 6 trials, got %d", len(RecentEvents(0, trials)))
	}

	after := EventsSince(recent[0].Seq, Filter{})
	if len(after) != 2 || after[0].Name != "checkpoint.fired" || after[1].Seq != recent[1].Seq {
		t.Errorf("expected the checkpoint and trial after seq %d, got %+v", recent[0].Seq, after)
	}
	if got := EventsSince(TotalCount(), Filter{}); len(got) != 0 {
		t.Errorf("expected nothing after the last event, got %d", len(got))
	}
}
