package websocket

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/model"
)

func TestHubBroadcastFanOut(t *testing.T) {
	h := NewHub(zerolog.Nop())
	id := uuid.New()
	c1 := NewConn(nil, zerolog.Nop())
	c2 := NewConn(nil, zerolog.Nop())
	h.Register(id, c1)
	h.Register(id, c2)

	h.PublishTime(id, 45)

	for i, c := range []*Conn{c1, c2} {
		select {
		case v := <-c.send:
			ev, ok := v.(TimeEvent)
			if !ok {
				t.Fatalf("conn %d: unexpected message %#v", i, v)
			}
			if ev.Event != EventTime || ev.Remaining != 45 {
				t.Fatalf("conn %d: expected time/45, got %s/%d", i, ev.Event, ev.Remaining)
			}
		default:
			t.Fatalf("conn %d received nothing", i)
		}
	}
}

func TestHubWarningUsesDistinctEvent(t *testing.T) {
	h := NewHub(zerolog.Nop())
	id := uuid.New()
	c := NewConn(nil, zerolog.Nop())
	h.Register(id, c)

	h.PublishWarning(id, 300)

	v := <-c.send
	ev, ok := v.(TimeEvent)
	if !ok || ev.Event != EventWarning {
		t.Fatalf("expected warning event, got %#v", v)
	}
}

func TestHubDropsSlowStream(t *testing.T) {
	h := NewHub(zerolog.Nop())
	id := uuid.New()
	slow := NewConn(nil, zerolog.Nop())
	fast := NewConn(nil, zerolog.Nop())
	h.Register(id, slow)
	h.Register(id, fast)

	for i := 0; i < sendBuffer; i++ {
		if !slow.Send(PongEvent{Event: EventPong}) {
			t.Fatalf("buffer refused write %d", i)
		}
	}

	h.PublishExpired(id)

	if got := len(fast.send); got != 1 {
		t.Fatalf("expected fast stream to get 1 event, got %d", got)
	}

	// The slow stream's channel must be closed with only the filler
	// left; the expired event never made it in.
	var drained int
	for range slow.send {
		drained++
	}
	if drained != sendBuffer {
		t.Fatalf("expected %d buffered events, got %d", sendBuffer, drained)
	}

	h.PublishExpired(id)
	if got := len(fast.send); got != 2 {
		t.Fatalf("expected fast stream to get 2 events, got %d", got)
	}
}

func TestHubUnregisterIdempotent(t *testing.T) {
	h := NewHub(zerolog.Nop())
	id := uuid.New()
	c := NewConn(nil, zerolog.Nop())
	h.Register(id, c)

	h.Unregister(id, c)
	h.Unregister(id, c)

	// Closed channel with nothing buffered.
	if _, ok := <-c.send; ok {
		t.Fatal("expected send channel closed")
	}

	h.PublishTime(id, 10)
}

func TestHubGradedCarriesResult(t *testing.T) {
	h := NewHub(zerolog.Nop())
	id := uuid.New()
	c := NewConn(nil, zerolog.Nop())
	h.Register(id, c)

	res := &model.AssessmentResult{ID: uuid.New(), Percentage: 87.5}
	h.PublishGraded(id, res)

	v := <-c.send
	ev, ok := v.(GradedEvent)
	if !ok || ev.Result == nil {
		t.Fatalf("expected graded event with result, got %#v", v)
	}
	if ev.Result.Percentage != 87.5 {
		t.Fatalf("expected percentage 87.5, got %v", ev.Result.Percentage)
	}
}

func TestHubSaveFailedNamesQuestion(t *testing.T) {
	h := NewHub(zerolog.Nop())
	id := uuid.New()
	qid := uuid.New()
	c := NewConn(nil, zerolog.Nop())
	h.Register(id, c)

	h.PublishSaveFailed(id, qid)

	v := <-c.send
	ev, ok := v.(ErrorEvent)
	if !ok || ev.QuestionID != qid.String() {
		t.Fatalf("expected error event naming %s, got %#v", qid, v)
	}
}
