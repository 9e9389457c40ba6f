package state

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNext_FixedTable(t *testing.T) {
	next, ok, err := Next(PhaseDrawing)
	if err != nil || !ok || next != PhaseGuessing {
		t.Errorf("Expected Drawing -> Guessing, got %v (ok=%v, err=%v)", next, ok, err)
	}

	next, ok, err = Next(PhaseGuessing)
	if err != nil || !ok || next != PhaseReveal {
		t.Errorf("Expected Guessing -> Reveal, got %v (ok=%v, err=%v)", next, ok, err)
	}

	_, ok, err = Next(PhaseReveal)
	if err != nil {
		t.Fatalf("Reveal should end the round without error, got: %v", err)
	}
	if ok {
		t.Error("Expected no phase after Reveal")
	}
}

func TestNext_NotAllowed(t *testing.T) {
	for _, p := range []Phase{PhaseWaiting, PhaseFinished} {
		_, ok, err := Next(p)
		if ok {
			t.Errorf("Expected no transition out of %s", p)
		}
		if !errors.Is(err, ErrTransitionNotAllowed) {
			t.Errorf("Expected ErrTransitionNotAllowed for %s, but got: %v", p, err)
		}
	}
}

func TestNext_UnknownPhase(t *testing.T) {
	_, _, err := Next(Phase(42))
	if !errors.Is(err, ErrUnknownPhase) {
		t.Errorf("Expected ErrUnknownPhase, but got: %v", err)
	}
}

func TestPhase_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Phase Phase `json:"phase"`
	}{PhaseGuessing})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"phase":"guessing"}` {
		t.Errorf("Expected guessing phase in JSON, got %s", data)
	}

	var decoded struct {
		Phase Phase `json:"phase"`
	}
	if err := json.Unmarshal([]byte(`{"phase":"Reveal"}`), &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Phase != PhaseReveal {
		t.Errorf("Expected reveal, got %s", decoded.Phase)
	}

	if _, err := json.Marshal(Phase(9)); err == nil {
		t.Error("Expected an error marshalling an unknown phase")
	}
}

func TestPhase_InRound(t *testing.T) {
	if PhaseWaiting.InRound() || PhaseFinished.InRound() {
		t.Error("Waiting and Finished are not round phases")
	}
	if !PhaseDrawing.InRound() || !PhaseGuessing.InRound() || !PhaseReveal.InRound() {
		t.Error("Drawing, Guessing and Reveal are round phases")
	}
}
