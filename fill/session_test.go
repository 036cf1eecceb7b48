package fill

import (
	"testing"
	"time"

	"github.com/ptarchi/gridforms/model"
)

var testFields = []model.FieldDef{
	{ID: "a", SourceFieldID: "fld_a", Type: model.FieldText},
	{ID: "b", SourceFieldID: "fld_b", Type: model.FieldText, Required: true},
}

var testRules = []model.Rule{{
	TriggerFieldID: "a",
	Operator:       model.OpEquals,
	CompareValue:   "yes",
	Action:         model.ActionShow,
	TargetFieldID:  "b",
}}

func TestSession_EditRecomputesVisibility(t *testing.T) {
	store := NewStore(time.Hour)
	session, err := store.Open("form-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	state := session.Snapshot(testFields, testRules)
	if len(state.Visibility) != 2 {
		t.Errorf("initial visibility = %v, want both fields", state.Visibility)
	}

	state = session.SetValue("a", "no", testFields, testRules)
	if len(state.Visibility) != 1 || state.Visibility[0] != "a" {
		t.Errorf("visibility after a=no: %v, want [a]", state.Visibility)
	}

	state = session.SetValue("a", "yes", testFields, testRules)
	if len(state.Visibility) != 2 {
		t.Errorf("visibility after a=yes: %v, want both fields", state.Visibility)
	}
	if state.Errors["b"] == "" {
		t.Error("revealed required field b should report missing")
	}

	state = session.SetValue("b", "filled", testFields, testRules)
	if len(state.Errors) != 0 {
		t.Errorf("errors after filling b: %v", state.Errors)
	}
}

func TestSession_NilValueClearsAnswer(t *testing.T) {
	store := NewStore(time.Hour)
	session, _ := store.Open("form-1")

	session.SetValue("a", "no", testFields, testRules)
	state := session.SetValue("a", nil, testFields, testRules)

	// back to unanswered: the rule is skipped and b defaults to visible
	if len(state.Visibility) != 2 {
		t.Errorf("visibility after clearing a: %v, want both fields", state.Visibility)
	}
	if _, ok := session.Values()["a"]; ok {
		t.Error("cleared answer still present in values")
	}
}

func TestSession_ValuesReturnsCopy(t *testing.T) {
	store := NewStore(time.Hour)
	session, _ := store.Open("form-1")
	session.SetValue("a", "yes", testFields, testRules)

	values := session.Values()
	values["a"] = "tampered"

	if got := session.Values()["a"]; got != "yes" {
		t.Errorf("session values mutated through the copy: %v", got)
	}
}

func TestStore_SweepDropsIdleSessions(t *testing.T) {
	store := NewStore(time.Hour)
	session, _ := store.Open("form-1")

	store.sweep(time.Now().Add(30 * time.Minute))
	if _, ok := store.Get(session.ID); !ok {
		t.Fatal("session swept before its idle timeout")
	}

	store.sweep(time.Now().Add(2 * time.Hour))
	if _, ok := store.Get(session.ID); ok {
		t.Error("idle session survived the sweep")
	}
}

func TestStore_DropIsIdempotent(t *testing.T) {
	store := NewStore(time.Hour)
	session, _ := store.Open("form-1")

	store.Drop(session.ID)
	store.Drop(session.ID)

	if _, ok := store.Get(session.ID); ok {
		t.Error("dropped session still retrievable")
	}
}
