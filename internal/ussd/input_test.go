package ussd

import (
	"errors"
	"fmt"
	"testing"
)

func TestLastSegment(t *testing.T) {
	cases := map[string]string{
		"":             "",
		"1":            "1",
		"1*500":        "500",
		"1*500*1234":   "1234",
		"1*500* 1234 ": "1234",
		"1*":           "",
		"*123#":        "123#",
	}
	for text, want := range cases {
		if got := LastSegment(text); got != want {
			t.Fatalf("LastSegment(%q) = %q, want %q", text, got, want)
		}
	}
}

func TestSegments(t *testing.T) {
	if got := Segments(""); len(got) != 0 {
		t.Fatalf("empty text has no segments, got %v", got)
	}
	if got := Segments("1*500*1234"); len(got) != 3 || got[1] != "500" {
		t.Fatalf("unexpected segments %v", got)
	}
}

func TestEncode(t *testing.T) {
	if got := Encode(true, "Menu"); got != "CON Menu" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Encode(false, "Bye"); got != "END Bye" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("rpc timeout")
	err := fmt.Errorf("wrapped: %w", newError(KindCollaborator, "balance", cause))
	if KindOf(err) != KindCollaborator {
		t.Fatalf("expected collaborator kind")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause should be reachable")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("unclassified errors are internal")
	}

	seen := map[string]Kind{}
	for _, kind := range []Kind{KindValidation, KindAuth, KindCollaborator, KindInternal} {
		msg := Message(kind)
		if other, dup := seen[msg]; dup {
			t.Fatalf("%s and %s share message %q", kind, other, msg)
		}
		seen[msg] = kind
	}
	if Message(KindInternal) != "An error occurred. Please try again later." {
		t.Fatalf("unexpected internal message %q", Message(KindInternal))
	}
}
