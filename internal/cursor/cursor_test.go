package cursor

import (
	"testing"

	"automerge/internal/actor"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := Cursor{
		Obj:  actor.OpId{Actor: 2, Counter: 7},
		Elem: actor.OpId{Actor: 1, Counter: 42},
	}
	decoded, err := Decode(c.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != c {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, c)
	}
}

func TestEncodeDecodeSentinelElem(t *testing.T) {
	c := Cursor{Obj: actor.Root, Elem: actor.Head}
	decoded, err := Decode(c.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != c {
		t.Fatalf("round trip mismatch for sentinel cursor: got %+v want %+v", decoded, c)
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error decoding a short buffer")
	}
}

func TestStringIsStable(t *testing.T) {
	c := Cursor{Obj: actor.OpId{Actor: 3, Counter: 5}, Elem: actor.OpId{Actor: 1, Counter: 9}}
	if c.String() != c.String() {
		t.Fatal("String() should be deterministic")
	}
}
