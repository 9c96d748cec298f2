package patch

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestMakeApplyRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		base   string
		target string
	}{
		{"append", "hello", "hello world"},
		{"prepend", "world", "hello world"},
		{"middle", "func main() {}", "func main() { run() }"},
		{"delete", "abcdef", "abef"},
		{"replace all", "old content", "completely new"},
		{"no change", "same", "same"},
		{"empty base", "", "created"},
		{"empty target", "removed", ""},
		{"multiline", "a\nb\nc\n", "a\nB\nc\nd\n"},
	}
	codec := Codec{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := Make([]byte(tc.base), []byte(tc.target))
			if err != nil {
				t.Fatalf("Make: %v", err)
			}
			got, err := codec.Apply([]byte(tc.base), payload)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if string(got) != tc.target {
				t.Errorf("Apply = %q, want %q", got, tc.target)
			}
		})
	}
}

func TestApplyDoesNotMutateBase(t *testing.T) {
	base := []byte("immutable")
	payload, _ := Make(base, []byte("changed"))
	if _, err := (Codec{}).Apply(base, payload); err != nil {
		t.Fatal(err)
	}
	if string(base) != "immutable" {
		t.Errorf("base mutated to %q", base)
	}
}

func TestApplyAnchorMismatch(t *testing.T) {
	payload, _ := Make([]byte("version one"), []byte("version two"))
	_, err := (Codec{}).Apply([]byte("wrong base"), payload)
	if !errors.Is(err, ErrAnchorMismatch) {
		t.Fatalf("err = %v, want ErrAnchorMismatch", err)
	}
}

func TestApplyMalformed(t *testing.T) {
	codec := Codec{}

	if _, err := codec.Apply([]byte("x"), []byte("not json")); !errors.Is(err, ErrMalformed) {
		t.Errorf("garbage payload = %v, want ErrMalformed", err)
	}

	// Op past the end of base.
	raw, _ := json.Marshal(Payload{Ops: []Op{{Off: 5, Del: 3}}})
	if _, err := codec.Apply([]byte("ab"), raw); !errors.Is(err, ErrMalformed) {
		t.Errorf("out-of-range op = %v, want ErrMalformed", err)
	}

	// Overlapping ops.
	raw, _ = json.Marshal(Payload{Ops: []Op{{Off: 0, Del: 4}, {Off: 2, Del: 1}}})
	if _, err := codec.Apply([]byte("abcdef"), raw); !errors.Is(err, ErrMalformed) {
		t.Errorf("overlapping ops = %v, want ErrMalformed", err)
	}

	// Negative delete count.
	raw, _ = json.Marshal(Payload{Ops: []Op{{Off: 0, Del: -1}}})
	if _, err := codec.Apply([]byte("abc"), raw); !errors.Is(err, ErrMalformed) {
		t.Errorf("negative del = %v, want ErrMalformed", err)
	}

	// Hostile off/del values whose sum wraps around must be rejected,
	// not slip past the range check and panic.
	raw, _ = json.Marshal(Payload{Ops: []Op{{Off: math.MaxInt, Del: 2}}})
	if _, err := codec.Apply([]byte("abc"), raw); !errors.Is(err, ErrMalformed) {
		t.Errorf("overflowing off+del = %v, want ErrMalformed", err)
	}
	raw, _ = json.Marshal(Payload{Ops: []Op{{Off: 1, Del: math.MaxInt}}})
	if _, err := codec.Apply([]byte("abc"), raw); !errors.Is(err, ErrMalformed) {
		t.Errorf("overflowing del = %v, want ErrMalformed", err)
	}
}

func TestApplyMultipleOps(t *testing.T) {
	// Hand-built payload with two splices; no anchor so any base passes.
	raw, _ := json.Marshal(Payload{Ops: []Op{
		{Off: 0, Del: 1, Ins: "H"},
		{Off: 6, Del: 5, Ins: "golang"},
	}})
	got, err := (Codec{}).Apply([]byte("hello world"), raw)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if string(got) != "Hello golang" {
		t.Errorf("Apply = %q, want %q", got, "Hello golang")
	}
}

func TestStatsOf(t *testing.T) {
	st := StatsOf([]byte("one\n"), []byte("one\ntwo\n"))
	if st.CharsAdded != 4 || st.CharsRemoved != 0 || st.LinesAdded != 1 || st.LinesRemoved != 0 {
		t.Errorf("append stats = %+v, want +4 chars / +1 line", st)
	}

	st = StatsOf([]byte("one\ntwo\n"), []byte("one\n"))
	if st.CharsAdded != 0 || st.CharsRemoved != 4 || st.LinesAdded != 0 || st.LinesRemoved != 1 {
		t.Errorf("truncate stats = %+v, want -4 chars / -1 line", st)
	}

	if st := StatsOf([]byte("same"), []byte("same")); st != (Stats{}) {
		t.Errorf("identical content stats = %+v, want zero", st)
	}
}
