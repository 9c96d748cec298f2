// Package patch defines the patch payload codec used for incremental
// diffs between checkpoints.
//
// The store treats patch payloads as opaque bytes; only this package
// interprets them. The wire format is JSON: an optional anchor
// fingerprint (SHA-256 of the base content the patch applies to) and an
// ordered list of splice operations. Producing sophisticated minimal
// diffs is a concern of the capture side; applying them forward,
// correctly or not at all, is the contract here.
package patch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/codetape/codetape/internal/fingerprint"
)

var (
	// ErrMalformed is returned when a payload cannot be decoded or its
	// operations fall outside the base content.
	ErrMalformed = errors.New("patch: malformed payload")
	// ErrAnchorMismatch is returned when the payload's anchor fingerprint
	// does not match the base content it is applied to.
	ErrAnchorMismatch = errors.New("patch: anchor mismatch")
)

// Op is a single splice: delete Del bytes at Off, then insert Ins there.
// Ops within a payload are non-overlapping and sorted ascending by Off,
// with offsets relative to the unmodified base.
type Op struct {
	Off int    `json:"off"`
	Del int    `json:"del,omitempty"`
	Ins string `json:"ins,omitempty"`
}

// Payload is the decoded form of a patch payload.
type Payload struct {
	Anchor string `json:"anchor,omitempty"`
	Ops    []Op   `json:"ops"`
}

// Applier applies an opaque patch payload to base content. Consumers
// should depend on this interface rather than the concrete Codec so an
// external diff collaborator can supply its own format.
type Applier interface {
	Apply(base, payload []byte) ([]byte, error)
}

// Codec is the default Applier for the JSON splice format.
type Codec struct{}

// Verify Codec satisfies Applier at compile time.
var _ Applier = Codec{}

// Apply decodes payload and applies its operations to base, returning
// the patched content. base is never mutated.
func (Codec) Apply(base, payload []byte) ([]byte, error) {
	p, err := decode(payload)
	if err != nil {
		return nil, err
	}
	if p.Anchor != "" && p.Anchor != fingerprint.Hex(base) {
		return nil, ErrAnchorMismatch
	}

	prevEnd := 0
	for _, op := range p.Ops {
		// Bounds are checked in a form that cannot overflow on hostile
		// off/del values; the payload is an external input format.
		if op.Off < prevEnd || op.Off > len(base) || op.Del < 0 || op.Del > len(base)-op.Off {
			return nil, fmt.Errorf("%w: op out of range (off=%d del=%d base=%d)", ErrMalformed, op.Off, op.Del, len(base))
		}
		prevEnd = op.Off + op.Del
	}

	// Apply back-to-front so earlier offsets stay valid.
	out := append([]byte(nil), base...)
	for i := len(p.Ops) - 1; i >= 0; i-- {
		op := p.Ops[i]
		tail := append([]byte(op.Ins), out[op.Off+op.Del:]...)
		out = append(out[:op.Off], tail...)
	}
	return out, nil
}

// Make produces a payload transforming base into target using a single
// splice over the differing middle region (common prefix and suffix are
// kept). The payload carries base's fingerprint as its anchor.
func Make(base, target []byte) ([]byte, error) {
	pre := 0
	for pre < len(base) && pre < len(target) && base[pre] == target[pre] {
		pre++
	}
	suf := 0
	for suf < len(base)-pre && suf < len(target)-pre && base[len(base)-1-suf] == target[len(target)-1-suf] {
		suf++
	}

	p := Payload{Anchor: fingerprint.Hex(base)}
	del := len(base) - pre - suf
	ins := string(target[pre : len(target)-suf])
	if del > 0 || ins != "" {
		p.Ops = append(p.Ops, Op{Off: pre, Del: del, Ins: ins})
	}
	out, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("patch: encode: %w", err)
	}
	return out, nil
}

// Stats is the change bookkeeping stored alongside a diff so it can be
// inspected without replaying content.
type Stats struct {
	CharsAdded   int
	CharsRemoved int
	LinesAdded   int
	LinesRemoved int
}

// StatsOf tallies what changed between base and target over the same
// prefix/suffix splice that Make produces.
func StatsOf(base, target []byte) Stats {
	pre := 0
	for pre < len(base) && pre < len(target) && base[pre] == target[pre] {
		pre++
	}
	suf := 0
	for suf < len(base)-pre && suf < len(target)-pre && base[len(base)-1-suf] == target[len(target)-1-suf] {
		suf++
	}
	removed := string(base[pre : len(base)-suf])
	added := string(target[pre : len(target)-suf])
	return Stats{
		CharsAdded:   len(added),
		CharsRemoved: len(removed),
		LinesAdded:   strings.Count(added, "\n"),
		LinesRemoved: strings.Count(removed, "\n"),
	}
}

func decode(payload []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p, nil
}
