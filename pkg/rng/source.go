// Package rng provides an explicit random-number context for training runs,
// instead of seeding process-wide generators. The source state is part of
// every full checkpoint so a resumed run continues the same stream.
package rng

import (
	"encoding/hex"
	"fmt"
	"math/rand/v2"

	"github.com/helixml/ditty/pkg/types"
)

const stateKey = "pcg"

// Source is a seedable PRNG context passed to the accelerator at
// construction time.
type Source struct {
	pcg *rand.PCG
	r   *rand.Rand
}

var _ types.Checkpointable = (*Source)(nil)

// New returns a source with a deterministic stream for the given seed.
func New(seed uint64) *Source {
	pcg := rand.NewPCG(seed, seed)
	return &Source{pcg: pcg, r: rand.New(pcg)}
}

// NewUnseeded returns a source with an arbitrary starting state.
func NewUnseeded() *Source {
	pcg := rand.NewPCG(rand.Uint64(), rand.Uint64())
	return &Source{pcg: pcg, r: rand.New(pcg)}
}

// Rand exposes the underlying generator for collaborators that shuffle or
// sample (data loaders, dropout masks).
func (s *Source) Rand() *rand.Rand {
	return s.r
}

func (s *Source) Uint64() uint64 {
	return s.r.Uint64()
}

func (s *Source) Float64() float64 {
	return s.r.Float64()
}

func (s *Source) IntN(n int) int {
	return s.r.IntN(n)
}

// Shuffle pseudo-randomizes the order of n elements.
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	s.r.Shuffle(n, swap)
}

func (s *Source) StateDict() types.StateDict {
	raw, err := s.pcg.MarshalBinary()
	if err != nil {
		// PCG marshalling writes into a fixed-size buffer and cannot fail.
		panic(fmt.Sprintf("marshalling rng state: %s", err))
	}
	return types.StateDict{stateKey: hex.EncodeToString(raw)}
}

func (s *Source) LoadStateDict(state types.StateDict) error {
	v, ok := state[stateKey]
	if !ok {
		return fmt.Errorf("rng state is missing key %q", stateKey)
	}
	enc, ok := v.(string)
	if !ok {
		return fmt.Errorf("rng state key %q has unexpected type %T", stateKey, v)
	}
	raw, err := hex.DecodeString(enc)
	if err != nil {
		return fmt.Errorf("decoding rng state: %w", err)
	}
	if err := s.pcg.UnmarshalBinary(raw); err != nil {
		return fmt.Errorf("restoring rng state: %w", err)
	}
	return nil
}
