package engine

import "math/rand"

// Outcome is one hidden draw in the chamber.
type Outcome string

const (
	Live  Outcome = "live"
	Empty Outcome = "empty"
)

// Flip returns the opposite outcome.
func (o Outcome) Flip() Outcome {
	if o == Live {
		return Empty
	}
	return Live
}

// Counts are the remaining outcomes in a sequence.
type Counts struct {
	Live  int `json:"live"`
	Empty int `json:"empty"`
	Total int `json:"total"`
}

// ChamberState is the serializable form of a Sequence.
type ChamberState struct {
	Chambers []Outcome `json:"chambers"`
	Cursor   int       `json:"cursor"`
}

// Sequence is an ordered run of outcomes consumed through a cursor that only
// moves forward. The cursor never exceeds the length.
type Sequence struct {
	chambers []Outcome
	cursor   int
}

// NewSequence draws a length within bounds, a live count permitted for that
// length and shuffles the result. bounds must be valid.
func NewSequence(bounds TierBounds, rng *rand.Rand) *Sequence {
	length := bounds.MinLength
	if span := bounds.MaxLength - bounds.MinLength; span > 0 {
		length += rng.Intn(span + 1)
	}
	counts := bounds.LiveCounts[length]
	live := counts[rng.Intn(len(counts))]

	chambers := make([]Outcome, length)
	for i := range chambers {
		if i < live {
			chambers[i] = Live
		} else {
			chambers[i] = Empty
		}
	}
	rng.Shuffle(len(chambers), func(i, j int) {
		chambers[i], chambers[j] = chambers[j], chambers[i]
	})
	return &Sequence{chambers: chambers}
}

// SequenceFromState rebuilds a sequence from a snapshot.
func SequenceFromState(st ChamberState) (*Sequence, error) {
	if st.Cursor < 0 || st.Cursor > len(st.Chambers) {
		return nil, ErrBadSnapshot
	}
	for _, o := range st.Chambers {
		if o != Live && o != Empty {
			return nil, ErrBadSnapshot
		}
	}
	chambers := make([]Outcome, len(st.Chambers))
	copy(chambers, st.Chambers)
	return &Sequence{chambers: chambers, cursor: st.Cursor}, nil
}

// State returns a copy suitable for snapshots.
func (s *Sequence) State() ChamberState {
	chambers := make([]Outcome, len(s.chambers))
	copy(chambers, s.chambers)
	return ChamberState{Chambers: chambers, Cursor: s.cursor}
}

func (s *Sequence) Len() int    { return len(s.chambers) }
func (s *Sequence) Cursor() int { return s.cursor }

// IsEmpty is true exactly when every outcome has been consumed.
func (s *Sequence) IsEmpty() bool { return s.cursor == len(s.chambers) }

// Peek returns the upcoming outcome without consuming it.
func (s *Sequence) Peek() (Outcome, bool) {
	if s.IsEmpty() {
		return "", false
	}
	return s.chambers[s.cursor], true
}

// Consume advances the cursor and returns the consumed outcome.
func (s *Sequence) Consume() (Outcome, bool) {
	if s.IsEmpty() {
		return "", false
	}
	o := s.chambers[s.cursor]
	s.cursor++
	return o, true
}

// Invert flips the upcoming outcome in place.
func (s *Sequence) Invert() (from, to Outcome, ok bool) {
	if s.IsEmpty() {
		return "", "", false
	}
	from = s.chambers[s.cursor]
	to = from.Flip()
	s.chambers[s.cursor] = to
	return from, to, true
}

// RemainingCounts counts the unconsumed outcomes.
func (s *Sequence) RemainingCounts() Counts {
	return s.State().Counts()
}

// LivePositions returns the absolute indexes of the remaining live outcomes.
func (s *Sequence) LivePositions() []int {
	var out []int
	for i := s.cursor; i < len(s.chambers); i++ {
		if s.chambers[i] == Live {
			out = append(out, i)
		}
	}
	return out
}

// Counts counts the unconsumed outcomes of a chamber state.
func (st ChamberState) Counts() Counts {
	var c Counts
	for i := st.Cursor; i < len(st.Chambers); i++ {
		if st.Chambers[i] == Live {
			c.Live++
		} else {
			c.Empty++
		}
	}
	c.Total = c.Live + c.Empty
	return c
}

// Equal compares chamber contents and cursor.
func (st ChamberState) Equal(other ChamberState) bool {
	return st.Cursor == other.Cursor && st.SameContents(other)
}

// SameContents compares only the drawn outcomes, ignoring the cursor.
func (st ChamberState) SameContents(other ChamberState) bool {
	if len(st.Chambers) != len(other.Chambers) {
		return false
	}
	for i := range st.Chambers {
		if st.Chambers[i] != other.Chambers[i] {
			return false
		}
	}
	return true
}
