package bot

import "github.com/mcdev12/lastround/go/internal/engine"

// Memory is a bot's belief about the chamber. It only learns from events the
// bot could have seen, so it never reads the hidden sequence.
type Memory struct {
	self  engine.Slot
	live  int
	empty int
	// consumed counts outcomes drawn since the last reload; it is the bot's
	// view of the cursor.
	consumed  int
	known     engine.Outcome
	scanIndex int
}

// NewMemory returns an empty belief state for the bot seated at self.
func NewMemory(self engine.Slot) *Memory {
	return &Memory{self: self, scanIndex: -1}
}

// Observe folds one event into the belief state.
func (m *Memory) Observe(ev engine.Event) {
	switch ev.Type {
	case engine.EventReload:
		if ev.Counts != nil {
			m.live, m.empty = ev.Counts.Live, ev.Counts.Empty
		}
		m.consumed = 0
		m.known = ""
		m.scanIndex = -1
	case engine.EventShot:
		m.draw(ev.Outcome)
	case engine.EventItemUsed:
		m.observeItem(ev)
	}
}

func (m *Memory) observeItem(ev engine.Event) {
	switch ev.Item {
	case engine.ItemPeek:
		if ev.Actor == m.self && ev.Outcome != "" {
			m.known = ev.Outcome
		}
	case engine.ItemEject:
		m.draw(ev.Outcome)
	case engine.ItemInvert:
		if ev.Inversion == nil {
			return
		}
		m.take(ev.Inversion.From)
		m.give(ev.Inversion.To)
		if ev.Actor == m.self {
			if m.known != "" {
				m.known = ev.Inversion.To
			}
		} else {
			m.known = ""
		}
		if m.scanIndex == m.consumed && ev.Inversion.To == engine.Empty {
			m.scanIndex = -1
		}
	case engine.ItemScan:
		if ev.Actor == m.self && ev.Position > 0 {
			m.scanIndex = m.consumed + ev.Position - 1
		}
	}
}

func (m *Memory) draw(o engine.Outcome) {
	m.take(o)
	m.consumed++
	m.known = ""
	if m.scanIndex >= 0 && m.scanIndex < m.consumed {
		m.scanIndex = -1
	}
}

func (m *Memory) take(o engine.Outcome) {
	switch o {
	case engine.Live:
		if m.live > 0 {
			m.live--
		}
	case engine.Empty:
		if m.empty > 0 {
			m.empty--
		}
	}
}

func (m *Memory) give(o engine.Outcome) {
	switch o {
	case engine.Live:
		m.live++
	case engine.Empty:
		m.empty++
	}
}

// Counts returns the believed remaining outcomes.
func (m *Memory) Counts() engine.Counts {
	return engine.Counts{Live: m.live, Empty: m.empty, Total: m.live + m.empty}
}

// Known returns the peeked next outcome, if any.
func (m *Memory) Known() engine.Outcome { return m.known }

// HasScan reports whether a scanned live outcome is still ahead.
func (m *Memory) HasScan() bool { return m.scanIndex >= 0 }

// Forget drops a peeked outcome.
func (m *Memory) Forget() { m.known = "" }

// PLive is the believed probability that the next outcome is live.
func (m *Memory) PLive() float64 {
	switch m.known {
	case engine.Live:
		return 1
	case engine.Empty:
		return 0
	}
	total := m.live + m.empty
	if total == 0 {
		return 0.5
	}
	if m.scanIndex == m.consumed {
		return 1
	}
	if m.scanIndex > m.consumed && total > 1 {
		// One live is pinned further down the chamber.
		return float64(m.live-1) / float64(total-1)
	}
	return float64(m.live) / float64(total)
}
