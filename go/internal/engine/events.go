package engine

// ActionType is the kind of the last resolved action.
type ActionType string

const (
	ActionShot    ActionType = "shot"
	ActionItem    ActionType = "item"
	ActionTimeout ActionType = "timeout"
)

// Action describes the last resolved action for narration.
type Action struct {
	Type    ActionType `json:"type"`
	Actor   Slot       `json:"actor"`
	Target  Slot       `json:"target"`
	Outcome Outcome    `json:"outcome,omitempty"`
	Damage  int        `json:"damage,omitempty"`
	Item    ItemKind   `json:"item,omitempty"`
}

// EventType names an engine event.
type EventType string

const (
	EventShot       EventType = "shot"
	EventItemUsed   EventType = "item_used"
	EventTimeout    EventType = "timeout"
	EventReload     EventType = "reload"
	EventSkip       EventType = "skip"
	EventTurn       EventType = "turn"
	EventEliminated EventType = "eliminated"
	EventGameOver   EventType = "game_over"
)

// Inversion records an invert item flipping the upcoming chamber.
type Inversion struct {
	From Outcome `json:"from"`
	To   Outcome `json:"to"`
}

// Event is emitted on every state change. Peers replay shot, item_used and
// timeout events for animation; bots feed every event into their memory.
type Event struct {
	Type      EventType  `json:"type"`
	Actor     Slot       `json:"actor"`
	Target    Slot       `json:"target"`
	Outcome   Outcome    `json:"outcome,omitempty"`
	Damage    int        `json:"damage,omitempty"`
	Item      ItemKind   `json:"item,omitempty"`
	Inversion *Inversion `json:"inversion,omitempty"`
	// Position is the 1-indexed scan result among the remaining chambers.
	Position int `json:"position,omitempty"`
	// Counts is set on reload events.
	Counts      *Counts `json:"counts,omitempty"`
	ReloadCount int     `json:"reloadCount,omitempty"`
	Strikes     int     `json:"strikes,omitempty"`
	Winner      Slot    `json:"winner"`
	Reason      string  `json:"reason,omitempty"`
	Message     string  `json:"message,omitempty"`
}

// Animated reports whether peers replay the event as an action.
func (e Event) Animated() bool {
	switch e.Type {
	case EventShot, EventItemUsed, EventTimeout:
		return true
	}
	return false
}

func newEvent(t EventType, actor Slot) Event {
	return Event{Type: t, Actor: actor, Target: NoSlot, Winner: NoSlot}
}

// VisibleTo strips what only the actor may see: peek results and scan
// positions.
func (e Event) VisibleTo(viewer Slot) Event {
	if e.Type != EventItemUsed || viewer == e.Actor {
		return e
	}
	switch e.Item {
	case ItemPeek:
		e.Outcome = ""
	case ItemScan:
		e.Position = 0
	}
	return e
}
