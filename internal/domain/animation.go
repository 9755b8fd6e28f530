package domain

// Mode is the play/pause state of the animation.
type Mode string

const (
	ModePaused  Mode = "paused"
	ModePlaying Mode = "playing"
)

// Button labels shown for each mode. The label names the action a press
// will take, so a paused animation shows "Play".
const (
	LabelPlay  = "Play"
	LabelPause = "Pause"
)

// EventKind identifies an animation input.
type EventKind string

const (
	EventPress EventKind = "press"
	EventTick  EventKind = "tick"
	EventScrub EventKind = "scrub"
)

// Event is a single animation input. Value is the chosen time index for
// EventScrub and ignored otherwise.
type Event struct {
	Kind  EventKind `json:"kind"`
	Value int       `json:"value,omitempty"`
}

// Press, Tick and Scrub construct the three animation events.
func Press() Event { return Event{Kind: EventPress} }
func Tick() Event { return Event{Kind: EventTick} }
func Scrub(index int) Event { return Event{Kind: EventScrub, Value: index} }

// Animation is the slider state for one viewer. The zero press count means
// paused; the mode is always derived from the counter's parity so the two
// can never drift apart.
type Animation struct {
	TimeIndex int `json:"time_index"`
	Presses   int `json:"presses"`
	Steps     int `json:"steps"`
}

// NewAnimation returns a paused animation at time index 1 over steps weeks.
func NewAnimation(steps int) Animation {
	return Animation{TimeIndex: 1, Steps: steps}
}

// Mode derives play/pause from the cumulative press count.
func (a Animation) Mode() Mode {
	if a.Presses%2 == 1 {
		return ModePlaying
	}
	return ModePaused
}

// Playing reports whether the animation is in ModePlaying.
func (a Animation) Playing() bool { return a.Mode() == ModePlaying }

// ButtonLabel returns the label for the play/pause button.
func (a Animation) ButtonLabel() string {
	if a.Playing() {
		return LabelPause
	}
	return LabelPlay
}

// Output is what the UI consumes after a transition.
type Output struct {
	Mode         Mode   `json:"mode"`
	ButtonLabel  string `json:"button_label"`
	TimerEnabled bool   `json:"timer_enabled"`
	TimeIndex    int    `json:"time_index"`
}

func (a Animation) output() Output {
	return Output{
		Mode:         a.Mode(),
		ButtonLabel:  a.ButtonLabel(),
		TimerEnabled: a.Playing(),
		TimeIndex:    a.TimeIndex,
	}
}

// Output returns the UI outputs for the current state without a transition.
func (a Animation) Output() Output { return a.output() }

// Reduce applies ev to a and returns the new state with its outputs.
// Unknown event kinds leave the state unchanged.
func Reduce(a Animation, ev Event) (Animation, Output) {
	switch ev.Kind {
	case EventPress:
		a.Presses++
	case EventTick:
		a = a.advance()
	case EventScrub:
		a.TimeIndex = ev.Value
	}
	return a, a.output()
}

// advance moves one week forward, wrapping from the last week to the first.
// With no weeks the index stays at 1.
func (a Animation) advance() Animation {
	if a.Steps <= 0 {
		a.TimeIndex = 1
		return a
	}
	if a.TimeIndex < a.Steps {
		a.TimeIndex++
	} else {
		a.TimeIndex = 1
	}
	return a
}
