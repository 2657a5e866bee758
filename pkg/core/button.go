package core

// ButtonState is the debouncer state. The numeric values are part of the
// report line.
type ButtonState uint8

const (
	NoPush      ButtonState = 1
	MaybePush   ButtonState = 2
	Pushed      ButtonState = 3
	MaybeNoPush ButtonState = 4
)

// Pin is a digital input. The button is wired active-low: Get() == false means pressed.
type Pin interface {
	Get() bool
}

// Next returns the state after observing one sample. A press or a release has
// to be seen on two consecutive samples before it latches.
func (s ButtonState) Next(pressed bool) ButtonState {
	switch s {
	case NoPush:
		if pressed {
			return MaybePush
		}
		return NoPush
	case MaybePush:
		if pressed {
			return Pushed
		}
		return NoPush
	case Pushed:
		if pressed {
			return Pushed
		}
		return MaybeNoPush
	case MaybeNoPush:
		if pressed {
			return Pushed
		}
		return NoPush
	}
	return NoPush
}

// Held reports whether the button is considered down.
func (s ButtonState) Held() bool {
	return s == Pushed || s == MaybeNoPush
}

// Valid reports whether s is one of the four debouncer states.
func (s ButtonState) Valid() bool {
	return s >= NoPush && s <= MaybeNoPush
}

func (s ButtonState) String() string {
	switch s {
	case NoPush:
		return "NoPush"
	case MaybePush:
		return "MaybePush"
	case Pushed:
		return "Pushed"
	case MaybeNoPush:
		return "MaybeNoPush"
	}
	return "Unknown"
}
