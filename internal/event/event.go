package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

type Kind string

const (
	KindClick  Kind = "click"
	KindMove   Kind = "move"
	KindScroll Kind = "scroll"
	KindResize Kind = "resize"
	KindDrag   Kind = "drag"
)

type MouseButton int

const (
	ButtonLeft MouseButton = iota
	ButtonMiddle
	ButtonRight
)

func ParseButton(s string) (MouseButton, error) {
	switch s {
	case "", "left":
		return ButtonLeft, nil
	case "middle":
		return ButtonMiddle, nil
	case "right":
		return ButtonRight, nil
	default:
		return 0, fmt.Errorf("unknown mouse button %q", s)
	}
}

func (b MouseButton) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonMiddle:
		return "middle"
	case ButtonRight:
		return "right"
	default:
		return fmt.Sprintf("MouseButton(%d)", int(b))
	}
}

// Event is one of Click, Move, Scroll, Resize or Drag. The set is closed;
// handlers switch on the concrete type.
type Event interface {
	Kind() Kind
	Metadata() Meta
	event()
}

// Meta identifies an event. Screen positions of every variant are in pixels
// with Y growing downwards.
type Meta struct {
	ID uuid.UUID
	At time.Time
}

func newMeta() Meta {
	return Meta{ID: uuid.New(), At: time.Now()}
}

type Click struct {
	Meta
	Button MouseButton
	Screen orb.Point
}

type Move struct {
	Meta
	Screen orb.Point
}

// Scroll zooms around Screen. Positive Delta zooms in.
type Scroll struct {
	Meta
	Screen orb.Point
	Delta  float64
}

type Resize struct {
	Meta
	Width  int
	Height int
}

type Drag struct {
	Meta
	Button MouseButton
	From   orb.Point
	To     orb.Point
}

func NewClick(button MouseButton, x, y float64) Click {
	return Click{Meta: newMeta(), Button: button, Screen: orb.Point{x, y}}
}

func NewMove(x, y float64) Move {
	return Move{Meta: newMeta(), Screen: orb.Point{x, y}}
}

func NewScroll(x, y, delta float64) Scroll {
	return Scroll{Meta: newMeta(), Screen: orb.Point{x, y}, Delta: delta}
}

func NewResize(width, height int) Resize {
	return Resize{Meta: newMeta(), Width: width, Height: height}
}

func NewDrag(button MouseButton, from, to orb.Point) Drag {
	return Drag{Meta: newMeta(), Button: button, From: from, To: to}
}

func (Click) Kind() Kind  { return KindClick }
func (Move) Kind() Kind   { return KindMove }
func (Scroll) Kind() Kind { return KindScroll }
func (Resize) Kind() Kind { return KindResize }
func (Drag) Kind() Kind   { return KindDrag }

func (m Meta) Metadata() Meta { return m }

func (Click) event()  {}
func (Move) event()   {}
func (Scroll) event() {}
func (Resize) event() {}
func (Drag) event()   {}
