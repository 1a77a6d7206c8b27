package vars

import (
	"fmt"
	"strings"
)

// Direction is a cardinal facing. The zero value means no direction.
type Direction uint8

const (
	DirectionNone Direction = iota
	DirectionDown
	DirectionUp
	DirectionLeft
	DirectionRight
)

func (d Direction) String() string {
	switch d {
	case DirectionDown:
		return "down"
	case DirectionUp:
		return "up"
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	}
	return "none"
}

// ParseDirection accepts screen names and compass aliases, case-insensitive.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "down", "south", "s":
		return DirectionDown, nil
	case "up", "north", "n":
		return DirectionUp, nil
	case "left", "west", "w":
		return DirectionLeft, nil
	case "right", "east", "e":
		return DirectionRight, nil
	case "none", "":
		return DirectionNone, nil
	}
	return DirectionNone, fmt.Errorf("unknown direction %q", s)
}

// Opposite returns the reverse facing.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionDown:
		return DirectionUp
	case DirectionUp:
		return DirectionDown
	case DirectionLeft:
		return DirectionRight
	case DirectionRight:
		return DirectionLeft
	}
	return DirectionNone
}

// Delta returns the unit grid step for d.
func (d Direction) Delta() (dx, dy int32) {
	switch d {
	case DirectionDown:
		return 0, 1
	case DirectionUp:
		return 0, -1
	case DirectionLeft:
		return -1, 0
	case DirectionRight:
		return 1, 0
	}
	return 0, 0
}
