package pattern

import (
	"fmt"
	"slices"
)

const (
	// Decrease flags ten minute boundaries whose open is above the close nine candles later.
	Decrease = "decrease"
	// ElevenForty flags 11:40 candles that hold within 8 of the next close and
	// close higher ten candles later.
	ElevenForty = "eleven-forty"
)

// Presets returns the built-in pattern definitions.
func Presets() []Definition {
	return []Definition{
		{
			Name:   Decrease,
			Width:  10,
			Anchor: Anchor{MinuteMultipleOf: 10},
			Conditions: []Condition{
				{Left: "open", Op: ">", Right: "close", RightOffset: 9},
			},
			TimeFilter: "tens",
		},
		{
			Name:   ElevenForty,
			Width:  10,
			Anchor: Anchor{ClockTime: "11:40"},
			Conditions: []Condition{
				{Left: "open", Op: ">", Right: "close", RightOffset: 1, Adjust: 8},
				{Left: "open", Op: "<", Right: "close", RightOffset: 10},
			},
			TimeFilter: "all",
		},
	}
}

// Lookup finds the named pattern among the provided definitions, falling back
// to the presets. Provided definitions take precedence over presets of the same name.
func Lookup(name string, defs []Definition) (*Definition, error) {
	for _, set := range [][]Definition{defs, Presets()} {
		idx := slices.IndexFunc(set, func(d Definition) bool { return d.Name == name })
		if idx >= 0 {
			def := set[idx]
			return &def, nil
		}
	}

	return nil, fmt.Errorf("no pattern definition named %q", name)
}
