// Package ranking maps complaint categories to a priority tier and weight.
// The table is built once at init and never mutated.
package ranking

import (
	"regexp"
	"strings"
)

type Tier string

const (
	High   Tier = "high"
	Medium Tier = "medium"
	Low    Tier = "low"
)

// Rank orders tiers for sorting: high first.
func (t Tier) Rank() int {
	switch t {
	case High:
		return 0
	case Medium:
		return 1
	default:
		return 2
	}
}

type Priority struct {
	Tier   Tier
	Weight int
}

// Default applies to categories missing from the table.
var Default = Priority{Tier: Low, Weight: 20}

var table = buildTable()

func buildTable() map[string]Priority {
	t := make(map[string]Priority, 96)
	add := func(p Priority, categories ...string) {
		for _, c := range categories {
			t[c] = p
		}
	}

	add(Priority{High, 100},
		"air bags", "back over prevention", "brakes", "buckle", "chest clip", "child seat",
		"electronic stability control", "electronic stability control esc",
		"firerelated", "forward collision avoidance", "harness",
		"i suspect the car seat is counterfeit", "lane departure",
		"lower anchor on car seat or vehicle", "parking brake", "seat belts",
		"seatbeltsairbags", "service brakes", "steering", "tether",
		"traction control system", "vehicle speed control",
	)
	add(Priority{High, 90},
		"drivetrain", "engine", "engine and engine cooling", "fuelpropulsion system",
		"hybrid propulsion system", "power train", "transmission",
	)
	add(Priority{Medium, 70},
		"clutch", "coolingsystem", "electrical system", "fuel system", "fuelsystem",
		"suspension", "tires", "wheels",
	)
	add(Priority{Medium, 50},
		"base", "carry handle", "communication", "diesel", "electric", "electrical",
		"equipment adaptivemobility", "exhaustsystem", "exterior lighting", "gasoline",
		"hydraulic", "latcheslockslinkages", "lights", "mechanical", "seats", "shell",
		"structure", "trailer hitches", "visibility", "visibilitywiper", "wheelshubs",
		"windowswindshield",
	)
	add(Priority{Low, 20},
		"accessories", "acheater", "air", "body", "bodypaint", "body_paint", "equipment",
		"insert", "interior lighting", "miscellaneous", "none", "other", "otheri am not sure",
		"otherunknown", "padding", "unknown or other",
	)
	return t
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// CleanCategory strips punctuation and lowercases, the same way stats are keyed.
func CleanCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(nonAlnum.ReplaceAllString(category, "")))
}

// NormalizeCategory is CleanCategory with an empty result mapped to "unknown or other".
func NormalizeCategory(category string) string {
	if n := CleanCategory(category); n != "" {
		return n
	}
	return "unknown or other"
}

// Lookup resolves a category to its priority. Raw lowercase names are tried before
// the normalized form so entries like "body_paint" still match.
func Lookup(category string) Priority {
	raw := strings.ToLower(strings.TrimSpace(category))
	if p, ok := table[raw]; ok {
		return p
	}
	if p, ok := table[NormalizeCategory(category)]; ok {
		return p
	}
	return Default
}

// Known reports whether the category is in the table.
func Known(category string) bool {
	_, ok := table[strings.ToLower(strings.TrimSpace(category))]
	if ok {
		return true
	}
	_, ok = table[NormalizeCategory(category)]
	return ok
}

// TierWeight is the score multiplier applied per tier.
func TierWeight(t Tier) float64 {
	switch t {
	case High:
		return 2.2
	case Medium:
		return 1.3
	default:
		return 0.9
	}
}
