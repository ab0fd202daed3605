package weather

import (
	"strings"

	"github.com/i474232898/weather-tile-refresh/internal/common"
)

// staticIconPath marks the upstream's own condition icons, preferred over
// any other image a subgroup may carry.
const staticIconPath = "weathermapdata/1/static/icons"

// minDataSubgroups is the smallest subgroup count of the data-bearing group;
// groups with fewer subgroups are decorative.
const minDataSubgroups = 3

var degreeMarks = []string{"°", "℃", "℉"}

// ParseDocument extracts a Snapshot from a decoded tile document. It never
// fails: fields it cannot locate keep their sentinel values.
func ParseDocument(doc *TileDocument) Snapshot {
	snap := Snapshot{
		LocationName:    UnknownLocation,
		TemperatureText: UnknownTemperature,
		Description:     UnknownDescription,
	}

	binding, ok := selectBinding(doc.Bindings())
	if !ok {
		return snap
	}
	if name, ok := binding.DisplayName(); ok && name != "" {
		snap.LocationName = name
	}

	subgroups := dataSubgroups(binding.Groups)
	if subgroups == nil {
		return snap
	}

	if temp := extractTemperature(subgroups); temp != "" {
		snap.TemperatureText = temp
	}
	if desc := extractDescription(subgroups); desc != "" {
		snap.Description = desc
	}
	snap.IconURL = extractIcon(subgroups)

	return snap
}

// selectBinding prefers the wide template, then the first binding with a
// display name, then the first binding of any kind.
func selectBinding(bindings []TileBinding) (TileBinding, bool) {
	if len(bindings) == 0 {
		return TileBinding{}, false
	}
	for _, b := range bindings {
		if b.Template() == TemplateWide {
			return b, true
		}
	}
	for _, b := range bindings {
		if _, ok := b.DisplayName(); ok {
			return b, true
		}
	}
	return bindings[0], true
}

func dataSubgroups(groups []TileGroup) []TileSubgroup {
	for _, g := range groups {
		if len(g.Subgroups) >= minDataSubgroups {
			return g.Subgroups
		}
	}
	return nil
}

// extractTemperature reads the value from subgroup 1 and appends the unit
// from subgroup 2 when that one carries a degree mark.
func extractTemperature(subgroups []TileSubgroup) string {
	if len(subgroups) < 2 {
		return ""
	}
	value := subgroups[1].Text()
	if value == "" {
		return ""
	}
	if len(subgroups) > 2 {
		for _, t := range subgroups[2].Texts {
			unit := strings.TrimSpace(t.Value)
			if common.HasAny(unit, degreeMarks...) {
				return value + unit
			}
		}
	}
	return value
}

// extractDescription returns the last single-text subgroup without digits
// or degree marks. Later subgroups are the more specific ones. Subgroups
// holding several text runs are value/unit pairs and never describe weather.
func extractDescription(subgroups []TileSubgroup) string {
	desc := ""
	for _, sg := range subgroups {
		if len(sg.Texts) != 1 {
			continue
		}
		text := sg.Text()
		if text == "" || common.HasDigit(text) || common.HasAny(text, degreeMarks...) {
			continue
		}
		desc = text
	}
	return desc
}

func extractIcon(subgroups []TileSubgroup) string {
	for _, sg := range subgroups {
		for _, img := range sg.Images {
			if strings.Contains(img.Src, staticIconPath) {
				return img.Src
			}
		}
	}
	for _, sg := range subgroups {
		for _, img := range sg.Images {
			if strings.HasPrefix(img.Src, "http") {
				return img.Src
			}
		}
	}
	return ""
}
