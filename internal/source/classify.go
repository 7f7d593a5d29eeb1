package source

import (
	"regexp"
	"strings"

	"github.com/linnemanlabs/airsight/internal/incident"
)

// Relevance and classification tables shared by the bundled adapters.
// Headlines that never mention a drone are discarded before candidate
// construction.
var (
	droneRe   = regexp.MustCompile(`(?i)\b(drone|drones|uav|uas|quadcopter)\b`)
	airportRe = regexp.MustCompile(`(?i)\b(airport|airfield|runway|flight|terminal|arrival|departure)\b`)
	harbourRe = regexp.MustCompile(`(?i)\b(port|harbour|harbor|ferry|quay|berth|vts|pilotage|dock)\b`)
	miltryRe  = regexp.MustCompile(`(?i)\b(air base|military|naval|barracks|garrison)\b`)

	closureRe    = regexp.MustCompile(`(?i)\b(closed|closure|shut ?down|suspended|halted)\b`)
	breachRe     = regexp.MustCompile(`(?i)\b(breach|intrusion|trespass|overflight|restricted)\b`)
	threatRe     = regexp.MustCompile(`(?i)\b(threat|hostile|attack|armed|weapon)\b`)
	disruptionRe = regexp.MustCompile(`(?i)\b(delay|delayed|diverted|diversion|disrupt)\b`)

	// assetNameRe captures the proper-noun phrase preceding an asset
	// keyword, e.g. "Copenhagen Airport", "Port of Rotterdam".
	// "Port of X" must come first: the alternation is leftmost-first, and
	// the generic branch would otherwise stop at the bare "Port".
	assetNameRe = regexp.MustCompile(`\b(Port\s+of\s+(?:[A-Z][\w'-]*\s*){1,3}|(?:[A-Z][\w'-]*\s+){0,3}(?:Airport|Airfield|Air Base|Harbour|Harbor|Port))`)
)

// Relevant reports whether a headline mentions drone activity at all.
func Relevant(text string) bool {
	return droneRe.MatchString(text)
}

// Classify derives asset type, category, and a best-effort asset name
// from a headline. An empty name means the headline named no recognizable
// asset; such reports carry only their location hint.
func Classify(text string) (name string, at incident.AssetType, cat incident.Category) {
	switch {
	case airportRe.MatchString(text):
		at = incident.AssetAirport
	case miltryRe.MatchString(text):
		at = incident.AssetMilitary
	case harbourRe.MatchString(text):
		at = incident.AssetHarbour
	default:
		at = incident.AssetUnknown
	}

	switch {
	case threatRe.MatchString(text):
		cat = incident.CategoryThreat
	case breachRe.MatchString(text):
		cat = incident.CategoryBreach
	case closureRe.MatchString(text):
		cat = incident.CategoryClosure
	case disruptionRe.MatchString(text):
		cat = incident.CategoryDisruption
	default:
		cat = incident.CategorySighting
	}

	if m := assetNameRe.FindString(text); m != "" {
		name = strings.TrimSpace(m)
	}
	return name, at, cat
}
