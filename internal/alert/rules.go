package alert

import (
	"regexp"
	"strings"

	"github.com/linnemanlabs/airsight/internal/incident"
)

// Rule is one entry of the declarative scoring table. Rules in the same
// class never stack: when several match, only the highest multiplier of
// that class applies.
type Rule struct {
	Name       string
	Class      string
	Multiplier float64
	Match      func(in *incident.Incident) bool
}

// Rule classes.
const (
	ClassInfrastructure = "infrastructure"
	ClassAuthority      = "authority"
	ClassMultiSource    = "multi_source"
	ClassActive         = "active"
)

// keywordRule matches a pattern against the asset name and narrative.
func keywordRule(name, class string, pattern string, multiplier float64) Rule {
	re := regexp.MustCompile(pattern)
	return Rule{
		Name:       name,
		Class:      class,
		Multiplier: multiplier,
		Match: func(in *incident.Incident) bool {
			hay := strings.ToLower(in.Asset.Name + " " + in.Narrative)
			return re.MatchString(hay)
		},
	}
}

// DefaultRules is the production scoring table.
var DefaultRules = []Rule{
	keywordRule("major_airport", ClassInfrastructure, `\b(airport|airfield|runway|terminal)\b`, 1.5),
	keywordRule("military_site", ClassInfrastructure, `\b(military|air base|naval|barracks)\b`, 1.6),
	keywordRule("harbour_ops", ClassInfrastructure, `\b(harbour|harbor|port|ferry|vts)\b`, 1.3),
	{
		Name:       "authority_source",
		Class:      ClassAuthority,
		Multiplier: 1.3,
		Match: func(in *incident.Incident) bool {
			return in.Evidence.Strength >= incident.StrengthOfficial
		},
	},
	{
		Name:       "multi_source",
		Class:      ClassMultiSource,
		Multiplier: 1.2,
		Match: func(in *incident.Incident) bool {
			return len(in.Evidence.Sources) >= 2
		},
	},
	{
		Name:       "active_status",
		Class:      ClassActive,
		Multiplier: 1.2,
		Match: func(in *incident.Incident) bool {
			return in.Active()
		},
	},
}

// applyRules evaluates the table against an incident and returns the
// combined multiplier (product of per-class maxima) and the names of the
// rules that contributed.
func applyRules(rules []Rule, in *incident.Incident) (float64, []string) {
	type winner struct {
		name       string
		multiplier float64
	}
	best := make(map[string]winner)
	order := make([]string, 0, 4)

	for _, r := range rules {
		if !r.Match(in) {
			continue
		}
		w, seen := best[r.Class]
		if !seen {
			order = append(order, r.Class)
		}
		if !seen || r.Multiplier > w.multiplier {
			best[r.Class] = winner{name: r.Name, multiplier: r.Multiplier}
		}
	}

	multiplier := 1.0
	reasons := make([]string, 0, len(order))
	for _, class := range order {
		w := best[class]
		multiplier *= w.multiplier
		reasons = append(reasons, w.name)
	}
	return multiplier, reasons
}
