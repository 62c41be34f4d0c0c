package reconcile

import "strings"

// sportAliases maps equivalent sport labels across sources onto one
// canonical token. SportTracks categories and Strava sport types disagree
// on naming for the same discipline.
var sportAliases = map[string]string{
	"run":              "run",
	"running":          "run",
	"trail run":        "run",
	"trailrun":         "run",
	"ride":             "ride",
	"cycling":          "ride",
	"bike":             "ride",
	"biking":           "ride",
	"virtualride":      "ride",
	"mountain biking":  "ride",
	"mountainbikeride": "ride",
	"ski":              "ski",
	"nordicski":        "ski",
	"xc skiing":        "ski",
	"skate":            "ski",
	"classic":          "ski",
	"rollerski":        "rollerski",
	"roller skiing":    "rollerski",
	"walk":             "walk",
	"walking":          "walk",
	"hike":             "hike",
	"hiking":           "hike",
	"swim":             "swim",
	"swimming":         "swim",
	"strength":         "strength",
	"weighttraining":   "strength",
	"workout":          "strength",
}

func canonicalSport(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	if canonical, ok := sportAliases[key]; ok {
		return canonical
	}
	return key
}

// sportsCompatible reports whether two sport labels plausibly describe the
// same discipline. When either side is unknown the comparison cannot
// exclude a match, so it passes.
func sportsCompatible(a, b string) bool {
	ca, cb := canonicalSport(a), canonicalSport(b)
	if ca == "" || cb == "" {
		return true
	}
	return ca == cb
}
