package engine

import "github.com/ashita-ai/jobwatch/internal/model"

// Score-mode contributions. Every rule that smart mode treats as a hard
// constraint becomes a large negative delta here, so a strong keyword profile
// cannot buy back a posting outside the user's location constraints.
const (
	weightNotUS          = -10
	weightRemoteAllowed  = 1
	weightRemoteBlocked  = -10
	weightWorkModeMatch  = 1
	weightWorkModeMiss   = -3
	weightStateAllowed   = 1
	weightStateNotAllow  = -3
	weightStateMissing   = -1
	weightVisaRestricted = -5
	weightPastH1B        = 1
)

// keywordWeights are per family and field. A keyword contributes once, at
// the first field (title, description, location) it appears in.
var keywordWeights = map[string]map[string]int{
	model.FamilyRole: {
		model.FieldTitle:       3,
		model.FieldDescription: 1,
	},
	model.FamilyInclude: {
		model.FieldTitle:       2,
		model.FieldDescription: 1,
		model.FieldLocation:    1,
	},
	model.FamilyExclude: {
		model.FieldTitle:       -4,
		model.FieldDescription: -2,
		model.FieldLocation:    -2,
	},
}
