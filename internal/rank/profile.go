package rank

// Weights are the per-component multipliers of a profile. They sum to 1 so
// the blended score stays in [0,1].
type Weights struct {
	Similarity float64 `json:"similarity"`
	Recency    float64 `json:"recency"`
	Keyword    float64 `json:"keyword"`
	Magnitude  float64 `json:"magnitude"`
}

// Profile is a named set of weights chosen from the shape of a query.
type Profile struct {
	Name    string  `json:"name"`
	Weights Weights `json:"weights"`
}

var (
	DefaultProfile = Profile{Name: "default", Weights: Weights{Similarity: 0.45, Recency: 0.25, Keyword: 0.20, Magnitude: 0.10}}

	SemanticProfile = Profile{Name: "semantic", Weights: Weights{Similarity: 0.75, Recency: 0.10, Keyword: 0.10, Magnitude: 0.05}}

	// LatestProfile ignores similarity entirely.
	LatestProfile = Profile{Name: "latest", Weights: Weights{Similarity: 0, Recency: 0.85, Keyword: 0.10, Magnitude: 0.05}}

	// LifelongProfile all but ignores age.
	LifelongProfile = Profile{Name: "lifelong", Weights: Weights{Similarity: 0.65, Recency: 0.005, Keyword: 0.25, Magnitude: 0.095}}
)

// Profiles lists every built-in profile.
var Profiles = []Profile{DefaultProfile, SemanticProfile, LatestProfile, LifelongProfile}

const (
	lifelongHalfLife = 1000.0
	latestHalfLife   = 25.0
)

// Shape is the part of a query that decides its profile.
type Shape struct {
	RecencyHalfLife float64
	Sort            SortKey
	HasSimilarTo    bool
	HasKeyword      bool
}

// SelectProfile picks a profile. The first matching rule wins.
func SelectProfile(s Shape) Profile {
	switch {
	case s.RecencyHalfLife > lifelongHalfLife:
		return LifelongProfile
	case s.RecencyHalfLife > 0 && s.RecencyHalfLife < latestHalfLife:
		return LatestProfile
	case s.Sort.IsDate():
		return LatestProfile
	case s.HasSimilarTo && !s.HasKeyword:
		return SemanticProfile
	default:
		return DefaultProfile
	}
}

// Score blends components with the profile's weights. Absent components
// contribute 0.
func (p Profile) Score(c Components) float64 {
	w := p.Weights
	score := c.RecencyDecay * w.Recency
	if c.Similarity != nil {
		score += *c.Similarity * w.Similarity
	}
	if c.KeywordMatch != nil {
		score += *c.KeywordMatch * w.Keyword
	}
	if c.MetricMagnitude != nil {
		score += *c.MetricMagnitude * w.Magnitude
	}
	return score
}
