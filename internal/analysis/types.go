// Package analysis produces the narrative recruitment maturity report for a
// completed assessment, using the Anthropic messages API with a canned fallback.
package analysis

// Participant identifies who filled in the assessment.
type Participant struct {
	Bedrijfsnaam string `json:"bedrijfsnaam"`
	Naam         string `json:"naam"`
	Email        string `json:"email"`
	Telefoon     string `json:"telefoon,omitempty"`
}

// Recommendation is one concrete improvement action.
type Recommendation struct {
	Actie            string `json:"actie"`
	Prioriteit       string `json:"prioriteit"`
	Tijdsinvestering string `json:"tijdsinvestering"`
	Impact           string `json:"impact"`
}

// Benchmark positions the score against comparable organisations.
type Benchmark struct {
	SectorVergelijking  string `json:"sector_vergelijking"`
	Percentiel          string `json:"percentiel"`
	VergelijkbareScores string `json:"vergelijkbare_scores"`
}

// Roadmap splits the advice over three horizons.
type Roadmap struct {
	KorteTermijn       string `json:"korte_termijn"`
	MiddellangeTermijn string `json:"middellange_termijn"`
	LangeTermijn       string `json:"lange_termijn"`
}

// Analysis is the report returned to the participant.
type Analysis struct {
	Samenvatting   string           `json:"samenvatting"`
	SterkePunten   []string         `json:"sterke_punten"`
	Verbeterpunten []string         `json:"verbeterpunten"`
	Aanbevelingen  []Recommendation `json:"aanbevelingen"`
	Benchmark      Benchmark        `json:"benchmark"`
	Roadmap        Roadmap          `json:"roadmap"`

	// Fallback is set when the canned report was used.
	Fallback bool `json:"-"`
}
