// Package assessment turns completed FlowMaster assessments into lead payloads.
package assessment

// Questions is the number of questions in the full survey, used for the completion rate.
const Questions = 24

// Data is the assessment document submitted when a participant finishes the form.
type Data struct {
	Bedrijfsnaam string         `json:"bedrijfsnaam"`
	Sector       string         `json:"sector"`
	Werknemers   string         `json:"werknemers"`
	Contact      Contact        `json:"contact"`
	Duration     int            `json:"duration"`
	Antwoorden   map[string]any `json:"antwoorden"`
	Technical    *Technical     `json:"technical,omitempty"`
}

// Contact holds the participant's contact details.
type Contact struct {
	Naam     string `json:"naam,omitempty"`
	Email    string `json:"email,omitempty"`
	Telefoon string `json:"telefoon,omitempty"`
}

// Technical is client metadata reported by the assessment frontend.
type Technical struct {
	UserAgent        string `json:"user_agent,omitempty"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
	Language         string `json:"language,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
}

// Grade is the letter classification of a lead score.
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
)

// Level values used for urgency and potential.
const (
	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)
