package assessment

import "math"

const maxLeadScore = 300

var sizeScores = map[string]int{
	"1-10":   40,
	"11-50":  70,
	"51-250": 90,
	"250+":   100,
}

var sectorScores = map[string]int{
	"bouw":        85,
	"installatie": 90,
	"metaal":      80,
	"machinebouw": 95,
	"hightech":    100,
	"andere":      60,
}

var sectorNames = map[string]string{
	"bouw":        "Bouw & Constructie",
	"installatie": "Installatietechniek (W/E/Klimaat)",
	"metaal":      "Metaalbewerking & Industrie",
	"machinebouw": "Machinebouw & Equipment",
	"hightech":    "High-tech & Elektronica",
	"andere":      "Andere technische sector",
}

// LeadScore is the marketing qualification of one assessment.
type LeadScore struct {
	Total           int   `json:"total"`
	Grade           Grade `json:"grade"`
	SizeScore       int   `json:"size_score"`
	SectorScore     int   `json:"sector_score"`
	EngagementScore int   `json:"engagement_score"`
}

// ScoreLead computes the lead score for d.
func ScoreLead(d Data) LeadScore {
	size := SizeScore(d.Werknemers)
	sector := SectorScore(d.Sector)
	engagement := EngagementScore(d)

	total := size + sector + engagement
	if total > maxLeadScore {
		total = maxLeadScore
	}

	return LeadScore{
		Total:           total,
		Grade:           GradeFor(total),
		SizeScore:       size,
		SectorScore:     sector,
		EngagementScore: engagement,
	}
}

// SizeScore scores the company size bucket. Unknown buckets score 50.
func SizeScore(werknemers string) int {
	if s, ok := sizeScores[werknemers]; ok {
		return s
	}
	return 50
}

// SectorScore scores the sector's recruitment complexity. Unknown sectors score 50.
func SectorScore(sector string) int {
	if s, ok := sectorScores[sector]; ok {
		return s
	}
	return 50
}

// EngagementScore rewards time spent and contact details left, capped at 100.
func EngagementScore(d Data) int {
	score := 50

	switch {
	case d.Duration > 300:
		score += 20
	case d.Duration > 180:
		score += 15
	case d.Duration > 60:
		score += 10
	}

	if d.Contact.Email != "" {
		score += 15
	}
	if d.Contact.Telefoon != "" {
		score += 10
	}
	if d.Contact.Naam != "" {
		score += 5
	}

	if score > 100 {
		return 100
	}
	return score
}

// GradeFor maps a total lead score to its grade.
func GradeFor(total int) Grade {
	switch {
	case total >= 240:
		return GradeAPlus
	case total >= 200:
		return GradeA
	case total >= 160:
		return GradeB
	case total >= 120:
		return GradeC
	default:
		return GradeD
	}
}

// Urgency is high for large companies in complex sectors, medium when only one applies.
func Urgency(d Data) string {
	large := d.Werknemers == "51-250" || d.Werknemers == "250+"
	complexSector := d.Sector == "machinebouw" || d.Sector == "hightech" || d.Sector == "installatie"

	switch {
	case large && complexSector:
		return LevelHigh
	case large || complexSector:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Potential classifies the commercial potential from the lead score total.
func Potential(total int) string {
	switch {
	case total >= 200:
		return LevelHigh
	case total >= 150:
		return LevelMedium
	default:
		return LevelLow
	}
}

// CompletionRate is the share of the survey answered, as a rounded percentage.
func CompletionRate(d Data) int {
	return int(math.Round(float64(len(d.Antwoorden)) / Questions * 100))
}

// SectorName returns the display label of a sector code.
func SectorName(sector string) string {
	if n, ok := sectorNames[sector]; ok {
		return n
	}
	return "Onbekend"
}
