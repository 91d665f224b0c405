package analysis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bargom/leadrelay/internal/assessment"
)

// Fallback returns the canned report used whenever no model answer is available.
func Fallback(score assessment.MaturityScore) *Analysis {
	pct := "onbekend"
	if score.Percentage > 0 {
		pct = strconv.Itoa(score.Percentage)
	}

	return &Analysis{
		Samenvatting: fmt.Sprintf("Je recruitment maturity score is %s/100. Er zijn goede mogelijkheden voor verbetering.", pct),
		SterkePunten: []string{
			"Bereidheid tot verbetering getoond",
			"Assessment volledig afgerond",
			"Bewustzijn van recruitment uitdagingen",
		},
		Verbeterpunten: []string{
			"Recruitment proces standaardisatie",
			"Data-driven besluitvorming",
			"Kandidaat experience optimalisatie",
		},
		Aanbevelingen: []Recommendation{{
			Actie:            "Implementeer gestructureerde interview processen",
			Prioriteit:       "Hoog",
			Tijdsinvestering: "4-6 weken",
			Impact:           "Betere kandidaat selectie en hiring success",
		}},
		Benchmark: Benchmark{
			SectorVergelijking:  "Gemiddeld niveau",
			Percentiel:          "Middenmoot",
			VergelijkbareScores: "Veel organisaties hebben vergelijkbare scores",
		},
		Roadmap: Roadmap{
			KorteTermijn:       "Focus op quick wins en proces optimalisatie",
			MiddellangeTermijn: "Implementeer recruitment technology en data analytics",
			LangeTermijn:       "Bouw employer branding en talent pipeline",
		},
		Fallback: true,
	}
}

// stripFence removes a leading ```json fence and a trailing ``` fence.
func stripFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```json") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "\n")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSuffix(s, "\n")
	return s
}
