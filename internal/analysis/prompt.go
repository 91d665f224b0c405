package analysis

import (
	"fmt"
	"strings"

	"github.com/bargom/leadrelay/internal/assessment"
)

const responseFormat = `{
  "samenvatting": "Korte samenvatting van recruitment maturity",
  "sterke_punten": ["punt 1", "punt 2", "punt 3"],
  "verbeterpunten": ["punt 1", "punt 2", "punt 3"],
  "aanbevelingen": [
    {
      "actie": "Concrete actie",
      "prioriteit": "Hoog/Medium/Laag",
      "tijdsinvestering": "bijv. 2-4 weken",
      "impact": "Verwachte impact beschrijving"
    }
  ],
  "benchmark": {
    "sector_vergelijking": "Boven/Op/Onder gemiddelde",
    "percentiel": "Top 25% / Middenmoot / etc",
    "vergelijkbare_scores": "Andere organisaties met score 70-80"
  },
  "roadmap": {
    "korte_termijn": "0-3 maanden acties",
    "middellange_termijn": "3-12 maanden doelen",
    "lange_termijn": "1+ jaar visie"
  }
}`

// BuildPrompt renders the consultant prompt for one participant.
func BuildPrompt(answers map[string]any, score assessment.MaturityScore, p Participant) string {
	company := p.Bedrijfsnaam
	if company == "" {
		company = "niet opgegeven"
	}

	var b strings.Builder
	b.WriteString("Je bent een senior recruitment consultant. Analyseer deze FlowMaster Pro assessment resultaten en geef gepersonaliseerde aanbevelingen.\n\n")
	fmt.Fprintf(&b, "PARTICIPANT: %s van %s\n", p.Naam, company)
	fmt.Fprintf(&b, "SCORE: %d/100 (%s)\n\n", score.Percentage, score.Level)
	b.WriteString("ASSESSMENT RESULTATEN:\n")
	for i := 1; i <= assessment.MaturityQuestions; i++ {
		fmt.Fprintf(&b, "Vraag %d: %s/5\n", i, answerText(answers[assessment.QuestionKey(i)]))
	}
	b.WriteString("\nGeef een professionele analyse in dit JSON format:\n")
	b.WriteString(responseFormat)
	b.WriteString("\n\nWees specifiek, actionable en motiverend in je feedback.")
	return b.String()
}

// answerText prints a raw answer, with empty values shown as 0.
func answerText(v any) string {
	switch x := v.(type) {
	case nil:
		return "0"
	case string:
		if x == "" {
			return "0"
		}
		return x
	case bool:
		if !x {
			return "0"
		}
	case float64:
		if x == 0 {
			return "0"
		}
	}
	return fmt.Sprint(v)
}
