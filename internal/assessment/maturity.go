package assessment

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaturityQuestions is the number of scored recruitment maturity questions.
const MaturityQuestions = 19

// MaturityScore is the recruitment maturity result of the 19 scored questions.
type MaturityScore struct {
	RawScore   int    `json:"rawScore"`
	MaxScore   int    `json:"maxScore"`
	Percentage int    `json:"percentage"`
	Level      string `json:"level"`
}

// ScoreMaturity sums answers vraag1..vraag19. An answer counts only when it is
// an integer between 1 and 5. Skipped answers lower the maximum as well.
func ScoreMaturity(answers map[string]any) MaturityScore {
	var total, maxScore int
	for i := 1; i <= MaturityQuestions; i++ {
		v, ok := answerValue(answers[QuestionKey(i)])
		if !ok || v < 1 || v > 5 {
			continue
		}
		total += v
		maxScore += 5
	}

	pct := 0
	if maxScore > 0 {
		pct = int(math.Round(float64(total) / float64(maxScore) * 100))
	}

	return MaturityScore{
		RawScore:   total,
		MaxScore:   maxScore,
		Percentage: pct,
		Level:      MaturityLevel(pct),
	}
}

// MaturityLevel names the maturity band of a percentage.
func MaturityLevel(pct int) string {
	switch {
	case pct >= 85:
		return "Expert"
	case pct >= 70:
		return "Gevorderd"
	case pct >= 55:
		return "Gemiddeld"
	case pct >= 40:
		return "Basis"
	default:
		return "Starter"
	}
}

// QuestionKey returns the answer key of question i.
func QuestionKey(i int) string {
	return fmt.Sprintf("vraag%d", i)
}

// answerValue reads the leading integer of a JSON answer value.
func answerValue(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), true
	case int:
		return x, true
	case string:
		s := strings.TrimSpace(x)
		end := 0
		for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && s[end] == '-') {
			end++
		}
		n, err := strconv.Atoi(s[:end])
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
