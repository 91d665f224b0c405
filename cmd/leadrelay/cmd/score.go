package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bargom/leadrelay/internal/assessment"
)

// scoreReport is the output of the score command. Lead is only set for a
// complete assessment.
type scoreReport struct {
	Maturity assessment.MaturityScore `json:"maturity"`
	Lead     *assessment.LeadScore    `json:"lead,omitempty"`
}

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <file>",
		Short: "Score an assessment file",
		Long: `Compute the maturity score of the answers in file, or "-" for stdin.

The file is either a bare answers object ({"vraag1": 4, ...}) or a complete
assessment with an "antwoorden" object, in which case the lead score is
reported as well.`,
		Example: `  leadrelay score answers.json
  cat assessment.json | leadrelay score - --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			r, err := scoreFile(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return render(cmd, r, func(w io.Writer) {
				m := r.Maturity
				fmt.Fprintf(w, "Maturity: %d/%d (%d%%) %s\n", m.RawScore, m.MaxScore, m.Percentage, m.Level)
				if r.Lead != nil {
					fmt.Fprintf(w, "Lead: %d (%s) size %d, sector %d, engagement %d\n",
						r.Lead.Total, r.Lead.Grade, r.Lead.SizeScore, r.Lead.SectorScore, r.Lead.EngagementScore)
				}
			})
		},
	}
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

func scoreFile(raw []byte) (scoreReport, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return scoreReport{}, fmt.Errorf("invalid JSON: %w", err)
	}

	if _, ok := probe["antwoorden"]; ok {
		var d assessment.Data
		if err := json.Unmarshal(raw, &d); err != nil {
			return scoreReport{}, fmt.Errorf("invalid assessment: %w", err)
		}
		lead := assessment.ScoreLead(d)
		return scoreReport{Maturity: assessment.ScoreMaturity(d.Antwoorden), Lead: &lead}, nil
	}

	var answers map[string]any
	if err := json.Unmarshal(raw, &answers); err != nil {
		return scoreReport{}, fmt.Errorf("invalid answers: %w", err)
	}
	return scoreReport{Maturity: assessment.ScoreMaturity(answers)}, nil
}
