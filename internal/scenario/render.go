package scenario

import (
	"fmt"
	"strings"

	"github.com/jordanhubbard/gauntlet/pkg/models"
)

// Render builds the prompt sent to an agent for a single-shot scenario.
func Render(sc *models.TestScenario) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", sc.Title)
	b.WriteString(sc.Description)
	b.WriteString("\n\n## Success criteria\n")
	for _, c := range sc.SuccessCriteria {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\nRespond with your complete solution.")
	return b.String()
}

// Contribution is one participant's answer to an earlier phase.
type Contribution struct {
	AgentID  string
	Response models.PhaseResponse
}

// RenderPhase builds the prompt for one collaborative phase, including what
// the group produced in earlier phases.
func RenderPhase(sc *models.TestScenario, plan models.PhasePlan, transcript []Contribution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s phase\n\n", sc.Title, plan.Phase)
	b.WriteString(sc.Description)
	b.WriteString("\n\n## Success criteria\n")
	for _, c := range sc.SuccessCriteria {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	if len(transcript) > 0 {
		b.WriteString("\n## Previous phases\n")
		for _, c := range transcript {
			if c.Response.Failed() {
				continue
			}
			fmt.Fprintf(&b, "\n### %s (%s)\n%s\n", c.AgentID, c.Response.Phase, c.Response.Text)
		}
	}
	fmt.Fprintf(&b, "\n## This phase: %s\n%s\nExpected output: %s\nTime available: %s\n",
		plan.Phase, plan.Instructions, plan.ExpectedOutput, plan.Budget)
	return b.String()
}
