package tutor

import "fmt"

// ChallengeContext describes the challenge the student is currently
// looking at, so the tutor can ground its hints in the actual problem.
type ChallengeContext struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Kind        string `json:"type"`
	Code        string `json:"code"`
	Module      int    `json:"module"`
}

const genericPrompt = "You are a MATLAB expert tutor inside a learning game called MATLAB-GOD. " +
	"Help the student learn MATLAB concepts. Be concise, use code examples when helpful. " +
	"Format code blocks with ```matlab."

// BuildSystemPrompt renders the tutor's system prompt. With a challenge
// context the tutor is steered toward Socratic guidance and away from
// handing out the solution.
func BuildSystemPrompt(ctx *ChallengeContext) string {
	if ctx == nil {
		return genericPrompt
	}
	return fmt.Sprintf(`You are a MATLAB tutor inside a learning game called MATLAB-GOD. The student is working on a challenge. Guide them without giving the answer directly. Use Socratic questioning, give hints, and help them reason through the problem.

Current challenge:
- Title: %s
- Type: %s
- Module: %d
- Description: %s
- Code:
`+"```matlab\n%s\n```"+`

Be concise. Use MATLAB code examples when helpful. Never give the direct solution.`,
		ctx.Title, ctx.Kind, ctx.Module, ctx.Description, ctx.Code)
}
