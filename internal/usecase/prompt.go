package usecase

import (
	"fmt"

	"profile-assistant/internal/domain"
)

// buildSystemPrompt renders the assistant identity and the profile documents
// in the order summary, LinkedIn, resume.
func buildSystemPrompt(name string, p domain.ProfileContext) string {
	return fmt.Sprintf(`
You are acting as %s.
You answer career and technical questions professionally.

Summary:
%s

LinkedIn:
%s

Resume:
%s
`, name, p.Summary, p.LinkedIn, p.Resume)
}

// buildTurns returns a new slice: one system turn, the caller's history
// verbatim, then the new user message.
func buildTurns(systemPrompt string, history []domain.Turn, message string) []domain.Turn {
	turns := make([]domain.Turn, 0, len(history)+2)
	turns = append(turns, domain.Turn{Role: domain.RoleSystem, Content: systemPrompt})
	turns = append(turns, history...)
	turns = append(turns, domain.Turn{Role: domain.RoleUser, Content: message})
	return turns
}

// extendTurns returns a copy of turns followed by more. The input slice is
// never written to, so each loop iteration works on its own sequence.
func extendTurns(turns []domain.Turn, more ...domain.Turn) []domain.Turn {
	out := make([]domain.Turn, 0, len(turns)+len(more))
	out = append(out, turns...)
	return append(out, more...)
}
