package pipeline

import (
	"fmt"
	"strings"
)

func decomposePrompt(question, background string, limit int) string {
	return fmt.Sprintf(`Decompose this research question into %d-%d independent sub-questions that together address it comprehensively.

QUESTION: %s
CONTEXT: %s

Return ONLY a JSON array: ["sub-question 1", "sub-question 2", ...]`, max(1, limit-1), limit, question, background)
}

func explorePrompt(question, background string) string {
	return fmt.Sprintf(`You are conducting research. Return structured findings.

QUESTION: %s
CONTEXT: %s

Return ONLY valid JSON:
{
  "claims": ["claim 1", "claim 2"],
  "evidence": [{"claim": "claim 1", "source": "description", "quote": "relevant excerpt"}],
  "confidence": 0.7,
  "uncertainty": "what would change this",
  "follow_ups": ["next question 1", "next question 2"]
}`, question, background)
}

func briefingPrompt(rootQuestion string, claims []string) string {
	return fmt.Sprintf(`Summarize these research findings:

QUESTION: %s
CLAIMS: %s

Return JSON:
{
  "summary": "2-3 sentences",
  "key_findings": ["finding 1", "finding 2", "finding 3"],
  "gaps": ["gap 1", "gap 2"],
  "next_actions": ["action 1", "action 2"]
}`, rootQuestion, strings.Join(claims, "; "))
}
