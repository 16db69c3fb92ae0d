package coach

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/parley/pkg/scenario"
)

// history renders the transcript as "speaker: text" lines.
func history(lines []scenario.TranscriptLine) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", l.Speaker, l.Text)
	}
	return b.String()
}

func feedbackPrompt(s *scenario.Scenario, lines []scenario.TranscriptLine, language string) string {
	last := ""
	if n := len(lines); n > 0 {
		last = lines[n-1].Text
	}
	return fmt.Sprintf(`You are an AI coach evaluating a user's performance in a practice scenario in %[1]s.
Scenario Title: %[2]q
Your Persona: %[3]q
Assessment Criteria: %[4]s

Conversation History:
%[5]s

Based on the most recent user response (%[6]q), evaluate their performance against the assessment criteria.
Provide a score (0-100), a concise tip for improvement, and a sample reply in JSON format. The tip and sample reply must be in %[1]s.`,
		language, s.Title, s.Persona, strings.Join(s.AssessmentCriteria, ", "), history(lines), last)
}

func assessmentPrompt(s *scenario.Scenario, lines []scenario.TranscriptLine, language string) string {
	return fmt.Sprintf(`You are an AI coach generating a final performance scorecard for a user who has completed a practice scenario in %[1]s.

Scenario Title: %[2]q
Your Persona: %[3]q
Assessment Criteria: %[4]s

Full Conversation History:
%[5]s

Based on the entire conversation, provide a final assessment of the user's performance.
Generate a scorecard in JSON format that includes an overall score, a list of strengths, a list of areas for improvement, and a score for each specific assessment criterion. The strengths and areas for improvement must be in %[1]s.`,
		language, s.Title, s.Persona, strings.Join(s.AssessmentCriteria, ", "), history(lines))
}

func openingPrompt(s *scenario.Scenario, language string) string {
	return fmt.Sprintf(`You are an AI Practice Coach. Your persona is: %q.
You need to start a practice conversation with a user in %s.
Your first line should be a translation or a culturally appropriate adaptation of this line: %q.
Respond with ONLY the line of dialogue, without any additional text, quotes, or explanation.`,
		s.Persona, language, s.InitialTurn)
}

func nextLinePrompt(s *scenario.Scenario, lines []scenario.TranscriptLine, language, level string) string {
	return fmt.Sprintf(`You are an AI Practice Coach continuing a conversation.
Your Persona: %[1]q
User's Language: %[2]s
User's Level: %[3]s
Scenario Goal: %[4]q

Conversation History:
%[5]s
coach: ...

Your task is to generate the next response for the 'coach'.
- Stay in character.
- Keep the conversation moving towards the scenario goal.
- Tailor your language complexity to the user's level.
- Keep your response to 1-3 sentences.
- Respond ONLY with the line of dialogue in %[2]s. Do not add "coach:", quotes, or any extra text.`,
		s.Persona, language, level, s.CompletionGoal, history(lines))
}

func personalizePrompt(tmpl *scenario.Scenario, goals []string, level, language string) (string, error) {
	goal := strings.Join(goals, ", ")
	if goal == "" {
		goal = "General practice"
	}
	raw, err := json.Marshal(tmpl)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`You are an AI Scenario Designer. Your task is to personalize a practice conversation scenario based on a user's preferences.

User Preferences:
- Language: %[1]s
- Proficiency Level: %[2]s
- Goals: %[3]s

Scenario Template (JSON):
%[4]s

Instructions:
1. Analyze the user's goals. Select the ONE most relevant goal to influence the scenario.
2. Meaningfully modify the 'description', 'persona', and 'initialTurn' to reflect the user's level and the selected goal. The changes should be noticeable.
   - For 'Beginner' level, make the language simpler and the situation less complex.
   - For 'Advanced' level, make the persona more challenging and the language more nuanced.
   - Weave in the selected goal. For example, if the goal is 'career development' in a customer service scenario, the unhappy customer's frustration could stem from how the delay is impacting THEIR job.
3. The 'initialTurn' MUST be in the user's specified '%[1]s'.
4. Do not change any other fields (id, title, maxTurns, etc.).
5. Return a single, valid JSON object with two keys: "scenario" (the modified scenario object) and "personalizedGoal" (the string of the single goal you used, e.g., "career development").`,
		language, level, goal, raw), nil
}
