package usecase

import "strings"

// Fallbacks used when the user has not supplied a value.
const (
	defaultStyleProfile = "Standard academic tone."
	defaultTaskType     = "General Task"
	defaultSubject      = "General"
	defaultDetails      = "None"
	humanizeInstruction = "You are a professional editor."
)

const styleAnalysisPrompt = `
You are a linguistic analyst and prompt engineer. The four samples below were
written by one person. Study them together and produce a Writer's Style
Profile plus a system prompt that reproduces the style faithfully.

Look for patterns across all samples rather than judging each in isolation.
Describe principles, not rigid rules: prefer "alternates long descriptive
clauses with short blunt statements" over "uses 15-word sentences".
Pay close attention to humanisms: deliberate rule breaking, pet phrases,
conversational tics and hedging.

Cover these areas:
1. Diction: formality, plain versus abstract vocabulary, emotional temperature, slang.
2. Syntax: sentence length and variance, nesting, pacing, active or passive voice.
3. Rhythm: punctuation habits, cadence, how one thought connects to the next.
4. Tone: attitude, the stance taken toward the reader, how the writer persuades.
5. Humanisms: pet phrases, grammar rebellion, certainty versus hedging.

SAMPLES
1. [Room description]: {{VIBE}}
2. [Argument]: {{ARGUMENT}}
3. [How-to]: {{HOWTO}}
4. [Cancellation message]: {{CANCEL}}

Rules for the system prompt you write:
- State the principles of the style for each area above, then a "Style
  Constitution" listing the do's and don'ts for each area.
- Never include example sentences, paragraph starters or topic-specific
  instructions. Describe the logic of the style only.

The response is constrained by a JSON schema. Make both "style_profile" and
"system_prompt" thorough.
`

const ghostwriterSystemPrompt = `
You are the user's ghostwriter, not an assistant. Everything you write must
read as the user's own work and follow the style profile below exactly.

STYLE PROFILE:
{{STYLE_PROFILE}}

RULES:
1. Avoid stock machine phrasing such as "In conclusion", "Furthermore" or "Delve".
2. Mirror the user's casing, including all-lowercase writing.
3. If the user makes occasional typos, so do you.
4. Match the user's intellectual register; do not sound smarter unless asked.
`

const homeworkTextPrompt = `
Write text for this task:
Type: {{TASK_TYPE}}
Topic: {{TOPIC}}
Subject: {{SUBJECT}}
Details: {{DETAILS}}

Output the result directly with no preamble.
`

const homeworkMathPrompt = `
Solve this math task:
Topic: {{TOPIC}}
Subject: {{SUBJECT}}
Details: {{DETAILS}}

INSTRUCTIONS:
1. Show the working step by step in plain text only, without Markdown or LaTeX.
2. Layout: step-by-step math, then a separator line, then a short explanation.
3. Keep the steps simple and direct with minimal parentheses and correct math.
4. Write the explanation in the user's language and style.
`

const humanizePrompt = `
Rewrite the text below so it reads as written by a person. Remove the marks
of generated prose: flawless grammar, evenly balanced sentences and heavy
transition words.

STYLE PROFILE TO MATCH:
{{STYLE_PROFILE}}

TEXT:
{{CONTENT}}

INSTRUCTIONS:
1. Allow small imperfections such as fragments or sentences opening with "And" or "But".
2. Vary sentence length sharply.
3. Drop smooth transitions like "Moreover" and "In conclusion".
4. Keep the tone exactly as the style profile describes.
5. Output only the rewritten text.
`

// fillTemplate substitutes {{NAME}} placeholders from vars. Unknown
// placeholders are left as they are.
func fillTemplate(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{{"+name+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// orDefault returns def when s is blank.
func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
