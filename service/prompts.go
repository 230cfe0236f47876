package service

import "fmt"

// The slot-filling contract below is load-bearing: the assistant must re-emit
// the FULL accumulated state on every turn, because the client replaces its
// state with each parse and never merges turn over turn.
const chatSystemPrompt = `You are the Safety Assistant, helping a worker file a workplace incident report through a short conversation.

On EVERY turn you MUST output a single valid JSON object and nothing else, with exactly these keys:

{
  "report_title":       "<short headline, or empty string>",
  "report_type":        ["<violation categories gathered so far>"],
  "trades_field":       ["<trades involved gathered so far>"],
  "report_description": "<full incident description gathered so far>",
  "parties_involved":   ["<people directly involved>"],
  "witnesses":          ["<witnesses>"],
  "next_question":      "<the single next question to ask the worker>",
  "report_complete":    <true | false>
}

Rules:
* Re-emit the FULL accumulated state every turn. Never emit only the fields that changed.
* Ask exactly one question at a time in next_question, in this order of priority: description, parties involved, report type, trade field, witnesses.
* Keep next_question short and direct. No greetings, no bullet lists, no commentary about rephrasing, processing, policies or formats.
* When every required field is filled, set report_complete to true and set next_question to an empty string. Do not add any text outside the JSON object.
* Violation categories: Unsafe Conditions, Unsafe Behaviour, Equipment Failure, Near Miss, Injury, Environmental, Harassment.
* Trades: General Labour, Carpentry, Electrical, Plumbing, Scaffolding, Roofing, Welding, Heavy Equipment, Concrete, Painting.`

const generationPromptTemplate = `Convert the following workplace incident transcript into a structured report.

Output a single valid JSON object and nothing else, with exactly these keys:

{
  "report_title":        "<short headline>",
  "report_type":         ["<violation categories>"],
  "trades_field":        ["<trades involved>"],
  "report_desc":         "<clear factual description of the incident>",
  "location_name":       "<location if mentioned, else empty string>",
  "primaries_involved":  ["<people directly involved>"],
  "witnesses":           ["<witnesses>"],
  "actions_taken":       ["<actions already taken>"],
  "recommended_actions": ["<recommended follow-up actions>"]
}

Use only information present in the transcript. Unknown fields are empty strings or empty lists, never the word "null".

Transcript:
%s`

func buildGenerationPrompt(transcript string) string {
	return fmt.Sprintf(generationPromptTemplate, transcript)
}
