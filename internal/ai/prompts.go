package ai

import "fmt"

// Assist operations exposed through the HTTP API.
const (
	OpSuggest = "suggest"
	OpAnalyze = "analyze"
	OpFix     = "fix"
	OpExplain = "explain"
)

// Static prompt templates. These are deliberately plain request/response
// prompts; the assist surface has no conversation state.
const (
	systemSuggest = "You are a pair-programming assistant. Given code and an instruction, respond with a JSON object {\"suggestion\": string, \"explanation\": string} containing improved or generated code and a short explanation. Respond with JSON only."
	systemAnalyze = "You are a code reviewer. Analyze the given code and respond with a JSON object {\"issues\": [{\"line\": number, \"severity\": string, \"message\": string}], \"summary\": string}. Respond with JSON only."
	systemFix     = "You are a debugging assistant. Find and fix the problem in the given code and respond with a JSON object {\"fixed_code\": string, \"explanation\": string}. Respond with JSON only."
	systemExplain = "You are a programming tutor. Explain what the given code does and respond with a JSON object {\"explanation\": string}. Respond with JSON only."
)

// systemPrompt returns the static system prompt for an operation.
func systemPrompt(op string) (string, bool) {
	switch op {
	case OpSuggest:
		return systemSuggest, true
	case OpAnalyze:
		return systemAnalyze, true
	case OpFix:
		return systemFix, true
	case OpExplain:
		return systemExplain, true
	default:
		return "", false
	}
}

// userPrompt renders the user message for an assist request.
func userPrompt(req *AssistRequest) string {
	prompt := fmt.Sprintf("Language: %s\n\nCode:\n```%s\n%s\n```", req.Language, req.Language, req.Code)
	if req.Instruction != "" {
		prompt += fmt.Sprintf("\n\nInstruction: %s", req.Instruction)
	}
	return prompt
}
