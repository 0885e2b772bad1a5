package gemini

// Gemini generateContent request/response types.
// They are also the wire shape the browser front-end sends and reads.

type GenerateContentRequest struct {
	Contents []Content `json:"contents"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

type GenerateContentResponse struct {
	Candidates     []Candidate     `json:"candidates"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
	Index        int     `json:"index"`
}

type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// NewGenerateContentRequest maps a flat prompt into the nested contents schema
func NewGenerateContentRequest(prompt string) *GenerateContentRequest {
	return &GenerateContentRequest{
		Contents: []Content{{Parts: []Part{{Text: prompt}}}},
	}
}

// Prompt returns the text of the first part of the first content, or ""
func (r *GenerateContentRequest) Prompt() string {
	if r == nil || len(r.Contents) == 0 || len(r.Contents[0].Parts) == 0 {
		return ""
	}
	return r.Contents[0].Parts[0].Text
}

// NewGenerateContentResponse wraps text in a single-candidate response
func NewGenerateContentResponse(text string) *GenerateContentResponse {
	return &GenerateContentResponse{
		Candidates: []Candidate{{
			Content:      Content{Role: "model", Parts: []Part{{Text: text}}},
			FinishReason: "STOP",
		}},
	}
}
