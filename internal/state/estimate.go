package state

import (
	"github.com/youruser/t4n/internal/llm"
)

// TokenEstimate breaks down the tokens the next request would carry.
type TokenEstimate struct {
	Total     int `json:"total"`      // Sum of the parts below
	History   int `json:"history"`    // Transcript entries so far
	Code      int `json:"code"`       // Canvas text (locked snapshot when access is granted)
	InputText int `json:"input_text"` // Text about to be sent
}

// EstimateTokens estimates the tokens of the transcript, the code the
// assistant can see and inputText.
func (s *State) EstimateTokens(inputText string) TokenEstimate {
	var est TokenEstimate
	for _, e := range s.Transcript.Entries() {
		est.History += llm.EstimateTokens(e.Content)
	}
	if snap, ok := s.Canvas.Snapshot(); ok {
		est.Code = llm.EstimateTokens(snap)
	}
	est.InputText = llm.EstimateTokens(inputText)
	est.Total = est.History + est.Code + est.InputText
	return est
}
