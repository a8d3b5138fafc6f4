package conversation

// Wire DTOs for the assistant conversation endpoints. The backend speaks
// snake_case; everything past this file uses the engine's own types.

type startRequest struct {
	JourneyID string `json:"journey_id"`
	ChapterID string `json:"chapter_id"`
	AssetID   string `json:"asset_id"`
}

type startResponse struct {
	SessionID       string `json:"session_id"`
	OpeningQuestion string `json:"opening_question"`
}

type continueRequest struct {
	SessionID    string `json:"session_id"`
	ResponseText string `json:"response_text"`
}

type continueResponse struct {
	NextQuestion         *string  `json:"next_question"`
	TurnNumber           int      `json:"turn_number"`
	ConversationComplete bool     `json:"conversation_complete"`
	StoryDepth           *float64 `json:"story_depth"`
}

type endRequest struct {
	SessionID string `json:"session_id"`
}

type endResponse struct {
	TotalTurns      int      `json:"total_turns"`
	Completed       bool     `json:"completed"`
	StoryDepth      *float64 `json:"story_depth"`
	KeyThemes       []string `json:"key_themes"`
	PeopleMentioned []string `json:"people_mentioned"`
	PlacesMentioned []string `json:"places_mentioned"`
}

type transcriptResponse struct {
	Text string `json:"text"`
}
