package types

// Request bodies

type VoteRequest struct {
	TopicID   string `json:"topicId"`
	OptionID  string `json:"optionId"`
	VoterName string `json:"voterName"`
}

type LoginRequest struct {
	Password string `json:"password"`
}

// SelectTopicRequest clears the active topic when TopicID is null or empty.
type SelectTopicRequest struct {
	TopicID *string `json:"topicId"`
}

type VisibilityRequest struct {
	Mode string `json:"mode"`
}

// Response bodies

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"` // unix ms
}

type AckResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
