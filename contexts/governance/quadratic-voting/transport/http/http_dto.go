package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type BudgetExceededResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Attempted int    `json:"attempted"`
	Available int    `json:"available"`
}

type CreateVoteRequest struct {
	WorkspaceID     string     `json:"workspace_id"`
	ChannelID       string     `json:"channel_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Options         []string   `json:"options"`
	CreditsPerVoter int        `json:"credits_per_voter,omitempty"`
	AllowedVoters   []string   `json:"allowed_voters,omitempty"`
	ScheduledEndAt  *time.Time `json:"scheduled_end_at,omitempty"`
}

type VoteResponse struct {
	VoteID          string     `json:"vote_id"`
	WorkspaceID     string     `json:"workspace_id"`
	ChannelID       string     `json:"channel_id"`
	CreatorID       string     `json:"creator_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Options         []string   `json:"options"`
	CreditsPerVoter int        `json:"credits_per_voter"`
	AllowedVoters   []string   `json:"allowed_voters,omitempty"`
	Ended           bool       `json:"ended"`
	ScheduledEndAt  *time.Time `json:"scheduled_end_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type AllocationDTO struct {
	OptionIndex int `json:"option_index"`
	Credits     int `json:"credits"`
}

type RecordResponseRequest struct {
	Allocations []AllocationDTO `json:"allocations"`
}

type RecordResponseResponse struct {
	VoteID    string `json:"vote_id"`
	VoterID   string `json:"voter_id"`
	Spent     int    `json:"spent"`
	Remaining int    `json:"remaining"`
}

type OptionResultDTO struct {
	OptionIndex  int     `json:"option_index"`
	Label        string  `json:"label"`
	TotalCredits int     `json:"total_credits"`
	Votes        float64 `json:"votes"`
	Percentage   int     `json:"percentage"`
}

type ResultsResponse struct {
	VoteID  string            `json:"vote_id"`
	Title   string            `json:"title"`
	Ended   bool              `json:"ended"`
	Options []OptionResultDTO `json:"options"`
}
