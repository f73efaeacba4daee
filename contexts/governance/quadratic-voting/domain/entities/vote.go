package entities

import "time"

// DefaultCreditsPerVoter is applied when a vote spec leaves the budget unset.
const DefaultCreditsPerVoter = 100

// Vote is a quadratic vote: an ordered set of options and a fixed per-voter
// credit budget. Options are immutable once the vote is created.
type Vote struct {
	VoteID          string
	WorkspaceID     string
	ChannelID       string
	CreatorID       string
	Title           string
	Description     string
	Options         []string
	CreditsPerVoter int
	AllowedVoters   []string
	Ended           bool
	ScheduledEndAt  *time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time
}

// VoterAllowed reports allow-list membership. An empty allow-list means every
// channel member is eligible.
func (v Vote) VoterAllowed(voterID string) bool {
	if len(v.AllowedVoters) == 0 {
		return true
	}
	for _, allowed := range v.AllowedVoters {
		if allowed == voterID {
			return true
		}
	}
	return false
}

// OptionInRange reports whether index addresses one of the vote's options.
func (v Vote) OptionInRange(index int) bool {
	return index >= 0 && index < len(v.Options)
}

// VoteResponse is one voter's credit commitment to one option. The
// (vote, voter, option index) triple is unique; resubmission replaces the
// credits in place. Zero credits is a valid corrective value and keeps the
// row so update history survives.
type VoteResponse struct {
	VoteID      string
	VoterID     string
	OptionIndex int
	Credits     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Allocation is one (option, credits) pair of a submission.
type Allocation struct {
	OptionIndex int
	Credits     int
}

// OptionResult is one tally row. Votes is the quadratic voting power
// sqrt(TotalCredits) rounded to one decimal; Percentage is the integer share
// of the summed voting powers. Results keep the original option order, so
// OptionIndex always maps back to Vote.Options.
type OptionResult struct {
	OptionIndex  int
	Label        string
	TotalCredits int
	Votes        float64
	Percentage   int
}
