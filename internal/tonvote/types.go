package tonvote

import (
	"encoding/json"
	"time"
)

// Dao is a governance space with its metadata flattened out of the
// raw API shape. Proposals holds proposal addresses in creation order.
type Dao struct {
	Address   string
	Name      string
	About     string
	Avatar    string
	Website   string
	Telegram  string
	Github    string
	Proposals []string
}

// VoteResult is the finalized tally of a proposal. The API omits it
// until voting has ended, so Proposal carries it as a pointer.
type VoteResult struct {
	Yes     float64
	No      float64
	Abstain float64
}

// Proposal is a time-boxed voting item belonging to a DAO.
type Proposal struct {
	Address     string
	DaoAddress  string
	Title       string
	Description string
	StartTime   int64 // unix seconds
	EndTime     int64 // unix seconds
	Result      *VoteResult
}

// Status classifies a proposal relative to now.
type Status int

const (
	StatusPending Status = iota
	StatusActive
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusEnded:
		return "ended"
	}
	return "unknown"
}

// StatusAt classifies the proposal at the given instant. The start
// boundary counts as started and the end boundary as ended.
func (p *Proposal) StatusAt(now time.Time) Status {
	ts := now.Unix()
	switch {
	case ts < p.StartTime:
		return StatusPending
	case ts >= p.EndTime:
		return StatusEnded
	default:
		return StatusActive
	}
}

func (p *Proposal) Start() time.Time { return time.Unix(p.StartTime, 0) }
func (p *Proposal) End() time.Time   { return time.Unix(p.EndTime, 0) }

// --- Raw API shapes ---

type daoResponse struct {
	DaoAddress  string `json:"daoAddress"`
	DaoID       int64  `json:"daoId"`
	DaoMetadata struct {
		MetadataArgs struct {
			Name     string `json:"name"`
			About    string `json:"about"`
			Avatar   string `json:"avatar"`
			Website  string `json:"website"`
			Telegram string `json:"telegram"`
			Github   string `json:"github"`
			Hide     bool   `json:"hide"`
		} `json:"metadataArgs"`
	} `json:"daoMetadata"`
	DaoProposals []string `json:"daoProposals"`
}

type proposalResponse struct {
	DaoAddress string `json:"daoAddress"`
	Metadata   struct {
		Title             string `json:"title"`
		Description       string `json:"description"`
		ProposalStartTime int64  `json:"proposalStartTime"`
		ProposalEndTime   int64  `json:"proposalEndTime"`
		Hide              bool   `json:"hide"`
	} `json:"metadata"`
	ProposalResult *struct {
		Yes     float64 `json:"yes"`
		No      float64 `json:"no"`
		Abstain float64 `json:"abstain"`
	} `json:"proposalResult"`
}

// localizedText extracts the "en" value from a JSON-encoded localized
// field like `{"en":"TON Foundation"}`. The upstream drifts between
// encoded and plain strings, so anything unparseable yields "".
func localizedText(raw string) string {
	if raw == "" {
		return ""
	}
	var locales map[string]string
	if err := json.Unmarshal([]byte(raw), &locales); err != nil {
		return ""
	}
	return locales["en"]
}
