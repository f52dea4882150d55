package commission

import "github.com/shopspring/decimal"

type Outcome string

const (
	OutcomeDistributed Outcome = "distributed"
	OutcomeNoReferrer  Outcome = "no_referrer"
	OutcomeNoProfile   Outcome = "no_profile"
	OutcomeDuplicate   Outcome = "duplicate"
)

// Credit describes one wallet credit made during a distribution.
type Credit struct {
	Level         int             `json:"level"`
	ProfileID     uint            `json:"profile_id"`
	UserID        uint            `json:"user_id"`
	Username      string          `json:"username"`
	Rate          decimal.Decimal `json:"rate"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	TransactionID uint            `json:"transaction_id"`
}

type Result struct {
	Outcome        Outcome  `json:"outcome"`
	EventID        string   `json:"event_id,omitempty"`
	BuyerID        uint     `json:"buyer_id"`
	BuyerName      string   `json:"buyer_username,omitempty"`
	Credits        []Credit `json:"credits"`
	NotifyFailures int      `json:"notify_failures"`
}

// Total is the sum of all credits.
func (r *Result) Total() decimal.Decimal {
	total := decimal.Zero
	for _, c := range r.Credits {
		total = total.Add(c.Amount)
	}
	return total
}
