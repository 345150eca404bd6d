package handler

import "net/http"

// Plan is one entry of the price list.
type Plan struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	MonthlyCents  int      `json:"monthly_cents"`
	Currency      string   `json:"currency"`
	IncludedSeats int      `json:"included_seats"`
	Features      []string `json:"features"`
}

var defaultPlans = []Plan{
	{ID: "starter", Name: "Starter", MonthlyCents: 0, Currency: "usd", IncludedSeats: 3, Features: []string{"chat"}},
	{ID: "team", Name: "Team", MonthlyCents: 4900, Currency: "usd", IncludedSeats: 25, Features: []string{"chat", "report", "teams"}},
	{ID: "business", Name: "Business", MonthlyCents: 19900, Currency: "usd", IncludedSeats: 100, Features: []string{"chat", "report", "teams", "analytics", "organization"}},
}

// BillingHandler serves /billing routes. Payment processing itself happens
// at the provider.
type BillingHandler struct {
	plans []Plan
}

func NewBillingHandler() *BillingHandler {
	return &BillingHandler{plans: defaultPlans}
}

// Plans handles GET /billing/plans
func (h *BillingHandler) Plans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.plans)
}
