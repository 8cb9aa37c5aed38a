package participants

import (
	"encoding/json"
	"net/http"

	"github.com/kilianp07/gridmarket/core/auction"
	"github.com/kilianp07/gridmarket/core/model"
)

// Status describes one node of the participant tree.
type Status struct {
	Name      string                   `json:"name"`
	Parent    string                   `json:"parent,omitempty"`
	State     auction.ParticipantState `json:"state"`
	Commodity model.Commodity          `json:"commodity,omitempty"`
	Children  int                      `json:"children"`
	// LocalPrices is set for islanded nodes that have cleared at least once.
	LocalPrices map[model.Commodity]float64 `json:"local_prices,omitempty"`
}

// Statuses flattens the tree rooted at root in depth-first order.
func Statuses(root *auction.Node) []Status {
	var out []Status
	var walk func(n *auction.Node, parent string)
	walk = func(n *auction.Node, parent string) {
		st := Status{Name: n.Name(), Parent: parent, State: n.State(), Children: len(n.Children())}
		if c := n.Contract(); c != nil {
			st.Commodity = c.Commodity()
		}
		if lm := n.LocalMarket(); lm != nil {
			for _, c := range lm.Commodities() {
				if p, ok := lm.Price(c); ok {
					if st.LocalPrices == nil {
						st.LocalPrices = make(map[model.Commodity]float64)
					}
					st.LocalPrices[c] = p
				}
			}
		}
		out = append(out, st)
		for _, ch := range n.Children() {
			walk(ch, n.Name())
		}
	}
	walk(root, "")
	return out
}

// NewStatusHandler returns an HTTP handler exposing the participant tree via
// GET /api/participants/status. The optional commodity and state query
// parameters filter the list.
func NewStatusHandler(root *auction.Node) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var commodity model.Commodity
		if s := r.URL.Query().Get("commodity"); s != "" {
			c, err := model.ParseCommodity(s)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			commodity = c
		}
		state := auction.ParticipantState(r.URL.Query().Get("state"))
		entries := []Status{}
		for _, st := range Statuses(root) {
			if commodity != "" && st.Commodity != commodity {
				continue
			}
			if state != "" && st.State != state {
				continue
			}
			entries = append(entries, st)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
