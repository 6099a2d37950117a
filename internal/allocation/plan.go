package allocation

import "sort"

// Taken sums the quantity drawn across all batches of the plan.
func (p Plan) Taken() int {
	total := 0
	for _, a := range p.BatchAllocations {
		total += a.QuantityTaken
	}
	return total
}

// Fulfilled reports whether the requirement was met in full.
func (p Plan) Fulfilled() bool { return p.Shortfall == 0 }

// Plans is the ordered result of one Allocate call.
type Plans []Plan

// HasShortfall reports whether any requirement is short.
func (ps Plans) HasShortfall() bool {
	for _, p := range ps {
		if p.Shortfall > 0 {
			return true
		}
	}
	return false
}

// TotalShortfall sums the missing units across all requirements.
func (ps Plans) TotalShortfall() int {
	total := 0
	for _, p := range ps {
		total += p.Shortfall
	}
	return total
}

// Short returns the plans that could not be fully satisfied.
func (ps Plans) Short() Plans {
	var out Plans
	for _, p := range ps {
		if p.Shortfall > 0 {
			out = append(out, p)
		}
	}
	return out
}

// Debit is the total quantity to subtract from one batch once a plan is accepted.
type Debit struct {
	BatchID  string `json:"batchId"`
	Quantity int    `json:"quantity"`
}

// Debits aggregates quantities per batch across all plans, ordered by batch id.
func (ps Plans) Debits() []Debit {
	totals := make(map[string]int)
	for _, p := range ps {
		for _, a := range p.BatchAllocations {
			if a.QuantityTaken > 0 {
				totals[a.BatchID] += a.QuantityTaken
			}
		}
	}
	out := make([]Debit, 0, len(totals))
	for id, qty := range totals {
		out = append(out, Debit{BatchID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchID < out[j].BatchID })
	return out
}

// SKUs lists the distinct SKUs referenced by reqs in first-seen order.
func SKUs(reqs []Requirement) []string {
	seen := make(map[string]struct{}, len(reqs))
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if _, ok := seen[r.SKUID]; ok {
			continue
		}
		seen[r.SKUID] = struct{}{}
		out = append(out, r.SKUID)
	}
	return out
}

// GroupBySKU indexes a flat batch list by SKU.
func GroupBySKU(batches []Batch) map[string][]Batch {
	out := make(map[string][]Batch)
	for _, b := range batches {
		out[b.SKUID] = append(out[b.SKUID], b)
	}
	return out
}
