package ledger

// ItemStatus summarizes one item for rendering.
type ItemStatus struct {
	Item      Item
	Available bool
	Holders   []LoanRecord
}

// Summarize computes the status of item from the records currently holding it.
func Summarize(item Item, records []LoanRecord) ItemStatus {
	st := ItemStatus{Item: item, Available: len(records) == 0}
	if len(records) > 0 {
		st.Holders = make([]LoanRecord, len(records))
		copy(st.Holders, records)
	}
	return st
}

// HolderIDs returns the user ids of the holders.
func (s ItemStatus) HolderIDs() []string {
	ids := make([]string, len(s.Holders))
	for i, h := range s.Holders {
		ids[i] = h.UserID
	}
	return ids
}
