package child

import "context"

// Stats is the dashboard summary over a set of records.
type Stats struct {
	TotalChildren         int `json:"totalChildren"`
	MalnutritionCases     int `json:"malnutritionCases"`
	NormalCases           int `json:"normalCases"`
	ModerateCases         int `json:"moderateCases"`
	SevereCases           int `json:"severeCases"`
	PendingUploads        int `json:"pendingUploads"`
	ActiveRepresentatives int `json:"activeRepresentatives"`
}

// Summarize computes Stats over records.
func Summarize(records []*Record) Stats {
	var st Stats
	owners := make(map[string]struct{})
	for _, r := range records {
		st.TotalChildren++
		_, status := r.Assessment()
		switch status {
		case StatusSevere:
			st.SevereCases++
		case StatusModerate:
			st.ModerateCases++
		default:
			st.NormalCases++
		}
		if !r.IsUploaded {
			st.PendingUploads++
		}
		if r.OwnerID != "" {
			owners[r.OwnerID] = struct{}{}
		}
	}
	st.MalnutritionCases = st.ModerateCases + st.SevereCases
	st.ActiveRepresentatives = len(owners)
	return st
}

// Stats summarizes every record on the device.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	records, err := s.store.GetAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(records), nil
}
