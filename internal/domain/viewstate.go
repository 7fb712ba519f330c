package domain

import "slices"

// ViewState is the single source of truth for what the dashboard shows.
type ViewState struct {
	SelectedZone      ZoneID      `json:"selected_zone"`
	SelectedDay       int         `json:"selected_day"`
	SelectedProfiles  []ProfileID `json:"selected_profiles"`
	CompareWithMarket bool        `json:"compare_with_market"`
}

// Clone returns a deep copy of the state.
func (s ViewState) Clone() ViewState {
	s.SelectedProfiles = slices.Clone(s.SelectedProfiles)
	if s.SelectedProfiles == nil {
		s.SelectedProfiles = []ProfileID{}
	}
	return s
}

// HasProfile reports whether the profile is selected.
func (s ViewState) HasProfile(p ProfileID) bool {
	return slices.Contains(s.SelectedProfiles, p)
}

// ToggleProfile adds the profile at the end of the selection, or removes it if present.
func (s *ViewState) ToggleProfile(p ProfileID) {
	if i := slices.Index(s.SelectedProfiles, p); i >= 0 {
		s.SelectedProfiles = slices.Delete(slices.Clone(s.SelectedProfiles), i, i+1)
		return
	}
	s.SelectedProfiles = append(slices.Clone(s.SelectedProfiles), p)
}

// SetProfiles replaces the selection, dropping duplicates but keeping order.
func (s *ViewState) SetProfiles(profiles []ProfileID) {
	out := make([]ProfileID, 0, len(profiles))
	for _, p := range profiles {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	s.SelectedProfiles = out
}
