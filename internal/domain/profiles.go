package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// profileAlias maps a UI profile to the token its seller type carries in the data.
type profileAlias struct {
	Profile ProfileID
	Token   SellerType
}

// aliases is ordered; the first matching entry wins.
var aliases = []profileAlias{
	{Profile: ProfileProfitMaximizer, Token: SellerProfit},
	{Profile: ProfileLowRisk, Token: SellerLow},
	{Profile: ProfileBalanced, Token: SellerBalanced},
	{Profile: ProfileSafetyOriented, Token: SellerSafety},
	{Profile: ProfileGuaranteedSale, Token: SellerGuaranteed},
}

// Normalize canonicalizes a free-form seller type or profile id.
// Unknown input is returned trimmed and lower-cased.
func Normalize(raw string) SellerType {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range aliases {
		if s == string(a.Profile) || strings.Contains(s, string(a.Token)) {
			return a.Token
		}
	}
	return SellerType(s)
}

// SellerType returns the seller type the profile is stored under.
func (p ProfileID) SellerType() SellerType {
	return Normalize(string(p))
}

// ProfileInfo holds presentation metadata for a profile.
type ProfileInfo struct {
	ID           ProfileID `json:"id"`
	Label        string    `json:"label"`
	Name         string    `json:"name"`
	Color        string    `json:"color"`
	Description  string    `json:"description"`
	RiskAversion float64   `json:"risk_aversion"`
}

var profileInfo = map[ProfileID]ProfileInfo{
	ProfileProfitMaximizer: {
		ID:           ProfileProfitMaximizer,
		Label:        "Profit Max",
		Name:         "Profit Maximizer",
		Color:        "#F59E0B",
		Description:  "Risk-seeking strategy focused on maximum profit",
		RiskAversion: 0.1,
	},
	ProfileLowRisk: {
		ID:           ProfileLowRisk,
		Label:        "Low Risk",
		Name:         "Low Risk",
		Color:        "#3B82F6",
		Description:  "Moderate risk tolerance with focus on profit",
		RiskAversion: 0.3,
	},
	ProfileBalanced: {
		ID:           ProfileBalanced,
		Label:        "Balanced",
		Name:         "Balanced",
		Color:        "#10B981",
		Description:  "Balanced approach between profit and sale probability",
		RiskAversion: 0.5,
	},
	ProfileSafetyOriented: {
		ID:           ProfileSafetyOriented,
		Label:        "Safety",
		Name:         "Safety Oriented",
		Color:        "#8B5CF6",
		Description:  "Prioritizes sale likelihood over maximum profit",
		RiskAversion: 0.7,
	},
	ProfileGuaranteedSale: {
		ID:           ProfileGuaranteedSale,
		Label:        "Guaranteed",
		Name:         "Guaranteed Sale",
		Color:        "#EF4444",
		Description:  "Focuses on ensuring tickets are sold, even at lower prices",
		RiskAversion: 0.9,
	},
}

// DefaultColor is used for profiles without a fixed colour.
const DefaultColor = "#000000"

// Info returns the presentation metadata for the profile.
func (p ProfileID) Info() ProfileInfo {
	if info, ok := profileInfo[p]; ok {
		return info
	}
	return ProfileInfo{ID: p, Label: DisplayName(p), Name: DisplayName(p), Color: DefaultColor}
}

// DisplayName returns the human readable name of a profile.
func DisplayName(p ProfileID) string {
	if info, ok := profileInfo[p]; ok {
		return info.Name
	}
	s := strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(string(p)))
	// A Caser keeps state between calls and must not be shared.
	return cases.Title(language.English).String(s)
}

// ProfileInfos returns the metadata of every profile in canonical order.
func ProfileInfos() []ProfileInfo {
	infos := make([]ProfileInfo, 0, len(Profiles))
	for _, p := range Profiles {
		infos = append(infos, profileInfo[p])
	}
	return infos
}

// ZoneInfo holds presentation metadata for a zone.
type ZoneInfo struct {
	ID         ZoneID   `json:"id"`
	Sections   []string `json:"sections"`
	Color      string   `json:"color"`
	Selectable bool     `json:"selectable"`
}

var zoneInfo = map[ZoneID]ZoneInfo{
	ZoneStandard: {ID: ZoneStandard, Sections: []string{"Balcony", "Rafters", "SportsDeck", "Deck"}, Color: "#4299e1", Selectable: true},
	ZonePremium:  {ID: ZonePremium, Sections: []string{"Loge", "Club", "North Lounge"}, Color: "#48bb78", Selectable: true},
	ZoneLuxury:   {ID: ZoneLuxury, Sections: []string{"VIP", "Floor", "Suites", "Boardroom", "Lofts"}, Color: "#ed8936"},
}

// Info returns the presentation metadata for the zone.
func (z ZoneID) Info() ZoneInfo {
	return zoneInfo[z]
}
