// Package domain contains the core domain models for the seatscope dashboard.
package domain

import "strings"

// ZoneID identifies a seating zone.
type ZoneID string

const (
	ZoneStandard ZoneID = "Standard"
	ZonePremium  ZoneID = "Premium"
	ZoneLuxury   ZoneID = "Luxury"
)

// Zones lists every zone in presentation order.
var Zones = []ZoneID{ZoneStandard, ZonePremium, ZoneLuxury}

// IsValid returns true if the zone is a known ZoneID.
func (z ZoneID) IsValid() bool {
	switch z {
	case ZoneStandard, ZonePremium, ZoneLuxury:
		return true
	default:
		return false
	}
}

// Selectable reports whether the zone is offered for user selection.
// Luxury stays in the data but its sample is too small to be shown.
func (z ZoneID) Selectable() bool {
	return z == ZoneStandard || z == ZonePremium
}

// String returns the string representation of the zone.
func (z ZoneID) String() string {
	return string(z)
}

// ZoneIDFromString parses a zone name, ignoring case and surrounding whitespace.
func ZoneIDFromString(s string) (ZoneID, bool) {
	s = strings.TrimSpace(s)
	for _, z := range Zones {
		if strings.EqualFold(s, string(z)) {
			return z, true
		}
	}
	return "", false
}

// SelectableZones returns the zones offered for user selection.
func SelectableZones() []ZoneID {
	var zones []ZoneID
	for _, z := range Zones {
		if z.Selectable() {
			zones = append(zones, z)
		}
	}
	return zones
}

// ProfileID identifies a seller strategy profile as presented to users.
type ProfileID string

const (
	ProfileProfitMaximizer ProfileID = "profit_maximizer"
	ProfileLowRisk         ProfileID = "low_risk"
	ProfileBalanced        ProfileID = "balanced"
	ProfileSafetyOriented  ProfileID = "safety_oriented"
	ProfileGuaranteedSale  ProfileID = "guaranteed_sale"
)

// Profiles lists every profile in canonical order.
var Profiles = []ProfileID{
	ProfileProfitMaximizer,
	ProfileLowRisk,
	ProfileBalanced,
	ProfileSafetyOriented,
	ProfileGuaranteedSale,
}

// IsValid returns true if the profile is a known ProfileID.
func (p ProfileID) IsValid() bool {
	switch p {
	case ProfileProfitMaximizer, ProfileLowRisk, ProfileBalanced, ProfileSafetyOriented, ProfileGuaranteedSale:
		return true
	default:
		return false
	}
}

// String returns the string representation of the profile.
func (p ProfileID) String() string {
	return string(p)
}

// ProfileIDFromString parses a profile id after trimming and lower-casing it.
func ProfileIDFromString(s string) (ProfileID, bool) {
	p := ProfileID(strings.ToLower(strings.TrimSpace(s)))
	return p, p.IsValid()
}

// SellerType is the seller vocabulary found in the equilibrium dataset.
type SellerType string

const (
	SellerProfit     SellerType = "profit"
	SellerLow        SellerType = "low"
	SellerBalanced   SellerType = "balanced"
	SellerSafety     SellerType = "safety"
	SellerGuaranteed SellerType = "guaranteed"
)

// String returns the string representation of the seller type.
func (s SellerType) String() string {
	return string(s)
}

// PlaybackState represents the state of the playback scheduler.
type PlaybackState string

const (
	PlaybackStopped PlaybackState = "stopped"
	PlaybackPlaying PlaybackState = "playing"
)

// String returns the string representation of the state.
func (s PlaybackState) String() string {
	return string(s)
}
