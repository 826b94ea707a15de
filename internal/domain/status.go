package domain

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	StatusUpcoming CampaignStatus = "UPCOMING"
	StatusActive   CampaignStatus = "ACTIVE"
	StatusPaused   CampaignStatus = "PAUSED"
	StatusExpired  CampaignStatus = "EXPIRED"
)

func ValidStatuses() []CampaignStatus {
	return []CampaignStatus{StatusUpcoming, StatusActive, StatusPaused, StatusExpired}
}

func (s CampaignStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusActive, StatusPaused, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s CampaignStatus) Terminal() bool {
	return s == StatusExpired
}

// Deletable reports whether a campaign in s may be removed.
func (s CampaignStatus) Deletable() bool {
	return s == StatusUpcoming || s == StatusPaused
}
