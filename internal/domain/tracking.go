package domain

import (
	"encoding/json"
	"time"
)

// Instance is one tracked behavior occurrence, owned by a single user.
type Instance struct {
	ID            int64     `json:"id,string"`
	UserID        int64     `json:"-"`
	Time          time.Time `json:"time"`
	Duration      int       `json:"duration"`
	UrgeStrength  *int      `json:"urgeStrength,omitempty"`
	IntentionType string    `json:"intentionType,omitempty"`
	Environments  []string  `json:"selectedEnvironments,omitempty"`
	Emotions      []string  `json:"selectedEmotions,omitempty"`
	Sensations    []string  `json:"selectedSensations,omitempty"`
	Thoughts      []string  `json:"selectedThoughts,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Strategy is a habit-reversal plan. The component lists are stored as
// opaque JSON documents; the API does not interpret their contents.
type Strategy struct {
	ID                 int64           `json:"id,string"`
	UserID             int64           `json:"-"`
	Name               string          `json:"name"`
	Trigger            string          `json:"trigger,omitempty"`
	CompetingResponses json.RawMessage `json:"competingResponses,omitempty"`
	StimulusControls   json.RawMessage `json:"stimulusControls,omitempty"`
	CommunitySupports  json.RawMessage `json:"communitySupports,omitempty"`
	Notifications      json.RawMessage `json:"notifications,omitempty"`
	IsActive           bool            `json:"isActive"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}
