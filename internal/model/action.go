package model

import "time"

// Action is one entry of the static, immutable action catalog.
type Action struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Category     string        `json:"category"`
	BaseCost     int64         `json:"base_cost"`
	Cooldown     time.Duration `json:"cooldown"`
	Capabilities []string      `json:"capabilities"`
}

// DefaultActions returns the built-in action catalog. Communities enable a
// subset of these and may override price and cooldown per action.
func DefaultActions() []Action {
	return []Action{
		{
			ID:           "nickname_change",
			Name:         "Change Nickname",
			Description:  "Change another member's display name",
			Category:     "fun",
			BaseCost:     50,
			Cooldown:     5 * time.Minute,
			Capabilities: []string{"manage_nicknames"},
		},
		{
			ID:           "timeout_5min",
			Name:         "Timeout (5 minutes)",
			Description:  "Mute a member for 5 minutes",
			Category:     "moderation",
			BaseCost:     1000,
			Cooldown:     30 * time.Minute,
			Capabilities: []string{"moderate_members"},
		},
		{
			ID:           "timeout_1hour",
			Name:         "Timeout (1 hour)",
			Description:  "Mute a member for 1 hour",
			Category:     "moderation",
			BaseCost:     5000,
			Cooldown:     time.Hour,
			Capabilities: []string{"moderate_members"},
		},
		{
			ID:           "timeout_1day",
			Name:         "Timeout (1 day)",
			Description:  "Mute a member for 1 day",
			Category:     "moderation",
			BaseCost:     20000,
			Cooldown:     24 * time.Hour,
			Capabilities: []string{"moderate_members"},
		},
		{
			ID:           "voice_disconnect",
			Name:         "Voice Disconnect",
			Description:  "Disconnect a member from their voice channel",
			Category:     "moderation",
			BaseCost:     500,
			Cooldown:     10 * time.Minute,
			Capabilities: []string{"move_members"},
		},
		{
			ID:           "send_dm",
			Name:         "Send DM",
			Description:  "Send a direct message to a member",
			Category:     "fun",
			BaseCost:     100,
			Cooldown:     5 * time.Minute,
			Capabilities: nil,
		},
		{
			ID:           "role_add_temp",
			Name:         "Temporary Role",
			Description:  "Grant a member a role for 1 hour",
			Category:     "fun",
			BaseCost:     1000,
			Cooldown:     time.Hour,
			Capabilities: []string{"manage_roles"},
		},
	}
}
