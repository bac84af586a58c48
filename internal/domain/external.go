package domain

import "time"

// ExternalTeam maps a team to its name on an external provider. Pure
// association row, unique on (team, provider, external name).
type ExternalTeam struct {
	ID           string    `json:"id" bson:"_id"`
	TeamID       string    `json:"team_id" bson:"team_id"`
	Provider     string    `json:"provider" bson:"provider"`
	ExternalName string    `json:"external_name" bson:"external_name"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

// ExternalUser maps an organization member to their username on an external
// provider. Unique on (member, provider, external name).
type ExternalUser struct {
	ID           string    `json:"id" bson:"_id"`
	MemberID     string    `json:"member_id" bson:"member_id"`
	Provider     string    `json:"provider" bson:"provider"`
	ExternalName string    `json:"external_name" bson:"external_name"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}
