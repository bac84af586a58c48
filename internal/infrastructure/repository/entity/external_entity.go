package entity

import (
	"time"

	"relay-core-integrations-layer/internal/domain"
)

// MongoExternalTeamDoc represents an external team mapping in MongoDB
type MongoExternalTeamDoc struct {
	ID           string    `bson:"_id"`
	TeamID       string    `bson:"teamId"`
	Provider     string    `bson:"provider"`
	ExternalName string    `bson:"externalName"`
	CreatedAt    time.Time `bson:"createdAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoExternalTeamDoc) ToDomain() *domain.ExternalTeam {
	return &domain.ExternalTeam{
		ID:           d.ID,
		TeamID:       d.TeamID,
		Provider:     d.Provider,
		ExternalName: d.ExternalName,
		CreatedAt:    d.CreatedAt,
	}
}

// MongoExternalTeamDocFromDomain converts a domain entity to a MongoDB document
func MongoExternalTeamDocFromDomain(mapping *domain.ExternalTeam) *MongoExternalTeamDoc {
	return &MongoExternalTeamDoc{
		ID:           mapping.ID,
		TeamID:       mapping.TeamID,
		Provider:     mapping.Provider,
		ExternalName: mapping.ExternalName,
		CreatedAt:    mapping.CreatedAt,
	}
}

// MongoExternalUserDoc represents an external user mapping in MongoDB
type MongoExternalUserDoc struct {
	ID           string    `bson:"_id"`
	MemberID     string    `bson:"memberId"`
	Provider     string    `bson:"provider"`
	ExternalName string    `bson:"externalName"`
	CreatedAt    time.Time `bson:"createdAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoExternalUserDoc) ToDomain() *domain.ExternalUser {
	return &domain.ExternalUser{
		ID:           d.ID,
		MemberID:     d.MemberID,
		Provider:     d.Provider,
		ExternalName: d.ExternalName,
		CreatedAt:    d.CreatedAt,
	}
}

// MongoExternalUserDocFromDomain converts a domain entity to a MongoDB document
func MongoExternalUserDocFromDomain(mapping *domain.ExternalUser) *MongoExternalUserDoc {
	return &MongoExternalUserDoc{
		ID:           mapping.ID,
		MemberID:     mapping.MemberID,
		Provider:     mapping.Provider,
		ExternalName: mapping.ExternalName,
		CreatedAt:    mapping.CreatedAt,
	}
}
