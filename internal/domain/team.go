package domain

import "time"

// MaxTeamMembers bounds the roster size of a team registration.
const MaxTeamMembers = 3

// Team is one team's submitted roster.
type Team struct {
	ID        string    `json:"id" bson:"_id"`
	TeamName  string    `json:"teamName" bson:"teamName"`
	Members   []Member  `json:"members" bson:"members"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Member is a single entry on a team roster.
type Member struct {
	Name  string `json:"name" bson:"name"`
	Roll  string `json:"roll" bson:"roll"`
	Email string `json:"email" bson:"email"`
}
