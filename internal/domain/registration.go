package domain

import "time"

// Registration is one applicant's submitted profile.
type Registration struct {
	ID         string    `json:"id" bson:"_id"`
	Username   string    `json:"username" bson:"username"`
	Contact    string    `json:"contact" bson:"contact"`
	Email      string    `json:"email" bson:"email"`
	Year       string    `json:"year" bson:"year"`
	WhyGfg     string    `json:"whyGfg" bson:"whyGfg"`
	Domain1    string    `json:"domain1" bson:"domain1"`
	Domain2    string    `json:"domain2,omitempty" bson:"domain2,omitempty"`
	Github     string    `json:"github,omitempty" bson:"github,omitempty"`
	LinkedIn   string    `json:"linkedin,omitempty" bson:"linkedin,omitempty"`
	ResumeLink string    `json:"resumeLink,omitempty" bson:"resumeLink,omitempty"`
	Avatar     string    `json:"avatar,omitempty" bson:"avatar,omitempty"`
	DeviceID   string    `json:"deviceId" bson:"deviceId"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
}

// TrainerCard is the public projection rendered on an applicant's profile card.
type TrainerCard struct {
	ID          string    `json:"id"`
	TrainerNo   string    `json:"trainerNo"`
	Name        string    `json:"name"`
	Year        string    `json:"year"`
	Domain1     string    `json:"domain1"`
	Domain2     string    `json:"domain2,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	Github      string    `json:"github,omitempty"`
	LinkedIn    string    `json:"linkedin,omitempty"`
	MemberSince time.Time `json:"memberSince"`
}
