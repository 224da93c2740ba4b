package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// ParseRole accepts the stored spellings, including the legacy "user" value
// older clients wrote for customers.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "customer", "user":
		return RoleCustomer, true
	case "admin":
		return RoleAdmin, true
	}
	return "", false
}

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// User is a customer or admin account.
type User struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	FullName       string             `json:"fullName" bson:"fullName"`
	Email          string             `json:"email" bson:"email"`
	Phone          string             `json:"phone" bson:"phone"`
	RoomNo         string             `json:"roomNo" bson:"roomNo"`
	PasswordHash   string             `json:"-" bson:"password"`
	Role           Role               `json:"role" bson:"role"`
	FoodPreference string             `json:"foodPreference,omitempty" bson:"foodPreference,omitempty"`
	CreatedAt      time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Details is the contact/delivery snapshot copied onto an order.
func (u *User) Details() UserDetails {
	return UserDetails{
		FullName: u.FullName,
		Email:    u.Email,
		Phone:    u.Phone,
		RoomNo:   u.RoomNo,
	}
}

// ProfileUpdate is the owner-editable subset of a user. Nil fields are left alone.
type ProfileUpdate struct {
	FullName       *string `json:"fullName,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	FoodPreference *string `json:"foodPreference,omitempty"`
}
