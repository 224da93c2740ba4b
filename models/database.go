package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Category is the closed set of menu sections.
type Category string

const (
	CategoryBreakfast Category = "breakfast"
	CategoryLunch     Category = "lunch"
	CategoryDinner    Category = "dinner"
	CategorySnacks    Category = "snacks"
)

var Categories = []Category{CategoryBreakfast, CategoryLunch, CategoryDinner, CategorySnacks}

func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	return c, c.Valid()
}

func (c Category) Valid() bool {
	switch c {
	case CategoryBreakfast, CategoryLunch, CategoryDinner, CategorySnacks:
		return true
	}
	return false
}

const DefaultRating = 4.5

type MenuItem struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Description string             `json:"description" bson:"description"`
	Price       float64            `json:"price" bson:"price"`
	Category    Category           `json:"category" bson:"category"`
	Image       string             `json:"image" bson:"image"`
	Rating      float64            `json:"rating" bson:"rating"`
	IsAvailable bool               `json:"isAvailable" bson:"isAvailable"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// MenuItemPatch carries a partial menu update; nil fields are untouched.
type MenuItemPatch struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	Category    *Category `json:"category,omitempty"`
	Image       *string   `json:"image,omitempty"`
	Rating      *float64  `json:"rating,omitempty"`
	IsAvailable *bool     `json:"isAvailable,omitempty"`
}

// Option is one priced customization choice.
type Option struct {
	Name  string  `json:"name" bson:"name"`
	Price float64 `json:"price" bson:"price"`
}

type Customization struct {
	Base       *Option  `json:"base,omitempty" bson:"base,omitempty"`
	Proteins   []Option `json:"proteins" bson:"proteins"`
	Vegetables []Option `json:"vegetables" bson:"vegetables"`
	Extras     []Option `json:"extras" bson:"extras"`
}

// CartLine is one entry of a client-held cart.
type CartLine struct {
	ItemKey       string         `json:"itemKey"`
	Name          string         `json:"name"`
	UnitPrice     float64        `json:"price"`
	Quantity      int            `json:"quantity"`
	Image         string         `json:"image,omitempty"`
	Customization *Customization `json:"customizations,omitempty"`
}

// OrderLine is a cart line frozen at checkout.
type OrderLine struct {
	ItemKey       string         `json:"itemKey" bson:"itemKey"`
	Name          string         `json:"name" bson:"name"`
	UnitPrice     float64        `json:"price" bson:"price"`
	Quantity      int            `json:"quantity" bson:"quantity"`
	Image         string         `json:"image,omitempty" bson:"image,omitempty"`
	Customization *Customization `json:"customizations,omitempty" bson:"customizations,omitempty"`
}

type UserDetails struct {
	FullName string `json:"fullName" bson:"fullName"`
	Email    string `json:"email" bson:"email"`
	Phone    string `json:"phone" bson:"phone"`
	RoomNo   string `json:"roomNo" bson:"roomNo"`
}

type Order struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID         primitive.ObjectID `json:"userId" bson:"userId"`
	Items          []OrderLine        `json:"items" bson:"items"`
	TotalAmount    float64            `json:"totalAmount" bson:"totalAmount"`
	Status         OrderStatus        `json:"status" bson:"status"`
	UserDetails    UserDetails        `json:"userDetails" bson:"userDetails"`
	Version        int64              `json:"version" bson:"version"`
	IdempotencyKey string             `json:"-" bson:"idempotencyKey,omitempty"`
	CreatedAt      time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// OrderFilter selects orders for the listing projections. Zero values match all.
type OrderFilter struct {
	UserID *primitive.ObjectID
	Status OrderStatus
}

// MenuFilter selects menu items. A zero Category matches every category.
type MenuFilter struct {
	Category      Category
	AvailableOnly bool
}
