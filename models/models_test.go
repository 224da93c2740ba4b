package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want OrderStatus
		ok   bool
	}{
		{"pending", StatusPending, true},
		{"Preparing", StatusPreparing, true},
		{"On the way", StatusOnTheWay, true},
		{"on-the-way", StatusOnTheWay, true},
		{" delivered ", StatusDelivered, true},
		{"cancelled", StatusCancelled, true},
		{"shipped", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseStatus(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusOnTheWay.Terminal())
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("user")
	assert.True(t, ok)
	assert.Equal(t, RoleCustomer, r)

	r, ok = ParseRole(" Admin")
	assert.True(t, ok)
	assert.True(t, r.IsAdmin())

	_, ok = ParseRole("manager")
	assert.False(t, ok)
	assert.False(t, Role("manager").Valid())
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory(" Snacks ")
	assert.True(t, ok)
	assert.Equal(t, CategorySnacks, c)

	_, ok = ParseCategory("brunch")
	assert.False(t, ok)
	assert.Len(t, Categories, 4)
}

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("checkout: %w", NewValidationError("totalAmount", "does not match"))
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrNotFound))

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "totalAmount", ve.Field)
	assert.Equal(t, "validation failed: totalAmount: does not match", ve.Error())
	assert.Equal(t, "validation failed: empty", NewValidationError("", "empty").Error())
}

func TestUserDetails(t *testing.T) {
	u := &User{FullName: "Asha", Email: "a@x.io", Phone: "99", RoomNo: "B-12", PasswordHash: "h"}
	assert.Equal(t, UserDetails{FullName: "Asha", Email: "a@x.io", Phone: "99", RoomNo: "B-12"}, u.Details())
}
