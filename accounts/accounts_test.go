package accounts

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"quickeats/gorest/auth"
	"quickeats/gorest/models"
	"quickeats/gorest/store"
)

var secret = []byte("test-secret")

func newService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	db := store.NewMemory()
	svc := NewService(db, auth.NewIssuer(secret, 7*24*time.Hour, 24*time.Hour), slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.cost = bcrypt.MinCost
	return svc, db
}

func signupReq() SignupRequest {
	return SignupRequest{FullName: "Asha Rao", Email: "Asha@Campus.edu", Phone: "98765", RoomNo: "B-204", Password: "secret1"}
}

func TestSignupAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)

	sess, err := svc.Signup(ctx, signupReq())
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "asha@campus.edu", sess.User.Email)
	assert.Equal(t, models.RoleCustomer, sess.User.Role)
	assert.NotEqual(t, "secret1", sess.User.PasswordHash)

	guard := auth.NewGuard(secret, db)
	id, err := guard.Authenticate(ctx, "Bearer "+sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, id.UserID)

	_, err = svc.Signup(ctx, signupReq())
	assert.ErrorIs(t, err, models.ErrEmailTaken)

	login, err := svc.Login(ctx, Credentials{Email: "asha@campus.edu", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, login.User.ID)

	_, err = svc.Login(ctx, Credentials{Email: "asha@campus.edu", Password: "wrong-pass"})
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
	_, err = svc.Login(ctx, Credentials{Email: "nobody@campus.edu", Password: "secret1"})
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
	_, err = svc.Login(ctx, Credentials{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSignupValidation(t *testing.T) {
	svc, _ := newService(t)
	tests := []struct {
		field  string
		mutate func(*SignupRequest)
	}{
		{"fullName", func(r *SignupRequest) { r.FullName = " " }},
		{"email", func(r *SignupRequest) { r.Email = "not-an-email" }},
		{"phone", func(r *SignupRequest) { r.Phone = "" }},
		{"roomNo", func(r *SignupRequest) { r.RoomNo = "" }},
		{"password", func(r *SignupRequest) { r.Password = "123" }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			req := signupReq()
			tt.mutate(&req)
			_, err := svc.Signup(context.Background(), req)
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestAdminRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	req := signupReq()
	req.Email = "warden@campus.edu"
	req.RoomNo = ""
	admin, err := svc.RegisterAdmin(ctx, nil, req)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.Equal(t, AdminRoomNo, admin.RoomNo)

	sess, err := svc.AdminLogin(ctx, Credentials{Email: "warden@campus.edu", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, admin.ID, sess.User.ID)
	// Admin tokens are short lived.
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), sess.ExpiresAt, time.Minute)

	_, err = svc.Signup(ctx, signupReq())
	require.NoError(t, err)
	_, err = svc.AdminLogin(ctx, Credentials{Email: "asha@campus.edu", Password: "secret1"})
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = svc.AdminLogin(ctx, Credentials{Email: "asha@campus.edu", Password: "nope-nope"})
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestProfileMaintenance(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)
	sess, err := svc.Signup(ctx, signupReq())
	require.NoError(t, err)
	id := auth.Identity{UserID: sess.User.ID, Role: models.RoleCustomer}

	name, phone := "Asha R.", "11111"
	u, err := svc.UpdateProfile(ctx, id, models.ProfileUpdate{FullName: &name, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Asha R.", u.FullName)
	assert.Equal(t, "11111", u.Phone)

	blank := " "
	_, err = svc.UpdateProfile(ctx, id, models.ProfileUpdate{FullName: &blank})
	assert.ErrorIs(t, err, models.ErrValidation)

	// Preferences are not editable through the profile endpoint.
	pref := "vegan"
	u, err = svc.UpdateProfile(ctx, id, models.ProfileUpdate{FoodPreference: &pref})
	require.NoError(t, err)
	assert.Empty(t, u.FoodPreference)

	u, err = svc.UpdatePreferences(ctx, id, " vegetarian ")
	require.NoError(t, err)
	assert.Equal(t, "vegetarian", u.FoodPreference)

	got, err := svc.Profile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "vegetarian", got.FoodPreference)

	require.NoError(t, svc.DeleteAccount(ctx, id))
	_, err = svc.Profile(ctx, id)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = auth.NewGuard(secret, db).Authenticate(ctx, "Bearer "+sess.Token)
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestRegisterAdminAfterBootstrap(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	req := signupReq()
	req.Email = "warden@campus.edu"
	first, err := svc.RegisterAdmin(ctx, nil, req)
	require.NoError(t, err)
	customer, err := svc.Signup(ctx, signupReq())
	require.NoError(t, err)

	req.Email = "intruder@campus.edu"
	_, err = svc.RegisterAdmin(ctx, nil, req)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	_, err = svc.RegisterAdmin(ctx, &auth.Identity{UserID: customer.User.ID, Role: models.RoleCustomer}, req)
	assert.ErrorIs(t, err, models.ErrForbidden)

	req.Email = "deputy@campus.edu"
	deputy, err := svc.RegisterAdmin(ctx, &auth.Identity{UserID: first.ID, Role: models.RoleAdmin}, req)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, deputy.Role)

	_, err = svc.AdminLogin(ctx, Credentials{Email: "intruder@campus.edu", Password: "secret1"})
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestListCustomers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	sess, err := svc.Signup(ctx, signupReq())
	require.NoError(t, err)
	req := signupReq()
	req.Email = "warden@campus.edu"
	admin, err := svc.RegisterAdmin(ctx, nil, req)
	require.NoError(t, err)

	_, err = svc.ListCustomers(ctx, auth.Identity{UserID: sess.User.ID, Role: models.RoleCustomer})
	assert.ErrorIs(t, err, models.ErrForbidden)

	users, err := svc.ListCustomers(ctx, auth.Identity{UserID: admin.ID, Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, sess.User.ID, users[0].ID)
}
