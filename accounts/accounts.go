// Package accounts handles signup, login and profile maintenance.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/bcrypt"

	"quickeats/gorest/auth"
	"quickeats/gorest/models"
)

// AdminRoomNo is stored as the room of every admin account.
const AdminRoomNo = "ADMIN"

const minPasswordLen = 6

type Repository interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, id primitive.ObjectID, patch models.ProfileUpdate, at time.Time) (*models.User, error)
	DeleteUser(ctx context.Context, id primitive.ObjectID) error
	ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error)
}

type Service struct {
	users  Repository
	issuer *auth.Issuer
	log    *slog.Logger
	cost   int
	now    func() time.Time
}

func NewService(users Repository, issuer *auth.Issuer, log *slog.Logger) *Service {
	return &Service{users: users, issuer: issuer, log: log, cost: bcrypt.DefaultCost, now: time.Now}
}

type SignupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	RoomNo   string `json:"roomNo"`
	Password string `json:"password"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is a freshly issued token and the user it belongs to.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// Signup creates a customer account and logs it in.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*Session, error) {
	ctx, span := otel.Tracer("accounts").Start(ctx, "Signup")
	defer span.End()

	if err := validateSignup(req, true); err != nil {
		return nil, err
	}
	user, err := s.create(ctx, req, models.RoleCustomer)
	if err != nil {
		return nil, err
	}
	return s.session(user)
}

// RegisterAdmin creates an admin account. Admins have no room; AdminRoomNo is
// stored instead. Anyone may create the first admin; after that caller must be
// an admin.
func (s *Service) RegisterAdmin(ctx context.Context, caller *auth.Identity, req SignupRequest) (*models.User, error) {
	ctx, span := otel.Tracer("accounts").Start(ctx, "RegisterAdmin")
	defer span.End()

	if err := s.canRegisterAdmin(ctx, caller); err != nil {
		return nil, err
	}
	req.RoomNo = AdminRoomNo
	if err := validateSignup(req, false); err != nil {
		return nil, err
	}
	admin, err := s.create(ctx, req, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if caller == nil {
		s.log.Info("bootstrap admin created", "user_id", admin.ID.Hex())
	}
	return admin, nil
}

func (s *Service) canRegisterAdmin(ctx context.Context, caller *auth.Identity) error {
	if caller != nil {
		return auth.RequireAdmin(*caller)
	}
	admins, err := s.users.ListUsersByRole(ctx, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if len(admins) > 0 {
		return fmt.Errorf("an admin already exists, sign in as admin to add another: %w", models.ErrUnauthenticated)
	}
	return nil
}

func (s *Service) create(ctx context.Context, req SignupRequest, role models.Role) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	user := &models.User{
		FullName:     strings.TrimSpace(req.FullName),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        strings.TrimSpace(req.Phone),
		RoomNo:       strings.TrimSpace(req.RoomNo),
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info("account created", "user_id", user.ID.Hex(), "role", role)
	return user, nil
}

// Login checks credentials for any role.
func (s *Service) Login(ctx context.Context, c Credentials) (*Session, error) {
	user, err := s.verify(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.session(user)
}

// AdminLogin is Login restricted to admin accounts. The password is checked
// first so the endpoint does not reveal which emails belong to customers.
func (s *Service) AdminLogin(ctx context.Context, c Credentials) (*Session, error) {
	user, err := s.verify(ctx, c)
	if err != nil {
		return nil, err
	}
	if !user.Role.IsAdmin() {
		return nil, fmt.Errorf("not an admin account: %w", models.ErrForbidden)
	}
	return s.session(user)
}

func (s *Service) verify(ctx context.Context, c Credentials) (*models.User, error) {
	ctx, span := otel.Tracer("accounts").Start(ctx, "Login")
	defer span.End()

	if strings.TrimSpace(c.Email) == "" || c.Password == "" {
		return nil, models.NewValidationError("email", "email and password are required")
	}
	user, err := s.users.FindUserByEmail(ctx, c.Email)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidCredential
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(c.Password)); err != nil {
		return nil, models.ErrInvalidCredential
	}
	return user, nil
}

func (s *Service) session(user *models.User) (*Session, error) {
	token, exp, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: user}, nil
}

func (s *Service) Profile(ctx context.Context, id auth.Identity) (*models.User, error) {
	return s.users.FindUserByID(ctx, id.UserID)
}

// UpdateProfile changes name and phone. Other fields in patch are ignored.
func (s *Service) UpdateProfile(ctx context.Context, id auth.Identity, patch models.ProfileUpdate) (*models.User, error) {
	update := models.ProfileUpdate{}
	if patch.FullName != nil {
		name := strings.TrimSpace(*patch.FullName)
		if name == "" {
			return nil, models.NewValidationError("fullName", "must not be empty")
		}
		update.FullName = &name
	}
	if patch.Phone != nil {
		phone := strings.TrimSpace(*patch.Phone)
		if phone == "" {
			return nil, models.NewValidationError("phone", "must not be empty")
		}
		update.Phone = &phone
	}
	return s.users.UpdateUser(ctx, id.UserID, update, s.now())
}

func (s *Service) UpdatePreferences(ctx context.Context, id auth.Identity, foodPreference string) (*models.User, error) {
	pref := strings.TrimSpace(foodPreference)
	return s.users.UpdateUser(ctx, id.UserID, models.ProfileUpdate{FoodPreference: &pref}, s.now())
}

// DeleteAccount removes the caller's account. Their orders are kept and still
// show the details snapshotted at checkout.
func (s *Service) DeleteAccount(ctx context.Context, id auth.Identity) error {
	if err := s.users.DeleteUser(ctx, id.UserID); err != nil {
		return err
	}
	s.log.Info("account deleted", "user_id", id.UserID.Hex())
	return nil
}

// ListCustomers is the admin view of all customer accounts, newest first.
func (s *Service) ListCustomers(ctx context.Context, id auth.Identity) ([]models.User, error) {
	if err := auth.RequireAdmin(id); err != nil {
		return nil, err
	}
	return s.users.ListUsersByRole(ctx, models.RoleCustomer)
}

func validateSignup(req SignupRequest, needRoom bool) error {
	if strings.TrimSpace(req.FullName) == "" {
		return models.NewValidationError("fullName", "is required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		return models.NewValidationError("email", "is not a valid address")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return models.NewValidationError("phone", "is required")
	}
	if needRoom && strings.TrimSpace(req.RoomNo) == "" {
		return models.NewValidationError("roomNo", "is required")
	}
	if len(req.Password) < minPasswordLen {
		return models.NewValidationError("password", fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}
	return nil
}
