package handlers

import (
	"net/http"

	"quickeats/gorest/accounts"
	"quickeats/gorest/auth"
	"quickeats/gorest/models"
	"quickeats/gorest/utils"
)

type signupResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    *models.User `json:"user"`
}

func (a *API) Signup(w http.ResponseWriter, r *http.Request) {
	var req accounts.SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	sess, err := a.Accounts.Signup(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, signupResponse{Message: "User created successfully", Token: sess.Token, User: sess.User})
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var c accounts.Credentials
	if err := decodeJSON(r, &c); err != nil {
		a.writeError(w, r, err)
		return
	}
	sess, err := a.Accounts.Login(r.Context(), c)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, sess)
}

func (a *API) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var c accounts.Credentials
	if err := decodeJSON(r, &c); err != nil {
		a.writeError(w, r, err)
		return
	}
	sess, err := a.Accounts.AdminLogin(r.Context(), c)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, sess)
}

func (a *API) RegisterAdmin(w http.ResponseWriter, r *http.Request) {
	var req accounts.SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	// The route is public so the first admin can bootstrap; later calls
	// must carry an admin token.
	var caller *auth.Identity
	if header := r.Header.Get("Authorization"); header != "" {
		id, err := a.Guard.Authenticate(r.Context(), header)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		caller = &id
	}
	admin, err := a.Accounts.RegisterAdmin(r.Context(), caller, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, struct {
		Message string       `json:"message"`
		Admin   *models.User `json:"admin"`
	}{"Admin account created successfully", admin})
}

func (a *API) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := a.Accounts.Profile(r.Context(), identity(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}

func (a *API) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch models.ProfileUpdate
	if err := decodeJSON(r, &patch); err != nil {
		a.writeError(w, r, err)
		return
	}
	user, err := a.Accounts.UpdateProfile(r.Context(), identity(r), patch)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}

func (a *API) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FoodPreference string `json:"foodPreference"`
	}
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	user, err := a.Accounts.UpdatePreferences(r.Context(), identity(r), body.FoodPreference)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}

func (a *API) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := a.Accounts.DeleteAccount(r.Context(), identity(r)); err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, message{"Account deleted successfully"})
}

func (a *API) ListCustomers(w http.ResponseWriter, r *http.Request) {
	users, err := a.Accounts.ListCustomers(r.Context(), identity(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, users)
}
