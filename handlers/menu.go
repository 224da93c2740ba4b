package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"quickeats/gorest/auth"
	"quickeats/gorest/catalog"
	"quickeats/gorest/models"
	"quickeats/gorest/utils"
)

const maxUploadMemory = 10 << 20

func (a *API) ListMenu(w http.ResponseWriter, r *http.Request) {
	items, err := a.Catalog.ListAvailable(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, items)
}

func (a *API) ListAllMenu(w http.ResponseWriter, r *http.Request) {
	items, err := a.Catalog.ListAll(r.Context(), identity(r).Role)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, items)
}

func (a *API) GetMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	item, err := a.Catalog.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, item)
}

// CreateMenuItem accepts multipart/form-data with an optional "image" file, or
// a plain JSON body.
func (a *API) CreateMenuItem(w http.ResponseWriter, r *http.Request) {
	if err := auth.RequireAdmin(identity(r)); err != nil {
		a.writeError(w, r, err)
		return
	}

	var (
		item  models.MenuItem
		image *catalog.Image
	)
	if isMultipart(r) {
		patch, img, err := parseMenuForm(r)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		defer img.close()
		image = img.image()
		item = applyPatch(models.MenuItem{IsAvailable: true}, patch)
	} else {
		var body struct {
			models.MenuItem
			IsAvailable *bool `json:"isAvailable"`
		}
		if err := decodeJSON(r, &body); err != nil {
			a.writeError(w, r, err)
			return
		}
		item = body.MenuItem
		item.IsAvailable = body.IsAvailable == nil || *body.IsAvailable
	}

	created, err := a.Catalog.Create(r.Context(), item, image, identity(r).Role)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, created)
}

func (a *API) UpdateMenuItem(w http.ResponseWriter, r *http.Request) {
	if err := auth.RequireAdmin(identity(r)); err != nil {
		a.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var (
		patch models.MenuItemPatch
		image *catalog.Image
	)
	if isMultipart(r) {
		p, img, err := parseMenuForm(r)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		defer img.close()
		patch, image = p, img.image()
	} else if err := decodeJSON(r, &patch); err != nil {
		a.writeError(w, r, err)
		return
	}
	// Image references only change through an upload.
	patch.Image = nil

	item, err := a.Catalog.Update(r.Context(), id, patch, image, identity(r).Role)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, item)
}

func (a *API) DeleteMenuItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.Catalog.Delete(r.Context(), id, identity(r).Role); err != nil {
		a.writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, message{"Menu item deleted successfully"})
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

type upload struct {
	filename string
	file     io.ReadCloser
}

func (u *upload) image() *catalog.Image {
	if u == nil {
		return nil
	}
	return &catalog.Image{Filename: u.filename, Body: u.file}
}

func (u *upload) close() {
	if u != nil {
		_ = u.file.Close()
	}
}

// parseMenuForm reads the menu fields present in a multipart form. Absent
// fields stay nil in the patch.
func parseMenuForm(r *http.Request) (models.MenuItemPatch, *upload, error) {
	var patch models.MenuItemPatch
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return patch, nil, models.NewValidationError("", "malformed multipart form")
	}
	form := r.MultipartForm.Value
	field := func(name string) (string, bool) {
		v, ok := form[name]
		if !ok || len(v) == 0 {
			return "", false
		}
		return strings.TrimSpace(v[0]), true
	}

	if v, ok := field("name"); ok {
		patch.Name = &v
	}
	if v, ok := field("description"); ok {
		patch.Description = &v
	}
	if v, ok := field("price"); ok {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return patch, nil, models.NewValidationError("price", "must be a number")
		}
		patch.Price = &p
	}
	if v, ok := field("category"); ok {
		c := models.Category(v)
		patch.Category = &c
	}
	if v, ok := field("rating"); ok {
		rating, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return patch, nil, models.NewValidationError("rating", "must be a number")
		}
		patch.Rating = &rating
	}
	if v, ok := field("isAvailable"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return patch, nil, models.NewValidationError("isAvailable", "must be true or false")
		}
		patch.IsAvailable = &b
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return patch, nil, nil
	}
	if err != nil {
		return patch, nil, models.NewValidationError("image", "unreadable upload")
	}
	return patch, &upload{filename: header.Filename, file: file}, nil
}

func applyPatch(item models.MenuItem, p models.MenuItemPatch) models.MenuItem {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.Rating != nil {
		item.Rating = *p.Rating
	}
	if p.IsAvailable != nil {
		item.IsAvailable = *p.IsAvailable
	}
	return item
}
