// Package media stores uploaded menu images on local disk.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"quickeats/gorest/models"
)

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true}

// DiskStore writes files under Dir and returns references of the form
// URLPrefix + "/" + name.
type DiskStore struct {
	Dir       string
	URLPrefix string
	MaxBytes  int64
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{Dir: dir, URLPrefix: "/uploads", MaxBytes: 5 << 20}, nil
}

func (s *DiskStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", models.NewValidationError("image", fmt.Sprintf("unsupported image type %q", ext))
	}

	name := uuid.NewString() + "-" + sanitize(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))) + ext
	dst := filepath.Join(s.Dir, name)

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create image: %w", err)
	}
	src := r
	if s.MaxBytes > 0 {
		src = io.LimitReader(r, s.MaxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.MaxBytes > 0 && n > s.MaxBytes {
		err = models.NewValidationError("image", fmt.Sprintf("larger than %d bytes", s.MaxBytes))
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	return s.URLPrefix + "/" + name, nil
}

// Remove deletes a file returned by Save. A file that is already gone is not
// an error.
func (s *DiskStore) Remove(_ context.Context, ref string) error {
	name := strings.TrimPrefix(ref, s.URLPrefix+"/")
	if name == ref || name == "" || name != filepath.Base(name) {
		return models.NewValidationError("image", fmt.Sprintf("%q is not a stored image", ref))
	}
	if err := os.Remove(filepath.Join(s.Dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "image"
	}
	return b.String()
}
