// Package storage keeps receipt images and avatars on local disk and hands
// out signed, time-limited URLs for reading them back.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MaxUploadSize is the largest object accepted by Put.
const MaxUploadSize = 5 << 20

var (
	ErrInvalidPath     = errors.New("invalid object path")
	ErrTooLarge        = errors.New("file too large (max 5MB)")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrInvalidToken    = errors.New("invalid or expired file token")
	ErrNotFound        = errors.New("object not found")
)

// Local is an object store rooted at a directory.
type Local struct {
	base   string
	secret []byte
	now    func() time.Time
}

func NewLocal(base string, secret []byte) (*Local, error) {
	if base == "" {
		base = "uploads"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{base: base, secret: secret, now: time.Now}, nil
}

// CleanPath normalizes an object path and rejects anything that would
// escape the store root.
func CleanPath(p string) (string, error) {
	p = strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}
	c := path.Clean(p)
	if c == "." || strings.HasPrefix(c, "../") {
		return "", ErrInvalidPath
	}
	return c, nil
}

// ReceiptPath builds the object path for a new receipt of userID.
func ReceiptPath(userID uuid.UUID, ext string) string {
	return fmt.Sprintf("receipts/%s/%s%s", userID, uuid.New(), ext)
}

// AvatarPath builds the object path of userID's avatar.
func AvatarPath(userID uuid.UUID, ext string) string {
	return fmt.Sprintf("avatars/%s%s", userID, ext)
}

func (l *Local) full(p string) (string, error) {
	c, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.base, filepath.FromSlash(c)), nil
}

// Put writes data under p, replacing any existing object.
func (l *Local) Put(ctx context.Context, p string, data []byte) error {
	if len(data) > MaxUploadSize {
		return ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	fp, err := l.full(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := fp + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp, fp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit object: %w", err)
	}
	return nil
}

// Open returns a reader for p. The caller closes it.
func (l *Local) Open(p string) (*os.File, error) {
	fp, err := l.full(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fp)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (l *Local) Delete(p string) error {
	fp, err := l.full(p)
	if err != nil {
		return err
	}
	if err := os.Remove(fp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type fileClaims struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

// SignURL returns a relative URL granting read access to p until ttl elapses.
func (l *Local) SignURL(p string, ttl time.Duration) (string, error) {
	c, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	now := l.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, fileClaims{
		Path: c,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	s, err := tok.SignedString(l.secret)
	if err != nil {
		return "", fmt.Errorf("sign url: %w", err)
	}
	return "/files/" + c + "?token=" + s, nil
}

// Verify checks that token was issued by SignURL for p and has not expired.
func (l *Local) Verify(p, token string) error {
	c, err := CleanPath(p)
	if err != nil {
		return err
	}
	var fc fileClaims
	_, err = jwt.ParseWithClaims(token, &fc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return l.secret, nil
	}, jwt.WithTimeFunc(l.now), jwt.WithExpirationRequired())
	if err != nil || fc.Path != c {
		return ErrInvalidToken
	}
	return nil
}

// ReadLimited reads r fully, failing with ErrTooLarge past limit bytes.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}

// Sniff detects the content type of data and accepts images, plus PDF
// when allowPDF is set. It returns the detected MIME and file extension.
func Sniff(data []byte, allowPDF bool) (mime, ext string, err error) {
	m := mimetype.Detect(data)
	switch {
	case strings.HasPrefix(m.String(), "image/"):
	case allowPDF && m.Is("application/pdf"):
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, m.String())
	}
	return m.String(), m.Extension(), nil
}
