package storage

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallest valid PNG header plus IHDR chunk
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53, 0xde,
}

func newTestStore(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), []byte("test-secret"))
	require.NoError(t, err)
	return l
}

func TestCleanPath(t *testing.T) {
	good := map[string]string{
		"receipts/a/b.png":    "receipts/a/b.png",
		"/avatars/x.jpg":      "avatars/x.jpg",
		"receipts//a/./b.png": "receipts/a/b.png",
	}
	for in, want := range good {
		got, err := CleanPath(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "/", "../etc/passwd", "receipts/../../x", "a\\..\\b", "."} {
		_, err := CleanPath(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, bad)
	}
}

func TestPutOpenDelete(t *testing.T) {
	l := newTestStore(t)
	require.NoError(t, l.Put(context.Background(), "receipts/u/r.png", pngBytes))

	f, err := l.Open("receipts/u/r.png")
	require.NoError(t, err)
	got, err := io.ReadAll(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, pngBytes, got)

	require.NoError(t, l.Delete("receipts/u/r.png"))
	_, err = l.Open("receipts/u/r.png")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, l.Delete("receipts/u/r.png"))
}

func TestPutRejectsLargeObjects(t *testing.T) {
	l := newTestStore(t)
	err := l.Put(context.Background(), "big.bin", make([]byte, MaxUploadSize+1))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestSignedURL(t *testing.T) {
	l := newTestStore(t)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	raw, err := l.SignURL("receipts/u/r.png", time.Hour)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/files/receipts/u/r.png", u.Path)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)

	assert.NoError(t, l.Verify("receipts/u/r.png", tok))
	assert.ErrorIs(t, l.Verify("receipts/u/other.png", tok), ErrInvalidToken)
	assert.ErrorIs(t, l.Verify("receipts/u/r.png", tok+"x"), ErrInvalidToken)

	now = now.Add(2 * time.Hour)
	assert.ErrorIs(t, l.Verify("receipts/u/r.png", tok), ErrInvalidToken)
}

func TestReadLimited(t *testing.T) {
	b, err := ReadLimited(strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
	_, err = ReadLimited(strings.NewReader("hello!"), 5)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestSniff(t *testing.T) {
	mime, ext, err := Sniff(pngBytes, false)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, ".png", ext)

	pdf := []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	_, _, err = Sniff(pdf, false)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	mime, _, err = Sniff(pdf, true)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", mime)

	_, _, err = Sniff([]byte("just some text"), true)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}
