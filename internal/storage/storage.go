// Package storage is the object-storage collaborator: it keeps file bytes
// out of the core, handing back references and URLs instead. Images get
// public URLs; model files get access-controlled, time-limited signed URLs.
package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// PublicURL returns a stable URL for world-readable objects (images).
	PublicURL(key string) string
	// SignedURL returns a time-limited URL for access-controlled objects
	// (model files).
	SignedURL(key string, ttl time.Duration) string
}

// Disk stores objects under a local root directory and serves them through
// the application's /files/ route. Signed URLs carry an HMAC over
// "<key>|<expiry>" so the files handler can authorize model downloads
// without any extra state.
type Disk struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

func NewDisk(root, baseURL string, secret []byte) *Disk {
	return &Disk{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		now:     time.Now,
	}
}

func (d *Disk) Put(ctx context.Context, key string, data []byte) error {
	full, err := d.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	return nil
}

func (d *Disk) Delete(ctx context.Context, key string) error {
	full, err := d.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (d *Disk) PublicURL(key string) string {
	return d.baseURL + "/files/" + key
}

func (d *Disk) SignedURL(key string, ttl time.Duration) string {
	exp := d.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", d.sign(key, exp))
	return d.baseURL + "/files/" + key + "?" + q.Encode()
}

// VerifySignedKey authorizes a model download request produced by
// SignedURL. It reports false for tampered signatures and expired links.
func (d *Disk) VerifySignedKey(key, expRaw, sig string) bool {
	exp, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil {
		return false
	}
	if d.now().Unix() > exp {
		return false
	}

	provided, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(d.sign(key, exp))
	if err != nil {
		return false
	}
	return hmac.Equal(provided, expected)
}

// Open resolves a key to its on-disk path for serving.
func (d *Disk) Open(key string) (string, error) {
	return d.fullPath(key)
}

func (d *Disk) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, d.secret)
	_, _ = mac.Write([]byte(key + "|" + strconv.FormatInt(exp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (d *Disk) fullPath(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}
