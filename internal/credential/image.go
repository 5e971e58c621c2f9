package credential

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"campusevents/internal/cloudinary"
)

const (
	qrSize        = 256
	dataURIPrefix = "data:image/png;base64,"
)

// ErrRemoteImage is returned by Get for references that live on another host.
var ErrRemoteImage = errors.New("credential image is stored remotely")

// RenderPNG encodes text as a QR code PNG.
func RenderPNG(text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("credential: empty payload")
	}
	png, err := qrcode.Encode(text, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	return png, nil
}

// ImageStore persists rendered credential images. Images are written once per
// registration and never modified.
type ImageStore interface {
	// Put stores png under key and returns the reference kept on the registration.
	Put(ctx context.Context, key string, png []byte) (string, error)
	// Get returns the PNG bytes behind ref, or ErrRemoteImage for remote URLs.
	Get(ctx context.Context, ref string) ([]byte, error)
}

// IsRemote reports whether ref is an absolute URL served by another host.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}

// InlineStore keeps the image inside the reference as a base64 data URI.
type InlineStore struct{}

func (InlineStore) Put(_ context.Context, _ string, png []byte) (string, error) {
	return dataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}

func (InlineStore) Get(_ context.Context, ref string) ([]byte, error) {
	if !strings.HasPrefix(ref, dataURIPrefix) {
		return nil, errors.New("credential: not a png data uri")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(ref, dataURIPrefix))
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// DirStore writes qr_<key>.png files under Dir and references them by WebPrefix.
type DirStore struct {
	Dir       string
	WebPrefix string
}

// NewDirStore creates dir if needed.
func NewDirStore(dir, webPrefix string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}
	if webPrefix == "" {
		webPrefix = "qrcodes"
	}
	return &DirStore{Dir: dir, WebPrefix: strings.TrimSuffix(webPrefix, "/")}, nil
}

func (s *DirStore) Put(_ context.Context, key string, png []byte) (string, error) {
	name := "qr_" + unsafeChars.ReplaceAllString(key, "-") + ".png"
	if err := os.WriteFile(filepath.Join(s.Dir, name), png, 0o644); err != nil {
		return "", fmt.Errorf("write credential image: %w", err)
	}
	return s.WebPrefix + "/" + name, nil
}

func (s *DirStore) Get(_ context.Context, ref string) ([]byte, error) {
	if IsRemote(ref) {
		return nil, ErrRemoteImage
	}
	return os.ReadFile(filepath.Join(s.Dir, filepath.Base(ref)))
}

// Uploader is the part of the Cloudinary client used by CloudinaryStore.
type Uploader interface {
	UploadBytes(ctx context.Context, data []byte, filename string) (*cloudinary.UploadResult, error)
}

// CloudinaryStore uploads images and references them by their secure URL.
type CloudinaryStore struct {
	Uploader Uploader
}

func (s CloudinaryStore) Put(ctx context.Context, key string, png []byte) (string, error) {
	res, err := s.Uploader.UploadBytes(ctx, png, "qr_"+unsafeChars.ReplaceAllString(key, "-")+".png")
	if err != nil {
		return "", err
	}
	if res.SecureURL != "" {
		return res.SecureURL, nil
	}
	return res.URL, nil
}

func (s CloudinaryStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, dataURIPrefix) {
		return InlineStore{}.Get(ctx, ref)
	}
	return nil, ErrRemoteImage
}
