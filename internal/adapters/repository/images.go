package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/pointbin/internal/domain/model"
)

const imageTimeLayout = "20060102T150405.000000Z"

// ImageStore writes captured frames and their classification sidecars.
type ImageStore struct {
	dir string
}

// NewImageStore creates the directory if needed.
func NewImageStore(dir string) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrImageStore, dir, err)
	}
	return &ImageStore{dir: dir}, nil
}

// Dir returns the image directory.
func (s *ImageStore) Dir() string { return s.dir }

// SaveImage writes image as capture_<UTC timestamp>.jpg and returns its path.
func (s *ImageStore) SaveImage(image []byte, at time.Time) (string, error) {
	name := "capture_" + at.UTC().Format(imageTimeLayout) + ".jpg"
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrImageStore, path, err)
	}
	return path, nil
}

type sidecar struct {
	Result     json.RawMessage  `json:"result"`
	Prediction model.Prediction `json:"prediction"`
	Summary    string           `json:"summary"`
}

// SaveSidecar writes the raw classifier response and its normalized form
// next to the image as <image>.json.
func (s *ImageStore) SaveSidecar(imagePath string, raw json.RawMessage, pred model.Prediction) (string, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	data, err := json.MarshalIndent(sidecar{Result: raw, Prediction: pred, Summary: pred.String()}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: encode sidecar: %v", ErrImageStore, err)
	}
	path := imagePath + ".json"
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrImageStore, path, err)
	}
	return path, nil
}
