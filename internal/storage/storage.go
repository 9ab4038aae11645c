package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bobarin/habitcast/internal/models"
	"github.com/google/uuid"
)

// Storage keeps generated clips and narrator samples on local disk. Paths
// handed to callers are relative to the project root so rows stay valid when
// the checkout moves.
type Storage struct {
	root      string
	outputDir string
	sampleDir string
}

func New(projectRoot, outputDir, sampleDir string) *Storage {
	return &Storage{
		root:      projectRoot,
		outputDir: outputDir,
		sampleDir: sampleDir,
	}
}

// ClipPath is the destination of a clip: <output>/<isoDate>/<type>-<id>.wav.
func (s *Storage) ClipPath(isoDate string, key models.HabitKey) string {
	return filepath.Join(s.outputDir, isoDate, fmt.Sprintf("%s-%d.wav", key.Type, key.ID))
}

// SaveClip copies a synthesized file to its dated destination and returns the
// project-relative path.
func (s *Storage) SaveClip(src, isoDate string, key models.HabitKey) (string, error) {
	dest := s.ClipPath(isoDate, key)
	if err := copyFile(src, dest); err != nil {
		return "", err
	}
	log.Printf("[Storage] Saved clip %s -> %s", key, dest)
	return s.Relative(dest), nil
}

// RemovePriorArtifact deletes a previously stored clip. A missing file is not
// an error and other failures are only logged: replacement must not stop.
func (s *Storage) RemovePriorArtifact(relPath string) {
	if relPath == "" {
		return
	}
	err := os.Remove(s.Resolve(relPath))
	if err == nil {
		log.Printf("[Storage] Removed prior clip %s", relPath)
		return
	}
	if !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[Storage] Failed to remove prior clip %s: %v", relPath, err)
	}
}

// SaveSample stores an uploaded reference sample under a unique name.
func (s *Storage) SaveSample(filename string, r io.Reader) (string, error) {
	if err := os.MkdirAll(s.sampleDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create sample dir: %w", err)
	}

	name := uuid.NewString() + "-" + sanitizeFilename(filename)
	dest := filepath.Join(s.sampleDir, name)

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create sample file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("failed to write sample: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("failed to write sample: %w", err)
	}

	return s.Relative(dest), nil
}

// RemoveFile deletes a stored file by its project-relative path. Missing files
// are ignored.
func (s *Storage) RemoveFile(relPath string) error {
	err := os.Remove(s.Resolve(relPath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", relPath, err)
	}
	return nil
}

// Open opens a stored file for streaming.
func (s *Storage) Open(relPath string) (*os.File, fs.FileInfo, error) {
	f, err := os.Open(s.Resolve(relPath))
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// Resolve turns a stored path into an absolute one.
func (s *Storage) Resolve(relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}

// Relative expresses an absolute path relative to the project root.
func (s *Storage) Relative(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// copyFile writes through a temp file in the destination directory and renames
// it into place so readers never see a partial clip.
func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create clip dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open synthesized file: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".clip-*.wav")
	if err != nil {
		return fmt.Errorf("failed to create temp clip: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to copy clip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to copy clip: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move clip into place: %w", err)
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "sample.wav"
	}
	return name
}
