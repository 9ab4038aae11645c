// Package narrator resolves narrator profiles and owns their write path,
// including the single-default invariant and reference samples.
package narrator

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/bobarin/habitcast/internal/models"
)

// MaxTemperature bounds narrator sampling temperature.
const MaxTemperature = 2.0

type Store interface {
	ListNarrators(ctx context.Context) ([]models.Narrator, error)
	GetNarrator(ctx context.Context, id int64) (*models.Narrator, error)
	GetDefaultNarrator(ctx context.Context) (*models.Narrator, error)
	CreateNarrator(ctx context.Context, in models.NarratorInput) (*models.Narrator, error)
	UpdateNarrator(ctx context.Context, id int64, in models.NarratorInput) (*models.Narrator, error)
	DeleteNarrator(ctx context.Context, id int64) (*models.Narrator, error)
	SetDefaultNarrator(ctx context.Context, id int64) (*models.Narrator, error)

	ListSamples(ctx context.Context) ([]models.NarratorSample, error)
	CreateSample(ctx context.Context, sample *models.NarratorSample) error
	DeleteSample(ctx context.Context, id int64) (*models.NarratorSample, error)
}

// SampleFiles stores uploaded sample audio.
type SampleFiles interface {
	SaveSample(filename string, r io.Reader) (string, error)
	RemoveFile(relPath string) error
}

type Service struct {
	store Store
	files SampleFiles
}

func NewService(store Store, files SampleFiles) *Service {
	return &Service{store: store, files: files}
}

// Resolve returns the narrator with id, or the default narrator when id is nil.
func (s *Service) Resolve(ctx context.Context, id *int64) (*models.Narrator, error) {
	if id != nil {
		return s.store.GetNarrator(ctx, *id)
	}
	return s.store.GetDefaultNarrator(ctx)
}

func (s *Service) List(ctx context.Context) ([]models.Narrator, error) {
	return s.store.ListNarrators(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Narrator, error) {
	return s.store.GetNarrator(ctx, id)
}

func (s *Service) Create(ctx context.Context, in models.NarratorInput) (*models.Narrator, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" || in.RolePrompt == nil || strings.TrimSpace(*in.RolePrompt) == "" {
		return nil, fmt.Errorf("%w: name and role_prompt are required", models.ErrNarratorInvalid)
	}
	if err := validateTemperature(in.Temperature); err != nil {
		return nil, err
	}

	n, err := s.store.CreateNarrator(ctx, in)
	if err != nil {
		return nil, err
	}
	log.Printf("[Narrator] Created narrator %d (%s) default=%v", n.ID, n.Name, n.IsDefault)
	return n, nil
}

func (s *Service) Update(ctx context.Context, id int64, in models.NarratorInput) (*models.Narrator, error) {
	if err := validateTemperature(in.Temperature); err != nil {
		return nil, err
	}
	return s.store.UpdateNarrator(ctx, id, in)
}

func (s *Service) Delete(ctx context.Context, id int64) (*models.Narrator, error) {
	n, err := s.store.DeleteNarrator(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Printf("[Narrator] Deleted narrator %d (%s)", n.ID, n.Name)
	return n, nil
}

func (s *Service) SetDefault(ctx context.Context, id int64) (*models.Narrator, error) {
	n, err := s.store.SetDefaultNarrator(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Printf("[Narrator] Default narrator is now %d (%s)", n.ID, n.Name)
	return n, nil
}

func (s *Service) ListSamples(ctx context.Context) ([]models.NarratorSample, error) {
	return s.store.ListSamples(ctx)
}

// CreateSample stores the uploaded file and records it. The file is removed
// again if the row cannot be written.
func (s *Service) CreateSample(ctx context.Context, label, filename string, r io.Reader) (*models.NarratorSample, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = strings.TrimSpace(filename)
	}
	if label == "" {
		return nil, fmt.Errorf("%w: sample label is required", models.ErrNarratorInvalid)
	}

	rel, err := s.files.SaveSample(filename, r)
	if err != nil {
		return nil, err
	}

	sample := &models.NarratorSample{Label: label, FilePath: rel}
	if err := s.store.CreateSample(ctx, sample); err != nil {
		if rmErr := s.files.RemoveFile(rel); rmErr != nil {
			log.Printf("[Narrator] Failed to clean up sample %s: %v", rel, rmErr)
		}
		return nil, fmt.Errorf("failed to record sample: %w", err)
	}

	log.Printf("[Narrator] Stored sample %d (%s) at %s", sample.ID, sample.Label, sample.FilePath)
	return sample, nil
}

// DeleteSample removes the sample row and, when removeFile is set, its audio.
func (s *Service) DeleteSample(ctx context.Context, id int64, removeFile bool) (*models.NarratorSample, error) {
	sample, err := s.store.DeleteSample(ctx, id)
	if err != nil {
		return nil, err
	}

	if removeFile {
		if err := s.files.RemoveFile(sample.FilePath); err != nil {
			log.Printf("[Narrator] Failed to remove sample file %s: %v", sample.FilePath, err)
		}
	}
	return sample, nil
}

func validateTemperature(t *float64) error {
	if t == nil {
		return nil
	}
	if *t < 0 || *t > MaxTemperature {
		return fmt.Errorf("%w: temperature must be between 0 and %.1f", models.ErrNarratorInvalid, MaxTemperature)
	}
	return nil
}
