package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"directory-api/internal/catalog"
	"directory-api/internal/observability"
	"directory-api/internal/proceeding"
	"directory-api/internal/storage"
)

const (
	defaultURLTTL   = 15 * time.Minute
	maxFileNameRune = 150
)

type Store interface {
	Insert(ctx context.Context, f File) (File, error)
	List(ctx context.Context, personID string) ([]File, error)
	ListByProceeding(ctx context.Context, personID, proceedingID string) ([]File, error)
	Get(ctx context.Context, personID, id string) (File, error)
	Delete(ctx context.Context, personID, id string) error
}

type TypeLookup interface {
	DocumentType(ctx context.Context, id int64) (catalog.Type, error)
}

type ProceedingLookup interface {
	Get(ctx context.Context, personID, id string) (proceeding.Proceeding, error)
}

type Service struct {
	store       Store
	types       TypeLookup
	proceedings ProceedingLookup
	objects     storage.ObjectStore
	metrics     *observability.Metrics
	logger      *observability.Logger
	urlTTL      time.Duration
}

func NewService(store Store, types TypeLookup, proceedings ProceedingLookup, objects storage.ObjectStore, metrics *observability.Metrics, logger *observability.Logger) *Service {
	return &Service{
		store:       store,
		types:       types,
		proceedings: proceedings,
		objects:     objects,
		metrics:     metrics,
		logger:      logger,
		urlTTL:      defaultURLTTL,
	}
}

// WithURLTTL sets how long download URLs stay valid.
func (s *Service) WithURLTTL(ttl time.Duration) {
	if ttl > 0 {
		s.urlTTL = ttl
	}
}

// Upload checks the references, stores the bytes and records the file. The
// object is removed again when the row cannot be written.
func (s *Service) Upload(ctx context.Context, personID string, up Upload) (File, error) {
	name, err := cleanFileName(up.FileName)
	if err != nil {
		return File{}, err
	}
	if err := s.checkReferences(ctx, personID, up); err != nil {
		return File{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return File{}, fmt.Errorf("generate uuid v7: %w", err)
	}
	key := ObjectKey(personID, id.String(), name)
	size := int64(len(up.Data))

	if err := s.objects.Put(ctx, key, up.ContentType, bytes.NewReader(up.Data), size); err != nil {
		return File{}, errors.Join(ErrStorageFailure, err)
	}

	f, err := s.store.Insert(ctx, File{
		ID:             id.String(),
		PersonID:       personID,
		DocumentTypeID: up.DocumentTypeID,
		ProceedingID:   up.ProceedingID,
		FileName:       name,
		ContentType:    up.ContentType,
		SizeBytes:      size,
		StorageKey:     key,
	})
	if err != nil {
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			observability.CaptureError(s.logger, "person_file_orphaned", delErr, map[string]any{"key": key})
		}
		return File{}, err
	}

	if s.metrics != nil {
		s.metrics.FilesUploaded.Inc()
	}
	if s.logger != nil {
		s.logger.Info("person_file_uploaded", map[string]any{"person_id": personID, "file_id": f.ID, "size_bytes": size})
	}
	return f, nil
}

func (s *Service) checkReferences(ctx context.Context, personID string, up Upload) error {
	if _, err := s.types.DocumentType(ctx, up.DocumentTypeID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return &catalog.MissingReferenceError{Field: "document_type_id", Message: "document type not found"}
		}
		return err
	}
	if up.ProceedingID == nil {
		return nil
	}
	if _, err := s.proceedings.Get(ctx, personID, *up.ProceedingID); err != nil {
		if errors.Is(err, proceeding.ErrNotFound) {
			return &catalog.MissingReferenceError{Field: "proceeding_id", Message: "proceeding not found"}
		}
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, personID string) ([]File, error) {
	return s.store.List(ctx, personID)
}

// ListByProceeding returns the files attached to a proceeding of the person.
func (s *Service) ListByProceeding(ctx context.Context, personID, proceedingID string) ([]File, error) {
	if _, err := s.proceedings.Get(ctx, personID, proceedingID); err != nil {
		return nil, err
	}
	return s.store.ListByProceeding(ctx, personID, proceedingID)
}

// Get returns the file with a short-lived download URL.
func (s *Service) Get(ctx context.Context, personID, id string) (File, error) {
	f, err := s.store.Get(ctx, personID, id)
	if err != nil {
		return File{}, err
	}
	url, err := s.objects.PresignGet(ctx, f.StorageKey, s.urlTTL)
	if err != nil {
		return File{}, errors.Join(ErrStorageFailure, err)
	}
	f.DownloadURL = url
	return f, nil
}

// Delete soft-deletes the record. The object stays in the bucket.
func (s *Service) Delete(ctx context.Context, personID, id string) error {
	return s.store.Delete(ctx, personID, id)
}

func ObjectKey(personID, fileID, name string) string {
	return "people/" + personID + "/" + fileID + "/" + name
}

// cleanFileName keeps the base name and replaces characters that are unsafe
// in object keys.
func cleanFileName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", ErrInvalidFileName
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if runes := []rune(cleaned); len(runes) > maxFileNameRune {
		cleaned = string(runes[len(runes)-maxFileNameRune:])
	}
	return cleaned, nil
}
