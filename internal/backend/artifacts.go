package backend

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/cuongbtq/jobledger/internal/domain"
)

var safeJobID = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Artifact is a stored job output file
type Artifact struct {
	Name   string `json:"artifact"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size_bytes"`
}

// ArtifactStore keeps rendered documents on a local or mounted volume,
// one file per job.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates the directory if needed
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &ArtifactStore{dir: dir}, nil
}

func (s *ArtifactStore) path(jobID string) (string, error) {
	if !safeJobID.MatchString(jobID) {
		return "", fmt.Errorf("invalid job id %q", jobID)
	}
	return filepath.Join(s.dir, jobID+".pdf"), nil
}

// Save writes data for a job. Rewriting the same job replaces the file
// atomically so a redelivered job never leaves a torn artifact.
func (s *ArtifactStore) Save(jobID string, data []byte) (*Artifact, error) {
	dst, err := s.path(jobID)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.dir, jobID+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}

	sum := sha256.Sum256(data)
	return &Artifact{
		Name:   filepath.Base(dst),
		SHA256: hex.EncodeToString(sum[:]),
		Size:   int64(len(data)),
	}, nil
}

// Open returns the stored artifact for a job
func (s *ArtifactStore) Open(jobID string) (io.ReadCloser, int64, error) {
	p, err := s.path(jobID)
	if err != nil {
		return nil, 0, domain.ErrArtifactNotFound
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, domain.ErrArtifactNotFound
		}
		return nil, 0, fmt.Errorf("failed to open artifact: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat artifact: %w", err)
	}

	return f, info.Size(), nil
}
