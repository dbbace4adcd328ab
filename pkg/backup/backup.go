package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Data is the serialized shape of one backup run.
type Data struct {
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Snapshots map[string][]string    `json:"snapshots,omitempty"`
	Tickets   map[string]interface{} `json:"tickets,omitempty"`
	Reminders []interface{}          `json:"reminders,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Storage defines interface for backup storage
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Service handles backup operations
type Service struct {
	storage Storage
	version string
}

// NewService creates a new backup service
func NewService(storage Storage, version string) *Service {
	return &Service{
		storage: storage,
		version: version,
	}
}

// Create writes one backup of the provided data and returns its name.
func (s *Service) Create(ctx context.Context, data *Data) (string, error) {
	data.Version = s.version
	data.Timestamp = time.Now()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup data: %w", err)
	}

	// Backup name carries the timestamp so retention can parse it back.
	backupName := fmt.Sprintf("backup-%s.json", data.Timestamp.Format("20060102-150405"))

	if err := s.storage.Save(ctx, backupName, bytes.NewReader(jsonData)); err != nil {
		return "", fmt.Errorf("failed to save backup: %w", err)
	}

	return backupName, nil
}

// Restore reads a backup back from storage.
func (s *Service) Restore(ctx context.Context, name string) (*Data, error) {
	reader, err := s.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup data: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backup data: %w", err)
	}

	return &data, nil
}

// List lists all available backups
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.storage.List(ctx, "backup-")
}

// Delete deletes a backup
func (s *Service) Delete(ctx context.Context, name string) error {
	return s.storage.Delete(ctx, name)
}
