package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// ArtifactMeta describes an aggregation run.
type ArtifactMeta struct {
	Status         string `json:"status"` // "success" or "failed"
	RunID          string `json:"run_id"`
	SchemaName     string `json:"schema_name"`
	DocumentCount  int    `json:"document_count"`
	ErrorCount     int    `json:"error_count"`
	DurationMs     int64  `json:"duration_ms"`
	StrategyUsed   string `json:"strategy_used"`
	WorkersUsed    int    `json:"workers_used,omitempty"`
	BoundsExceeded bool   `json:"bounds_exceeded,omitempty"`
}

// ArtifactError carries failure detail when a run aborts.
type ArtifactError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Artifact is the persisted output of one aggregation run.
type Artifact struct {
	Meta  ArtifactMeta           `json:"_meta"`
	Error *ArtifactError         `json:"_error,omitempty"`
	Data  map[string]interface{} `json:"data"`
}

// RunIndex maps run IDs to their metadata for one schema.
// Format: { "<run_id>": ArtifactMeta, ... }
type RunIndex map[string]*ArtifactMeta

// ArtifactWriter persists artifacts and maintains a per-schema run index in
// blob storage.
type ArtifactWriter struct {
	blobClient BlobClient
	logger     *zap.Logger
	mu         sync.Mutex // serializes index read-modify-write cycles
}

// NewArtifactWriter creates a writer over the given blob client.
func NewArtifactWriter(blobClient BlobClient, logger *zap.Logger) *ArtifactWriter {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &ArtifactWriter{
		blobClient: blobClient,
		logger:     logger,
	}
}

// ArtifactPath returns the standard blob path for a run's artifact.
func ArtifactPath(schemaName, runID string) string {
	return fmt.Sprintf("artifacts/%s/%s/aggregate.json", schemaName, runID)
}

// RunIndexPath returns the standard blob path for a schema's run index.
func RunIndexPath(schemaName string) string {
	return fmt.Sprintf("artifacts/%s/index.json", schemaName)
}

// WriteArtifact uploads the artifact and records the run in the schema's
// index. The artifact upload happens first so a crash between the two writes
// loses only the index entry.
func (w *ArtifactWriter) WriteArtifact(ctx context.Context, artifact *Artifact) (string, error) {
	if w.blobClient == nil {
		return "", fmt.Errorf("blob client not initialized")
	}
	if artifact == nil {
		return "", fmt.Errorf("artifact is required")
	}
	if artifact.Meta.SchemaName == "" || artifact.Meta.RunID == "" {
		return "", fmt.Errorf("artifact meta requires schema_name and run_id")
	}

	blobPath := ArtifactPath(artifact.Meta.SchemaName, artifact.Meta.RunID)

	data, err := json.Marshal(artifact)
	if err != nil {
		return "", fmt.Errorf("failed to marshal artifact: %w", err)
	}

	blobURL, err := w.blobClient.Upload(ctx, blobPath, data, map[string]string{
		"schema_name": artifact.Meta.SchemaName,
		"run_id":      artifact.Meta.RunID,
		"status":      artifact.Meta.Status,
		"written_at":  time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact: %w", err)
	}

	if err := w.appendRunRecord(ctx, artifact.Meta.SchemaName, artifact.Meta.RunID, &artifact.Meta); err != nil {
		w.logger.Warn("Artifact written but run index update failed",
			zap.String("schema_name", artifact.Meta.SchemaName),
			zap.String("run_id", artifact.Meta.RunID),
			zap.Error(err))
	}

	w.logger.Info("Successfully wrote run artifact",
		zap.String("schema_name", artifact.Meta.SchemaName),
		zap.String("run_id", artifact.Meta.RunID),
		zap.Int("size_bytes", len(data)))

	return blobURL, nil
}

// appendRunRecord adds the run to the schema's index with a locked
// read-modify-write cycle.
func (w *ArtifactWriter) appendRunRecord(ctx context.Context, schemaName, runID string, meta *ArtifactMeta) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	indexPath := RunIndexPath(schemaName)

	var index RunIndex
	existing, err := w.blobClient.Download(ctx, indexPath)
	if err != nil {
		w.logger.Debug("Run index doesn't exist yet, creating new",
			zap.String("index_path", indexPath))
		index = make(RunIndex)
	} else {
		if err := json.Unmarshal(existing, &index); err != nil {
			w.logger.Error("Failed to parse existing run index, starting fresh",
				zap.String("index_path", indexPath),
				zap.Error(err))
			index = make(RunIndex)
		}
	}

	index[runID] = meta

	updated, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to marshal run index: %w", err)
	}

	if _, err := w.blobClient.Upload(ctx, indexPath, updated, map[string]string{
		"schema_name":   schemaName,
		"last_run_id":   runID,
		"run_count":     fmt.Sprintf("%d", len(index)),
		"last_modified": time.Now().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("failed to upload run index: %w", err)
	}

	return nil
}

// GetArtifact downloads and parses a run's artifact.
func (w *ArtifactWriter) GetArtifact(ctx context.Context, schemaName, runID string) (*Artifact, error) {
	if w.blobClient == nil {
		return nil, fmt.Errorf("blob client not initialized")
	}

	data, err := w.blobClient.Download(ctx, ArtifactPath(schemaName, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to download artifact: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse artifact: %w", err)
	}

	return &artifact, nil
}

// GetRunIndex downloads and parses a schema's run index. A missing index
// yields an empty map.
func (w *ArtifactWriter) GetRunIndex(ctx context.Context, schemaName string) (RunIndex, error) {
	if w.blobClient == nil {
		return nil, fmt.Errorf("blob client not initialized")
	}

	data, err := w.blobClient.Download(ctx, RunIndexPath(schemaName))
	if err != nil {
		return make(RunIndex), nil
	}

	var index RunIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse run index: %w", err)
	}

	return index, nil
}

// LocalArtifactWriter writes artifacts to a directory on disk.
type LocalArtifactWriter struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalArtifactWriter creates a writer rooted at baseDir.
func NewLocalArtifactWriter(baseDir string, logger *zap.Logger) (*LocalArtifactWriter, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &LocalArtifactWriter{baseDir: baseDir, logger: logger}, nil
}

// WriteArtifact marshals the artifact and writes it under
// <baseDir>/<schema>/<run>/aggregate.json, returning the file path.
func (w *LocalArtifactWriter) WriteArtifact(_ context.Context, artifact *Artifact) (string, error) {
	if artifact == nil {
		return "", fmt.Errorf("artifact is required")
	}
	if artifact.Meta.SchemaName == "" || artifact.Meta.RunID == "" {
		return "", fmt.Errorf("artifact meta requires schema_name and run_id")
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal artifact: %w", err)
	}

	path := filepath.Join(w.baseDir, artifact.Meta.SchemaName, artifact.Meta.RunID, "aggregate.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	w.logger.Info("Wrote run artifact",
		zap.String("path", path),
		zap.Int("size_bytes", len(data)))

	return path, nil
}
