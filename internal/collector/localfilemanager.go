package collector

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/persistence"
	"github.com/a2rchi/a2rchi/internal/resource"
)

// LocalFileManager collects files from a staging directory on the local
// filesystem, and accepts single-file uploads from the UI into the same
// staging area.
type LocalFileManager struct {
	Enabled    bool
	StagingDir string
	BaseDir    string // defaults to StagingDir when empty

	persistence *persistence.Service
	logger      *logging.Logger
}

// NewLocalFileManager builds a LocalFileManager rooted at stagingDir.
func NewLocalFileManager(enabled bool, stagingDir, baseDir string, p *persistence.Service, logger *logging.Logger) *LocalFileManager {
	if logger == nil {
		logger = logging.Nop()
	}
	if baseDir == "" {
		baseDir = stagingDir
	}
	return &LocalFileManager{Enabled: enabled, StagingDir: stagingDir, BaseDir: baseDir, persistence: p, logger: logger}
}

// CollectAllFromConfig walks the staging directory and persists every
// regular file found under it as a LocalFileResource.
func (m *LocalFileManager) CollectAllFromConfig(ctx context.Context, targetDir string) error {
	if !m.Enabled {
		m.logger.Info(ctx, "local files disabled; skipping")
		return nil
	}
	if _, err := os.Stat(m.StagingDir); os.IsNotExist(err) {
		m.logger.Info(ctx, "local files staging directory does not exist", zap.String("path", m.StagingDir))
		return nil
	}

	return filepath.WalkDir(m.StagingDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		m.persistFile(ctx, path, targetDir)
		return nil
	})
}

// UploadFile saves an uploaded file's content under StagingDir and
// persists it into targetDir as a LocalFileResource.
func (m *LocalFileManager) UploadFile(ctx context.Context, filename string, content io.Reader, targetDir string) (string, error) {
	if !m.Enabled {
		return "", errLocalFilesDisabled
	}
	if filename == "" {
		return "", errNoFilename
	}

	if err := os.MkdirAll(m.StagingDir, 0o755); err != nil {
		return "", err
	}
	stagingPath := filepath.Join(m.StagingDir, filepath.Base(filename))

	out, err := os.Create(stagingPath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, content); err != nil {
		out.Close()
		return "", err
	}
	out.Close()

	m.persistFile(ctx, stagingPath, targetDir)
	return stagingPath, nil
}

func (m *LocalFileManager) persistFile(ctx context.Context, path, targetDir string) {
	body, err := os.ReadFile(path)
	if err != nil {
		m.logger.Warn(ctx, "failed to read local file", zap.String("path", path), zap.Error(err))
		return
	}

	r := &resource.LocalFileResource{
		SourcePath: path,
		Body:       body,
		BaseDir:    m.BaseDir,
	}
	if _, err := m.persistence.Write(r, targetDir); err != nil {
		m.logger.Warn(ctx, "failed to persist local file", zap.String("path", path), zap.Error(err))
	}
}

type localFileError string

func (e localFileError) Error() string { return string(e) }

const (
	errLocalFilesDisabled = localFileError("collector: local files source is disabled")
	errNoFilename         = localFileError("collector: no filename provided")
)
