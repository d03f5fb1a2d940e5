package config

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ArtifactConfigPath — путь конфигурации деплоя внутри артефакта.
const ArtifactConfigPath = ".deployment/config.yaml"

// maxConfigSize ограничивает чтение конфигурации из артефакта.
const maxConfigSize = 1 << 20

// ErrConfigNotFound — в артефакте нет конфигурации деплоя.
var ErrConfigNotFound = errors.New("deployment config not found in artifact")

// ReadArtifactConfig извлекает .deployment/config.yaml из zip артефакта.
func ReadArtifactConfig(artifact []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(artifact), int64(len(artifact)))
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != ArtifactConfigPath {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", ArtifactConfigPath, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(io.LimitReader(rc, maxConfigSize+1))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", ArtifactConfigPath, err)
		}
		if len(data) > maxConfigSize {
			return nil, fmt.Errorf("%s exceeds %d bytes", ArtifactConfigPath, maxConfigSize)
		}
		return data, nil
	}

	return nil, ErrConfigNotFound
}

// LoadArtifact извлекает и разбирает конфигурацию деплоя из артефакта.
func LoadArtifact(artifact []byte) (*Deployment, error) {
	data, err := ReadArtifactConfig(artifact)
	if err != nil {
		return nil, err
	}
	return ParseDeployment(data)
}
