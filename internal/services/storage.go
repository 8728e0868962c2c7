package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// StorageService keeps temporary uploads on local disk.
type StorageService interface {
	SaveFile(file *multipart.FileHeader) (string, error)
	SaveBytes(filename string, content []byte) (string, error)
	ReadFile(path string) ([]byte, error)
	DeleteFile(path string) error
	EnsureUploadDir() error
}

type storageService struct {
	uploadPath string
}

func NewStorageService(uploadPath string) StorageService {
	return &storageService{
		uploadPath: uploadPath,
	}
}

func (s *storageService) EnsureUploadDir() error {
	if err := os.MkdirAll(s.uploadPath, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	return nil
}

// SaveFile copies a multipart upload to a unique path and returns that path.
func (s *storageService) SaveFile(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	dst, path, err := s.create(file.Filename)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return path, nil
}

func (s *storageService) SaveBytes(filename string, content []byte) (string, error) {
	dst, path, err := s.create(filename)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := dst.Write(content); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return path, nil
}

func (s *storageService) create(original string) (*os.File, string, error) {
	ext := strings.ToLower(filepath.Ext(original))
	path := filepath.Join(s.uploadPath, fmt.Sprintf("upload_%s%s", uuid.New().String(), ext))

	dst, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create destination file: %w", err)
	}
	return dst, path, nil
}

func (s *storageService) ReadFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return b, nil
}

// DeleteFile removes a temporary upload. A file that is already gone is not an error.
func (s *storageService) DeleteFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
