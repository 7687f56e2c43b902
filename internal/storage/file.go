/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/friendsincode/lectern/internal/models"
)

// FileRepository keeps both collections in one JSON document.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileRepository creates a file-backed repository, creating the parent
// directory if needed.
func NewFileRepository(path string) (*FileRepository, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileRepository{path: path}, nil
}

// document is the JSON structure on disk.
type document struct {
	Schedules []models.AudioSchedule       `json:"audio_schedules"`
	Presets   []models.AudioSchedulePreset `json:"audio_schedule_presets"`
}

// Load implements Repository. A missing file is an empty store.
func (f *FileRepository) Load(ctx context.Context) ([]models.AudioSchedule, []models.AudioSchedulePreset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return nil, nil, err
	}
	return doc.Schedules, doc.Presets, nil
}

// SaveSchedules implements Repository.
func (f *FileRepository) SaveSchedules(ctx context.Context, schedules []models.AudioSchedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.Schedules = schedules
	return f.write(doc)
}

// SavePresets implements Repository.
func (f *FileRepository) SavePresets(ctx context.Context, presets []models.AudioSchedulePreset) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.Presets = presets
	return f.write(doc)
}

func (f *FileRepository) read() (document, error) {
	var doc document
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return doc, fmt.Errorf("read state: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("unmarshal state: %w", err)
	}
	return doc, nil
}

func (f *FileRepository) write(doc document) error {
	if doc.Schedules == nil {
		doc.Schedules = []models.AudioSchedule{}
	}
	if doc.Presets == nil {
		doc.Presets = []models.AudioSchedulePreset{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	// Atomic write
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename tmp: %w", err)
	}
	return nil
}
