package repository

import (
	"time"
)

// PlatformRecord is a binding as it was when its session ended.
type PlatformRecord struct {
	Tag       string `json:"tag"`
	IngestURL string `json:"ingest_url"`
	State     string `json:"state"`
	Retries   int    `json:"retries"`
	LastError string `json:"last_error,omitempty"`
}

// Session is a finished broadcast kept for history.
type Session struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Quality   string           `json:"quality"`
	SceneID   string           `json:"scene_id"`
	Version   uint64           `json:"version"`
	Platforms []PlatformRecord `json:"platforms"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at"`
}
