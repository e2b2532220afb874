package repository

import "github.com/sharetube/studio/internal/fault"

var (
	ErrSceneNotFound   = fault.New(fault.NotFound, "scene not found")
	ErrSessionNotFound = fault.New(fault.NotFound, "session not found")
)
