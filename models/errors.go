package models

const (
	ErrTypeSceneNotFound   = "scene_not_found"
	ErrTypeObjectNotFound  = "object_not_found"
	ErrTypeInvalidArgument = "invalid_argument"
)
