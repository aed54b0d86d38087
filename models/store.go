package models

import (
	"context"
	"sort"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// SceneStore holds the scenes served by the process.
type SceneStore struct {
	initOnce sync.Once
	mutex    sync.RWMutex
	scenes   map[uint32]*Scene
	ids      SequentialIDGenerator
}

func (s *SceneStore) init() {
	s.scenes = map[uint32]*Scene{}
}

func (s *SceneStore) NewID() uint32 {
	return s.ids.New()
}

func (s *SceneStore) Add(ctx context.Context, scene *Scene) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.scenes[scene.ID]; ok {
		return errors.New("scene already added").
			WithType(ErrTypeInvalidArgument).
			WithTag("scene_id", scene.ID)
	}
	s.scenes[scene.ID] = scene

	instrumentIncreaseSceneGauge()
	instrumentCountScene()
	return nil
}

func (s *SceneStore) Remove(ctx context.Context, scene *Scene) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.scenes[scene.ID]; !ok {
		return
	}

	delete(s.scenes, scene.ID)
	scene.Close()

	s.ids.Reuse(scene.ID)

	instrumentDecreaseSceneGauge()
}

func (s *SceneStore) Get(id uint32) (*Scene, bool) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	scene, ok := s.scenes[id]
	return scene, ok
}

func (s *SceneStore) GetByUUID(v string) (*Scene, bool) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, scene := range s.scenes {
		if scene.SceneUUID == v {
			return scene, true
		}
	}
	return nil, false
}

// List returns the scenes sorted by id.
func (s *SceneStore) List() []*Scene {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	scenes := make([]*Scene, 0, len(s.scenes))
	for _, scene := range s.scenes {
		scenes = append(scenes, scene)
	}
	s.mutex.RUnlock()

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].ID < scenes[j].ID
	})
	return scenes
}

func (s *SceneStore) Count() int {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.scenes)
}
