package core

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

type Sphere struct {
	ID     uuid.UUID
	Name   string
	Center mgl32.Vec3
	Radius float32
}

func NewSphere(name string, center mgl32.Vec3, radius float32) Sphere {
	return Sphere{ID: uuid.New(), Name: name, Center: center, Radius: radius}
}

// Scene is the ordered set of spheres rendered each frame. Insertion order is
// the order the kernel sees them in.
type Scene struct {
	mu      sync.RWMutex
	spheres []Sphere
}

func NewScene(spheres ...Sphere) *Scene {
	s := &Scene{}
	s.Replace(spheres)
	return s
}

// Add appends sphere, assigning an ID when it has none.
func (s *Scene) Add(sphere Sphere) uuid.UUID {
	if sphere.ID == uuid.Nil {
		sphere.ID = uuid.New()
	}
	s.mu.Lock()
	s.spheres = append(s.spheres, sphere)
	s.mu.Unlock()
	return sphere.ID
}

func (s *Scene) Remove(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sp := range s.spheres {
		if sp.ID == id {
			s.spheres = append(s.spheres[:i], s.spheres[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Scene) Get(id uuid.UUID) (Sphere, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sp := range s.spheres {
		if sp.ID == id {
			return sp, true
		}
	}
	return Sphere{}, false
}

// Replace swaps the whole sphere list, e.g. after a scene file reload.
func (s *Scene) Replace(spheres []Sphere) {
	next := make([]Sphere, len(spheres))
	copy(next, spheres)
	for i := range next {
		if next[i].ID == uuid.Nil {
			next[i].ID = uuid.New()
		}
	}
	s.mu.Lock()
	s.spheres = next
	s.mu.Unlock()
}

// Spheres returns a copy of the current list in order.
func (s *Scene) Spheres() []Sphere {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Sphere(nil), s.spheres...)
}

func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.spheres)
}
