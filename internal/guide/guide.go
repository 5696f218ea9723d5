// Package guide assembles the travel story: the external consumer of the
// photo pipeline. For every successfully processed photo it asks the
// assistant to describe the scene and extract a place suggestion,
// attaching the photo's coordinate when one was recovered.
//
// Persistence is simulated; the story lives in memory for the session.
package guide

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/assistant"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/datauri"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/geo"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/logger"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/pkg/models"
)

// Place is one story entry, optionally pinned on the map.
type Place struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Address     string          `json:"address,omitempty"`
	Geo         *geo.Coordinate `json:"gps,omitempty"`
	PhotoID     string          `json:"photoId,omitempty"`
	AddedAt     time.Time       `json:"addedAt"`
}

// Service builds the story from chat turns and processed photos.
type Service struct {
	assistant assistant.Client

	mu     sync.Mutex
	places []Place
}

// New creates a guide service over the given (already resilient)
// assistant client.
func New(client assistant.Client) *Service {
	return &Service{assistant: client}
}

// Chat forwards a user message to the assistant. The resilient client
// guarantees a user-visible reply even when the collaborator fails.
func (s *Service) Chat(ctx context.Context, text string) (*assistant.Message, error) {
	return s.assistant.SendMessage(ctx, text)
}

// OnPhotoProcessed is the pipeline's per-photo callback. Collaborator
// failures are absorbed here; they never propagate back into the
// pipeline or fail the batch.
func (s *Service) OnPhotoProcessed(photo models.NormalizedPhoto) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	mimeType, b64, err := datauri.Payload(photo.DataURI)
	if err != nil {
		logger.Warn("Photo %s has an undecodable payload: %v", photo.ID, err)
		return
	}

	description, err := s.assistant.AnalyzeImage(ctx, b64, mimeType)
	if err != nil {
		logger.Error("Image analysis for %s: %v", photo.ID, err)
		return
	}

	place, err := s.assistant.ExtractPlace(ctx, description)
	if err != nil {
		logger.Error("Place extraction for %s: %v", photo.ID, err)
		return
	}
	if place == nil {
		logger.Info("No place identified for photo %s", photo.ID)
		return
	}

	s.mu.Lock()
	s.places = append(s.places, Place{
		ID:          uuid.NewString(),
		Name:        place.Name,
		Description: place.Description,
		Address:     place.Address,
		Geo:         photo.Geo,
		PhotoID:     photo.ID,
		AddedAt:     time.Now(),
	})
	s.mu.Unlock()

	logger.Info("Added place %q from photo %s", place.Name, photo.ID)
}

// Places returns a snapshot of the story in insertion order.
func (s *Service) Places() []Place {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Place(nil), s.places...)
}

// RemovePlace drops a story entry by id. Unknown ids are a no-op.
func (s *Service) RemovePlace(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.places {
		if p.ID == id {
			s.places = append(s.places[:i], s.places[i+1:]...)
			return
		}
	}
}
