package assistant

import (
	"context"

	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/logger"
)

// FallbackText is shown when a collaborator call fails. The conversation
// continues; failures here never reach the photo pipeline.
const FallbackText = "Sorry, I'm having trouble reaching my travel knowledge right now. Please try again."

// Resilient wraps a Client so every failure is caught, logged and
// replaced with a user-visible fallback.
type Resilient struct {
	inner Client
}

// NewResilient wraps inner.
func NewResilient(inner Client) *Resilient {
	return &Resilient{inner: inner}
}

func (r *Resilient) SendMessage(ctx context.Context, text string) (*Message, error) {
	msg, err := r.inner.SendMessage(ctx, text)
	if err != nil {
		logger.Error("Assistant message failed: %v", err)
		return &Message{Text: FallbackText}, nil
	}
	if msg == nil || msg.Text == "" {
		return &Message{Text: FallbackText}, nil
	}
	return msg, nil
}

func (r *Resilient) AnalyzeImage(ctx context.Context, imageBase64, mimeType string) (string, error) {
	text, err := r.inner.AnalyzeImage(ctx, imageBase64, mimeType)
	if err != nil {
		logger.Error("Assistant image analysis failed: %v", err)
		return FallbackText, nil
	}
	return text, nil
}

func (r *Resilient) ExtractPlace(ctx context.Context, text string) (*Place, error) {
	place, err := r.inner.ExtractPlace(ctx, text)
	if err != nil {
		logger.Error("Assistant place extraction failed: %v", err)
		return nil, nil
	}
	return place, nil
}
