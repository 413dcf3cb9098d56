// Package extraction defines the boundary to the external vision model that
// turns a frame into attribute observations.
package extraction

import (
	"context"
	"time"

	"github.com/okian/crosscam/internal/domain/model"
)

// Extractor turns one image into per-person attribute observations.
// Implementations call a remote service and may fail or time out.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([]model.AttributeObservation, error)
}

// Func adapts a plain function to Extractor.
type Func func(ctx context.Context, image []byte) ([]model.AttributeObservation, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, image []byte) ([]model.AttributeObservation, error) {
	return f(ctx, image)
}

// Static always returns the same observations. Useful for replaying fixtures.
type Static []model.AttributeObservation

// Extract returns copies of the fixed observations.
func (s Static) Extract(_ context.Context, _ []byte) ([]model.AttributeObservation, error) {
	out := make([]model.AttributeObservation, len(s))
	for i, o := range s {
		out[i] = o.Clone()
	}
	return out, nil
}

// WithTimeout bounds every call of e by d. A non-positive d returns e unchanged.
func WithTimeout(e Extractor, d time.Duration) Extractor {
	if d <= 0 {
		return e
	}
	return Func(func(ctx context.Context, image []byte) ([]model.AttributeObservation, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return e.Extract(ctx, image)
	})
}
