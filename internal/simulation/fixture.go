package simulation

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/crosscam/internal/domain/model"
)

// Fixture is a recorded sequence of frames, replayed in file order.
type Fixture struct {
	Frames []Frame `yaml:"frames"`
}

// Frame is what one camera saw at one instant.
type Frame struct {
	CameraID     string                       `yaml:"camera_id"`
	Timestamp    string                       `yaml:"timestamp,omitempty"`
	Observations []model.AttributeObservation `yaml:"observations"`
	// Workers is the ground truth: the worker behind each observation, by
	// position. Hand-written fixtures usually leave it out.
	Workers []int `yaml:"workers,omitempty"`
}

// Time parses the frame timestamp. An empty timestamp is the zero time.
func (f Frame) Time() (time.Time, error) {
	s := strings.TrimSpace(f.Timestamp)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: must be RFC3339", f.Timestamp)
	}
	return t, nil
}

// ReadFixture decodes a YAML fixture. An empty document is an empty fixture.
func ReadFixture(r io.Reader) (Fixture, error) {
	var fx Fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil && !errors.Is(err, io.EOF) {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	return fx, nil
}

// WriteFixture encodes fx as YAML.
func WriteFixture(w io.Writer, fx Fixture) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(fx); err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	return enc.Close()
}
