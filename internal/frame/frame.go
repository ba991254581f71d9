// Package frame is the per-tick snapshot shared by the viewer hub, the gRPC
// stream and the replay recorder.
package frame

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"raygrid/internal/camera"
	"raygrid/internal/particle"
	"raygrid/internal/simulation"
)

// Particle is the ray tip as rendered.
type Particle struct {
	Zenith   float64    `json:"zenith"`
	Azimuth  float64    `json:"azimuth"`
	Traveled float64    `json:"traveled"`
	Speed    float64    `json:"speed"`
	Position [3]float64 `json:"position"`
}

// Camera is the orbit state plus the derived view matrix (column major).
type Camera struct {
	Azimuth float64     `json:"azimuth"`
	Polar   float64     `json:"polar"`
	Eye     [3]float64  `json:"eye"`
	View    [16]float64 `json:"view"`
}

// Frame is one tick of output. Particle and Segment describe the state after
// any reset; Judged is where the tick's outcome was decided.
type Frame struct {
	Type          string        `json:"type"`
	Tick          uint64        `json:"tick"`
	Outcome       string        `json:"outcome"`
	ObstacleIndex int           `json:"obstacle_index"`
	Judged        [3]float64    `json:"judged"`
	Particle      Particle      `json:"particle"`
	Segment       [2][3]float64 `json:"segment"`
	Camera        Camera        `json:"camera"`
}

// TypeFrame tags frame messages on shared channels.
const TypeFrame = "frame"

// Build assembles a frame from the tick result and the current particle and
// camera state.
func Build(tick uint64, outcome simulation.Outcome, current particle.State, cam camera.State) Frame {
	return Frame{
		Type:          TypeFrame,
		Tick:          tick,
		Outcome:       outcome.Kind.String(),
		ObstacleIndex: outcome.Index,
		Judged:        outcome.Position.Position,
		Particle: Particle{
			Zenith:   current.Zenith,
			Azimuth:  current.Azimuth,
			Traveled: current.Traveled,
			Speed:    current.Speed,
			Position: current.Position,
		},
		Segment: [2][3]float64{{}, current.Position},
		Camera: Camera{
			Azimuth: cam.Azimuth,
			Polar:   cam.Polar,
			Eye:     cam.Eye,
			View:    cam.View,
		},
	}
}

// JSON is the WebSocket encoding.
func (f Frame) JSON() ([]byte, error) {
	return json.Marshal(f)
}

// ToStruct converts the frame into the protobuf Struct carried over gRPC.
func (f Frame) ToStruct() (*structpb.Struct, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return msg, nil
}

// FromStruct decodes a frame received over gRPC or read from a replay.
func FromStruct(msg *structpb.Struct) (Frame, error) {
	var f Frame
	if msg == nil {
		return f, fmt.Errorf("nil frame message")
	}
	data, err := protojson.Marshal(msg)
	if err != nil {
		return f, fmt.Errorf("convert frame: %w", err)
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// MarshalBinary encodes the frame as a protobuf Struct for replay storage.
func (f Frame) MarshalBinary() ([]byte, error) {
	msg, err := f.ToStruct()
	if err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}

// UnmarshalBinary reverses MarshalBinary.
func (f *Frame) UnmarshalBinary(data []byte) error {
	msg := &structpb.Struct{}
	if err := proto.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("decode frame message: %w", err)
	}
	decoded, err := FromStruct(msg)
	if err != nil {
		return err
	}
	*f = decoded
	return nil
}
