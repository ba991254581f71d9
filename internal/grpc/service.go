// Package grpc exposes simulation frames as a server-streaming gRPC service.
package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	_ "google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"raygrid/internal/events"
	"raygrid/internal/frame"
	"raygrid/internal/logging"
)

const (
	defaultStreamRateHz = 20.0
	maxStreamRateHz     = 240.0
	subscriberBuffer    = 64
	// maxPending bounds frames held between flushes for one stream.
	maxPending = 256
)

// FrameSource is the fan-out the service subscribes to.
type FrameSource interface {
	Subscribe(ctx context.Context, buffer int) (<-chan events.Envelope, func(), error)
}

// Option customises the behaviour of the gRPC streaming service.
type Option func(*Service)

// tickerFactory constructs cancellable tick channels for throttled streaming.
type tickerFactory func(time.Duration) (<-chan time.Time, func())

// WithTickerFactory overrides the throttling ticker factory.
func WithTickerFactory(factory tickerFactory) Option {
	return func(s *Service) {
		if factory != nil {
			s.newTicker = factory
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.log = logger
		}
	}
}

// Service streams frames at a client-chosen rate. Traveling frames are
// coalesced to the newest one between flushes; terminal frames are never
// coalesced away.
type Service struct {
	source    FrameSource
	newTicker tickerFactory
	log       *logging.Logger
}

// NewService wires the service to the frame source.
func NewService(source FrameSource, opts ...Option) *Service {
	s := &Service{source: source, newTicker: defaultTickerFactory, log: logging.L()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func defaultTickerFactory(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	return ticker.C, ticker.Stop
}

// streamRequest is the decoded form of the request Struct.
type streamRequest struct {
	rateHz       float64
	terminalOnly bool
}

func parseRequest(req *structpb.Struct) (streamRequest, error) {
	out := streamRequest{rateHz: defaultStreamRateHz}
	fields := req.GetFields()
	if v, ok := fields["max_hz"]; ok {
		hz := v.GetNumberValue()
		if _, isNumber := v.GetKind().(*structpb.Value_NumberValue); !isNumber || !(hz > 0) {
			return out, status.Error(codes.InvalidArgument, "max_hz must be a positive number")
		}
		out.rateHz = min(hz, maxStreamRateHz)
	}
	if v, ok := fields["terminal_only"]; ok {
		out.terminalOnly = v.GetBoolValue()
	}
	return out, nil
}

// StreamFrames implements FrameStreamServer.
func (s *Service) StreamFrames(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s == nil || s.source == nil {
		return status.Error(codes.FailedPrecondition, "streaming unavailable")
	}
	params, err := parseRequest(req)
	if err != nil {
		return err
	}
	ctx := stream.Context()
	//1.- Subscribe to the frame fan-out so we receive future updates.
	frames, cancel, err := s.source.Subscribe(ctx, subscriberBuffer)
	if err != nil {
		return status.Errorf(codes.Internal, "subscribe frames: %v", err)
	}
	defer cancel()

	tickCh, stop := s.newTicker(time.Duration(float64(time.Second) / params.rateHz))
	defer stop()

	var pending []events.Envelope
	flush := func() error {
		for _, env := range pending {
			msg, err := encode(env)
			if err != nil {
				return status.Errorf(codes.Internal, "encode frame: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
		pending = pending[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			//2.- Surface context cancellation so clients can retry.
			if errors.Is(ctx.Err(), context.Canceled) {
				return status.Error(codes.Canceled, "stream cancelled")
			}
			return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
		case env, ok := <-frames:
			if !ok {
				//3.- Source closed: hand over what is buffered and finish.
				return flush()
			}
			if params.terminalOnly && !env.Terminal {
				continue
			}
			//4.- A traveling frame supersedes a traveling frame still waiting.
			if n := len(pending); n > 0 && !pending[n-1].Terminal && !env.Terminal {
				pending[n-1] = env
				continue
			}
			pending = append(pending, env)
			if len(pending) > maxPending {
				pending = append(pending[:0], pending[len(pending)-maxPending:]...)
			}
		case <-tickCh:
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

func encode(env events.Envelope) (*structpb.Struct, error) {
	msg, err := env.Frame.ToStruct()
	if err != nil {
		return nil, err
	}
	msg.Fields["sequence"] = structpb.NewNumberValue(float64(env.Sequence))
	return msg, nil
}

// RecvFrame reads the next frame from a client stream.
func RecvFrame(stream grpc.ServerStreamingClient[structpb.Struct]) (frame.Frame, error) {
	msg, err := stream.Recv()
	if err != nil {
		return frame.Frame{}, err
	}
	return frame.FromStruct(msg)
}

var _ FrameStreamServer = (*Service)(nil)
