package grpc

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"raygrid/internal/logging"
)

const sharedSecretMetadataKey = "x-raygrid-shared-secret"

// ServerOptions returns the options that enforce the shared secret. An empty
// secret leaves the stream open.
func ServerOptions(secret string, logger *logging.Logger) []grpc.ServerOption {
	if logger == nil {
		logger = logging.L()
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		logger.Warn("gRPC frame stream is unauthenticated")
		return nil
	}
	logger.Info("gRPC shared-secret authentication enabled")
	return []grpc.ServerOption{grpc.ChainStreamInterceptor(newSharedSecretStreamInterceptor(secret))}
}

func newSharedSecretStreamInterceptor(secret string) grpc.StreamServerInterceptor {
	want := []byte(secret)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := authorize(ss.Context(), want); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

// authorize accepts the secret from the dedicated metadata key or, failing
// that, a bearer authorization header.
func authorize(ctx context.Context, want []byte) error {
	md, _ := metadata.FromIncomingContext(ctx)
	presented := firstNonBlank(md.Get(sharedSecretMetadataKey), "")
	if presented == "" {
		presented = firstNonBlank(md.Get("authorization"), "bearer ")
	}
	switch {
	case presented == "":
		return status.Error(codes.Unauthenticated, "shared secret required")
	case subtle.ConstantTimeCompare([]byte(presented), want) != 1:
		return status.Error(codes.Unauthenticated, "shared secret rejected")
	}
	return nil
}

// firstNonBlank returns the first value carrying prefix (case-insensitive),
// with the prefix and surrounding space removed.
func firstNonBlank(values []string, prefix string) string {
	for _, value := range values {
		if len(value) < len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
			continue
		}
		if trimmed := strings.TrimSpace(value[len(prefix):]); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// SharedSecret attaches the secret to every call made on a client connection.
type SharedSecret string

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (s SharedSecret) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{sharedSecretMetadataKey: string(s)}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials. The demo
// serves plaintext on loopback.
func (SharedSecret) RequireTransportSecurity() bool { return false }

var _ credentials.PerRPCCredentials = SharedSecret("")
