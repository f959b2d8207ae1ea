package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/conversation"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/identity"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/stream"
)

// Agent service methods. Messages are google.protobuf.Struct values whose
// JSON form is the stream event envelope.
const (
	serviceName  = "trainer.v1.AgentService"
	chatMethod   = "/" + serviceName + "/Chat"
	resetMethod  = "/" + serviceName + "/ResetSession"
	healthMethod = "/" + serviceName + "/Health"
)

var chatStreamDesc = grpc.StreamDesc{StreamName: "Chat", ServerStreams: true}

var (
	// ErrStreamFailed wraps transport failures of the chat stream.
	ErrStreamFailed = errors.New("agent stream failed")

	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GrpcClient streams conversation turns from the planning agent.
type GrpcClient struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// DefaultGrpcClientConfig returns default configuration for addr.
func DefaultGrpcClientConfig(addr string) GrpcClientConfig {
	return GrpcClientConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcClient connects to the agent and waits until the channel is ready.
func NewGrpcClient(cfg GrpcClientConfig, logger *slog.Logger) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, cfg.DialOptions...)

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent at %s: %w", cfg.Address, err)
	}

	// Fail fast on a bad agent endpoint.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("agent at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to agent service", "address", cfg.Address)

	return &GrpcClient{
		conn:   conn,
		addr:   cfg.Address,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Health checks that the agent service answers.
func (c *GrpcClient) Health(ctx context.Context) error {
	var out structpb.Struct
	if err := c.conn.Invoke(ctx, healthMethod, &structpb.Struct{}, &out); err != nil {
		return fmt.Errorf("health check of %s failed: %w", c.addr, err)
	}
	return nil
}

// Stream sends turn to the agent and yields its events in arrival order.
// Payloads that do not decode are yielded as stream.ErrMalformedEvent
// errors and the stream continues; transport failures end it with
// ErrStreamFailed.
func (c *GrpcClient) Stream(ctx context.Context, turn conversation.Turn) iter.Seq2[stream.Event, error] {
	return func(yield func(stream.Event, error) bool) {
		req, err := structpb.NewStruct(map[string]any{
			"message":    turn.Text,
			"session_id": turn.SessionID,
			"user_id":    identity.UserIDFromContext(ctx),
		})
		if err != nil {
			yield(nil, fmt.Errorf("build chat request: %w", err))
			return
		}

		cs, err := c.conn.NewStream(ctx, &chatStreamDesc, chatMethod)
		if err != nil {
			yield(nil, fmt.Errorf("%w: open: %v", ErrStreamFailed, err))
			return
		}
		if err := cs.SendMsg(req); err != nil {
			yield(nil, fmt.Errorf("%w: send: %v", ErrStreamFailed, err))
			return
		}
		if err := cs.CloseSend(); err != nil {
			yield(nil, fmt.Errorf("%w: close send: %v", ErrStreamFailed, err))
			return
		}

		for {
			msg := new(structpb.Struct)
			err := cs.RecvMsg(msg)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("%w: %v", ErrStreamFailed, err))
				return
			}

			data, err := protojson.Marshal(msg)
			if err != nil {
				if !yield(nil, fmt.Errorf("%w: %v", stream.ErrMalformedEvent, err)) {
					return
				}
				continue
			}
			ev, err := stream.Decode(data)
			if !yield(ev, err) {
				return
			}
		}
	}
}

// ResetSession asks the agent to forget a conversation.
func (c *GrpcClient) ResetSession(ctx context.Context, userID, sessionID string) error {
	req, err := structpb.NewStruct(map[string]any{"user_id": userID, "session_id": sessionID})
	if err != nil {
		return fmt.Errorf("build reset request: %w", err)
	}
	var out structpb.Struct
	if err := c.conn.Invoke(ctx, resetMethod, req, &out); err != nil {
		c.logger.Warn("ResetSession failed", "error", err, "user_id", userID)
		return fmt.Errorf("reset session: %w", err)
	}
	if ok, exists := out.GetFields()["ok"]; exists && !ok.GetBoolValue() {
		return errors.New("reset session: agent returned ok=false")
	}
	return nil
}
