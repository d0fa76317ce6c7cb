package dispatch

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"speakerscribe/internal/keys"
)

// CreateTransformJobMethod is the full gRPC method name of the transform
// service's job creation RPC.
const CreateTransformJobMethod = "/transform.v1.BatchTransformService/CreateTransformJob"

// TokenSource supplies bearer tokens for outgoing calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// tokenInvalidator is implemented by token sources that cache, so a token
// the server rejected is not sent again.
type tokenInvalidator interface {
	Invalidate()
}

// GRPCDispatcher starts transform jobs over gRPC. Requests and responses are
// google.protobuf.Struct messages.
type GRPCDispatcher struct {
	conn   grpc.ClientConnInterface
	tokens TokenSource
	closer func() error
	logger *logrus.Logger
}

// GRPCOptions configures the connection to the transform service.
type GRPCOptions struct {
	Addr   string
	TLS    bool
	Tokens TokenSource
}

// NewGRPCDispatcher creates a dispatcher connected to the transform service.
// The connection is established lazily on the first call.
func NewGRPCDispatcher(opts GRPCOptions, logger *logrus.Logger) (*GRPCDispatcher, error) {
	logger.Infof("Creating transform service client for %s", opts.Addr)

	dialOpts := []grpc.DialOption{}
	if opts.TLS {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if opts.Tokens != nil {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(bearerCredentials{tokens: opts.Tokens, requireTLS: opts.TLS}))
	}

	conn, err := grpc.NewClient(opts.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating transform service client for %s: %w", opts.Addr, err)
	}
	return &GRPCDispatcher{conn: conn, tokens: opts.Tokens, closer: conn.Close, logger: logger}, nil
}

// newGRPCDispatcherWithConn wraps an existing connection.
func newGRPCDispatcherWithConn(conn grpc.ClientConnInterface, logger *logrus.Logger) *GRPCDispatcher {
	return &GRPCDispatcher{conn: conn, closer: func() error { return nil }, logger: logger}
}

// Close closes the connection to the transform service.
func (d *GRPCDispatcher) Close() error {
	d.logger.Info("Closing connection to transform service")
	return d.closer()
}

// Start asks the transform service to run speech-to-text and diarization on
// inputKey. Both outputs land under their own prefixes in the same bucket.
func (d *GRPCDispatcher) Start(ctx context.Context, jobName, inputKey string, params Params) (JobHandle, error) {
	language, err := ResolveLanguage(params.Language)
	if err != nil {
		return JobHandle{}, err
	}
	model := params.Model
	if model == "" {
		model = DefaultModel
	}

	req, err := structpb.NewStruct(map[string]interface{}{
		"job_name":    jobName,
		"document_id": params.DocumentID,
		"input_key":   inputKey,
		"model":       model,
		"language":    language,
		"outputs": map[string]interface{}{
			"transcription": keys.TranscriptionResultPrefix,
			"diarization":   keys.DiarizationResultPrefix,
		},
	})
	if err != nil {
		return JobHandle{}, fmt.Errorf("building transform job request: %w", err)
	}

	entry := d.logger.WithFields(logrus.Fields{
		"job_name":    jobName,
		"document_id": params.DocumentID,
		"input_key":   inputKey,
		"model":       model,
		"language":    language,
	})
	entry.Info("Creating transcription job")

	resp := &structpb.Struct{}
	if err := d.conn.Invoke(ctx, CreateTransformJobMethod, req, resp); err != nil {
		entry.WithError(err).Error("CreateTransformJob RPC failed")
		if status.Code(err) == codes.Unauthenticated {
			if inv, ok := d.tokens.(tokenInvalidator); ok {
				inv.Invalidate()
				entry.Warn("Dropped rejected access token")
			}
		}
		return JobHandle{}, fmt.Errorf("creating transform job %s: %w", jobName, err)
	}

	handle := JobHandle{Name: jobName}
	if v, ok := resp.GetFields()["job_id"]; ok {
		handle.ID = v.GetStringValue()
	}
	entry.WithField("job_id", handle.ID).Info("Transcription job created")
	return handle, nil
}

type bearerCredentials struct {
	tokens     TokenSource
	requireTLS bool
}

func (b bearerCredentials) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	tok, err := b.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"authorization": "Bearer " + tok}, nil
}

func (b bearerCredentials) RequireTransportSecurity() bool {
	return b.requireTLS
}
