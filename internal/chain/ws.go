// internal/chain/ws.go
package chain

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"
)

// LogNote is one log notification from a mentions subscription.
type LogNote struct {
	Signature solana.Signature
	Failed    bool
	Logs      []string
}

// LogStream is a blocking-receive view over a log subscription, preserving
// notification order until Unsubscribe or context cancellation.
type LogStream interface {
	Recv(ctx context.Context) (*LogNote, error)
	Unsubscribe()
}

// SigStream delivers the single signature notification for a subscribed
// transaction.
type SigStream interface {
	// Recv blocks until the notification arrives; failed reports whether
	// the chain recorded an execution error.
	Recv(ctx context.Context) (failed bool, err error)
	Unsubscribe()
}

// WSConn wraps the solana-go websocket client behind the stream
// abstractions above.
type WSConn struct {
	client *ws.Client
	logger *zap.Logger
}

func DialWS(ctx context.Context, wsURL string, logger *zap.Logger) (*WSConn, error) {
	client, err := ws.Connect(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("ws connect: %w", err)
	}
	return &WSConn{client: client, logger: logger.Named("ws")}, nil
}

func (w *WSConn) Close() {
	w.client.Close()
}

// SubscribeMentions subscribes to log notifications mentioning addr at the
// processed commitment; the fast level is what makes the push path beat
// polling.
func (w *WSConn) SubscribeMentions(addr solana.PublicKey) (LogStream, error) {
	sub, err := w.client.LogsSubscribeMentions(addr, rpc.CommitmentProcessed)
	if err != nil {
		return nil, fmt.Errorf("logsSubscribe %s: %w", addr, err)
	}
	return &logStream{sub: sub}, nil
}

// SubscribeSignature subscribes to the status notification for sig at the
// given commitment level.
func (w *WSConn) SubscribeSignature(sig solana.Signature, commitment rpc.CommitmentType) (SigStream, error) {
	sub, err := w.client.SignatureSubscribe(sig, commitment)
	if err != nil {
		return nil, fmt.Errorf("signatureSubscribe %s: %w", sig, err)
	}
	return &sigStream{sub: sub}, nil
}

type logStream struct {
	sub *ws.LogSubscription
}

func (s *logStream) Recv(ctx context.Context) (*LogNote, error) {
	result, err := s.sub.Recv(ctx)
	if err != nil {
		return nil, err
	}
	return &LogNote{
		Signature: result.Value.Signature,
		Failed:    result.Value.Err != nil,
		Logs:      result.Value.Logs,
	}, nil
}

func (s *logStream) Unsubscribe() { s.sub.Unsubscribe() }

type sigStream struct {
	sub *ws.SignatureSubscription
}

func (s *sigStream) Recv(ctx context.Context) (bool, error) {
	result, err := s.sub.Recv(ctx)
	if err != nil {
		return false, err
	}
	return result.Value.Err != nil, nil
}

func (s *sigStream) Unsubscribe() { s.sub.Unsubscribe() }
