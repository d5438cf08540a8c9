// ==============================================
// File: internal/submitter/bundle.go
// ==============================================
package submitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
)

// BundleTransport submits a group of signed transactions for atomic
// inclusion. Implementations return the relay's bundle identifier.
type BundleTransport interface {
	SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error)
}

// BundleConfig drives the tip transaction attached to every bundle.
type BundleConfig struct {
	TipAccount  solana.PublicKey
	TipLamports uint64
}

// SubmitBundle sends the instruction set together with a tip transfer as an
// atomic bundle. When no transport is configured or the relay rejects the
// bundle, it degrades to a plain Submit of the main transaction.
func (s *Submitter) SubmitBundle(ctx context.Context, ixs []solana.Instruction, bundle BundleConfig) (solana.Signature, error) {
	if s.bundles == nil {
		return s.Submit(ctx, ixs)
	}

	mainTx, err := s.buildTransaction(ctx, ixs)
	if err != nil {
		return solana.Signature{}, err
	}
	tipTx, err := s.buildTransaction(ctx, []solana.Instruction{
		system.NewTransferInstruction(bundle.TipLamports, s.signer.PublicKey, bundle.TipAccount).Build(),
	})
	if err != nil {
		return solana.Signature{}, err
	}

	bundleID, err := s.bundles.SendBundle(ctx, []*solana.Transaction{mainTx, tipTx})
	if err != nil {
		s.logger.Warn("bundle submission failed, falling back to direct send", zap.Error(err))
		return s.Submit(ctx, ixs)
	}

	sig := mainTx.Signatures[0]
	s.logger.Info("bundle submitted",
		zap.String("bundle_id", bundleID),
		zap.String("signature", sig.String()))

	if err := s.confirm(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

// HTTPBundleClient speaks the JSON-RPC sendBundle method of a block-engine
// relay endpoint.
type HTTPBundleClient struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

func NewHTTPBundleClient(endpoint string, logger *zap.Logger) *HTTPBundleClient {
	return &HTTPBundleClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 15 * time.Second},
		logger:   logger.Named("bundle"),
	}
}

type bundleRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type bundleResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPBundleClient) SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error) {
	encoded := make([]string, 0, len(txs))
	for _, tx := range txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("serialize bundle transaction: %w", err)
		}
		encoded = append(encoded, base58.Encode(raw))
	}

	body, err := json.Marshal(bundleRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "sendBundle",
		Params:  []interface{}{encoded},
	})
	if err != nil {
		return "", fmt.Errorf("marshal bundle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build bundle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send bundle: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read bundle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bundle endpoint returned %d: %s", resp.StatusCode, payload)
	}

	var parsed bundleResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decode bundle response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("bundle rejected: %s (code %d)", parsed.Error.Message, parsed.Error.Code)
	}
	return parsed.Result, nil
}
