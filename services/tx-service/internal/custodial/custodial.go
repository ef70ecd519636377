package custodial

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
	"github.com/soundchain/marketplace-gateway/shared/logging"
)

// Config carries the custodial signing API settings.
type Config struct {
	BaseURL        string
	APIKey         string
	SessionSecret  string
	RequestTimeout time.Duration
}

// BalanceFunc reads the native and token balances of an address.
type BalanceFunc func(ctx context.Context, address string) (domain.Balances, error)

// Wallet is the custodial provider. The signing key is held by the
// custodial service; the gateway authenticates with a session token and
// forwards prepared calls for signing and broadcast.
type Wallet struct {
	cfg      Config
	address  string
	http     *http.Client
	balances BalanceFunc
	logger   *logging.Logger

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	connected bool
}

type sessionClaims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	SessionToken string `json:"sessionToken"`
	Error        string `json:"error,omitempty"`
}

// Login starts an email-link session with the custodial service. The
// returned token is handed to NewWallet once the user completes the
// email verification.
func Login(ctx context.Context, cfg Config, email string) (string, error) {
	payload, err := json.Marshal(loginRequest{Email: email})
	if err != nil {
		return "", fmt.Errorf("encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/v1/sessions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", cfg.APIKey)

	client := &http.Client{Timeout: cfg.RequestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("custodial login: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read login response: %w", err)
	}

	var out loginResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(raw, &out) == nil && out.Error != "" {
			return "", fmt.Errorf("custodial login failed: %s", out.Error)
		}
		return "", fmt.Errorf("custodial login failed with status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if out.SessionToken == "" {
		return "", fmt.Errorf("custodial login response missing session token")
	}
	return out.SessionToken, nil
}

// NewWallet validates the session token and returns a connected
// custodial wallet for the address embedded in the token.
func NewWallet(cfg Config, sessionToken string, balances BalanceFunc, logger *logging.Logger) (*Wallet, error) {
	if logger == nil {
		logger = logging.Default()
	}

	claims, err := parseSession(cfg.SessionSecret, sessionToken)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		cfg:       cfg,
		address:   claims.Address,
		http:      &http.Client{Timeout: cfg.RequestTimeout},
		balances:  balances,
		logger:    logger,
		token:     sessionToken,
		expiresAt: claims.ExpiresAt.Time,
		connected: true,
	}, nil
}

func parseSession(secret, token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthenticationRequired, err)
	}
	if !parsed.Valid || claims.Address == "" || claims.ExpiresAt == nil {
		return nil, domain.ErrAuthenticationRequired
	}
	return claims, nil
}

func (w *Wallet) Kind() domain.ProviderKind { return domain.ProviderCustodial }
func (w *Wallet) Address() string           { return w.address }

func (w *Wallet) Connected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// EnsureAuthenticated verifies the session is present and unexpired. It
// is an explicit step; callers decide when re-authentication is required
// rather than relying on a lazy check inside SignAndSend alone.
func (w *Wallet) EnsureAuthenticated(ctx context.Context) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.connected || w.token == "" {
		return domain.ErrAuthenticationRequired
	}
	if time.Now().After(w.expiresAt) {
		return domain.ErrAuthenticationRequired
	}
	return nil
}

// Refresh replaces the session token after re-authentication. The new
// token must belong to the same address.
func (w *Wallet) Refresh(sessionToken string) error {
	claims, err := parseSession(w.cfg.SessionSecret, sessionToken)
	if err != nil {
		return err
	}
	if claims.Address != w.address {
		return domain.ErrInvalidAddress
	}

	w.mu.Lock()
	w.token = sessionToken
	w.expiresAt = claims.ExpiresAt.Time
	w.mu.Unlock()
	return nil
}

type signRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Data     string `json:"data,omitempty"`
	Value    string `json:"value,omitempty"`
	GasLimit uint64 `json:"gasLimit"`
	GasPrice string `json:"gasPrice"`
}

type signResponse struct {
	TxHash string `json:"txHash"`
	Error  string `json:"error,omitempty"`
}

// SignAndSend forwards a prepared call to the custodial API, which signs
// with the user's delegated key and broadcasts.
func (w *Wallet) SignAndSend(ctx context.Context, req domain.CallRequest) (common.Hash, error) {
	if err := w.EnsureAuthenticated(ctx); err != nil {
		return common.Hash{}, err
	}

	body := signRequest{
		From:     w.address,
		To:       req.To.Hex(),
		GasLimit: req.GasLimit,
		GasPrice: req.GasPrice.String(),
	}
	if len(req.Data) > 0 {
		body.Data = "0x" + hex.EncodeToString(req.Data)
	}
	if req.Value != nil {
		body.Value = req.Value.String()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode sign request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+"/v1/transactions", bytes.NewReader(payload))
	if err != nil {
		return common.Hash{}, fmt.Errorf("build sign request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", w.cfg.APIKey)

	w.mu.RLock()
	httpReq.Header.Set("Authorization", "Bearer "+w.token)
	w.mu.RUnlock()

	resp, err := w.http.Do(httpReq)
	if err != nil {
		return common.Hash{}, fmt.Errorf("custodial sign request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read custodial response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return common.Hash{}, domain.ErrAuthenticationRequired
	}
	if resp.StatusCode != http.StatusOK {
		var out signResponse
		if json.Unmarshal(raw, &out) == nil && out.Error != "" {
			return common.Hash{}, fmt.Errorf("custodial sign failed: %s", out.Error)
		}
		return common.Hash{}, fmt.Errorf("custodial sign failed with status %d", resp.StatusCode)
	}

	var out signResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return common.Hash{}, fmt.Errorf("decode custodial response: %w", err)
	}
	if out.TxHash == "" {
		return common.Hash{}, fmt.Errorf("custodial response missing transaction hash")
	}
	return common.HexToHash(out.TxHash), nil
}

func (w *Wallet) Balances(ctx context.Context) (domain.Balances, error) {
	return w.balances(ctx, w.address)
}

func (w *Wallet) Close() error {
	w.mu.Lock()
	w.connected = false
	w.token = ""
	w.mu.Unlock()
	return nil
}
