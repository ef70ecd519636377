package walletconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
	"github.com/soundchain/marketplace-gateway/shared/logging"
)

// Config carries the relay connection settings.
type Config struct {
	RelayURL       string
	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

// BalanceFunc reads the native and token balances of an address.
type BalanceFunc func(ctx context.Context, address string) (domain.Balances, error)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type txParams struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Data     string `json:"data,omitempty"`
	Value    string `json:"value,omitempty"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
}

// Session is a WalletConnect provider backed by a relay websocket. The
// peer wallet signs on its own device; the session only carries
// JSON-RPC requests and responses over the relay.
type Session struct {
	address  string
	conn     *websocket.Conn
	cfg      Config
	balances BalanceFunc
	logger   *logging.Logger

	mu        sync.Mutex
	nextID    int64
	pending   map[int64]chan rpcResponse
	connected bool
	closeOnce sync.Once
}

// Dial connects to the relay and starts the response reader. The pairing
// with the peer wallet is assumed to be approved already; address is the
// account the peer exposed during session settlement.
func Dial(ctx context.Context, cfg Config, address string, balances BalanceFunc, logger *logging.Logger) (*Session, error) {
	if address == "" {
		return nil, domain.ErrInvalidAddress
	}
	if logger == nil {
		logger = logging.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, cfg.RelayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial walletconnect relay: %w", err)
	}

	s := &Session{
		address:   address,
		conn:      conn,
		cfg:       cfg,
		balances:  balances,
		logger:    logger,
		nextID:    1,
		pending:   make(map[int64]chan rpcResponse),
		connected: true,
	}
	go s.readLoop()
	return s, nil
}

func (s *Session) readLoop() {
	for {
		var resp rpcResponse
		if err := s.conn.ReadJSON(&resp); err != nil {
			s.logger.WithError(err).Debug("walletconnect relay read ended")
			s.teardown()
			return
		}

		s.mu.Lock()
		ch, ok := s.pending[resp.ID]
		if ok {
			delete(s.pending, resp.ID)
		}
		s.mu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

func (s *Session) Kind() domain.ProviderKind { return domain.ProviderWalletConnect }
func (s *Session) Address() string           { return s.address }

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// SignAndSend relays an eth_sendTransaction request to the peer wallet
// and blocks until the peer responds or the request times out. The peer
// reviewing and rejecting the request surfaces as a relay error.
func (s *Session) SignAndSend(ctx context.Context, req domain.CallRequest) (common.Hash, error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return common.Hash{}, domain.ErrProviderDisconnected
	}
	id := s.nextID
	s.nextID++
	ch := make(chan rpcResponse, 1)
	s.pending[id] = ch

	params := txParams{
		From:     s.address,
		To:       req.To.Hex(),
		Gas:      hexutil.EncodeUint64(req.GasLimit),
		GasPrice: hexutil.EncodeBig(req.GasPrice),
	}
	if len(req.Data) > 0 {
		params.Data = hexutil.Encode(req.Data)
	}
	if req.Value != nil {
		params.Value = hexutil.EncodeBig(req.Value)
	}

	err := s.conn.WriteJSON(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "eth_sendTransaction",
		Params:  []interface{}{params},
	})
	s.mu.Unlock()
	if err != nil {
		s.dropPending(id)
		return common.Hash{}, fmt.Errorf("relay send: %w", err)
	}

	timer := time.NewTimer(s.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return common.Hash{}, domain.ErrProviderDisconnected
		}
		if resp.Error != nil {
			return common.Hash{}, fmt.Errorf("wallet rejected request: %s", resp.Error.Message)
		}
		var hash string
		if err := json.Unmarshal(resp.Result, &hash); err != nil {
			return common.Hash{}, fmt.Errorf("decode relay result: %w", err)
		}
		return common.HexToHash(hash), nil
	case <-timer.C:
		s.dropPending(id)
		return common.Hash{}, fmt.Errorf("wallet did not respond within %s", s.cfg.RequestTimeout)
	case <-ctx.Done():
		s.dropPending(id)
		return common.Hash{}, ctx.Err()
	}
}

func (s *Session) dropPending(id int64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Session) Balances(ctx context.Context) (domain.Balances, error) {
	return s.balances(ctx, s.address)
}

func (s *Session) teardown() {
	s.mu.Lock()
	s.connected = false
	for id, ch := range s.pending {
		delete(s.pending, id)
		close(ch)
	}
	s.mu.Unlock()
}

// Close ends the relay session. In-flight requests fail with a closed
// channel read.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.teardown()
		err = s.conn.Close()
	})
	return err
}
