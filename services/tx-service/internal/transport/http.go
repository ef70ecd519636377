package transport

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/command"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/custodial"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/service"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/wallet"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/walletconnect"
	sharederrors "github.com/soundchain/marketplace-gateway/shared/errors"
	"github.com/soundchain/marketplace-gateway/shared/logging"
)

// Gateway is the service surface the HTTP layer exposes.
type Gateway interface {
	Submit(ctx context.Context, in service.SubmitInput) (*domain.PendingAction, error)
	GetPendingStatus(ctx context.Context, trackID string) (domain.PendingRequest, error)
	InFlightActions(ctx context.Context, account string) ([]*domain.PendingAction, error)
	ActiveWallet() (domain.Wallet, error)
	DisplayWallet() (domain.Wallet, error)
	Balances(ctx context.Context) (domain.Balances, error)
	SetPreferredWallet(ctx context.Context, account string, kind domain.ProviderKind) error
}

// Connector registers and removes wallet providers.
type Connector interface {
	Connect(ctx context.Context, p domain.Provider) error
	Disconnect(kind domain.ProviderKind) error
}

// Deps bundles the handler collaborators.
type Deps struct {
	Gateway       Gateway
	Wallets       Connector
	Custodial     custodial.Config
	WalletConnect walletconnect.Config
	Balances      wallet.BalanceFunc
	Logger        *logging.Logger
}

// Handler serves the gateway's JSON API.
type Handler struct {
	gateway  Gateway
	wallets  Connector
	cuCfg    custodial.Config
	wcCfg    walletconnect.Config
	balances wallet.BalanceFunc
	logger   *logging.Logger
}

func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Handler{
		gateway:  deps.Gateway,
		wallets:  deps.Wallets,
		cuCfg:    deps.Custodial,
		wcCfg:    deps.WalletConnect,
		balances: deps.Balances,
		logger:   deps.Logger,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/transactions", h.submit)
	mux.HandleFunc("GET /v1/tracks/{id}/pending", h.pendingStatus)
	mux.HandleFunc("GET /v1/accounts/{account}/actions", h.inFlightActions)
	mux.HandleFunc("GET /v1/wallet", h.walletInfo)
	mux.HandleFunc("GET /v1/wallet/balances", h.walletBalances)
	mux.HandleFunc("PUT /v1/wallet/preferred", h.setPreferred)
	mux.HandleFunc("POST /v1/wallet/custodial", h.connectCustodial)
	mux.HandleFunc("POST /v1/wallet/walletconnect", h.connectWalletConnect)
	mux.HandleFunc("DELETE /v1/wallet/{kind}", h.disconnect)
}

type submitRequest struct {
	Account string        `json:"account"`
	TrackID string        `json:"trackId"`
	Action  string        `json:"action"`
	Params  paramsPayload `json:"params"`
}

// paramsPayload carries call parameters on the wire. Big integers travel
// as base-10 strings so wei amounts never lose precision in JSON.
type paramsPayload struct {
	From           string   `json:"from,omitempty"`
	Recipient      string   `json:"recipient,omitempty"`
	TokenID        *string  `json:"tokenId,omitempty"`
	TokenIDs       []string `json:"tokenIds,omitempty"`
	EditionID      *string  `json:"editionId,omitempty"`
	Quantity       *string  `json:"quantity,omitempty"`
	Amount         *string  `json:"amount,omitempty"`
	TokenAmount    *string  `json:"tokenAmount,omitempty"`
	PaymentInToken bool     `json:"paymentInToken,omitempty"`
	AcceptsNative  bool     `json:"acceptsNative,omitempty"`
	AcceptsToken   bool     `json:"acceptsToken,omitempty"`
	URI            string   `json:"uri,omitempty"`
	RoyaltyBPS     *string  `json:"royaltyBps,omitempty"`
	StartTime      *string  `json:"startTime,omitempty"`
	EndTime        *string  `json:"endTime,omitempty"`
	ClaimIndex     *string  `json:"claimIndex,omitempty"`
	ClaimProof     []string `json:"claimProof,omitempty"`
}

func parseBig(field string, value *string) (*big.Int, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(*value, 10)
	if !ok {
		return nil, sharederrors.InvalidInput(field, "must be a base-10 integer")
	}
	return n, nil
}

func (p paramsPayload) toParams() (command.Params, error) {
	out := command.Params{
		From:           common.HexToAddress(p.From),
		Recipient:      common.HexToAddress(p.Recipient),
		PaymentInToken: p.PaymentInToken,
		AcceptsNative:  p.AcceptsNative,
		AcceptsToken:   p.AcceptsToken,
		URI:            p.URI,
	}

	fields := []struct {
		name  string
		value *string
		dst   **big.Int
	}{
		{"tokenId", p.TokenID, &out.TokenID},
		{"editionId", p.EditionID, &out.EditionID},
		{"quantity", p.Quantity, &out.Quantity},
		{"amount", p.Amount, &out.Amount},
		{"tokenAmount", p.TokenAmount, &out.TokenAmount},
		{"royaltyBps", p.RoyaltyBPS, &out.RoyaltyBPS},
		{"startTime", p.StartTime, &out.StartTime},
		{"endTime", p.EndTime, &out.EndTime},
		{"claimIndex", p.ClaimIndex, &out.ClaimIndex},
	}
	for _, f := range fields {
		n, err := parseBig(f.name, f.value)
		if err != nil {
			return command.Params{}, err
		}
		*f.dst = n
	}

	for _, raw := range p.TokenIDs {
		v := raw
		n, err := parseBig("tokenIds", &v)
		if err != nil {
			return command.Params{}, err
		}
		out.TokenIDs = append(out.TokenIDs, n)
	}

	for _, raw := range p.ClaimProof {
		out.ClaimProof = append(out.ClaimProof, [32]byte(common.HexToHash(raw)))
	}
	return out, nil
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, sharederrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.Account == "" {
		h.writeError(w, r, sharederrors.InvalidInput("account", "required"))
		return
	}

	params, err := req.Params.toParams()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	action, err := h.gateway.Submit(r.Context(), service.SubmitInput{
		Account: req.Account,
		TrackID: req.TrackID,
		Action:  domain.ActionKind(req.Action),
		Params:  params,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, action)
}

func (h *Handler) pendingStatus(w http.ResponseWriter, r *http.Request) {
	req, err := h.gateway.GetPendingStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"pendingRequest": req.String(),
		"label":          req.Label(),
	})
}

func (h *Handler) inFlightActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.gateway.InFlightActions(r.Context(), r.PathValue("account"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions})
}

func (h *Handler) walletInfo(w http.ResponseWriter, r *http.Request) {
	active, err := h.gateway.ActiveWallet()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	display, err := h.gateway.DisplayWallet()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]domain.Wallet{
		"active":  active,
		"display": display,
	})
}

func (h *Handler) walletBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.gateway.Balances(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balances)
}

func (h *Handler) setPreferred(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Kind    string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, sharederrors.InvalidInput("body", "malformed JSON"))
		return
	}

	kind := domain.ProviderKind(req.Kind)
	if !kind.Valid() {
		h.writeError(w, r, sharederrors.InvalidInput("kind", "unknown provider kind"))
		return
	}
	if err := h.gateway.SetPreferredWallet(r.Context(), req.Account, kind); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) connectCustodial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		h.writeError(w, r, sharederrors.InvalidInput("email", "required"))
		return
	}

	token, err := custodial.Login(r.Context(), h.cuCfg, req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	provider, err := custodial.NewWallet(h.cuCfg, token, custodial.BalanceFunc(h.balances), h.logger)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.wallets.Connect(r.Context(), provider); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, domain.Wallet{Address: provider.Address(), Kind: provider.Kind()})
}

func (h *Handler) connectWalletConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		h.writeError(w, r, sharederrors.InvalidInput("address", "required"))
		return
	}

	session, err := walletconnect.Dial(r.Context(), h.wcCfg, req.Address, walletconnect.BalanceFunc(h.balances), h.logger)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.wallets.Connect(r.Context(), session); err != nil {
		session.Close()
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, domain.Wallet{Address: session.Address(), Kind: session.Kind()})
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	kind := domain.ProviderKind(r.PathValue("kind"))
	if !kind.Valid() {
		h.writeError(w, r, sharederrors.InvalidInput("kind", "unknown provider kind"))
		return
	}
	if err := h.wallets.Disconnect(kind); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Warn("write response failed")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *sharederrors.Error
	if !errors.As(err, &apiErr) {
		apiErr = classify(err)
	}

	if apiErr.StatusCode >= http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).WithError(err).Error("request failed")
	}
	h.writeJSON(w, apiErr.StatusCode, apiErr)
}

// classify maps domain sentinels onto API error shapes.
func classify(err error) *sharederrors.Error {
	switch {
	case errors.Is(err, domain.ErrNoWallet):
		return sharederrors.Precondition("no wallet connected").WithCause(err)
	case errors.Is(err, domain.ErrAuthenticationRequired):
		return sharederrors.Unauthorized("wallet session expired, sign in again").WithCause(err)
	case errors.Is(err, domain.ErrActionInFlight):
		return sharederrors.Conflict("track", "an action is already in flight").WithCause(err)
	case errors.Is(err, domain.ErrInvalidAddress):
		return sharederrors.InvalidInput("address", "invalid wallet address").WithCause(err)
	case errors.Is(err, domain.ErrUnknownAction):
		return sharederrors.InvalidInput("action", "unknown action kind").WithCause(err)
	case errors.Is(err, domain.ErrTrackNotFound):
		return sharederrors.NotFound("track", nil).WithCause(err)
	case errors.Is(err, domain.ErrActionNotFound):
		return sharederrors.NotFound("action", nil).WithCause(err)
	case errors.Is(err, domain.ErrListingNotFound):
		return sharederrors.NotFound("listing", nil).WithCause(err)
	default:
		return sharederrors.Internal("internal error").WithCause(err)
	}
}
