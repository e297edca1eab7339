// Package evm attests invoices by calling storeInvoice on a contract through
// an external JSON-RPC signer (a node with an unlocked account, a remote
// signer such as Clef or a wallet bridge). Keys never enter this process.
package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit"
)

const backendName = "evm"

// Signer codes for a declined request (EIP-1193 4001) and an
// unauthorized method or account (4100).
const (
	codeUserRejected = 4001
	codeUnauthorized = 4100
)

type Config struct {
	RPCURL          string
	From            string
	Contract        string
	MinBalanceWei   *big.Int
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
	ExplorerURLTmpl string
	HTTPTimeout     time.Duration
}

type Submitter struct {
	cfg      Config
	from     ethcommon.Address
	contract ethcommon.Address
	rpc      *rpc.Client
	logger   *slog.Logger
}

// NewSubmitter dials the signer endpoint. For HTTP endpoints no connection is
// made until the first call. Callers must Close.
func NewSubmitter(ctx context.Context, cfg Config, logger *slog.Logger) (*Submitter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.MinBalanceWei == nil {
		cfg.MinBalanceWei = new(big.Int)
	}
	client, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "dial evm rpc "+cfg.RPCURL, err)
	}
	return &Submitter{
		cfg:      cfg,
		from:     ethcommon.HexToAddress(cfg.From),
		contract: ethcommon.HexToAddress(cfg.Contract),
		rpc:      client,
		logger:   logger,
	}, nil
}

func (s *Submitter) Name() string { return backendName }

func (s *Submitter) Close() { s.rpc.Close() }

// callArgs is the transaction object shared by eth_call and eth_sendTransaction.
type callArgs struct {
	From ethcommon.Address `json:"from"`
	To   ethcommon.Address `json:"to"`
	Data hexutil.Bytes     `json:"data"`
}

// txReceipt holds the receipt fields we read; the node sends many more.
type txReceipt struct {
	TransactionHash ethcommon.Hash  `json:"transactionHash"`
	BlockNumber     *hexutil.Big    `json:"blockNumber"`
	Status          *hexutil.Uint64 `json:"status"`
}

// Submit runs the balance gate, a dry-run eth_call, eth_sendTransaction and
// then waits for the receipt. It returns only once the transaction is mined
// or the confirmation timeout expires.
func (s *Submitter) Submit(ctx context.Context, a submit.Attestation) (submit.Receipt, error) {
	if err := a.Validate(); err != nil {
		return submit.Receipt{}, err
	}
	start := time.Now()
	data, err := StoreInvoiceCalldata(a.RecordID, a.FileFingerprint.Prefixed(), a.DataFingerprint.Prefixed())
	if err != nil {
		return submit.Receipt{}, common.NewKindError(common.KindEncoding, "encode contract call", err)
	}
	tx := callArgs{From: s.from, To: s.contract, Data: data}

	if err := s.checkBalance(ctx); err != nil {
		return submit.Receipt{}, err
	}

	var out hexutil.Bytes
	if err := s.rpc.CallContext(ctx, &out, "eth_call", tx, "latest"); err != nil {
		s.logger.Warn("submit.evm.preflight_failed", "record_id", a.RecordID, "error", err)
		return submit.Receipt{}, classify(err, "preflight call failed")
	}

	var hash ethcommon.Hash
	if err := s.rpc.CallContext(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		s.logger.Warn("submit.evm.send_failed", "record_id", a.RecordID, "error", err)
		return submit.Receipt{}, classify(err, "send transaction failed")
	}
	s.logger.Info("submit.evm.sent", "record_id", a.RecordID, "tx_hash", hash.Hex())

	rcpt, err := s.waitForReceipt(ctx, hash)
	if err != nil {
		return submit.Receipt{}, err
	}
	if rcpt.Status != nil && uint64(*rcpt.Status) != 1 {
		s.logger.Error("submit.evm.reverted", "record_id", a.RecordID, "tx_hash", hash.Hex(), "status", uint64(*rcpt.Status))
		return submit.Receipt{}, common.NewKindError(common.KindUnknown, "transaction "+hash.Hex()+" reverted", nil)
	}

	s.logger.Info("submit.evm.confirmed",
		"record_id", a.RecordID,
		"tx_hash", hash.Hex(),
		"block", rcpt.BlockNumber.ToInt().String(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return submit.Receipt{
		ID:          hash.Hex(),
		Backend:     backendName,
		ExplorerURL: s.explorerURL(hash.Hex()),
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (s *Submitter) checkBalance(ctx context.Context) error {
	if s.cfg.MinBalanceWei.Sign() <= 0 {
		return nil
	}
	var raw string
	if err := s.rpc.CallContext(ctx, &raw, "eth_getBalance", s.from, "latest"); err != nil {
		return classify(err, "balance lookup failed")
	}
	bal, err := hexutil.DecodeBig(raw)
	if err != nil {
		return common.NewKindError(common.KindUnknown, "balance lookup failed", err)
	}
	if bal.Cmp(s.cfg.MinBalanceWei) < 0 {
		s.logger.Warn("submit.evm.low_balance", "from", s.from.Hex(), "balance_wei", bal.String(), "min_wei", s.cfg.MinBalanceWei.String())
		return common.NewKindError(common.KindInsufficientResources,
			fmt.Sprintf("account balance %s wei is below the %s wei needed for fees", bal, s.cfg.MinBalanceWei), nil)
	}
	return nil
}

func (s *Submitter) waitForReceipt(ctx context.Context, hash ethcommon.Hash) (*txReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	defer cancel()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, common.NewKindError(common.KindNetwork,
				fmt.Sprintf("transaction %s not confirmed within %s", hash.Hex(), s.cfg.ConfirmTimeout), ctx.Err())
		case <-timer.C:
		}

		var rcpt *txReceipt
		err := s.rpc.CallContext(ctx, &rcpt, "eth_getTransactionReceipt", hash)
		switch {
		case err != nil && ctx.Err() == nil:
			s.logger.Warn("submit.evm.receipt_poll_error", "tx_hash", hash.Hex(), "error", err)
		case err == nil && rcpt != nil && rcpt.BlockNumber != nil:
			return rcpt, nil
		}
		timer.Reset(s.cfg.PollInterval)
	}
}

func (s *Submitter) explorerURL(hash string) string {
	if s.cfg.ExplorerURLTmpl == "" {
		return ""
	}
	if strings.Contains(s.cfg.ExplorerURLTmpl, "%s") {
		return fmt.Sprintf(s.cfg.ExplorerURLTmpl, hash)
	}
	return strings.TrimRight(s.cfg.ExplorerURLTmpl, "/") + "/" + hash
}

// classify maps signer, node and transport failures onto the taxonomy.
func classify(err error, msg string) error {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500 {
			return common.NewKindError(common.KindNetwork, msg, err)
		}
		return common.NewKindError(common.KindUnknown, msg, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		text := strings.ToLower(rpcErr.Error())
		if reason, ok := revertReason(err); ok {
			text += " " + strings.ToLower(reason)
			msg += ": " + reason
		}
		code := rpcErr.ErrorCode()
		switch {
		case code == codeUserRejected || strings.Contains(text, "action_rejected") ||
			strings.Contains(text, "user rejected") || strings.Contains(text, "user denied"):
			return common.NewKindError(common.KindUserRejected, "signer rejected the transaction", err)
		case code == codeUnauthorized:
			return common.NewKindError(common.KindUserRejected, "signer refused the account", err)
		case strings.Contains(text, "already exists"):
			return common.NewKindError(common.KindDuplicateRecord, "invoice number already exists on chain", err)
		case strings.Contains(text, "insufficient funds"):
			return common.NewKindError(common.KindInsufficientResources, "insufficient funds for gas", err)
		default:
			return common.NewKindError(common.KindUnknown, msg, err)
		}
	}

	if common.Classify(err) == common.KindUnknown {
		// transport failures and undecodable bodies from the RPC endpoint
		return common.NewKindError(common.KindNetwork, msg, err)
	}
	return common.NewKindError(common.Classify(err), msg, err)
}

// revertReason decodes the revert(string) payload a node attaches as error data.
func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return "", false
	}
	s, ok := dataErr.ErrorData().(string)
	if !ok {
		return "", false
	}
	b, decErr := hexutil.Decode(s)
	if decErr != nil {
		return "", false
	}
	return RevertReason(b)
}
