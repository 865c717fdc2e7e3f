// Package tradeerr classifies errors into the trading engine's error-handling
// policy kinds so callers can apply a uniform retry/log/halt decision instead
// of matching on error strings at each call site.
package tradeerr

import (
	"errors"
	"strings"
)

// Kind is one of the error-handling policy classes.
type Kind string

const (
	KindTransientNetwork     Kind = "transient_network"
	KindDataMissing          Kind = "data_missing"
	KindSignatureAuth        Kind = "signature_auth"
	KindInsufficientFunds    Kind = "insufficient_funds"
	KindLeverageRejection    Kind = "leverage_rejection"
	KindRiskHalt             Kind = "risk_halt"
	KindReconciliationDrift  Kind = "reconciliation_drift"
	KindLLMFailure           Kind = "llm_failure"
	KindPersistence          Kind = "persistence"
	KindInvariantViolation   Kind = "invariant_violation"
	KindUnknown              Kind = "unknown"
)

// Sentinel errors components can wrap with fmt.Errorf("...: %w", ErrX).
var (
	ErrDataMissing         = errors.New("data missing")
	ErrSignatureAuth       = errors.New("signature/auth failure")
	ErrInsufficientFunds   = errors.New("insufficient funds or below min notional")
	ErrLeverageRejected    = errors.New("leverage rejected by venue")
	ErrRiskHalted          = errors.New("risk manager halted: drawdown threshold breached")
	ErrReconciliationDrift = errors.New("internal position state diverged from venue")
	ErrLLMFailure          = errors.New("llm query failed")
	ErrPersistence         = errors.New("persistence write failed")
	ErrInvariantViolation  = errors.New("trading engine invariant violation")
)

// Classify maps an error to its §7 policy kind, preferring sentinel matches
// and falling back to substring heuristics for third-party/venue errors the
// way internal/exchange/binance.go's isRetryableError does for retryability.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	switch {
	case errors.Is(err, ErrDataMissing):
		return KindDataMissing
	case errors.Is(err, ErrSignatureAuth):
		return KindSignatureAuth
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrLeverageRejected):
		return KindLeverageRejection
	case errors.Is(err, ErrRiskHalted):
		return KindRiskHalt
	case errors.Is(err, ErrReconciliationDrift):
		return KindReconciliationDrift
	case errors.Is(err, ErrLLMFailure):
		return KindLLMFailure
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrInvariantViolation):
		return KindInvariantViolation
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "connection reset", "429", "too many requests", "503", "502", "500"):
		return KindTransientNetwork
	case containsAny(msg, "no rows", "empty", "not found", "nan"):
		return KindDataMissing
	case containsAny(msg, "signature", "invalid api-key", "unauthorized", "401"):
		return KindSignatureAuth
	case containsAny(msg, "insufficient", "min notional", "min_notional"):
		return KindInsufficientFunds
	case containsAny(msg, "leverage"):
		return KindLeverageRejection
	}
	return KindUnknown
}

// Retryable reports whether the classified kind should be retried by the
// caller's adapter layer rather than surfaced immediately.
func Retryable(k Kind) bool {
	return k == KindTransientNetwork
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
