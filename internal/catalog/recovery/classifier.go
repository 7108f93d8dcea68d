package recovery

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/vietddude/corpus/internal/core/domain"
)

// Classifier maps a raw store failure onto a typed TxError.
type Classifier interface {
	Classify(err error, txID string) *domain.TxError
}

// MessageClassifier classifies by sniffing the lowercased error
// message. Pragmatic: drivers disagree on error types, but their
// messages are stable enough. A driver-code classifier can replace
// this behind the same interface; the category set is the contract.
type MessageClassifier struct{}

var constraintNameRe = regexp.MustCompile(`constraint "([^"]+)"`)

// Classify wraps err into a TxError. Errors that already carry a
// category pass through untouched (with txID attached if missing).
func (MessageClassifier) Classify(err error, txID string) *domain.TxError {
	if err == nil {
		return nil
	}

	var te *domain.TxError
	if errors.As(err, &te) {
		if te.TxID == "" {
			te.TxID = txID
		}
		return te
	}

	var out *domain.TxError
	msg := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded"):
		out = domain.NewTimeoutError(err)

	case strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "econnrefused") ||
		strings.Contains(msg, "failed to connect"):
		out = domain.NewConnectionError(err)

	case strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "foreign key") ||
		strings.Contains(msg, "violates") ||
		strings.Contains(msg, "constraint"):
		out = domain.NewConstraintViolation(extractConstraint(err.Error()), err)

	case strings.Contains(msg, "savepoint"):
		out = domain.NewSavepointError(txID, "", err)

	case strings.Contains(msg, "nested transaction"):
		out = domain.NewNestedTransactionError(txID, err)

	default:
		out = domain.NewOperationFailed(txID, nil, err)
	}

	out.TxID = txID
	return out
}

func extractConstraint(msg string) string {
	m := constraintNameRe.FindStringSubmatch(msg)
	if len(m) == 2 {
		return m[1]
	}
	return ""
}
