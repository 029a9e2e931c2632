// Package failure decides whether a delivery error is worth retrying.
package failure

import (
	"context"
	"errors"
	"net"
)

// Code is a provider error code known to succeed on retry.
type Code string

const (
	CodeThrottling                     Code = "Throttling"
	CodeThrottlingException            Code = "ThrottlingException"
	CodeTooManyRequests                Code = "TooManyRequestsException"
	CodeRequestTimeout                 Code = "RequestTimeout"
	CodeRequestTimeoutException        Code = "RequestTimeoutException"
	CodeRequestExpired                 Code = "RequestExpired"
	CodeServiceUnavailable             Code = "ServiceUnavailable"
	CodeInternalFailure                Code = "InternalFailure"
	CodeInternalServerError            Code = "InternalServerError"
	CodeProvisionedThroughputExceeded  Code = "ProvisionedThroughputExceededException"
	CodeRequestLimitExceeded           Code = "RequestLimitExceeded"
	CodeTransactionInProgressException Code = "TransactionInProgressException"
)

var transientCodes = map[Code]struct{}{
	CodeThrottling:                     {},
	CodeThrottlingException:            {},
	CodeTooManyRequests:                {},
	CodeRequestTimeout:                 {},
	CodeRequestTimeoutException:        {},
	CodeRequestExpired:                 {},
	CodeServiceUnavailable:             {},
	CodeInternalFailure:                {},
	CodeInternalServerError:            {},
	CodeProvisionedThroughputExceeded:  {},
	CodeRequestLimitExceeded:           {},
	CodeTransactionInProgressException: {},
}

type Kind int

const (
	Permanent Kind = iota
	Transient
)

func (k Kind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

// coder is satisfied by smithy.APIError and email.ProviderError.
type coder interface {
	ErrorCode() string
}

// CodeOf maps an error to a provider code. Context deadlines and network
// timeouts map to RequestTimeout. Unknown errors yield "".
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var c coder
	if errors.As(err, &c) {
		return Code(c.ErrorCode())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeRequestTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeRequestTimeout
	}
	return ""
}

// IsTransient reports whether code is in the retryable set.
func (c Code) IsTransient() bool {
	_, ok := transientCodes[c]
	return ok
}

// Classify returns Transient for errors whose code is in the retryable
// set and Permanent for everything else.
func Classify(err error) Kind {
	if CodeOf(err).IsTransient() {
		return Transient
	}
	return Permanent
}
