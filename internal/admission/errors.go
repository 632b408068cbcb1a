package admission

import (
	"errors"
	"fmt"

	"github.com/roach88/msggate/internal/wire"
)

// Class groups rejection codes by what the caller should do about them.
type Class string

const (
	// ClassInput: malformed or oversized submission. Fix and resubmit.
	ClassInput Class = "input"

	// ClassAuthorization: wrong authority or gateway disabled. Escalate.
	ClassAuthorization Class = "authorization"

	// ClassReplay: the message was already admitted or is behind the
	// watermark. Permanently rejected.
	ClassReplay Class = "replay"

	// ClassSignature: signatures missing, invalid or from unknown signers.
	ClassSignature Class = "signature"

	// ClassConflict: lost a concurrent commit race. Retry with a fresh read.
	ClassConflict Class = "conflict"

	// ClassAlreadyInitialized: the chain counter already exists.
	ClassAlreadyInitialized Class = "already_initialized"

	// ClassInternal: storage or other infrastructure failure.
	ClassInternal Class = "internal"
)

// Code identifies a specific rejection reason.
type Code string

const (
	CodeSenderTooLong          Code = "SENDER_TOO_LONG"
	CodeRecipientTooLong       Code = "RECIPIENT_TOO_LONG"
	CodePayloadTooLarge        Code = "PAYLOAD_TOO_LARGE"
	CodeReferenceTooLarge      Code = "REFERENCE_TOO_LARGE"
	CodeTooManySignatures      Code = "TOO_MANY_SIGNATURES"
	CodeInvalidChainID         Code = "INVALID_CHAIN_ID"
	CodeWrongDestination       Code = "WRONG_DESTINATION"
	CodeCounterNotFound        Code = "COUNTER_NOT_FOUND"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeSystemDisabled         Code = "SYSTEM_DISABLED"
	CodeDuplicateMessage       Code = "DUPLICATE_MESSAGE"
	CodeSequenceTooOld         Code = "SEQUENCE_TOO_OLD"
	CodeInvalidSignature       Code = "INVALID_SIGNATURE"
	CodeInsufficientSignatures Code = "INSUFFICIENT_SIGNATURES"
	CodeUnauthorizedSigner     Code = "UNAUTHORIZED_SIGNER"
	CodeConflict               Code = "CONFLICT"
	CodeAlreadyInitialized     Code = "ALREADY_INITIALIZED"
	CodeInternal               Code = "INTERNAL"
)

// Sentinel errors. Stores and policies return these (possibly wrapped);
// use errors.Is to test for them.
var (
	ErrSenderTooLong          = errors.New("sender too long")
	ErrRecipientTooLong       = errors.New("recipient too long")
	ErrPayloadTooLarge        = errors.New("on-chain payload too large")
	ErrReferenceTooLarge      = errors.New("off-chain payload reference too large")
	ErrTooManySignatures      = errors.New("too many attached signatures")
	ErrInvalidChainID         = errors.New("invalid chain id")
	ErrWrongDestination       = errors.New("message not addressed to this gateway")
	ErrCounterNotFound        = errors.New("chain counter not initialized")
	ErrUnauthorized           = errors.New("requester is not the gateway authority")
	ErrSystemDisabled         = errors.New("gateway system disabled")
	ErrDuplicateMessage       = errors.New("message already admitted")
	ErrSequenceTooOld         = errors.New("sequence id not greater than watermark")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrInsufficientSignatures = errors.New("insufficient signatures")
	ErrUnauthorizedSigner     = errors.New("unauthorized signer")
	ErrConflict               = errors.New("concurrent admission conflict")
	ErrAlreadyInitialized     = errors.New("chain counter already initialized")
)

type codeInfo struct {
	class    Class
	sentinel error
}

var codes = map[Code]codeInfo{
	CodeSenderTooLong:          {ClassInput, ErrSenderTooLong},
	CodeRecipientTooLong:       {ClassInput, ErrRecipientTooLong},
	CodePayloadTooLarge:        {ClassInput, ErrPayloadTooLarge},
	CodeReferenceTooLarge:      {ClassInput, ErrReferenceTooLarge},
	CodeTooManySignatures:      {ClassInput, ErrTooManySignatures},
	CodeInvalidChainID:         {ClassInput, ErrInvalidChainID},
	CodeWrongDestination:       {ClassInput, ErrWrongDestination},
	CodeCounterNotFound:        {ClassInput, ErrCounterNotFound},
	CodeUnauthorized:           {ClassAuthorization, ErrUnauthorized},
	CodeSystemDisabled:         {ClassAuthorization, ErrSystemDisabled},
	CodeDuplicateMessage:       {ClassReplay, ErrDuplicateMessage},
	CodeSequenceTooOld:         {ClassReplay, ErrSequenceTooOld},
	CodeInvalidSignature:       {ClassSignature, ErrInvalidSignature},
	CodeInsufficientSignatures: {ClassSignature, ErrInsufficientSignatures},
	CodeUnauthorizedSigner:     {ClassSignature, ErrUnauthorizedSigner},
	CodeConflict:               {ClassConflict, ErrConflict},
	CodeAlreadyInitialized:     {ClassAlreadyInitialized, ErrAlreadyInitialized},
}

// Known reports whether c is one of the codes above.
func (c Code) Known() bool {
	_, ok := codes[c]
	return ok || c == CodeInternal
}

// Class returns the class of c. Unknown codes are internal.
func (c Code) Class() Class {
	if info, ok := codes[c]; ok {
		return info.class
	}
	return ClassInternal
}

// Error is a rejection with structured context for logs and callers.
//
// Err is the sentinel for Code, optionally wrapped with detail, so both
// errors.Is(err, ErrSequenceTooOld) and errors.As(err, &*Error) work.
type Error struct {
	Code     Code
	Stage    Stage // gate that rejected the attempt
	Chain    wire.ChainID
	Sequence wire.SequenceID
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Chain != 0 {
		return fmt.Sprintf("%s: %v (chain=%s, seq=%s, stage=%s)", e.Code, e.Err, e.Chain, e.Sequence, e.Stage)
	}
	return fmt.Sprintf("%s: %v (stage=%s)", e.Code, e.Err, e.Stage)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Class returns the rejection class.
func (e *Error) Class() Class {
	return e.Code.Class()
}

// CodeOf maps err to its rejection code by matching known sentinels.
// Errors that match no sentinel are CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	for code, info := range codes {
		if errors.Is(err, info.sentinel) {
			return code
		}
	}
	return CodeInternal
}

// ClassOf returns the class of err, or "" for nil.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	return CodeOf(err).Class()
}

// IsReplay reports whether err rejects a replayed or stale message.
func IsReplay(err error) bool {
	return ClassOf(err) == ClassReplay
}

// IsConflict reports whether err is a transient commit race.
func IsConflict(err error) bool {
	return ClassOf(err) == ClassConflict
}

// reject builds an *Error for stage from cause. The cause should wrap one of
// the sentinels; otherwise the rejection is internal.
func reject(stage Stage, chain wire.ChainID, seq wire.SequenceID, cause error) *Error {
	return &Error{
		Code:     CodeOf(cause),
		Stage:    stage,
		Chain:    chain,
		Sequence: seq,
		Err:      cause,
	}
}
