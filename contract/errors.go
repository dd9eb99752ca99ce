// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/luxfi/geth/accounts/abi"
)

// Error kinds. Every revert produced by a contract reports exactly one of
// these through errors.Is.
var (
	// ErrValidation covers bad signatures, expired or unfillable orders,
	// wrong sender or origin, insufficient output and unknown selectors.
	ErrValidation = errors.New("validation failure")
	// ErrStateConflict covers reentrancy, replayed meta-transactions and
	// cancels below the current minimum salt.
	ErrStateConflict = errors.New("state conflict")
	// ErrDelegatedFailure covers a failed token transfer, transformer,
	// adapter or inner call.
	ErrDelegatedFailure = errors.New("delegated failure")
)

// Execution errors raised by the host and by input decoding.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrOutOfGas          = errors.New("out of gas")
	ErrWriteProtection   = errors.New("write protection")
	ErrExecutionReverted = errors.New("execution reverted")
)

// stringErrorID is the selector of Error(string).
var stringErrorID = []byte{0x08, 0xc3, 0x79, 0xa0}

var stringArgs = mustArguments("string")

// Revert is an error carrying ABI encoded revert data.
type Revert struct {
	// Name is the custom error name, or "Error" for string reverts.
	Name string
	Kind error
	Data []byte
	// Cause is the inner error of a delegated failure.
	Cause  error
	detail string
}

// NewRevert packs a custom error declared in a.
func NewRevert(a ExtendedABI, kind error, name string, args ...interface{}) *Revert {
	data, err := a.PackError(name, args...)
	if err != nil {
		data = EncodeStringRevert(name)
	}
	return &Revert{Name: name, Kind: kind, Data: data, detail: formatArgs(args)}
}

// NewStringRevert returns an Error(string) revert.
func NewStringRevert(kind error, reason string) *Revert {
	return &Revert{Name: "Error", Kind: kind, Data: EncodeStringRevert(reason), detail: reason}
}

// WithCause attaches the inner error of a delegated failure.
func (r *Revert) WithCause(cause error) *Revert {
	r.Cause = cause
	return r
}

func (r *Revert) Error() string {
	if r.detail == "" {
		return r.Name
	}
	if r.Name == "Error" {
		return r.detail
	}
	return fmt.Sprintf("%s(%s)", r.Name, r.detail)
}

// RevertData returns the ABI encoded revert payload.
func (r *Revert) RevertData() []byte { return r.Data }

func (r *Revert) Is(target error) bool {
	return r.Kind != nil && target == r.Kind
}

func (r *Revert) Unwrap() error { return r.Cause }

// RevertData returns the revert payload for err. Errors that are not a
// *Revert encode as Error(string).
func RevertData(err error) []byte {
	if err == nil {
		return nil
	}
	var rev *Revert
	if errors.As(err, &rev) {
		return rev.Data
	}
	return EncodeStringRevert(err.Error())
}

// IsRevert reports whether err is, or wraps, the named custom error.
func IsRevert(err error, name string) bool {
	var rev *Revert
	for errors.As(err, &rev) {
		if rev.Name == name {
			return true
		}
		if rev.Cause == nil {
			return false
		}
		err = rev.Cause
	}
	return false
}

// EncodeStringRevert encodes Error(string).
func EncodeStringRevert(reason string) []byte {
	packed, err := stringArgs.Pack(reason)
	if err != nil {
		return append([]byte{}, stringErrorID...)
	}
	return append(append([]byte{}, stringErrorID...), packed...)
}

// DecodeStringRevert decodes Error(string) revert data.
func DecodeStringRevert(data []byte) (string, bool) {
	if len(data) < 4 || !bytes.Equal(data[:4], stringErrorID) {
		return "", false
	}
	values, err := stringArgs.Unpack(data[4:])
	if err != nil || len(values) != 1 {
		return "", false
	}
	reason, ok := values[0].(string)
	return reason, ok
}


func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

func formatArgs(args []interface{}) string {
	var buf bytes.Buffer
	for i, arg := range args {
		if i > 0 {
			buf.WriteString(", ")
		}
		switch v := arg.(type) {
		case []byte:
			fmt.Fprintf(&buf, "0x%x", v)
		case [4]byte:
			fmt.Fprintf(&buf, "0x%x", v[:])
		case [32]byte:
			fmt.Fprintf(&buf, "0x%x", v[:])
		default:
			fmt.Fprintf(&buf, "%v", v)
		}
	}
	return buf.String()
}
