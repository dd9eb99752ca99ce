// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"bytes"
	"fmt"
	"math/big"
	"slices"
	"sort"
	"strings"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
)

// ExtendedABI wraps the standard ABI and adds PackOutput, UnpackInput, PackEvent
// and PackError methods.
type ExtendedABI struct {
	abi.ABI
}

// ParseABI parses the raw ABI JSON and returns an ExtendedABI
func ParseABI(rawABI string) ExtendedABI {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ABI: %v", err))
	}
	return ExtendedABI{ABI: parsed}
}

// Selector returns the 4-byte id of the named method. It panics on an unknown
// name so that selector tables fail at init.
func (e ExtendedABI) Selector(name string) [4]byte {
	method, exist := e.Methods[name]
	if !exist {
		panic(fmt.Sprintf("method '%s' not found", name))
	}
	var sel [4]byte
	copy(sel[:], method.ID)
	return sel
}

// PackOutput packs the given args as the output of given method name to conform the ABI.
// This does not include method ID.
func (e ExtendedABI) PackOutput(name string, args ...interface{}) ([]byte, error) {
	method, exist := e.Methods[name]
	if !exist {
		return nil, fmt.Errorf("method '%s' not found", name)
	}
	return method.Outputs.Pack(args...)
}

// UnpackOutput decodes the return data of the named method.
func (e ExtendedABI) UnpackOutput(name string, data []byte) ([]interface{}, error) {
	method, exist := e.Methods[name]
	if !exist {
		return nil, fmt.Errorf("method '%s' not found", name)
	}
	return method.Outputs.Unpack(data)
}

// UnpackInput unpacks the input into the arguments of method name.
// useStrictMode indicates whether to check the input data length strictly.
func (e ExtendedABI) UnpackInput(name string, data []byte, useStrictMode bool) ([]interface{}, error) {
	method, exist := e.Methods[name]
	if !exist {
		return nil, fmt.Errorf("method '%s' not found", name)
	}
	if useStrictMode && len(data)%32 != 0 {
		return nil, fmt.Errorf("%w: improperly formatted input for %s", ErrInvalidInput, name)
	}
	values, err := method.Inputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return values, nil
}

// PackEvent packs the given event name and arguments to conform the ABI.
// Returns the topics for the event and the packed data of non-indexed args.
func (e ExtendedABI) PackEvent(name string, args ...interface{}) ([]common.Hash, []byte, error) {
	event, exist := e.Events[name]
	if !exist {
		return nil, nil, fmt.Errorf("event '%s' not found", name)
	}
	if len(args) != len(event.Inputs) {
		return nil, nil, fmt.Errorf("event '%s' unexpected number of inputs %d", name, len(args))
	}

	var (
		nonIndexedInputs = make([]interface{}, 0)
		indexedInputs    = make([]interface{}, 0)
		nonIndexedArgs   abi.Arguments
	)

	for i, arg := range event.Inputs {
		if arg.Indexed {
			indexedInputs = append(indexedInputs, args[i])
		} else {
			nonIndexedArgs = append(nonIndexedArgs, arg)
			nonIndexedInputs = append(nonIndexedInputs, args[i])
		}
	}

	packedArguments, err := nonIndexedArgs.Pack(nonIndexedInputs...)
	if err != nil {
		return nil, nil, err
	}

	topics := make([]common.Hash, 0, len(indexedInputs)+1)
	if !event.Anonymous {
		topics = append(topics, event.ID)
	}

	for _, input := range indexedInputs {
		topic, err := packTopic(input)
		if err != nil {
			return nil, nil, err
		}
		topics = append(topics, topic)
	}

	return topics, packedArguments, nil
}

// PackError encodes a custom error: its 4-byte id followed by the ABI encoded
// arguments.
func (e ExtendedABI) PackError(name string, args ...interface{}) ([]byte, error) {
	abiErr, exist := e.Errors[name]
	if !exist {
		return nil, fmt.Errorf("error '%s' not found", name)
	}
	packed, err := abiErr.Inputs.Pack(args...)
	if err != nil {
		return nil, err
	}
	return append(common.CopyBytes(abiErr.ID[:4]), packed...), nil
}

// UnpackError decodes revert data produced by PackError for the named error.
func (e ExtendedABI) UnpackError(name string, data []byte) ([]interface{}, error) {
	abiErr, exist := e.Errors[name]
	if !exist {
		return nil, fmt.Errorf("error '%s' not found", name)
	}
	if len(data) < 4 || !bytes.Equal(data[:4], abiErr.ID[:4]) {
		return nil, fmt.Errorf("%w: not a %s", ErrInvalidInput, name)
	}
	return abiErr.Inputs.Unpack(data[4:])
}

// packTopic packs a single indexed argument into a topic hash
func packTopic(value interface{}) (common.Hash, error) {
	switch v := value.(type) {
	case common.Address:
		return common.BytesToHash(v.Bytes()), nil
	case common.Hash:
		return v, nil
	case [32]byte:
		return common.Hash(v), nil
	case [4]byte:
		var topic common.Hash
		copy(topic[:], v[:])
		return topic, nil
	case *big.Int:
		return common.BigToHash(v), nil
	case []byte:
		return common.BytesToHash(crypto.Keccak256(v)), nil
	case string:
		return common.BytesToHash(crypto.Keccak256([]byte(v))), nil
	default:
		return common.Hash{}, fmt.Errorf("unsupported indexed type: %T", value)
	}
}

// DecodeCall resolves the method named by the selector of input and unpacks
// its arguments.
func (e ExtendedABI) DecodeCall(input []byte) (*abi.Method, []interface{}, error) {
	if len(input) < SelectorLen {
		return nil, nil, fmt.Errorf("%w: input too short", ErrInvalidInput)
	}
	method, err := e.MethodById(input[:SelectorLen])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	values, err := e.UnpackInput(method.Name, input[SelectorLen:], false)
	if err != nil {
		return nil, nil, err
	}
	return method, values, nil
}

// Selectors returns the ids of the named methods.
func (e ExtendedABI) Selectors(names ...string) [][4]byte {
	sels := make([][4]byte, 0, len(names))
	for _, name := range names {
		sels = append(sels, e.Selector(name))
	}
	return sels
}

// RequireNoValue rejects native value sent to a method that is not payable.
func RequireNoValue(method *abi.Method, env AccessibleState) error {
	if method.IsPayable() || env.GetCallValue().IsZero() {
		return nil
	}
	return NewStringRevert(ErrValidation, fmt.Sprintf("%s: non-payable", method.Name))
}

// MethodSelectors returns the ids of every method of e except the excluded
// names, ordered by method name.
func (e ExtendedABI) MethodSelectors(exclude ...string) [][4]byte {
	names := make([]string, 0, len(e.Methods))
	for name := range e.Methods {
		if !slices.Contains(exclude, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return e.Selectors(names...)
}
