package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// fieldAccessor looks up unpacked abi.Arguments values by name, matching
// Inputs.NonIndexed() order against the returned value slice. Declared once
// here instead of re-deriving the positional index in every Decode*
// function.
type fieldAccessor struct {
	spec   EventSpec
	values []interface{}
}

func fieldGetter(spec EventSpec, values []interface{}) fieldAccessor {
	return fieldAccessor{spec: spec, values: values}
}

func (f fieldAccessor) lookup(name string) (interface{}, error) {
	i := 0
	for _, arg := range f.spec.ABI.Inputs {
		if arg.Indexed {
			continue
		}
		if arg.Name == name {
			if i >= len(f.values) {
				return nil, fmt.Errorf("%w: %s: missing field %q", ErrMalformed, f.spec.Name, name)
			}
			return f.values[i], nil
		}
		i++
	}
	return nil, fmt.Errorf("%w: %s: unknown field %q", ErrMalformed, f.spec.Name, name)
}

func (f fieldAccessor) bigInt(name string) (*big.Int, error) {
	v, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s: field %q not a uint256", ErrMalformed, f.spec.Name, name)
	}
	return n, nil
}

func (f fieldAccessor) address(name string) (common.Address, error) {
	v, err := f.lookup(name)
	if err != nil {
		return common.Address{}, err
	}
	a, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s: field %q not an address", ErrMalformed, f.spec.Name, name)
	}
	return a, nil
}

func (f fieldAccessor) str(name string) (string, error) {
	v, err := f.lookup(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s: field %q not a string", ErrMalformed, f.spec.Name, name)
	}
	return s, nil
}

func (f fieldAccessor) uint8(name string) (uint8, error) {
	v, err := f.lookup(name)
	if err != nil {
		return 0, err
	}
	u, ok := v.(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: %s: field %q not a uint8", ErrMalformed, f.spec.Name, name)
	}
	return u, nil
}

// topicWord decodes a fixed 32-byte indexed topic word into a *big.Int,
// matching the left-padded uint256 encoding Solidity uses for indexed
// numeric parameters.
type topicWord struct {
	hash common.Hash
}

func (t *topicWord) fromHash(h common.Hash) *topicWord {
	t.hash = h
	return t
}

func (t *topicWord) bigInt() *big.Int {
	return new(big.Int).SetBytes(t.hash.Bytes())
}
