// Package codec holds the payload formats used for lock nodes.
package codec

import (
	"fmt"

	"distributed-nlm/internal/domain"
)

const (
	NameJSON  = "json"
	NameProto = "proto"
)

// New returns the codec registered under name.
func New(name string) (domain.RecordCodec, error) {
	switch name {
	case "", NameJSON:
		return JSON{}, nil
	case NameProto:
		return Proto{}, nil
	default:
		return nil, fmt.Errorf("unknown record codec: %s", name)
	}
}
