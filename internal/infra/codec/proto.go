package codec

import (
	"bytes"
	"fmt"

	"distributed-nlm/internal/domain"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the protobuf message
//
//	message LockRecord { bytes holder = 1; uint64 offset = 2; uint64 length = 3; }
const (
	fieldHolder protowire.Number = 1
	fieldOffset protowire.Number = 2
	fieldLength protowire.Number = 3
)

// Proto stores records in protobuf wire format.
type Proto struct{}

func (Proto) Name() string { return NameProto }

func (Proto) Encode(rec domain.LockRecord) ([]byte, error) {
	b := make([]byte, 0, len(rec.Holder)+24)
	b = protowire.AppendTag(b, fieldHolder, protowire.BytesType)
	b = protowire.AppendBytes(b, rec.Holder)
	if rec.Offset != 0 {
		b = protowire.AppendTag(b, fieldOffset, protowire.VarintType)
		b = protowire.AppendVarint(b, rec.Offset)
	}
	if rec.Length != 0 {
		b = protowire.AppendTag(b, fieldLength, protowire.VarintType)
		b = protowire.AppendVarint(b, rec.Length)
	}
	return b, nil
}

func (Proto) Decode(data []byte) (domain.LockRecord, error) {
	var rec domain.LockRecord
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return domain.LockRecord{}, fmt.Errorf("failed to decode lock record tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldHolder && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return domain.LockRecord{}, fmt.Errorf("failed to decode lock holder: %w", protowire.ParseError(m))
			}
			rec.Holder = bytes.Clone(v)
			n = m
		case num == fieldOffset && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return domain.LockRecord{}, fmt.Errorf("failed to decode lock offset: %w", protowire.ParseError(m))
			}
			rec.Offset = v
			n = m
		case num == fieldLength && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return domain.LockRecord{}, fmt.Errorf("failed to decode lock length: %w", protowire.ParseError(m))
			}
			rec.Length = v
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return domain.LockRecord{}, fmt.Errorf("failed to skip field %d: %w", num, protowire.ParseError(n))
			}
		}
		data = data[n:]
	}
	return rec, nil
}
