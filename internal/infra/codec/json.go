package codec

import (
	"encoding/json"
	"fmt"

	"distributed-nlm/internal/domain"
)

// JSON stores records as {"holder": <base64>, "offset": n, "length": n}.
type JSON struct{}

func (JSON) Name() string { return NameJSON }

func (JSON) Encode(rec domain.LockRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock record to JSON: %w", err)
	}
	return data, nil
}

func (JSON) Decode(data []byte) (domain.LockRecord, error) {
	var rec domain.LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.LockRecord{}, fmt.Errorf("failed to unmarshal lock record from JSON: %w", err)
	}
	return rec, nil
}
