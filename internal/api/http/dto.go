package http

import (
	"encoding/hex"

	"distributed-nlm/internal/domain"
)

// LockRequest is the DTO for lock, unlock and test calls. FileID and Holder
// are hex encoded; the holder may be empty.
type LockRequest struct {
	FileID string `json:"file_id" validate:"required,hexbytes,max=256"`
	Holder string `json:"holder" validate:"hexstring,max=2048"`
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// ToDomain converts the request into a file id and a lock record. It must
// only be called on a validated request.
func (r *LockRequest) ToDomain() ([]byte, domain.LockRecord) {
	fileID, _ := hex.DecodeString(r.FileID)
	holder, _ := hex.DecodeString(r.Holder)
	return fileID, domain.NewLockRecord(holder, r.Offset, r.Length)
}

// LockResponse reports the outcome of a lock, unlock or test call.
type LockResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// HeldLockResponse is one entry of GET /files/{hex}/locks. Holder is hex.
type HeldLockResponse struct {
	Node   string `json:"node"`
	Holder string `json:"holder"`
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

func toHeldLockResponses(held []domain.HeldLock) []HeldLockResponse {
	out := make([]HeldLockResponse, 0, len(held))
	for _, h := range held {
		out = append(out, HeldLockResponse{
			Node:   h.Node,
			Holder: hex.EncodeToString(h.Record.Holder),
			Offset: h.Record.Offset,
			Length: h.Record.Length,
		})
	}
	return out
}
