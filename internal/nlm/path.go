package nlm

import (
	"encoding/hex"
	"path"
	"strings"
)

const (
	// DefaultRoot is the namespace root all NLM state lives under.
	DefaultRoot = "/nlm"
	// LockPrefix is the name prefix of every lock node.
	LockPrefix = "nlm-lock-"

	filesDir = "files"
	mutexDir = "mutex"
)

// layout derives namespace paths from the configured root.
type layout struct {
	root string
}

func newLayout(root string) layout {
	if root == "" {
		root = DefaultRoot
	}
	return layout{root: path.Clean("/" + root)}
}

// encodeFileID renders a file identifier as upper-case base16.
func encodeFileID(fileID []byte) string {
	return strings.ToUpper(hex.EncodeToString(fileID))
}

// decodeFileID reverses encodeFileID.
func decodeFileID(name string) ([]byte, error) {
	return hex.DecodeString(name)
}

func (l layout) files() string {
	return path.Join(l.root, filesDir)
}

// file is the subtree holding one file's lock nodes.
func (l layout) file(fileID []byte) string {
	return path.Join(l.root, filesDir, encodeFileID(fileID))
}

// mutex is the path the per-file mutex is keyed by. It sits outside the
// files subtree so mutex bookkeeping never shows up as a file's child.
func (l layout) mutex(fileID []byte) string {
	return path.Join(l.root, mutexDir, filesDir, encodeFileID(fileID))
}
