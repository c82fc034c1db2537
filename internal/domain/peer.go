package domain

// Peer is a live nlmd instance as registered in the coordination service.
type Peer struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// PeerDirectory reports the nlmd instances currently known to be alive.
type PeerDirectory interface {
	Peers() []Peer
}
