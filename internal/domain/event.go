package domain

type ChangeOp string

const (
	ChangeAdd    ChangeOp = "add"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// Change is a single product-level delta carried by a stream event.
type Change struct {
	Op      ChangeOp `json:"op"`
	Section string   `json:"section,omitempty"`
	Product Product  `json:"product"`
}

// MenuEvent is one event of a menu stream. The first event of a session
// either confirms the caller's fingerprint or carries a full catalog;
// every later event is a delta.
type MenuEvent struct {
	Fingerprint string   `json:"fingerprint,omitempty"`
	Version     string   `json:"version,omitempty"`
	Catalog     *Catalog `json:"catalog,omitempty"`
	Changes     []Change `json:"changes,omitempty"`
}

func (e MenuEvent) HasCatalog() bool {
	return e.Catalog != nil
}

// StreamStatus is an out-of-band status frame sent by the stream transport.
type StreamStatus struct {
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}
