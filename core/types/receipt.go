package types

// Receipt describes a committed transaction and the events it produced.
type Receipt struct {
	TxHash string   `json:"txHash"`
	Type   string   `json:"type"`
	Sender string   `json:"sender"`
	Nonce  uint64   `json:"nonce"`
	Events []*Event `json:"events"`
}
