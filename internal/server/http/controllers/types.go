package controllers

import "encoding/json"

// insertResp is returned by a successful insert.
type insertResp struct {
	Index uint64 `json:"index"`
}

// entryJSON is one stream entry rendered for clients.
type entryJSON struct {
	Index uint64          `json:"index"`
	Value json.RawMessage `json:"value"`
}

type entriesResp struct {
	Stream  string      `json:"stream"`
	Entries []entryJSON `json:"entries"`
}

type waitResp struct {
	Index uint64          `json:"index"`
	Found bool            `json:"found"`
	Value json.RawMessage `json:"value,omitempty"`
}

type releaseResp struct {
	Released  uint64 `json:"released"`
	Compacted uint64 `json:"compacted"`
}

type joinReq struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}
