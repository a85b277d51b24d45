package protocol

import "github.com/jabolina/lib3h-go/pkg/uri"

// FetchTag distinguishes why the engine asked the client to fetch an entry,
// so HandleFetchEntryResult can be routed back to the right DHT command.
// The tag is attached at the moment the fetch is issued, not recovered in
// a second pass.
type FetchTag int

const (
	FetchForAuthoring FetchTag = iota
	FetchForGossip
)

// ConnectData requests a transport bind/connect.
type ConnectData struct {
	RequestID string
	PeerURI   uri.Uri
	NetworkID NetworkHash
}

// ConnectedData reports a transport connection becoming live.
type ConnectedData struct {
	RequestID string
	URI       uri.Uri
}

// SpaceData identifies a (space, agent) pair for join/leave.
type SpaceData struct {
	RequestID    string
	SpaceAddress SpaceHash
	AgentID      AgentPubKey
}

// DirectMessageData is an application direct message, request or result.
type DirectMessageData struct {
	RequestID    string
	SpaceAddress SpaceHash
	ToAgentID    AgentPubKey
	FromAgentID  AgentPubKey
	Content      []byte
}

// FetchEntryData requests an entry's full body from the client.
type FetchEntryData struct {
	RequestID    string
	SpaceAddress SpaceHash
	EntryAddress EntryHash
	AgentID      AgentPubKey
}

// FetchEntryResultData is the client's answer to FetchEntryData.
type FetchEntryResultData struct {
	RequestID    string
	SpaceAddress SpaceHash
	EntryAddress EntryHash
	Entry        Entry
}

// ProvidedEntryData is an entry the client is publishing or asserting it
// already holds.
type ProvidedEntryData struct {
	RequestID    string
	SpaceAddress SpaceHash
	ProviderID   AgentPubKey
	Entry        Entry
}

// QueryEntryData is a client query against the full-sync application
// state; the engine loops it back to the local client as HandleQueryEntry
// instead of consulting the DHT.
type QueryEntryData struct {
	RequestID    string
	SpaceAddress SpaceHash
	EntryAddress EntryHash
	RequesterID  AgentPubKey
	QueryBytes   []byte
}

// QueryEntryResultData answers a QueryEntryData.
type QueryEntryResultData struct {
	RequestID    string
	SpaceAddress SpaceHash
	EntryAddress EntryHash
	RequesterID  AgentPubKey
	ResultBytes  []byte
}

// EntryListData is the response shape for authoring/gossiping entry list
// requests: for each entry address, the aspect addresses the responder
// reports holding.
type EntryListData struct {
	RequestID    string
	SpaceAddress SpaceHash
	ProviderID   AgentPubKey
	Entries      map[EntryHash][]AspectHash
}

// BootstrapData seeds additional bootstrap URIs after engine init.
type BootstrapData struct {
	RequestID    string
	SpaceAddress SpaceHash
	BootstrapURI uri.Uri
}

// GenericResultData is the common {request_id, space, to_agent} shape
// carried by SuccessResult/FailureResult.
type GenericResultData struct {
	RequestID    string
	SpaceAddress SpaceHash
	ToAgentID    AgentPubKey
	ResultInfo   string
}
