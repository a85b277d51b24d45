package protocol

// ClientToLib3hKind tags a message the client posts into the engine's
// inbox.
type ClientToLib3hKind int

const (
	ClientConnect ClientToLib3hKind = iota
	ClientJoinSpace
	ClientLeaveSpace
	ClientSendDirectMessage
	ClientFetchEntry
	ClientPublishEntry
	ClientHoldEntry
	ClientQueryEntry
	ClientBootstrap
	ClientShutdown
	ClientHandleSendDirectMessageResult
	ClientHandleFetchEntryResult
	ClientHandleQueryEntryResult
	ClientHandleGetAuthoringEntryListResult
	ClientHandleGetGossipingEntryListResult
)

// ClientToLib3h is the tagged union of inbound client messages.
type ClientToLib3h struct {
	Kind ClientToLib3hKind

	Connect           *ConnectData
	JoinSpace         *SpaceData
	LeaveSpace        *SpaceData
	SendDirectMessage *DirectMessageData
	FetchEntry        *FetchEntryData
	PublishEntry      *ProvidedEntryData
	HoldEntry         *ProvidedEntryData
	QueryEntry        *QueryEntryData
	Bootstrap         *BootstrapData

	HandleSendDirectMessageResult     *DirectMessageData
	HandleFetchEntryResult            *FetchEntryResultData
	HandleQueryEntryResult            *QueryEntryResultData
	HandleGetAuthoringEntryListResult *EntryListData
	HandleGetGossipingEntryListResult *EntryListData
}

// Lib3hToClientKind tags a message the engine posts into the client's
// outbox.
type Lib3hToClientKind int

const (
	EngineConnected Lib3hToClientKind = iota
	EngineDisconnected
	EngineUnbound
	EngineHandleSendDirectMessage
	EngineHandleFetchEntry
	EngineHandleStoreEntryAspect
	EngineHandleDropEntry
	EngineHandleQueryEntry
	EngineHandleGetAuthoringEntryList
	EngineHandleGetGossipingEntryList
	EngineSuccessResult
	EngineFailureResult
	EngineQueryEntryResult
	EngineSendDirectMessageResult
)

// StoreEntryAspectData is the payload of HandleStoreEntryAspect.
type StoreEntryAspectData struct {
	RequestID    string
	SpaceAddress SpaceHash
	ProviderID   AgentPubKey
	EntryAddress EntryHash
	Aspect       EntryAspect
}

// DropEntryData is the payload of HandleDropEntry.
type DropEntryData struct {
	SpaceAddress SpaceHash
	EntryAddress EntryHash
}

// GetListData requests an authoring or gossiping entry list from the
// client.
type GetListData struct {
	RequestID    string
	SpaceAddress SpaceHash
	ProviderID   AgentPubKey
}

// Lib3hToClient is the tagged union of outbound engine messages.
type Lib3hToClient struct {
	Kind Lib3hToClientKind

	Connected                   *ConnectedData
	Unbound                     *UnboundData
	HandleSendDirectMessage     *DirectMessageData
	HandleFetchEntry            *FetchEntryData
	HandleStoreEntryAspect      *StoreEntryAspectData
	HandleDropEntry             *DropEntryData
	HandleQueryEntry            *QueryEntryData
	HandleGetAuthoringEntryList *GetListData
	HandleGetGossipingEntryList *GetListData
	SuccessResult               *GenericResultData
	FailureResult               *GenericResultData
	QueryEntryResult            *QueryEntryResultData
	SendDirectMessageResult     *DirectMessageData
}

// UnboundData is the payload of the Unbound event.
type UnboundData struct {
	URI string
}
