package protocol

import "github.com/vmihailenco/msgpack/v5"

// MarshalMsgpack renders an AgentPubKey as its raw address bytes; the
// backing libp2p key (if any) never goes on the wire.
func (a AgentPubKey) MarshalMsgpack() ([]byte, error) {
	return msgpack.Marshal(a.hash[:])
}

// UnmarshalMsgpack reads an AgentPubKey back from its raw address bytes.
func (a *AgentPubKey) UnmarshalMsgpack(data []byte) error {
	var b []byte
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return err
	}
	*a = NewAgentPubKey(b)
	return nil
}

// MarshalMsgpack renders a NodePubKey as its raw address bytes.
func (n NodePubKey) MarshalMsgpack() ([]byte, error) {
	return msgpack.Marshal(n.hash[:])
}

// UnmarshalMsgpack reads a NodePubKey back from its raw address bytes.
func (n *NodePubKey) UnmarshalMsgpack(data []byte) error {
	var b []byte
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return err
	}
	*n = NewNodePubKey(b)
	return nil
}
