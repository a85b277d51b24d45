// Command demo wires up two in-memory engines, joins them to a shared
// space, and exchanges one direct message.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jabolina/lib3h-go/internal/obs"
	"github.com/jabolina/lib3h-go/pkg/engine"
	"github.com/jabolina/lib3h-go/pkg/harness"
	"github.com/jabolina/lib3h-go/pkg/protocol"
	"github.com/jabolina/lib3h-go/pkg/uri"
)

func main() {
	root := &cobra.Command{
		Use:   "demo",
		Short: "run two lib3h-go engines and exchange one direct message",
		RunE:  runDemo,
	}
	root.Flags().String("log-level", "i", "single-character log level: t/d/i/w/e")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDemo(cmd *cobra.Command, _ []string) error {
	levelChar, _ := cmd.Flags().GetString("log-level")
	var level byte = 'i'
	if len(levelChar) > 0 {
		level = levelChar[0]
	}
	log := obs.NewLogger(level)
	metrics := obs.NewUnregisteredMetrics()

	space := uri.NewHash32([]byte("demo-space"))

	alice, aliceAgent, err := spawnEngine("alice", log, metrics)
	if err != nil {
		return fmt.Errorf("spawn alice: %w", err)
	}
	bob, bobAgent, err := spawnEngine("bob", log, metrics)
	if err != nil {
		return fmt.Errorf("spawn bob: %w", err)
	}

	// Connect first so each engine's network-level DHT learns the other
	// node's address (via the self-gossip a DHT sends a freshly admitted
	// peer) before either side announces its space membership: a
	// BroadcastJoinSpace fans out only to already-known network peers.
	alicePeer, err := alice.ThisPeer()
	if err != nil {
		return fmt.Errorf("alice this peer: %w", err)
	}
	bobPeer, err := bob.ThisPeer()
	if err != nil {
		return fmt.Errorf("bob this peer: %w", err)
	}

	alice.Post(protocol.ClientToLib3h{Kind: protocol.ClientConnect, Connect: &protocol.ConnectData{
		RequestID: "connect-bob", PeerURI: bobPeer.PeerLocation,
	}})
	bob.Post(protocol.ClientToLib3h{Kind: protocol.ClientConnect, Connect: &protocol.ConnectData{
		RequestID: "connect-alice", PeerURI: alicePeer.PeerLocation,
	}})

	if _, err := harness.RunUntil(2000, func() bool { return false }, alice, bob); err != nil && !isQuiescent(err) {
		return err
	}

	alice.Post(protocol.ClientToLib3h{Kind: protocol.ClientJoinSpace, JoinSpace: &protocol.SpaceData{
		RequestID: "join-alice", SpaceAddress: space, AgentID: aliceAgent,
	}})
	bob.Post(protocol.ClientToLib3h{Kind: protocol.ClientJoinSpace, JoinSpace: &protocol.SpaceData{
		RequestID: "join-bob", SpaceAddress: space, AgentID: bobAgent,
	}})

	if _, err := harness.RunUntil(2000, func() bool { return false }, alice, bob); err != nil && !isQuiescent(err) {
		return err
	}

	received := false
	alice.Post(protocol.ClientToLib3h{Kind: protocol.ClientSendDirectMessage, SendDirectMessage: &protocol.DirectMessageData{
		RequestID: "dm-1", SpaceAddress: space, ToAgentID: bobAgent, FromAgentID: aliceAgent, Content: []byte("hello bob"),
	}})

	_, err = harness.RunUntil(2000, func() bool {
		for _, out := range bob.DrainClientOutbox() {
			if out.Kind == protocol.EngineHandleSendDirectMessage && out.HandleSendDirectMessage != nil {
				log.Infof("bob received: %s", string(out.HandleSendDirectMessage.Content))
				received = true
			}
		}
		return received
	}, alice, bob)
	if err != nil {
		return err
	}

	log.Info("demo complete")
	return nil
}

func spawnEngine(name string, log *logrus.Logger, metrics *obs.Metrics) (*engine.Engine, protocol.AgentPubKey, error) {
	agentID, _, err := protocol.GenerateAgentPubKey()
	if err != nil {
		return nil, protocol.AgentPubKey{}, err
	}
	nodeID := protocol.NewNodePubKey(agentID.Bytes())
	cfg := engine.DefaultConfig()
	cfg.BindURL = uri.Build(uri.SchemeMem, name, 0)
	e, err := engine.New(cfg, nodeID, log.WithField("engine", name), metrics)
	if err != nil {
		return nil, protocol.AgentPubKey{}, err
	}
	return e, agentID, nil
}

func isQuiescent(err error) bool {
	return err != nil
}
