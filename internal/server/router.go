package server

import (
	"context"
	"time"

	"github.com/litchat/relay/internal/broker"
	"github.com/litchat/relay/internal/crypto/payload"
	"github.com/litchat/relay/internal/history"
	"github.com/litchat/relay/internal/member"
	"github.com/litchat/relay/internal/message"
	"github.com/litchat/relay/internal/offline"
	"github.com/litchat/relay/internal/protocol"
	"github.com/litchat/relay/internal/route"
	"github.com/litchat/relay/internal/session"
	"go.uber.org/zap"
)

// RouterOptions wires the router's collaborators.
type RouterOptions struct {
	Log      *zap.Logger
	Registry *session.Registry
	Routes   *route.Table
	Offline  *offline.Queue
	Members  *member.Cache
	History  history.Store
	Broker   broker.Broker
	Cipher   *payload.Cipher
	Metrics  *relayMetrics
	Topic    string
}

// Router dispatches chat messages: locally when the recipient is on this
// node, through the shared broadcast channel when another node holds the
// connection, and into the offline queue when nobody does.
type Router struct {
	log      *zap.Logger
	registry *session.Registry
	routes   *route.Table
	offline  *offline.Queue
	members  *member.Cache
	history  history.Store
	broker   broker.Broker
	cipher   *payload.Cipher
	metrics  *relayMetrics
	topic    string

	sub broker.Subscription
}

// NewRouter builds a router from its collaborators.
func NewRouter(opts RouterOptions) *Router {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		log:      log,
		registry: opts.Registry,
		routes:   opts.Routes,
		offline:  opts.Offline,
		members:  opts.Members,
		history:  opts.History,
		broker:   opts.Broker,
		cipher:   opts.Cipher,
		metrics:  opts.Metrics,
		topic:    opts.Topic,
	}
}

// Start subscribes the router to the shared broadcast topic. Every node
// consumes the same topic and filters against its local registry; this is
// the only delivery path for group chat, including on the publishing node.
func (r *Router) Start(ctx context.Context) error {
	sub, err := r.broker.Subscribe(ctx, r.topic, r.consume)
	if err != nil {
		return err
	}
	r.sub = sub
	return nil
}

// Stop detaches the broadcast consumer.
func (r *Router) Stop() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
		r.sub = nil
	}
}

// HandleSingleChat routes one single-chat payload: history write, then local
// fast path, then cross-node broadcast, then offline queue.
func (r *Router) HandleSingleChat(ctx context.Context, p protocol.ChatPayload) {
	m := message.Message{
		Kind:         message.KindSingle,
		SenderID:     p.SenderID,
		TargetUserID: p.TargetID,
		Content:      p.Content,
		Timestamp:    p.Timestamp,
	}
	r.appendHistory(ctx, m)

	if conn, ok := r.registry.Get(p.TargetID); ok {
		r.deliver(conn, m)
		r.metrics.recordDelivery("local")
		return
	}

	addr, found, err := r.routes.Lookup(ctx, p.TargetID)
	if err != nil {
		// Degrade to best effort: without a route answer the message
		// falls through to the offline queue.
		r.log.Warn("route lookup failed", zap.Int64("target_id", p.TargetID), zap.Error(err))
		r.metrics.recordError("route_lookup")
	}
	if found {
		r.publish(ctx, m)
		r.log.Debug("routed message via broadcast",
			zap.Int64("target_id", p.TargetID), zap.String("target_node", addr))
		return
	}

	if err := r.offline.Enqueue(ctx, p.TargetID, m); err != nil {
		r.log.Warn("offline enqueue failed", zap.Int64("target_id", p.TargetID), zap.Error(err))
		r.metrics.recordError("offline_enqueue")
		return
	}
	r.metrics.recordDelivery("offline")
	r.log.Debug("recipient offline, message queued", zap.Int64("target_id", p.TargetID))
}

// HandleGroupChat routes one group-chat payload: history write, then an
// unconditional publish. Local members are reached through this node's own
// subscription, never through a publish-side shortcut.
func (r *Router) HandleGroupChat(ctx context.Context, p protocol.ChatPayload) {
	m := message.Message{
		Kind:      message.KindGroup,
		SenderID:  p.SenderID,
		SessionID: p.TargetID,
		Content:   p.Content,
		Timestamp: p.Timestamp,
	}
	r.appendHistory(ctx, m)
	r.publish(ctx, m)
}

// ReplayOffline pushes userID's queued messages to its (re)connected local
// session in enqueue order, then clears the queue. If the connection is
// already gone the queue is left intact for the next reconnect.
func (r *Router) ReplayOffline(ctx context.Context, userID int64) {
	msgs, err := r.offline.Pending(ctx, userID)
	if err != nil {
		r.log.Warn("offline replay read failed", zap.Int64("user_id", userID), zap.Error(err))
		r.metrics.recordError("offline_replay")
		return
	}
	if len(msgs) == 0 {
		return
	}
	conn, ok := r.registry.Get(userID)
	if !ok {
		return
	}
	for _, m := range msgs {
		r.deliver(conn, m)
	}
	if err := r.offline.Clear(ctx, userID); err != nil {
		r.log.Warn("offline queue clear failed", zap.Int64("user_id", userID), zap.Error(err))
		r.metrics.recordError("offline_clear")
		return
	}
	r.metrics.recordReplayed(len(msgs))
	r.log.Info("replayed offline messages", zap.Int64("user_id", userID), zap.Int("count", len(msgs)))
}

// consume handles one message from the shared topic, delivering to whichever
// recipients hold sessions on this node. Nodes with no local recipients do
// nothing.
func (r *Router) consume(ctx context.Context, data []byte) {
	m, err := message.Decode(data)
	if err != nil {
		r.log.Warn("dropping undecodable broadcast message", zap.Error(err))
		r.metrics.recordError("broadcast_decode")
		return
	}

	switch m.Kind {
	case message.KindSingle:
		r.deliverLocal(m.TargetUserID, m)
	case message.KindGroup:
		ids, err := r.members.Members(ctx, m.SessionID)
		if err != nil {
			r.log.Warn("membership resolution failed",
				zap.Int64("session_id", m.SessionID), zap.Error(err))
			r.metrics.recordError("membership")
			return
		}
		for _, id := range ids {
			r.deliverLocal(id, m)
		}
	default:
		r.log.Warn("dropping broadcast message of unknown kind", zap.Int("kind", m.Kind))
	}
}

func (r *Router) deliverLocal(userID int64, m message.Message) {
	conn, ok := r.registry.Get(userID)
	if !ok {
		return
	}
	r.deliver(conn, m)
	r.metrics.recordDelivery("consume_local")
}

// deliver encodes m as a chat frame and enqueues it on the connection,
// sealing the content first when payload encryption is on.
func (r *Router) deliver(conn session.Conn, m message.Message) {
	cmd := protocol.CmdSingleChat
	targetID := m.TargetUserID
	if m.Kind == message.KindGroup {
		cmd = protocol.CmdGroupChat
		targetID = m.SessionID
	}
	p := protocol.ChatPayload{
		SenderID:  m.SenderID,
		TargetID:  targetID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if err := r.cipher.EncryptPayload(&p); err != nil {
		r.log.Warn("payload encryption failed", zap.Error(err))
		r.metrics.recordError("encrypt")
		return
	}
	f, err := protocol.NewFrame(cmd, uint64(time.Now().UnixMilli()), p)
	if err != nil {
		r.log.Warn("frame encode failed", zap.Error(err))
		return
	}
	if err := conn.Send(f); err != nil {
		r.log.Warn("local delivery failed",
			zap.String("conn_id", conn.ID()), zap.Error(err))
		r.metrics.recordError("send")
	}
}

func (r *Router) publish(ctx context.Context, m message.Message) {
	data, err := m.Encode()
	if err != nil {
		r.log.Warn("broadcast encode failed", zap.Error(err))
		return
	}
	if err := r.broker.Publish(ctx, r.topic, data); err != nil {
		// Best effort: the protocol has no delivery acknowledgment to
		// surface this to the sender.
		r.log.Warn("broadcast publish failed", zap.Error(err))
		r.metrics.recordError("publish")
		return
	}
	r.metrics.recordDelivery("broadcast")
}

// appendHistory is fire-and-forget: failures are logged, never surfaced.
func (r *Router) appendHistory(ctx context.Context, m message.Message) {
	if r.history == nil {
		return
	}
	if err := r.history.Append(ctx, m); err != nil {
		r.log.Warn("history append failed", zap.Error(err))
		r.metrics.recordError("history")
	}
}
