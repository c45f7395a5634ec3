package gatewaysession

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clawbernetes/clawgatewayd/internal/attestation"
	"github.com/clawbernetes/clawgatewayd/internal/clawid"
	"github.com/clawbernetes/clawgatewayd/internal/clawlog"
	"github.com/clawbernetes/clawgatewayd/internal/clawproto"
	"github.com/clawbernetes/clawgatewayd/internal/dispatcher"
	"github.com/clawbernetes/clawgatewayd/internal/mesh"
)

const (
	readLimitBytes       = 64 * 1024
	readTimeout          = 60 * time.Second
	writeTimeout         = 10 * time.Second
	heartbeatPeriod      = 30 * time.Second
	defaultInvokeTimeout = 30 * time.Second
)

// Server accepts node connections and owns the live Session set, keyed
// by node id once paired.
type Server struct {
	upgrader   websocket.Upgrader
	dispatcher *dispatcher.Dispatcher
	allocator  *mesh.Allocator
	logger     *clawlog.Logger
	verifierID string
	nonceCache *attestation.NonceCache
	attCfg     attestation.Config

	mu       sync.RWMutex
	byNodeID map[clawid.NodeId]*Session
}

// NewServer constructs a Server over an existing Dispatcher and mesh
// Allocator. allocator may be nil, in which case pairing never admits a
// node into the WireGuard overlay.
func NewServer(d *dispatcher.Dispatcher, verifierID string, allocator *mesh.Allocator) *Server {
	return &Server{
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		dispatcher: d,
		allocator:  allocator,
		logger:     clawlog.Named("gatewaysession"),
		verifierID: verifierID,
		nonceCache: attestation.NewNonceCache(attestation.DefaultConfig().NonceCacheSize),
		attCfg:     attestation.DefaultConfig(),
		byNodeID:   make(map[clawid.NodeId]*Session),
	}
}

// ServeHTTP upgrades an incoming connection to WebSocket and runs its
// session loop until the connection closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("upgrade failed: %v", err)
		return
	}
	sess := newSession(s, conn)
	sess.run()
}

func (s *Server) registerSession(nodeID clawid.NodeId, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byNodeID[nodeID] = sess
}

func (s *Server) unregisterSession(nodeID clawid.NodeId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byNodeID, nodeID)
}

// Invoke sends a node.invoke.request event to a paired node and returns
// a channel that receives its correlated result (or a local Timeout /
// ConnectionClosed error if none arrives).
func (s *Server) Invoke(nodeID clawid.NodeId, command string, params json.RawMessage, timeoutMs *uint64) (<-chan InvokeOutcome, error) {
	s.mu.RLock()
	sess, ok := s.byNodeID[nodeID]
	s.mu.RUnlock()
	if !ok {
		return nil, &clawproto.NodeNotFoundError{NodeID: nodeID}
	}
	return sess.sendInvoke(command, params, timeoutMs)
}

// encodeGatewayMessage turns a Dispatcher GatewayMessage into the
// command/params pair carried by a node.invoke.request event.
func encodeGatewayMessage(cmd clawproto.GatewayMessage) (string, json.RawMessage, error) {
	switch m := cmd.(type) {
	case clawproto.StartWorkload:
		params, err := json.Marshal(struct {
			WorkloadID string                `json:"workload_id"`
			Spec       clawproto.WorkloadSpec `json:"spec"`
		}{WorkloadID: m.WorkloadID.String(), Spec: m.Spec})
		return "start_workload", params, err
	case clawproto.StopWorkload:
		params, err := json.Marshal(struct {
			WorkloadID      string `json:"workload_id"`
			GracePeriodSecs uint32 `json:"grace_period_secs"`
		}{WorkloadID: m.WorkloadID.String(), GracePeriodSecs: m.GracePeriodSecs})
		return "stop_workload", params, err
	default:
		return "", nil, fmt.Errorf("gatewaysession: unrecognized GatewayMessage %T", cmd)
	}
}

// DeliverCommand encodes and sends a GatewayMessage to its assigned node.
// It does not block on the node's eventual response; the result (or
// timeout) is logged asynchronously once it resolves.
func (s *Server) DeliverCommand(nodeID clawid.NodeId, cmd clawproto.GatewayMessage) error {
	if cmd == nil {
		return nil
	}
	name, params, err := encodeGatewayMessage(cmd)
	if err != nil {
		return err
	}
	outcomeCh, err := s.Invoke(nodeID, name, params, nil)
	if err != nil {
		return err
	}
	go func() {
		outcome := <-outcomeCh
		if outcome.Err != nil {
			s.logger.Warnf("%s on node %s did not complete: %v", name, nodeID, outcome.Err)
			return
		}
		if !outcome.Result.OK {
			s.logger.Warnf("%s on node %s reported failure", name, nodeID)
		}
	}()
	return nil
}

// DeliverAll delivers every command produced by a Dispatcher scheduling
// pass (RegisterNode, TryDispatchPending), logging per-workload delivery
// failures without aborting the rest of the batch.
func (s *Server) DeliverAll(results []dispatcher.DispatchResult) {
	for _, r := range results {
		if err := s.DeliverCommand(r.NodeID, r.Command); err != nil {
			s.logger.Warnf("failed to deliver command for workload %s to node %s: %v", r.WorkloadID, r.NodeID, err)
		}
	}
}

// Session is one node's live WebSocket connection.
type Session struct {
	server  *Server
	conn    *websocket.Conn
	writeMu sync.Mutex

	nodeID   *clawid.NodeId
	protocol int

	pendingMu sync.Mutex
	pending   map[string]chan InvokeOutcome
	nextID    int

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(s *Server, conn *websocket.Conn) *Session {
	return &Session{
		server:  s,
		conn:    conn,
		pending: make(map[string]chan InvokeOutcome),
		done:    make(chan struct{}),
	}
}

func (sess *Session) run() {
	defer sess.teardown()

	sess.conn.SetReadLimit(readLimitBytes)
	sess.conn.SetReadDeadline(time.Now().Add(readTimeout))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go sess.pingLoop()
	go sess.heartbeatWatchdog()

	defer func() {
		if r := recover(); r != nil {
			sess.server.logger.Errorf("session panic: %v", r)
		}
	}()

	for {
		messageType, message, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				sess.server.logger.Warnf("read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := sess.handleFrame(message); err != nil {
			sess.server.logger.Warnf("frame handling error: %v", err)
		}
	}
}

func (sess *Session) pingLoop() {
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-sess.done:
			return
		case <-ticker.C:
			sess.writeMu.Lock()
			sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := sess.conn.WriteMessage(websocket.PingMessage, nil)
			sess.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// heartbeatWatchdog is a placeholder hook point for liveness enforcement
// beyond the transport-level ping/pong (e.g. missing node.event
// heartbeat frames); the transport-level ReadDeadline already tears down
// dead connections, so this currently only waits for session close.
func (sess *Session) heartbeatWatchdog() {
	<-sess.done
}

func (sess *Session) teardown() {
	sess.closeOnce.Do(func() {
		close(sess.done)
		sess.conn.Close()

		sess.pendingMu.Lock()
		pending := sess.pending
		sess.pending = make(map[string]chan InvokeOutcome)
		sess.pendingMu.Unlock()
		for _, ch := range pending {
			ch <- InvokeOutcome{Err: &clawproto.ConnectionClosedError{}}
			close(ch)
		}

		if sess.nodeID != nil {
			sess.server.unregisterSession(*sess.nodeID)
			if err := sess.server.dispatcher.UnregisterNode(*sess.nodeID); err != nil {
				sess.server.logger.Warnf("node-loss unregister failed for %s: %v", sess.nodeID, err)
			}
		}
	})
}

func (sess *Session) handleFrame(raw []byte) error {
	kind, err := clawproto.SniffFrameKind(raw)
	if err != nil {
		return sess.protocolViolation("malformed frame: " + err.Error())
	}
	switch kind {
	case clawproto.FrameRequest:
		var req clawproto.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return sess.protocolViolation(err.Error())
		}
		return sess.handleRequest(req)
	case clawproto.FrameEvent:
		var ev clawproto.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return sess.protocolViolation(err.Error())
		}
		return sess.handleEvent(ev)
	default:
		return sess.protocolViolation("unrecognized frame shape")
	}
}

func (sess *Session) handleRequest(req clawproto.Request) error {
	switch req.Method {
	case MethodConnect:
		return sess.handleConnect(req)
	case MethodNodePairRequest:
		return sess.handlePairRequest(req)
	case MethodNodeInvokeResult:
		return sess.handleInvokeResult(req)
	case MethodHello:
		return sess.replyResult(req.ID, HelloResult{Protocol: MaxProtocolVersion})
	default:
		return sess.replyError(req.ID, &clawproto.ProtocolViolationError{Detail: "unrecognized method " + req.Method})
	}
}

func (sess *Session) handleEvent(ev clawproto.Event) error {
	switch ev.Event {
	case "heartbeat":
		var hb HeartbeatPayload
		if err := json.Unmarshal(ev.Payload, &hb); err != nil {
			return sess.protocolViolation(err.Error())
		}
		nodeID, err := clawid.ParseNodeId(hb.NodeID)
		if err != nil {
			return sess.protocolViolation("bad node_id: " + err.Error())
		}
		return sess.server.dispatcher.Registry().Heartbeat(nodeID, time.Now())
	default:
		return sess.protocolViolation("unrecognized event " + ev.Event)
	}
}

func (sess *Session) handleConnect(req clawproto.Request) error {
	var params ConnectParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return sess.protocolViolation(err.Error())
	}
	proto, err := NegotiateProtocol(params.MinProtocol, params.MaxProtocol)
	if err != nil {
		return sess.replyError(req.ID, &clawproto.ProtocolViolationError{Detail: err.Error()})
	}
	sess.protocol = proto
	return sess.replyResult(req.ID, HelloResult{Protocol: proto})
}

func (sess *Session) handlePairRequest(req clawproto.Request) error {
	var params PairRequestParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return sess.protocolViolation(err.Error())
	}
	nodeID, err := clawid.ParseNodeId(params.NodeID)
	if err != nil {
		return sess.protocolViolation("bad node_id: " + err.Error())
	}

	if _, ok := sess.server.dispatcher.Registry().GetNode(nodeID); !ok {
		var caps clawproto.NodeCapabilities
		if len(params.Caps) > 0 {
			if err := json.Unmarshal(params.Caps, &caps); err != nil {
				return sess.protocolViolation("bad caps: " + err.Error())
			}
		}
		results, err := sess.server.dispatcher.RegisterNode(nodeID, caps)
		var dup *clawproto.DuplicateNodeError
		if err != nil && !errors.As(err, &dup) {
			return sess.replyError(req.ID, asClawError(err))
		}
		sess.server.DeliverAll(results)
	}

	sess.nodeID = &nodeID
	sess.server.registerSession(nodeID, sess)

	meshAssignment, err := sess.admitToMesh(nodeID, params)
	if err != nil {
		return sess.replyError(req.ID, asClawError(err))
	}

	token := fmt.Sprintf("pair-%s-%d", nodeID, time.Now().UnixNano())
	return sess.replyResult(req.ID, PairResult{Token: token, Mesh: meshAssignment})
}

// admitToMesh allocates a mesh IP and workload subnet and registers the
// node's WireGuard overlay position on its first pairing. It is a no-op
// (nil, nil) when there is no allocator or the node is already in the
// mesh topology.
func (sess *Session) admitToMesh(nodeID clawid.NodeId, params PairRequestParams) (*MeshAssignment, error) {
	allocator := sess.server.allocator
	if allocator == nil {
		return nil, nil
	}
	if _, ok := allocator.GetNode(nodeID); ok {
		return nil, nil
	}

	region := clawid.ParseRegion(params.Region)
	meshIP, err := allocator.AllocateNodeIP(region)
	if err != nil {
		return nil, err
	}
	subnet, err := allocator.AllocateWorkloadSubnet(nodeID)
	if err != nil {
		return nil, err
	}
	meshNode := clawproto.MeshNode{
		NodeID:          nodeID,
		MeshIP:          meshIP,
		WorkloadSubnet:  subnet,
		WireguardPubkey: params.WireguardPubkey,
		Region:          region,
	}
	if err := allocator.AddNode(meshNode); err != nil {
		return nil, err
	}
	return &MeshAssignment{MeshIP: meshIP.String(), WorkloadSubnet: subnet.String()}, nil
}

// asClawError adapts a plain error into the ClawError interface replyError
// needs, falling back to ProtocolViolation for errors with no category.
func asClawError(err error) clawproto.ClawError {
	var cerr clawproto.ClawError
	if errors.As(err, &cerr) {
		return cerr
	}
	return &clawproto.ProtocolViolationError{Detail: err.Error()}
}

func (sess *Session) handleInvokeResult(req clawproto.Request) error {
	var params InvokeResultParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return sess.protocolViolation(err.Error())
	}

	sess.pendingMu.Lock()
	ch, ok := sess.pending[params.ID]
	if ok {
		delete(sess.pending, params.ID)
	}
	sess.pendingMu.Unlock()

	if ok {
		ch <- InvokeOutcome{Result: params}
		close(ch)
	}
	return sess.replyResult(req.ID, map[string]bool{"ack": true})
}

func (sess *Session) sendInvoke(command string, params json.RawMessage, timeoutMs *uint64) (<-chan InvokeOutcome, error) {
	sess.pendingMu.Lock()
	sess.nextID++
	id := fmt.Sprintf("invoke-%d", sess.nextID)
	ch := make(chan InvokeOutcome, 1)
	sess.pending[id] = ch
	sess.pendingMu.Unlock()

	payload := InvokeRequestPayload{
		ID:        id,
		Command:   command,
		ParamsJSON: params,
		TimeoutMs: timeoutMs,
	}
	if sess.nodeID != nil {
		payload.NodeID = sess.nodeID.String()
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		sess.pendingMu.Lock()
		delete(sess.pending, id)
		sess.pendingMu.Unlock()
		return nil, err
	}
	if err := sess.writeFrame(clawproto.Event{Event: EventNodeInvokeRequest, Payload: payloadBytes}); err != nil {
		sess.pendingMu.Lock()
		delete(sess.pending, id)
		sess.pendingMu.Unlock()
		return nil, err
	}

	timeout := defaultInvokeTimeout
	if timeoutMs != nil {
		timeout = time.Duration(*timeoutMs) * time.Millisecond
	}
	go sess.armInvokeTimeout(id, command, timeout)

	return ch, nil
}

// armInvokeTimeout fires a local Timeout error for a correlated invoke
// that has not resolved within timeout. TimeoutMs is also forwarded to
// the node in the wire payload for its own bookkeeping, but that never
// cancels remote work — this timer is what bounds the local wait.
func (sess *Session) armInvokeTimeout(id, command string, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		sess.pendingMu.Lock()
		ch, ok := sess.pending[id]
		if ok {
			delete(sess.pending, id)
		}
		sess.pendingMu.Unlock()
		if ok {
			ch <- InvokeOutcome{Err: &clawproto.TimeoutError{Operation: command}}
			close(ch)
		}
	case <-sess.done:
	}
}

func (sess *Session) replyResult(id string, result any) error {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return sess.writeFrame(clawproto.Response{ID: id, Result: resultBytes})
}

func (sess *Session) replyError(id string, cerr clawproto.ClawError) error {
	wireErr := &clawproto.WireError{
		Code:    clawproto.CodeForCategory(cerr.Category()),
		Message: cerr.Error(),
	}
	return sess.writeFrame(clawproto.Response{ID: id, Error: wireErr})
}

func (sess *Session) protocolViolation(detail string) error {
	pv := &clawproto.ProtocolViolationError{Detail: detail}
	return sess.writeFrame(clawproto.Event{
		Event:   "protocol.violation",
		Payload: mustMarshal(map[string]string{"detail": pv.Detail}),
	})
}

func mustMarshal(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func (sess *Session) writeFrame(frame any) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return sess.conn.WriteJSON(frame)
}
