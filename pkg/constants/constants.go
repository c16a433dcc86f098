package constants

import "time"

var (
	WebsocketScheme       = "ws"
	WebsocketSecureScheme = "wss"
	HTTPScheme            = "http"
	HTTPSecureScheme      = "https"
)

// ActorHeader carries the acting identity on transport requests.
const ActorHeader = "X-Revstore-Actor"

// RPCPath is where the WebSocket RPC endpoint is mounted.
const RPCPath = "/rpc"

const (
	DefaultWSTimeout = 30 * time.Second
	CloseMessageCode = 1000
)
