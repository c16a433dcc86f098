// Package remote carries the synchronization protocol over WebSocket.
//
// # Wire format
//
// Every message is a CBOR encoded [RPCRequest] or [RPCResponse] in a binary
// frame. Requests carry an ID, which the response echoes, so that calls on
// one connection may overlap. Method parameters and results are themselves
// CBOR values:
//
//	events   EventsParams   -> []change.Event
//	execute  ExecuteParams  -> int64 (revision, change.NoChange or change.Failed)
//	ping     none           -> none
//
// Failed calls answer with an [RPCError]. Its code identifies the sentinel
// error of package constants it stands for, so errors.Is works on the client
// as it does next to the store.
//
// # Actors
//
// A client names its actor in the X-Revstore-Actor handshake header. The
// server runs every call of the connection as that actor, through an
// arm.Store when an authorization manager is configured. There is no
// authentication of the header; deploy behind something that does it.
//
// # Usage
//
// Serve a store:
//
//	http.Handle(constants.RPCPath, remote.NewServer(st, remote.WithAuthorization(am)))
//
// Connect with either transport and synchronize a replica:
//
//	cfg := remote.NewConfig("ws://localhost:8000", "alice")
//	conn, err := gorillaws.New(cfg) // or gws.New(cfg)
//	if err != nil {
//		return err
//	}
//	if err := conn.Connect(ctx); err != nil {
//		return err
//	}
//	client := remote.NewClient(conn, cfg)
//	sync := synchronizer.New(replica, client)
package remote
