// Package wamp defines the WAMP message model shared by the client engine,
// the serializers and the transports.
//
// Every message kind is a concrete struct implementing Message. ToList and
// FromList convert between those structs and the positional array form used
// on the wire, which keeps the serializers independent of message layout.
package wamp
