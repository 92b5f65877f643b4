// Package message defines the envelope exchanged between netserver peers and
// the newline-delimited JSON framing used on the wire.
//
// Every frame is one UTF-8 JSON object followed by a single '\n':
//
//	{"type":"ping","payload":"ping","timestamp":1700000000,"client_id":null}\n
//
// Input that is not a JSON object never fails to parse; Parse wraps it as a
// "text" message carrying the trimmed raw line so that interactive typing is
// routable like any other message.
package message
