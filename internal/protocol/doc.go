// Package protocol implements the vaultkv wire format.
//
// Every message is a RESP-style array of length-prefixed bulk strings:
//
//	*<n>\r\n
//	$<len>\r\n<bytes>\r\n   (n times)
//
// Requests:
//
//	PUT <key> <value> [<digest-hex>]
//	GET <key>
//	DELETE <key>
//	PING
//	HELLO <client-id>
//	QUIT
//
// Responses carry a status first: [status], [status, message] or, for a
// successful GET, [OK, value, digest-hex]. Bulk strings are binary safe.
package protocol
