package main

import (
	"fmt"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/coap-engine/message"
)

// FormatPayload renders a response body for the terminal. CBOR is shown in
// diagnostic notation, binary data as hex.
func FormatPayload(resp *message.Message, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	cf, err := resp.Options.ContentFormat()
	if err == nil && cf == message.AppCBOR {
		if diag, errD := cbor.Diagnose(body); errD == nil {
			return diag
		}
	}
	if utf8.Valid(body) {
		return string(body)
	}
	return fmt.Sprintf("%x", body)
}
