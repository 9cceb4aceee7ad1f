package main

import (
	"net/http"
	"time"
)

// resolverHTTPTimeout bounds one HowLongToBeat round trip. A library-wide
// sync makes hundreds of lookups, so a hung request must not stall the
// whole pass.
const resolverHTTPTimeout = 30 * time.Second

var resolverHTTPClient = &http.Client{
	Timeout: resolverHTTPTimeout,
}
