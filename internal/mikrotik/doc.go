// Package mikrotik talks to MikroTik routers over the RouterOS binary API.
//
// Every operation opens a short-lived TLS connection verified against the
// device's own CA certificate, runs the API sentence, and closes. Routers sit
// behind flaky links and reboot on command; holding pooled connections buys
// nothing here.
package mikrotik
