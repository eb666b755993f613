// Package secret resolves key material and other secret values by reference.
//
// Configuration files never carry raw signing keys; they carry references
// like "secretref:env:XSRF_SIGNING_KEY" or "secretref:file:/etc/authcore/seal.key"
// that are resolved once at configuration load. Plain values are returned
// after strict environment expansion.
package secret
