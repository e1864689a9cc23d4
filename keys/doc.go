// Package keys handles the symmetric media keys carried inside encrypted
// identifiers.
//
// Stable:
//   - Seal/Open for metadata records stored under an encrypted identifier.
//   - Deterministic derivation of per-media keys from a root seed.
//
// Experimental:
//   - The filesystem-backed KeyStore and its Resolver. These are local-first
//     helpers; production deployments resolve keys from their own wallet flow.
package keys
