// Package domain defines the core domain rules for vaultkv.
//
// Domain rules are pure value logic without IO dependencies:
//
//   - Errors: the vault error taxonomy as coded DomainErrors
//   - Status: the wire status each error maps to
//   - Keys and client IDs: shape validation applied before any shared
//     state is touched
package domain
