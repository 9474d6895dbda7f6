// Package license implements the offline license activation and
// validation engine for the clinic management application.
//
// # Architecture Overview
//
// The engine consists of several components:
//
//	- KeyCodec: decodes license key strings and verifies their HMAC signature
//	- Validator: pure state machine mapping stored record + device + time to a status
//	- Store: persists the single activation record atomically, sealed at rest
//	- Guard: orchestrates validation, activation and deactivation, runs
//	  the periodic re-check loop and exposes the proceed/block decision
//
// Device identity collection and comparison live in the security package;
// the license-to-device binding ledger lives in the registry package.
//
// # Validation Flow
//
// Every check runs the same deterministic sequence:
//
//	1. Load the stored record (absent -> NOT_ACTIVATED)
//	2. Re-verify the HMAC signature (mismatch -> TAMPERED)
//	3. Consult the registry (released -> DEACTIVATED)
//	4. Compare a fresh device fingerprint (mismatch -> DEVICE_MISMATCH)
//	5. Check expiry (past -> EXPIRED)
//	6. Otherwise VALID, with remaining days and an expiring-soon flag
//
// Tamper and deactivation are checked before device and expiry so a
// revoked or forged record is never reported under a softer status.
//
// # Fail-Closed Behavior
//
// The engine never contacts a server and never fails open: any error in
// the validation chain, including storage faults, results in a blocked
// decision. Storage faults surface as STORAGE_ERROR and are treated like
// NOT_ACTIVATED for proceed purposes.
//
// # Concurrency
//
// Activation and deactivation are serialized under a single mutex.
// Validation checks are read-only, collapsed through singleflight, and
// never run concurrently with a state change.
package license
