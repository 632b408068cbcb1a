// Package admission decides whether a candidate cross-chain message may be
// admitted: exactly once, and in strictly increasing sequence order per
// source chain.
//
// ARCHITECTURE:
//
// Three parts form a write pipeline per message:
//   - ChainCounter: one watermark per source chain (highest admitted sequence id)
//   - AdmissionRecord: one record per (source chain, sequence id), the permanent
//     proof that the id was admitted
//   - Controller: runs the gates and commits counter advance plus record
//     creation as one atomic unit through the Store
//
// Attempt lifecycle:
//
//	Received → Validated → DigestComputed → SignaturePolicyChecked → OrderingChecked → Committed
//	    \__________\______________\__________________\_____________________\___→ Rejected(code)
//
// No state is persisted between gates. A rejected attempt leaves every
// counter and record exactly as it found them.
//
// CRITICAL PATTERNS:
//
// Uniqueness and ordering are separate checks and both must pass. The
// uniqueness check rejects a replay of the exact same id (DuplicateMessage);
// the ordering check rejects any id at or below the watermark (SequenceTooOld).
//
// Counters come into existence only through Initializer.InitializeCounter.
// There is no upsert path, so a watermark can never be reset.
//
// Concurrency: the Store linearizes commits per chain. The controller
// commits with compare-and-swap on the watermark it read; a lost race
// surfaces as ErrConflict and the caller decides whether to retry.
package admission
