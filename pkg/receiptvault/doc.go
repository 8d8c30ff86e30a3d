// Package receiptvault issues tamper-evident, write-once acceptance
// receipts proving that a subject accepted a set of legal documents at a
// specific time.
//
// A receipt's artifact is rendered deterministically, digested with
// SHA-256, stored in a write-once object vault under a retention lock, and
// indexed by a metadata row in a relational store. The two writes are made
// to appear atomic by a fixed ordering (vault first), a pre-generated
// receipt id that keys both stores, and a reconciliation sweep that repairs
// orphan artifacts. A metadata row therefore always implies durable bytes;
// the reverse holds only after reconciliation.
//
// Legal holds suspend the retention date's expiry. The vault-level hold
// flag is set before the metadata flag and is authoritative whenever the
// two disagree. Every read, download, and hold transition is recorded in an
// append-only audit trail; audit failures never affect the primary
// operation's outcome.
package receiptvault
