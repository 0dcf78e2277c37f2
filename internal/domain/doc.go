// Package domain defines the core payment types and the interfaces the
// application layer consumes.
//
// Files are concept-oriented (session.go, boost.go, earnings.go, ledger.go, ...).
// Apart from small pure helpers like account validation and payment-request
// parsing there is no implementation code here, just contracts.
package domain
