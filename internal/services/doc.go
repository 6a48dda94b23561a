// Package services defines the collaborator contracts the submission
// pipeline depends on (ledger record store, proof attestation service,
// credential provider) plus the shared error taxonomy used to classify
// delivery failures.
//
// Concrete HTTP clients live in the ledger and proof subpackages; the
// pipeline and scheduler only see the interfaces defined here so tests
// can substitute fakes without network access.
package services
