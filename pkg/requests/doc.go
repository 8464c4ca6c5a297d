// Package requests implements the editor-request workflow.
//
// A user without write access to a profile may ask for it; a profile admin
// approves or rejects. Requests move pending -> approved | rejected and the
// terminal states are final.
//
// Submission is throttled two ways, both enforced inside one store
// transaction against the requester's RequestStats document:
//
//   - a cap on simultaneously pending requests across all profiles
//   - a cooldown timer armed on every accepted submission
//
// Approval adds the requester to the profile's collaborator list in the same
// transaction that flips the request status, so a crash can never leave an
// approved request without the matching grant.
package requests
