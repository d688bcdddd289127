// Package campaign implements campaign lifecycle management.
//
// The service layer contains the business logic for creating, scheduling,
// and finalizing outreach campaigns. It depends on the Repository interface
// defined in this package and should never import from api/.
//
// Repository implementations live in repository/postgres/. The dispatch and
// worker packages consume narrower interfaces of their own; the Postgres
// repository satisfies all of them.
package campaign
