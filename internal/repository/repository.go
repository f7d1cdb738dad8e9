// Package repository handles all interactions with the database.
//
// Repositories sit on the reflected active-record types: they translate
// between the domain types of the attendance package and the rows of the
// mapped tables, so the service layer never deals with instances.
package repository
