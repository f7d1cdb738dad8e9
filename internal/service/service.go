// Package service contains the business logic.
//
// It sits between the command layer and the repository layer. It
// receives already parsed options, performs the attendance operations,
// and calls repository methods to interact with the data.
package service
