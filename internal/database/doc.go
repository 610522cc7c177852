// Package database provides PostgreSQL connection pool management.
//
// The pool backs the shared identity cache when several tradeline processes
// on one desk should see the same signed-in user.
package database
