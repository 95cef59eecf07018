// Package store declares the run ledger persisted alongside collected posts.
package store
