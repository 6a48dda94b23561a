// Command fieldsync is the operator CLI for the submission queue: enqueue
// events, inspect delivery state, trigger sync passes, and manage
// configuration.
package main
