// Package aws wraps the AWS SDK clients the orchestrator depends on:
// delegated credentials via STS, parameter indirection via SSM, and the
// Secrets Manager and EC2 calls used to reclaim leaked resources.
//
// Each wrapper takes a narrow client interface so tests can substitute
// call-counting stubs without touching the network.
package aws
