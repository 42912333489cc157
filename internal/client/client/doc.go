// Package client talks to the matakeeper agent over its message bus.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface) covering the
//     popup's needs: key lookup, user discovery, sync, raw get/set, key
//     storage, active-user switching, backups and settings.
//  2. A gRPC implementation (see GRPCClient) built on bus.Client that turns
//     loosely typed replies into the structs in package models.
//
// # Error Handling
//
// Failures reported by the agent arrive as *bus.RemoteError and unwrap to
// the sentinels in package common, so callers match them with errors.Is
// (common.ErrNotFound, common.ErrIsolationViolation, ...). An agent that
// cannot be reached yields ErrUnavailable.
//
// All operations accept context.Context and honor cancellation; each call is
// additionally bounded by the request timeout given to NewGRPCClient.
package client
