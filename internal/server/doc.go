// Package server implements the core relay functionality for the Aganor
// voxel game: WebSocket session lifecycle, authentication gating, and
// broadcast fan-out of position, world-edit, and chat events.
//
// The implementation is organized into specialized files for configuration,
// the wire protocol, the session registry, hub management, clients, routing,
// and HTTP handlers to keep the codebase maintainable and testable as the
// project grows.
package server
