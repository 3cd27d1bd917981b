// Package artifact defines the durable JSON contracts passed between pipeline
// stages and the plumbing that stores them.
//
// Contracts:
//   - ShapeMetrics: aggregate-only statistics extracted by the shape sampler.
//   - Spec: the distribution spec the generator reproduces. A calibrated spec
//     records which ShapeMetrics it was fitted from (Source); the static
//     default has no source.
//
// Artifacts are immutable once written. WriteFile refuses to replace an
// existing path, and Fingerprint gives every artifact a content address
// (SHA-256 over canonical JSON with domain separation) so downstream reports
// can cite exactly which input they consumed.
//
// Store abstracts where artifacts are published (a local directory or an S3
// bucket). Prune enforces the bounded retention of shape metrics.
package artifact
