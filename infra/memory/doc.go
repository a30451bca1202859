// Package memory provides object reuse for hot-path allocations. Orders
// leave the book under the engine's write lock and readers only ever see
// copies, so a retired order can go straight back to its pool.
package memory
