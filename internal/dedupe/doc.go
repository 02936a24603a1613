// Package dedupe tracks recently seen event keys so transports and the
// dispatcher can drop duplicates caused by poll overlap, gateway redelivery,
// or platform retries. Keys are scoped per platform+chat because update ids
// are only unique within that scope.
package dedupe
