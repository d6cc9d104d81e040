// Package idhash derives deterministic ids for executions, positions and trades.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// digest hashes the pipe-joined parts and returns the first n bytes hex encoded.
func digest(n int, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:n])
}

// ComputeExecutionID returns a 32 character id for an execution request.
// seq separates requests created in the same nanosecond.
func ComputeExecutionID(direction, symbol, assetID string, createdAtNs int64, seq uint64) string {
	return digest(16, direction, symbol, assetID,
		strconv.FormatInt(createdAtNs, 10), strconv.FormatUint(seq, 10))
}

// ComputePositionID returns a 64 character id for the position opened by
// openingExecutionID.
func ComputePositionID(assetID, openingExecutionID string) string {
	return digest(sha256.Size, assetID, openingExecutionID)
}

// ComputeTradeID returns a 64 character id for a confirmed fill. The same
// confirmation always maps to the same id, so stores reject a replay as a
// duplicate.
func ComputeTradeID(executionID, txRef string, executedAtMs int64) string {
	return digest(sha256.Size, executionID, txRef, strconv.FormatInt(executedAtMs, 10))
}
