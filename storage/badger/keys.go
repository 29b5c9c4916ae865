package badger

import (
	"encoding/binary"
	"time"
)

// Key prefixes for different data types
const (
	vectorPrefix   = "vec"
	jobReadyPrefix = "jobrdy"
	jobLeasePrefix = "joblse"
	jobEntryPrefix = "jobent"
	jobSeq         = "jobseq"
	documentPrefix = "docblb"
)

// makeVectorKey generates a key for a chunk vector.
// Format: prefix:documentID:chunkIndex
func makeVectorKey(documentID string, chunkIndex int) []byte {
	prefix := makeDocumentVectorPrefix(documentID)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(chunkIndex))
	return buf
}

// makeDocumentVectorPrefix generates the key prefix shared by a document's vectors.
func makeDocumentVectorPrefix(documentID string) []byte {
	return []byte(vectorPrefix + ":" + documentID + ":")
}

// makeJobReadyKey generates a composite key ordering waiting jobs by due time.
// Format: prefix:availableAt:seq
func makeJobReadyKey(availableAt time.Time, seq uint64) []byte {
	prefix := jobReadyPrefix + ":"
	buf := make([]byte, len(prefix)+16) // 8 bytes for timestamp + 8 bytes for seq
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(availableAt.UnixMilli()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// parseJobReadyTime extracts the due time of a ready key.
func parseJobReadyTime(key []byte) time.Time {
	offset := len(jobReadyPrefix) + 1
	return time.UnixMilli(int64(binary.BigEndian.Uint64(key[offset:]))).UTC()
}

// makeJobLeaseKey generates a composite key ordering leased jobs by expiry.
// Format: prefix:leaseUntil:jobID
func makeJobLeaseKey(leaseUntil time.Time, jobID string) []byte {
	prefix := jobLeasePrefix + ":"
	buf := make([]byte, len(prefix)+8+len(jobID))
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(leaseUntil.UnixMilli()))
	offset += 8
	copy(buf[offset:], jobID)
	return buf
}

// parseJobLeaseKey extracts the expiry and job id of a lease key.
func parseJobLeaseKey(key []byte) (time.Time, string) {
	offset := len(jobLeasePrefix) + 1
	until := time.UnixMilli(int64(binary.BigEndian.Uint64(key[offset:]))).UTC()
	return until, string(key[offset+8:])
}

// makeJobEntryKey generates the key of a job's queue entry.
func makeJobEntryKey(jobID string) []byte {
	return []byte(jobEntryPrefix + ":" + jobID)
}

// makeDocumentKey generates the key of a stored document body.
func makeDocumentKey(documentID string) []byte {
	return []byte(documentPrefix + ":" + documentID)
}
