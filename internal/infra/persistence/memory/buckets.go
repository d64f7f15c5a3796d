package memory

import (
	"encoding/json"
	"fmt"
)

// Snapshot bucket names used by the durable backends. Each bucket is stored
// as one JSON payload in the state table.
const (
	BucketAllocator = "allocator"
	BucketKitties   = "kitties"
	BucketOwners    = "owners"
	BucketParents   = "parents"
)

// Buckets lists every snapshot bucket in persistence order.
var Buckets = []string{BucketAllocator, BucketKitties, BucketOwners, BucketParents}

// EncodeBucket marshals the named part of the snapshot.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch bucket {
	case BucketAllocator:
		data, err = json.Marshal(s.NextID)
	case BucketKitties:
		data, err = json.Marshal(s.Kitties)
	case BucketOwners:
		data, err = json.Marshal(s.Owners)
	case BucketParents:
		data, err = json.Marshal(s.Parents)
	default:
		return nil, fmt.Errorf("unknown bucket %s", bucket)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", bucket, err)
	}
	return data, nil
}

// DecodeBucket fills the named part of the snapshot from payload. Unknown
// buckets are ignored so older tables with extra rows still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	var target any
	switch bucket {
	case BucketAllocator:
		target = &s.NextID
	case BucketKitties:
		target = &s.Kitties
	case BucketOwners:
		target = &s.Owners
	case BucketParents:
		target = &s.Parents
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
