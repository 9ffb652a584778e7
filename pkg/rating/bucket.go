package rating

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownBucket is returned for a sentiment outside the fixed table
var ErrUnknownBucket = errors.New("unknown sentiment bucket")

// Bucket is the user's qualitative reaction to a new item
type Bucket string

// Sentiment buckets, best first
const (
	Loved    Bucket = "loved"
	Liked    Bucket = "liked"
	Average  Bucket = "average"
	Disliked Bucket = "disliked"
)

// Buckets lists every bucket in table order
var Buckets = []Bucket{Loved, Liked, Average, Disliked}

// PercentileRange is a half-open [Lo, Hi) slice of the corpus sorted best
// first. The last range also includes 1.0.
type PercentileRange struct {
	Lo float64
	Hi float64
}

// The table does not depend on corpus size; a 2-item corpus uses the same
// ranges as a 2000-item one.
var bucketTable = map[Bucket]PercentileRange{
	Loved:    {Lo: 0.00, Hi: 0.25},
	Liked:    {Lo: 0.25, Hi: 0.50},
	Average:  {Lo: 0.50, Hi: 0.75},
	Disliked: {Lo: 0.75, Hi: 1.00},
}

// RangeFor returns the percentile range bound to bucket
func RangeFor(bucket Bucket) (PercentileRange, error) {
	r, ok := bucketTable[bucket]
	if !ok {
		return PercentileRange{}, fmt.Errorf("%w: %q", ErrUnknownBucket, string(bucket))
	}
	return r, nil
}

// ParseBucket accepts bucket names case-insensitively
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := bucketTable[b]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBucket, s)
	}
	return b, nil
}

// Next returns the bucket after b in table order, wrapping around
func (b Bucket) Next() Bucket {
	for i, candidate := range Buckets {
		if candidate == b {
			return Buckets[(i+1)%len(Buckets)]
		}
	}
	return Loved
}

// upper reports whether the bucket sits in the top half of the corpus
func (r PercentileRange) upper() bool {
	return r.Lo < 0.5
}
