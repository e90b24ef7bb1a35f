// Package spool buffers multi-page sync uploads until their last page
// arrives.
package spool

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var (
	// ErrUnknownRequest means a continuation page arrived for a request
	// whose page 0 was never seen or has expired.
	ErrUnknownRequest = errors.New("partial request not found")
	// ErrPageOutOfOrder means a page skipped or repeated an index.
	ErrPageOutOfOrder = errors.New("page out of order")
	// ErrInvalidPage means the index is outside the page count, or the page
	// count differs from the one page 0 announced.
	ErrInvalidPage = errors.New("invalid page index")
	// ErrMissingRequestID means a multi-page upload carried no request id.
	ErrMissingRequestID = errors.New("request id required for paged upload")
)

var (
	// bucketRequests holds one nested bucket per request id.
	bucketRequests = []byte("partial_requests")
	bucketPages    = []byte("pages")

	keyCreated = []byte("created")
	keyCount   = []byte("count")
	keyNext    = []byte("next")
)

// Spool persists partial requests in a BoltDB file.
type Spool struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens or creates the spool at path.
func Open(path string) (*Spool, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create spool directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRequests); err != nil {
			return fmt.Errorf("failed to create requests bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Spool{db: db, now: time.Now}, nil
}

// Close closes the spool file.
func (s *Spool) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append stores page pageIndex (0-based) of pageCount for requestID. Page 0
// starts the request, discarding any earlier upload under the same id. When
// the last page arrives the concatenated payload is returned with
// complete=true and the request is removed. Every later page must repeat the
// page count announced by page 0. Single-page bodies are returned as-is
// without touching the spool.
func (s *Spool) Append(requestID string, pageIndex, pageCount int, body []byte) (payload []byte, complete bool, err error) {
	if pageIndex < 0 || pageIndex >= max(pageCount, 1) {
		return nil, false, fmt.Errorf("%w: %d of %d", ErrInvalidPage, pageIndex, pageCount)
	}
	if pageCount <= 1 {
		return body, true, nil
	}
	if requestID == "" {
		return nil, false, ErrMissingRequestID
	}

	key := []byte(requestID)
	err = s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketRequests)

		if pageIndex == 0 {
			if root.Bucket(key) != nil {
				if err := root.DeleteBucket(key); err != nil {
					return err
				}
			}
			req, err := root.CreateBucket(key)
			if err != nil {
				return err
			}
			if err := req.Put(keyCreated, encodeUint64(uint64(s.now().UnixNano()))); err != nil {
				return err
			}
			if err := req.Put(keyCount, encodeUint64(uint64(pageCount))); err != nil {
				return err
			}
			if err := req.Put(keyNext, encodeUint64(0)); err != nil {
				return err
			}
			if _, err := req.CreateBucket(bucketPages); err != nil {
				return err
			}
		}

		req := root.Bucket(key)
		if req == nil {
			return fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
		}

		if announced := int(binary.BigEndian.Uint64(req.Get(keyCount))); pageCount != announced {
			return fmt.Errorf("%w: page %d claims %d pages, request %s announced %d",
				ErrInvalidPage, pageIndex, pageCount, requestID, announced)
		}

		next := int(binary.BigEndian.Uint64(req.Get(keyNext)))
		if pageIndex != next {
			return fmt.Errorf("%w: got page %d, expected %d", ErrPageOutOfOrder, pageIndex, next)
		}

		pages := req.Bucket(bucketPages)
		if err := pages.Put(encodeUint64(uint64(pageIndex)), bytes.Clone(body)); err != nil {
			return err
		}
		if err := req.Put(keyNext, encodeUint64(uint64(next+1))); err != nil {
			return err
		}

		if pageIndex < pageCount-1 {
			return nil
		}

		// Keys are big-endian so the cursor walks pages in order.
		var buf bytes.Buffer
		if err := pages.ForEach(func(_, v []byte) error {
			buf.Write(v)
			return nil
		}); err != nil {
			return err
		}
		payload = buf.Bytes()
		complete = true
		return root.DeleteBucket(key)
	})
	if err != nil {
		return nil, false, err
	}
	return payload, complete, nil
}

// PurgeExpired removes requests started more than ttl ago and returns how
// many were removed.
func (s *Spool) PurgeExpired(ttl time.Duration) (int, error) {
	cutoff := uint64(s.now().Add(-ttl).UnixNano())
	purged := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketRequests)

		var expired [][]byte
		err := root.ForEach(func(k, v []byte) error {
			req := root.Bucket(k)
			if v != nil || req == nil {
				return nil
			}
			created := req.Get(keyCreated)
			if created == nil || binary.BigEndian.Uint64(created) < cutoff {
				expired = append(expired, bytes.Clone(k))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := root.DeleteBucket(k); err != nil {
				return err
			}
		}
		purged = len(expired)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge expired requests: %w", err)
	}
	return purged, nil
}

// Len returns the number of unfinished requests.
func (s *Spool) Len() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRequests).ForEach(func(_, v []byte) error {
			if v == nil {
				n++
			}
			return nil
		})
	})
	return n, err
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
