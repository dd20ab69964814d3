package signer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"
)

var (
	quotaBucket  = []byte("quota")
	replayBucket = []byte("replay")
)

// Decision is the outcome of an admission check.
type Decision int8

const (
	Deny Decision = iota
	Admit
	AdmitReplay
)

// QuotaRecord tracks per-identity accounting. TotalQuota is the entitlement
// observed at the last admitted query; admission always uses the freshly
// supplied entitlement, the stored copy only serves reads.
type QuotaRecord struct {
	PerformedQueryCount uint64 `json:"performed_query_count"`
	TotalQuota          uint64 `json:"total_quota"`
}

// QuotaLedger is the durable admission state: per-identity query counts and
// the replay set of previously admitted (identity, identifier, blinded query)
// tuples. The replay check, the count increment, and the replay insert happen
// in a single bolt transaction under a per-identity mutex, so concurrent
// requests for one identity observe a single admit/deny ordering while
// distinct identities never contend.
type QuotaLedger struct {
	db *bolt.DB

	mu    sync.Mutex
	locks map[common.Address]*sync.Mutex
}

// OpenQuotaLedger opens (or creates) the ledger database at path.
func OpenQuotaLedger(path string) (*QuotaLedger, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open quota ledger: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(quotaBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(replayBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize quota ledger: %w", err)
	}
	return &QuotaLedger{
		db:    db,
		locks: make(map[common.Address]*sync.Mutex),
	}, nil
}

func (l *QuotaLedger) Close() error {
	return l.db.Close()
}

func (l *QuotaLedger) identityLock(identity common.Address) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[identity]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[identity] = lock
	}
	return lock
}

// replayKey derives the replay-set key for a logical query. Fields are
// length-prefixed so distinct tuples can never collide by concatenation.
func replayKey(identity common.Address, identifier, blindedQuery []byte) []byte {
	h := sha256.New()
	var lenBuf [binary.MaxVarintLen64]byte
	for _, field := range [][]byte{identity.Bytes(), identifier, blindedQuery} {
		n := binary.PutUvarint(lenBuf[:], uint64(len(field)))
		h.Write(lenBuf[:n])
		h.Write(field)
	}
	return h.Sum(nil)
}

// CheckAndReserve decides admission for one logical query against the
// supplied entitlement. A replayed query is admitted without incrementing the
// count. A new query is admitted only while the performed count is below
// totalQuota, in which case the increment and the replay marker commit
// atomically. Denial mutates nothing.
func (l *QuotaLedger) CheckAndReserve(
	identity common.Address,
	identifier []byte,
	blindedQuery []byte,
	totalQuota uint64,
) (Decision, QuotaRecord, error) {
	lock := l.identityLock(identity)
	lock.Lock()
	defer lock.Unlock()

	var (
		decision Decision
		record   QuotaRecord
	)
	err := l.db.Update(func(tx *bolt.Tx) error {
		qb := tx.Bucket(quotaBucket)
		rb := tx.Bucket(replayBucket)

		if err := readQuotaRecord(qb, identity, &record); err != nil {
			return err
		}

		key := replayKey(identity, identifier, blindedQuery)
		if rb.Get(key) != nil {
			decision = AdmitReplay
			return nil
		}

		if record.PerformedQueryCount >= totalQuota {
			decision = Deny
			return nil
		}

		record.PerformedQueryCount++
		record.TotalQuota = totalQuota
		if err := writeQuotaRecord(qb, identity, record); err != nil {
			return err
		}
		if err := rb.Put(key, []byte{1}); err != nil {
			return err
		}
		decision = Admit
		return nil
	})
	if err != nil {
		return Deny, QuotaRecord{}, fmt.Errorf("quota ledger update failed: %w", err)
	}
	return decision, record, nil
}

// Peek returns the current record for identity without side effects.
func (l *QuotaLedger) Peek(identity common.Address) (QuotaRecord, error) {
	var record QuotaRecord
	err := l.db.View(func(tx *bolt.Tx) error {
		return readQuotaRecord(tx.Bucket(quotaBucket), identity, &record)
	})
	if err != nil {
		return QuotaRecord{}, fmt.Errorf("quota ledger read failed: %w", err)
	}
	return record, nil
}

func readQuotaRecord(b *bolt.Bucket, identity common.Address, record *QuotaRecord) error {
	raw := b.Get(identity.Bytes())
	if raw == nil {
		*record = QuotaRecord{}
		return nil
	}
	return json.Unmarshal(raw, record)
}

func writeQuotaRecord(b *bolt.Bucket, identity common.Address, record QuotaRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return b.Put(identity.Bytes(), raw)
}
