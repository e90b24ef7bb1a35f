package sync

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
)

// EntityChange is the latest known mutation of one entity.
// The local change log holds at most one per (EntityName, EntityID).
type EntityChange struct {
	ID             int64  `json:"id,omitempty"`
	EntityName     string `json:"entityName"`
	EntityID       string `json:"entityId"`
	Hash           string `json:"hash"`
	IsErased       Flag   `json:"isErased"`
	ChangeID       string `json:"changeId"`
	ComponentID    string `json:"componentId"`
	InstanceID     string `json:"instanceId"`
	IsSynced       Flag   `json:"isSynced"`
	UTCDateChanged string `json:"utcDateChanged"`
}

// Kind returns the entity kind named by EntityName.
func (ec EntityChange) Kind() EntityKind {
	return ParseKind(ec.EntityName)
}

// String renders the change for diagnostics.
func (ec EntityChange) String() string {
	b, err := json.Marshal(ec)
	if err != nil {
		return fmt.Sprintf("%s/%s", ec.EntityName, ec.EntityID)
	}
	return string(b)
}

// EntityChangeRecord pairs a change with the row it describes.
// Entity is nil for erasures and for local-only options.
type EntityChangeRecord struct {
	EntityChange EntityChange
	Entity       Row
}

type wireRecord struct {
	EntityChange EntityChange    `json:"entityChange"`
	Entity       json.RawMessage `json:"entity,omitempty"`
}

// UnmarshalJSON decodes the record and its payload into the typed row for
// the change's entity kind.
func (r *EntityChangeRecord) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	row, err := DecodeRow(w.EntityChange.EntityName, w.Entity)
	if err != nil {
		return fmt.Errorf("decode %s row %s: %w", w.EntityChange.EntityName, w.EntityChange.EntityID, err)
	}

	r.EntityChange = w.EntityChange
	r.Entity = row
	return nil
}

// MarshalJSON encodes the record in the wire shape.
func (r EntityChangeRecord) MarshalJSON() ([]byte, error) {
	w := wireRecord{EntityChange: r.EntityChange}
	if r.Entity != nil {
		b, err := json.Marshal(r.Entity)
		if err != nil {
			return nil, err
		}
		w.Entity = b
	}
	return json.Marshal(w)
}

// Event names published after a batch commits.
const (
	EventEntityChangeSynced = "ENTITY_CHANGE_SYNCED"
	EventEntityDeleteSynced = "ENTITY_DELETE_SYNCED"
)

// Event announces that a synced change was applied to the local replica.
type Event struct {
	Name       string
	EntityName string
	EntityID   string
	Row        Row
}

// Summary aggregates the outcome of one reconciled batch.
type Summary struct {
	AlreadyUpdated int                 `json:"alreadyUpdated"`
	Erased         int                 `json:"erased"`
	AlreadyErased  int                 `json:"alreadyErased"`
	Updated        map[string][]string `json:"updated"`
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{Updated: make(map[string][]string)}
}

// AddUpdated records entityID as written into entityName's table.
func (s *Summary) AddUpdated(entityName, entityID string) {
	s.Updated[entityName] = append(s.Updated[entityName], entityID)
}

// UpdatedCount returns the number of rows written across all tables.
func (s *Summary) UpdatedCount() int {
	n := 0
	for _, ids := range s.Updated {
		n += len(ids)
	}
	return n
}

// LogValue implements slog.LogValuer.
func (s *Summary) LogValue() slog.Value {
	names := make([]string, 0, len(s.Updated))
	for name := range s.Updated {
		names = append(names, name)
	}
	sort.Strings(names)

	updated := make([]slog.Attr, 0, len(names))
	for _, name := range names {
		updated = append(updated, slog.Int(name, len(s.Updated[name])))
	}

	return slog.GroupValue(
		slog.Int("already_updated", s.AlreadyUpdated),
		slog.Int("erased", s.Erased),
		slog.Int("already_erased", s.AlreadyErased),
		slog.Attr{Key: "updated", Value: slog.GroupValue(updated...)},
	)
}

// UpdateRequest is the body of a push: a batch from the peer InstanceID.
type UpdateRequest struct {
	InstanceID string               `json:"instanceId"`
	Entities   []EntityChangeRecord `json:"entities"`
}

// ChangedResponse is one page of a pull.
type ChangedResponse struct {
	EntityChanges        []EntityChangeRecord `json:"entityChanges"`
	LastEntityChangeID   int64                `json:"lastEntityChangeId"`
	OutstandingPullCount int64                `json:"outstandingPullCount"`
}

// CheckResponse carries per-sector hashes used to compare two replicas.
type CheckResponse struct {
	EntityHashes      map[string]map[string]string `json:"entityHashes"`
	MaxEntityChangeID int64                        `json:"maxEntityChangeId"`
}
