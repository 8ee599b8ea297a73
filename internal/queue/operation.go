package queue

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/stockpro/internal/canonical"
	"github.com/roach88/stockpro/internal/model"
)

// Kind tags the payload variant of an operation.
type Kind string

const (
	KindCreateEntity      Kind = "create_entity"
	KindUpdateEntity      Kind = "update_entity"
	KindDeleteEntity      Kind = "delete_entity"
	KindRecordTransaction Kind = "record_transaction"
	KindUpdateSettings    Kind = "update_settings"
)

// Payload is the closed set of mutation intents. Every implementation
// lives in this package.
type Payload interface {
	Kind() Kind
	Validate() error
	payload()
}

// CreateEntity inserts a product or a stock movement created locally under
// LocalID. Exactly one of Product and Movement is set, matching Collection.
type CreateEntity struct {
	Collection model.Collection      `json:"collection"`
	LocalID    string                `json:"local_id"`
	Product    *model.ProductFields  `json:"product,omitempty"`
	Movement   *model.MovementFields `json:"movement,omitempty"`
}

// UpdateEntity applies a partial update to a product.
type UpdateEntity struct {
	Collection model.Collection   `json:"collection"`
	ID         string             `json:"id"`
	Patch      model.ProductPatch `json:"patch"`
}

// DeleteEntity removes a product.
type DeleteEntity struct {
	Collection model.Collection `json:"collection"`
	ID         string           `json:"id"`
}

// RecordTransaction records a sale atomically on the remote store. The
// remote side also creates the stock-decrement movements, so a sale never
// queues movement intents of its own.
type RecordTransaction struct {
	LocalID     string                   `json:"local_id"`
	Transaction model.TransactionPayload `json:"transaction"`
}

// UpdateSettings upserts the owner's settings.
type UpdateSettings struct {
	Settings model.Settings `json:"settings"`
}

func (CreateEntity) Kind() Kind      { return KindCreateEntity }
func (UpdateEntity) Kind() Kind      { return KindUpdateEntity }
func (DeleteEntity) Kind() Kind      { return KindDeleteEntity }
func (RecordTransaction) Kind() Kind { return KindRecordTransaction }
func (UpdateSettings) Kind() Kind    { return KindUpdateSettings }

func (CreateEntity) payload()      {}
func (UpdateEntity) payload()      {}
func (DeleteEntity) payload()      {}
func (RecordTransaction) payload() {}
func (UpdateSettings) payload()    {}

func (p CreateEntity) Validate() error {
	if strings.TrimSpace(p.LocalID) == "" {
		return &model.ValidationError{Field: "local_id", Message: "required"}
	}
	switch p.Collection {
	case model.CollectionProducts:
		if p.Product == nil || p.Movement != nil {
			return &model.ValidationError{Field: "product", Message: "product create needs exactly the product fields"}
		}
		return p.Product.Validate()
	case model.CollectionMovements:
		if p.Movement == nil || p.Product != nil {
			return &model.ValidationError{Field: "movement", Message: "movement create needs exactly the movement fields"}
		}
		return p.Movement.Validate()
	}
	return &model.ValidationError{Field: "collection", Message: fmt.Sprintf("cannot create in %q", p.Collection)}
}

func (p UpdateEntity) Validate() error {
	if p.Collection != model.CollectionProducts {
		return &model.ValidationError{Field: "collection", Message: fmt.Sprintf("cannot update %q", p.Collection)}
	}
	if strings.TrimSpace(p.ID) == "" {
		return &model.ValidationError{Field: "id", Message: "required"}
	}
	return p.Patch.Validate()
}

func (p DeleteEntity) Validate() error {
	if p.Collection != model.CollectionProducts {
		return &model.ValidationError{Field: "collection", Message: fmt.Sprintf("cannot delete from %q", p.Collection)}
	}
	if strings.TrimSpace(p.ID) == "" {
		return &model.ValidationError{Field: "id", Message: "required"}
	}
	return nil
}

func (p RecordTransaction) Validate() error {
	if strings.TrimSpace(p.LocalID) == "" {
		return &model.ValidationError{Field: "local_id", Message: "required"}
	}
	return p.Transaction.Validate()
}

func (p UpdateSettings) Validate() error {
	return p.Settings.Validate()
}

// IsValidation reports whether err is a payload validation failure.
func IsValidation(err error) bool {
	return model.IsValidation(err)
}

// Operation is one pending mutation intent.
type Operation struct {
	ID          string
	Kind        Kind
	Payload     Payload
	Seq         int64
	EnqueuedAt  time.Time
	Attempts    int
	Fingerprint string

	// LastAttemptAt is when the last retryable failure was recorded. Zero
	// until the first one.
	LastAttemptAt time.Time
}

// Age is how long the operation has been waiting.
func (op Operation) Age(now time.Time) time.Duration {
	return now.Sub(op.EnqueuedAt)
}

// RetryAt is the earliest time a failed operation should be replayed again
// when replay is paced: base doubled once per recorded attempt, counted from
// LastAttemptAt. An operation that never failed is due at once.
func (op Operation) RetryAt(base time.Duration) time.Time {
	if op.Attempts == 0 || op.LastAttemptAt.IsZero() || base <= 0 {
		return time.Time{}
	}
	return op.LastAttemptAt.Add(base << min(op.Attempts, 16))
}

type envelope struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Seq         int64           `json:"seq"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	Attempts    int             `json:"attempts"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	LastAttempt time.Time       `json:"last_attempt_at,omitzero"`
}

// MarshalJSON encodes the operation with its payload tagged by kind.
func (op Operation) MarshalJSON() ([]byte, error) {
	if op.Payload == nil {
		return nil, fmt.Errorf("operation %s: nil payload", op.ID)
	}
	payload, err := json.Marshal(op.Payload)
	if err != nil {
		return nil, fmt.Errorf("operation %s: %w", op.ID, err)
	}
	return json.Marshal(envelope{
		ID:          op.ID,
		Kind:        op.Payload.Kind(),
		Payload:     payload,
		Seq:         op.Seq,
		EnqueuedAt:  op.EnqueuedAt,
		Attempts:    op.Attempts,
		Fingerprint: op.Fingerprint,
		LastAttempt: op.LastAttemptAt,
	})
}

// UnmarshalJSON decodes the payload variant named by kind.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	payload, err := decodePayload(env.Kind, env.Payload)
	if err != nil {
		return fmt.Errorf("operation %s: %w", env.ID, err)
	}
	*op = Operation{
		ID:            env.ID,
		Kind:          env.Kind,
		Payload:       payload,
		Seq:           env.Seq,
		EnqueuedAt:    env.EnqueuedAt,
		Attempts:      env.Attempts,
		Fingerprint:   env.Fingerprint,
		LastAttemptAt: env.LastAttempt,
	}
	return nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch kind {
	case KindCreateEntity:
		var v CreateEntity
		err = json.Unmarshal(raw, &v)
		p = v
	case KindUpdateEntity:
		var v UpdateEntity
		err = json.Unmarshal(raw, &v)
		p = v
	case KindDeleteEntity:
		var v DeleteEntity
		err = json.Unmarshal(raw, &v)
		p = v
	case KindRecordTransaction:
		var v RecordTransaction
		err = json.Unmarshal(raw, &v)
		p = v
	case KindUpdateSettings:
		var v UpdateSettings
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}

// Fingerprint hashes kind and payload. It doubles as the idempotency key of
// a transaction, so a direct remote call and a later replay of the same
// intent present the same key.
func Fingerprint(p Payload) (string, error) {
	return canonical.FingerprintJSON(canonical.DomainOperation, struct {
		Kind    Kind    `json:"kind"`
		Payload Payload `json:"payload"`
	}{p.Kind(), p})
}

// rewriteProductID returns p with every reference to product from replaced
// by to. The boolean reports whether anything changed.
func rewriteProductID(p Payload, from, to string) (Payload, bool) {
	switch v := p.(type) {
	case CreateEntity:
		if v.Movement != nil && v.Movement.ProductID == from {
			m := *v.Movement
			m.ProductID = to
			v.Movement = &m
			return v, true
		}
	case UpdateEntity:
		if v.ID == from {
			v.ID = to
			return v, true
		}
	case DeleteEntity:
		if v.ID == from {
			v.ID = to
			return v, true
		}
	case RecordTransaction:
		changed := false
		items := slices.Clone(v.Transaction.Items)
		for i := range items {
			if items[i].ProductID == from {
				items[i].ProductID = to
				changed = true
			}
		}
		if changed {
			v.Transaction.Items = items
			return v, true
		}
	}
	return p, false
}
