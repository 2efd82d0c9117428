package geyser

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// SubscribeRequest is the immutable snapshot sent on the outbound direction
// of the stream. Sending a request fully replaces the active subscription on
// the server; merging is the builder's job, not the wire's.
type SubscribeRequest struct {
	Accounts     map[string]AccountFilter     `json:"accounts,omitempty"`
	Transactions map[string]TransactionFilter `json:"transactions,omitempty"`
	Slots        map[string]SlotFilter        `json:"slots,omitempty"`
	Blocks       map[string]BlockFilter       `json:"blocks,omitempty"`
	BlocksMeta   map[string]BlockMetaFilter   `json:"blocksMeta,omitempty"`
	Entries      map[string]EntryFilter       `json:"entry,omitempty"`

	Commitment CommitmentLevel `json:"commitment"`

	// AccountsDataSlices asks the server to send only parts of updated
	// account data.
	AccountsDataSlices []DataSlice `json:"accountsDataSlice,omitempty"`

	// FromSlot asks the server to replay messages starting at a slot.
	FromSlot *uint64 `json:"fromSlot,omitempty"`

	// Ping carries a client ping piggybacked on the request.
	Ping *PingRequest `json:"ping,omitempty"`
}

// PingRequest is an outbound keep-alive, echoed back by the server.
type PingRequest struct {
	ID int32 `json:"id"`
}

// DataSlice selects a byte range of account data.
type DataSlice struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// AccountFilter matches account updates by address, owner and data shape.
type AccountFilter struct {
	Account              []string            `json:"account,omitempty"`
	Owner                []string            `json:"owner,omitempty"`
	Filters              []AccountDataFilter `json:"filters,omitempty"`
	NonemptyTxnSignature *bool               `json:"nonemptyTxnSignature,omitempty"`
}

// AccountDataFilter is a one-of over account data predicates. Exactly one
// field must be set.
type AccountDataFilter struct {
	Memcmp            *MemcmpFilter   `json:"memcmp,omitempty"`
	DataSize          *uint64         `json:"datasize,omitempty"`
	TokenAccountState *bool           `json:"tokenAccountState,omitempty"`
	Lamports          *LamportsFilter `json:"lamports,omitempty"`
}

// MemcmpFilter matches account data bytes at an offset.
type MemcmpFilter struct {
	Offset uint64 `json:"offset"`
	Base58 string `json:"base58"`
}

// Lamports comparison operators.
const (
	CmpEq = "eq"
	CmpNe = "ne"
	CmpLt = "lt"
	CmpGt = "gt"
)

// LamportsFilter compares account lamports against a value.
type LamportsFilter struct {
	Cmp   string `json:"cmp"`
	Value uint64 `json:"value"`
}

// TransactionFilter matches transaction updates. Nil booleans mean "do not
// filter on this flag".
type TransactionFilter struct {
	Vote            *bool    `json:"vote,omitempty"`
	Failed          *bool    `json:"failed,omitempty"`
	Signature       *string  `json:"signature,omitempty"`
	AccountInclude  []string `json:"accountInclude,omitempty"`
	AccountExclude  []string `json:"accountExclude,omitempty"`
	AccountRequired []string `json:"accountRequired,omitempty"`
}

// SlotFilter tunes slot update delivery.
type SlotFilter struct {
	FilterByCommitment *bool `json:"filterByCommitment,omitempty"`
	InterslotUpdates   *bool `json:"interslotUpdates,omitempty"`
}

// BlockFilter matches full block updates.
type BlockFilter struct {
	AccountInclude      []string `json:"accountInclude,omitempty"`
	IncludeTransactions *bool    `json:"includeTransactions,omitempty"`
	IncludeAccounts     *bool    `json:"includeAccounts,omitempty"`
	IncludeEntries      *bool    `json:"includeEntries,omitempty"`
}

// BlockMetaFilter matches block metadata updates. It has no predicates.
type BlockMetaFilter struct{}

// EntryFilter matches ledger entry updates. It has no predicates.
type EntryFilter struct{}

// RequestBuilder assembles named per-kind filters into a SubscribeRequest.
// Add methods validate their predicate and leave the builder untouched on
// error. Re-adding a name replaces its predicate. The zero value is not
// usable; call NewRequestBuilder.
type RequestBuilder struct {
	accounts     map[string]AccountFilter
	transactions map[string]TransactionFilter
	slots        map[string]SlotFilter
	blocks       map[string]BlockFilter
	blocksMeta   map[string]BlockMetaFilter
	entries      map[string]EntryFilter
	dataSlices   []DataSlice
	fromSlot     *uint64
}

// NewRequestBuilder returns an empty builder.
func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{
		accounts:     make(map[string]AccountFilter),
		transactions: make(map[string]TransactionFilter),
		slots:        make(map[string]SlotFilter),
		blocks:       make(map[string]BlockFilter),
		blocksMeta:   make(map[string]BlockMetaFilter),
		entries:      make(map[string]EntryFilter),
	}
}

// AddAccountFilter validates and stores an account filter under name.
func (b *RequestBuilder) AddAccountFilter(name string, f AccountFilter) error {
	if err := validateFilterName(name); err != nil {
		return err
	}
	for _, pk := range f.Account {
		if err := ValidatePubkey(pk); err != nil {
			return &ValidationError{Field: "accounts." + name + ".account", Reason: err.Error()}
		}
	}
	for _, pk := range f.Owner {
		if err := ValidatePubkey(pk); err != nil {
			return &ValidationError{Field: "accounts." + name + ".owner", Reason: err.Error()}
		}
	}
	for i, df := range f.Filters {
		if err := validateDataFilter(df); err != nil {
			return &ValidationError{
				Field:  fmt.Sprintf("accounts.%s.filters[%d]", name, i),
				Reason: err.Error(),
			}
		}
	}
	b.accounts[name] = f
	return nil
}

// AddTransactionFilter validates and stores a transaction filter under name.
func (b *RequestBuilder) AddTransactionFilter(name string, f TransactionFilter) error {
	if err := validateFilterName(name); err != nil {
		return err
	}
	for _, list := range [][]string{f.AccountInclude, f.AccountExclude, f.AccountRequired} {
		for _, pk := range list {
			if err := ValidatePubkey(pk); err != nil {
				return &ValidationError{Field: "transactions." + name, Reason: err.Error()}
			}
		}
	}
	b.transactions[name] = f
	return nil
}

// AddSlotFilter stores a slot filter under name.
func (b *RequestBuilder) AddSlotFilter(name string, f SlotFilter) error {
	if err := validateFilterName(name); err != nil {
		return err
	}
	b.slots[name] = f
	return nil
}

// AddBlockFilter validates and stores a block filter under name.
func (b *RequestBuilder) AddBlockFilter(name string, f BlockFilter) error {
	if err := validateFilterName(name); err != nil {
		return err
	}
	for _, pk := range f.AccountInclude {
		if err := ValidatePubkey(pk); err != nil {
			return &ValidationError{Field: "blocks." + name + ".accountInclude", Reason: err.Error()}
		}
	}
	b.blocks[name] = f
	return nil
}

// AddBlockMetaFilter stores a block metadata filter under name.
func (b *RequestBuilder) AddBlockMetaFilter(name string, f BlockMetaFilter) error {
	if err := validateFilterName(name); err != nil {
		return err
	}
	b.blocksMeta[name] = f
	return nil
}

// AddEntryFilter stores an entry filter under name.
func (b *RequestBuilder) AddEntryFilter(name string, f EntryFilter) error {
	if err := validateFilterName(name); err != nil {
		return err
	}
	b.entries[name] = f
	return nil
}

// RemoveAccountFilter deletes the named account filter if present.
func (b *RequestBuilder) RemoveAccountFilter(name string) { delete(b.accounts, name) }

// RemoveTransactionFilter deletes the named transaction filter if present.
func (b *RequestBuilder) RemoveTransactionFilter(name string) { delete(b.transactions, name) }

// RemoveSlotFilter deletes the named slot filter if present.
func (b *RequestBuilder) RemoveSlotFilter(name string) { delete(b.slots, name) }

// RemoveBlockFilter deletes the named block filter if present.
func (b *RequestBuilder) RemoveBlockFilter(name string) { delete(b.blocks, name) }

// RemoveBlockMetaFilter deletes the named block metadata filter if present.
func (b *RequestBuilder) RemoveBlockMetaFilter(name string) { delete(b.blocksMeta, name) }

// RemoveEntryFilter deletes the named entry filter if present.
func (b *RequestBuilder) RemoveEntryFilter(name string) { delete(b.entries, name) }

// SetDataSlices replaces the account data slice list.
func (b *RequestBuilder) SetDataSlices(slices ...DataSlice) {
	b.dataSlices = append([]DataSlice(nil), slices...)
}

// SetFromSlot asks the server to replay from the given slot. Passing nil
// clears the setting.
func (b *RequestBuilder) SetFromSlot(slot *uint64) {
	if slot == nil {
		b.fromSlot = nil
		return
	}
	v := *slot
	b.fromSlot = &v
}

// Empty reports whether no filter of any kind has been added.
func (b *RequestBuilder) Empty() bool {
	return len(b.accounts) == 0 && len(b.transactions) == 0 && len(b.slots) == 0 &&
		len(b.blocks) == 0 && len(b.blocksMeta) == 0 && len(b.entries) == 0
}

// Build returns an immutable request snapshot at the given commitment level,
// or ErrEmptyRequest when no filter is present. Later builder mutations do
// not affect the returned request.
func (b *RequestBuilder) Build(commitment CommitmentLevel) (SubscribeRequest, error) {
	if b.Empty() {
		return SubscribeRequest{}, ErrEmptyRequest
	}
	req := SubscribeRequest{
		Accounts:     copyMap(b.accounts),
		Transactions: copyMap(b.transactions),
		Slots:        copyMap(b.slots),
		Blocks:       copyMap(b.blocks),
		BlocksMeta:   copyMap(b.blocksMeta),
		Entries:      copyMap(b.entries),
		Commitment:   commitment,
	}
	if len(b.dataSlices) > 0 {
		req.AccountsDataSlices = append([]DataSlice(nil), b.dataSlices...)
	}
	if b.fromSlot != nil {
		v := *b.fromSlot
		req.FromSlot = &v
	}
	return req, nil
}

// clone returns an independent copy of the builder. Mutating the copy leaves
// the original untouched.
func (b *RequestBuilder) clone() *RequestBuilder {
	c := &RequestBuilder{
		accounts:     make(map[string]AccountFilter, len(b.accounts)),
		transactions: make(map[string]TransactionFilter, len(b.transactions)),
		slots:        make(map[string]SlotFilter, len(b.slots)),
		blocks:       make(map[string]BlockFilter, len(b.blocks)),
		blocksMeta:   make(map[string]BlockMetaFilter, len(b.blocksMeta)),
		entries:      make(map[string]EntryFilter, len(b.entries)),
	}
	for k, v := range b.accounts {
		c.accounts[k] = v
	}
	for k, v := range b.transactions {
		c.transactions[k] = v
	}
	for k, v := range b.slots {
		c.slots[k] = v
	}
	for k, v := range b.blocks {
		c.blocks[k] = v
	}
	for k, v := range b.blocksMeta {
		c.blocksMeta[k] = v
	}
	for k, v := range b.entries {
		c.entries[k] = v
	}
	if len(b.dataSlices) > 0 {
		c.dataSlices = append([]DataSlice(nil), b.dataSlices...)
	}
	if b.fromSlot != nil {
		v := *b.fromSlot
		c.fromSlot = &v
	}
	return c
}

func copyMap[V any](src map[string]V) map[string]V {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func validateFilterName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return nil
}

func validateDataFilter(f AccountDataFilter) error {
	set := 0
	if f.Memcmp != nil {
		set++
		if _, err := base58.Decode(f.Memcmp.Base58); err != nil {
			return fmt.Errorf("memcmp data not base58: %w", err)
		}
	}
	if f.DataSize != nil {
		set++
	}
	if f.TokenAccountState != nil {
		set++
	}
	if f.Lamports != nil {
		set++
		switch f.Lamports.Cmp {
		case CmpEq, CmpNe, CmpLt, CmpGt:
		default:
			return fmt.Errorf("unknown lamports comparison %q", f.Lamports.Cmp)
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one predicate must be set, got %d", set)
	}
	return nil
}
