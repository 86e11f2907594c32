// Package settlementtest provides in-memory fakes of the settlement contracts.
package settlementtest

import (
	"context"
	"sync"

	"github.com/provgate/gateway/internal/domain"
)

// MemoryRepository is an in-memory settlement Repository. Rows are copied on
// the way in and out so callers cannot mutate stored state.
type MemoryRepository struct {
	mu      sync.Mutex
	players map[string]*domain.Player
	tokens  map[tokenKey]string
	rows    []*domain.Transaction
	events  []domain.OutboxDraft

	// Fail makes the named write method return the error once.
	Fail map[string]error
}

type tokenKey struct{ playID, provider string }

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		players: make(map[string]*domain.Player),
		tokens:  make(map[tokenKey]string),
		Fail:    make(map[string]error),
	}
}

func (r *MemoryRepository) takeFailure(method string) error {
	if err, ok := r.Fail[method]; ok {
		delete(r.Fail, method)
		return err
	}
	return nil
}

// AddPlayer seeds a player. A Token is stored for the player's Provider.
func (r *MemoryRepository) AddPlayer(p domain.Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Status == "" {
		p.Status = domain.PlayerActive
	}
	if p.Token != "" {
		r.tokens[tokenKey{p.PlayID, p.Provider}] = p.Token
	}
	p.Token = ""
	r.players[p.PlayID] = &p
}

func (r *MemoryRepository) GetPlayerByID(_ context.Context, playID string) (*domain.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[playID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetPlayerByToken(_ context.Context, token string) (*domain.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token == "" {
		return nil, nil
	}
	for k, t := range r.tokens {
		if t != token {
			continue
		}
		p, ok := r.players[k.playID]
		if !ok {
			return nil, nil
		}
		cp := *p
		cp.Provider = k.provider
		cp.Token = token
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryRepository) CreatePlayer(_ context.Context, player *domain.Player) (*domain.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure("CreatePlayer"); err != nil {
		return nil, err
	}
	if player.Token != "" {
		r.tokens[tokenKey{player.PlayID, player.Provider}] = player.Token
	}
	if p, ok := r.players[player.PlayID]; ok {
		p.Username = player.Username
		cp := *p
		cp.Token = player.Token
		return &cp, nil
	}
	cp := *player
	cp.Token = ""
	r.players[cp.PlayID] = &cp
	r.events = append(r.events, domain.NewPlayerProvisionedEvent(&cp))
	out := cp
	out.Token = player.Token
	return &out, nil
}

func (r *MemoryRepository) active(provider, ref string) *domain.Transaction {
	for _, t := range r.rows {
		if t.Provider == provider && t.Ref == ref && t.Status == domain.RowActive {
			return t
		}
	}
	return nil
}

func (r *MemoryRepository) byTrxID(trxID string) *domain.Transaction {
	for _, t := range r.rows {
		if t.TrxID == trxID {
			return t
		}
	}
	return nil
}

func (r *MemoryRepository) GetTransactionByID(_ context.Context, provider, ref string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.active(provider, ref); t != nil {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryRepository) CreateWagerTransaction(_ context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure("CreateWagerTransaction"); err != nil {
		return err
	}
	if r.active(tx.Provider, tx.Ref) != nil || r.byTrxID(tx.TrxID) != nil {
		return domain.ErrTransactionAlreadyExists(tx.Ref)
	}
	cp := *tx
	r.rows = append(r.rows, &cp)
	r.events = append(r.events, domain.NewTransactionEvent(domain.EventBetPlaced, &cp))
	return nil
}

func (r *MemoryRepository) IncreaseWagerTransaction(_ context.Context, params domain.IncreaseParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure("IncreaseWagerTransaction"); err != nil {
		return err
	}
	prev := r.byTrxID(params.Previous.TrxID)
	if prev == nil || prev.Status != domain.RowActive {
		return domain.ErrTransactionNotFound(params.Previous.Ref)
	}
	if r.byTrxID(params.Next.TrxID) != nil {
		return domain.ErrTransactionAlreadyExists(params.Next.Ref)
	}
	prev.Status = domain.RowSuperseded
	cp := *params.Next
	r.rows = append(r.rows, &cp)
	r.events = append(r.events, domain.NewTransactionEvent(domain.EventBetIncreased, &cp))
	return nil
}

func (r *MemoryRepository) CreateSettleTransaction(_ context.Context, params domain.SettleParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure("CreateSettleTransaction"); err != nil {
		return err
	}
	t := r.byTrxID(params.TrxID)
	if t == nil || t.Status != domain.RowActive {
		return domain.ErrTransactionNotFound(params.TrxID)
	}
	t.PayoutAmount = params.PayoutAmount
	st := params.SettleTime
	t.SettleTime = &st
	t.Flag = params.Flag
	if params.PayoutTrxID != "" {
		id := params.PayoutTrxID
		t.PayoutTrxID = &id
	}
	if params.Event == domain.EventBetSettled {
		t.SettleCount++
	}
	r.events = append(r.events, domain.NewSettleEvent(params))
	return nil
}

func (r *MemoryRepository) MarkRollback(_ context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure("MarkRollback"); err != nil {
		return err
	}
	t := r.byTrxID(tx.TrxID)
	if t == nil || t.Flag != domain.FlagSettled {
		return domain.ErrTransactionNotFound(tx.Ref)
	}
	t.Flag = domain.FlagRollback
	t.RollbackCount++
	cp := *t
	r.events = append(r.events, domain.NewTransactionEvent(domain.EventBetRolledBack, &cp))
	return nil
}

func (r *MemoryRepository) GetRollbackCount(_ context.Context, trxID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.byTrxID(trxID); t != nil {
		return t.RollbackCount, nil
	}
	return 0, nil
}

func (r *MemoryRepository) GetSettleCount(_ context.Context, trxID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.byTrxID(trxID); t != nil {
		return t.SettleCount, nil
	}
	return 0, nil
}

func (r *MemoryRepository) GetWagerCount(_ context.Context, provider, ref string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.rows {
		if t.Provider == provider && t.Ref == ref {
			n++
		}
	}
	return n, nil
}

// Rows returns copies of every stored row, superseded included, in insert order.
func (r *MemoryRepository) Rows() []domain.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Transaction, 0, len(r.rows))
	for _, t := range r.rows {
		out = append(out, *t)
	}
	return out
}

// Events returns the outbox events written so far.
func (r *MemoryRepository) Events() []domain.OutboxDraft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.OutboxDraft(nil), r.events...)
}
