package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"fanzone-tickets/internal/status"
	"fanzone-tickets/internal/store"
	"fanzone-tickets/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/samber/lo"
)

// Tier is a membership level and its monthly price in minor units.
type Tier struct {
	Code         string
	MonthlyMinor int64
}

var intervalMonths = map[string]int{
	"monthly":   1,
	"quarterly": 3,
	"yearly":    12,
}

type MembershipConfig struct {
	TierPrices           map[string]int64
	BonusCoinsPerMonth   int64
	AmountToleranceMinor int64
}

type MembershipService struct {
	store  *store.Store
	wallet *WalletService

	// tiers is ordered from the most to the least expensive.
	tiers     []Tier
	bonus     int64
	tolerance int64

	now    func() time.Time
	logger *slog.Logger
}

func NewMembershipService(st *store.Store, wallet *WalletService, cfg MembershipConfig, logger *slog.Logger) *MembershipService {
	if logger == nil {
		logger = slog.Default()
	}

	tiers := lo.MapToSlice(cfg.TierPrices, func(code string, price int64) Tier {
		return Tier{Code: code, MonthlyMinor: price}
	})
	sort.Slice(tiers, func(i, j int) bool {
		if tiers[i].MonthlyMinor == tiers[j].MonthlyMinor {
			return tiers[i].Code < tiers[j].Code
		}
		return tiers[i].MonthlyMinor > tiers[j].MonthlyMinor
	})

	return &MembershipService{
		store:     st,
		wallet:    wallet,
		tiers:     tiers,
		bonus:     cfg.BonusCoinsPerMonth,
		tolerance: cfg.AmountToleranceMinor,
		now:       time.Now,
		logger:    logger,
	}
}

// Quote returns the price of plan for interval.
func (s *MembershipService) Quote(plan, interval string) (int64, int, error) {
	tier, ok := s.tier(plan)
	if !ok {
		return 0, 0, status.ErrUnknownTierPlan
	}
	months, ok := intervalMonths[interval]
	if !ok {
		return 0, 0, fmt.Errorf("membership: unknown interval %q: %w", interval, status.ErrInvalidRequest)
	}
	return tier.MonthlyMinor * int64(months), months, nil
}

// Resolve maps a paid amount to the tier and number of months it buys. A
// payment that covers the requested plan gets it; an underfunded one degrades
// to the first cheaper tier whose monthly price it covers, for as many whole
// months as it pays for.
func (s *MembershipService) Resolve(plan, interval string, paidMinor int64) (Tier, int, error) {
	months, ok := intervalMonths[interval]
	if !ok {
		months = 1
	}

	start := lo.IndexOf(lo.Map(s.tiers, func(t Tier, _ int) string { return t.Code }), plan)
	if start < 0 {
		return Tier{}, 0, status.ErrUnknownTierPlan
	}

	requested := s.tiers[start]
	if paidMinor >= requested.MonthlyMinor*int64(months)-s.tolerance {
		return requested, months, nil
	}

	for _, t := range s.tiers[start:] {
		if t.MonthlyMinor > 0 && t.MonthlyMinor <= paidMinor {
			return t, int(paidMinor / t.MonthlyMinor), nil
		}
	}
	return Tier{}, 0, fmt.Errorf("membership: %d below the cheapest tier: %w", paidMinor, status.ErrAmountMismatch)
}

// Activate applies a paid membership intent and then grants its bonus coins.
// The bonus commits on its own, so a failed credit keeps the membership and
// a retry only repeats the credit.
func (s *MembershipService) Activate(ctx context.Context, intent *models.PaymentIntent, paidMinor int64) (*models.Membership, error) {
	var m *models.Membership
	err := s.store.RunInTx(ctx, func(tx dbx.Builder) error {
		var err error
		m, err = s.ActivateTx(ctx, tx, intent, paidMinor)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.GrantBonus(ctx, intent, paidMinor); err != nil {
		return m, fmt.Errorf("membership bonus: %w", err)
	}
	return m, nil
}

// GrantBonus credits the bonus coins for the months bought by intent. It is
// a no-op when the bonus was already credited.
func (s *MembershipService) GrantBonus(ctx context.Context, intent *models.PaymentIntent, paidMinor int64) error {
	meta, err := intent.DecodeMetadata()
	if err != nil {
		return fmt.Errorf("membership: decode metadata: %w", err)
	}
	_, months, err := s.Resolve(meta.Plan, meta.Interval, paidMinor)
	if err != nil {
		return err
	}

	bonus := s.bonus * int64(months)
	if bonus <= 0 {
		return nil
	}
	_, err = s.wallet.Credit(ctx, intent.UserID, bonus, models.ReasonMembershipBonus, intent.ProviderRef)
	if errors.Is(err, status.ErrAlreadyApplied) {
		return nil
	}
	return err
}

// ActivateTx applies a paid membership intent. Replaying the same intent
// returns the stored membership without extending it again.
func (s *MembershipService) ActivateTx(ctx context.Context, tx dbx.Builder, intent *models.PaymentIntent, paidMinor int64) (*models.Membership, error) {
	if intent.Context != models.PaymentContextMembership {
		return nil, status.ErrIntentContextInvalid
	}
	meta, err := intent.DecodeMetadata()
	if err != nil {
		return nil, fmt.Errorf("membership: decode metadata: %w", err)
	}

	current, err := store.FindMembership(ctx, tx, intent.UserID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.LastPaymentRef == intent.ProviderRef {
		return current, nil
	}

	tier, months, err := s.Resolve(meta.Plan, meta.Interval, paidMinor)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	base := now
	started := now
	total := 0
	if current != nil {
		total = current.TotalMonthsPurchased
		if current.Status == models.MembershipActive && current.ExpiresAt.Time().After(now) {
			base = current.ExpiresAt.Time()
			started = current.StartedAt.Time()
		}
	}

	m := &models.Membership{
		UserID:               intent.UserID,
		TierCode:             tier.Code,
		Status:               models.MembershipActive,
		TotalMonthsPurchased: total + months,
		LastPaymentRef:       intent.ProviderRef,
	}
	if m.StartedAt, err = types.ParseDateTime(started); err != nil {
		return nil, err
	}
	if m.ExpiresAt, err = types.ParseDateTime(base.AddDate(0, months, 0)); err != nil {
		return nil, err
	}

	if err := store.UpsertMembership(ctx, tx, m); err != nil {
		return nil, err
	}

	s.logger.Info("membership activated",
		"user_id", intent.UserID, "tier", tier.Code, "months", months, "expires_at", m.ExpiresAt.String(), "reference", intent.ProviderRef)
	return m, nil
}

// Get returns the membership of userID with its status evaluated at now.
func (s *MembershipService) Get(ctx context.Context, userID string) (*models.Membership, error) {
	m, err := store.FindMembership(ctx, s.store.DB(), userID)
	if err != nil || m == nil {
		return m, err
	}
	if m.Status == models.MembershipActive && !m.ExpiresAt.Time().After(s.now()) {
		m.Status = models.MembershipExpired
	}
	return m, nil
}

func (s *MembershipService) tier(code string) (Tier, bool) {
	return lo.Find(s.tiers, func(t Tier) bool { return t.Code == code })
}
