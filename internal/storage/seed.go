package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
)

// Seed runs first-launch setup once: it installs the disabled check rule for
// selfPackage and writes preference defaults. Later calls do nothing.
func Seed(ctx context.Context, store domain.Store, selfPackage string, log *logger.Logger) error {
	first, err := store.FirstLaunch(ctx)
	if err != nil {
		return fmt.Errorf("reading first launch flag: %w", err)
	}
	if !first {
		return nil
	}

	title, err := store.NotificationTitle(ctx)
	if err != nil {
		return err
	}

	check := domain.Rule{
		PackageName: selfPackage,
		AppLabel:    domain.SelfAppLabel,
		ChannelID:   domain.CheckChannelID,
		ChannelName: domain.CheckChannelName,
		SrhTitle:    title,
		VoiceMsg:    domain.DefaultCheckVoiceMessage,
		Enabled:     false,
	}
	if _, err := store.InsertRule(ctx, check); err != nil && !errors.Is(err, domain.ErrDuplicateRule) {
		return fmt.Errorf("inserting check rule: %w", err)
	}

	if err := store.SetSortOrder(ctx, domain.SortNewest); err != nil {
		return err
	}
	if err := store.SetNotificationTitle(ctx, title); err != nil {
		return err
	}
	if err := store.MarkLaunched(ctx); err != nil {
		return err
	}

	log.Info("first launch: seeded check rule for %s/%s", selfPackage, domain.CheckChannelID)
	return nil
}
