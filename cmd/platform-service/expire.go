package main

import (
	"context"
	"fmt"
	"time"

	"upets/platform-service/internal/metrics"
	"upets/platform-service/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func expireCmd() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire every QR code whose validity has ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.store == nil {
				return errNoDatabase
			}
			if batchSize <= 0 {
				batchSize = a.cfg.ExpireBatchSize
			}
			total, err := expireAll(ctx, a.store, batchSize, a.metrics)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d qr codes\n", total)
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per pass (defaults to EXPIRE_BATCH_SIZE)")
	return cmd
}

// expireAll runs passes until one comes back short.
func expireAll(ctx context.Context, st store.QRStore, batchSize int, m *metrics.Metrics) (int, error) {
	total := 0
	for {
		n, err := st.ExpireDue(ctx, time.Now().UTC(), batchSize)
		total += n
		if n > 0 {
			m.ExpiredCodes.Add(float64(n))
		}
		if err != nil {
			return total, err
		}
		if n < batchSize {
			return total, nil
		}
	}
}

func runExpirer(ctx context.Context, st store.QRStore, interval time.Duration, batchSize int, log *zap.Logger, m *metrics.Metrics) {
	if interval <= 0 {
		log.Info("expiry sweep disabled")
		return
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := expireAll(ctx, st, batchSize, m)
			if err != nil {
				log.Warn("expiry sweep failed", zap.Int("expired", n), zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("expired qr codes", zap.Int("count", n))
			}
		}
	}
}
