package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	DefaultRetention = 30 * 24 * time.Hour
	minRetention     = time.Hour

	statusCompleted = "completed"
)

// PurgeCompleted deletes completed orders that finished before the retention
// window. Active orders are never touched.
func PurgeCompleted(ctx context.Context, config *apt.Config, logger apt.Logger) error {
	retention, err := parseRetention(config.GetStringOrDef("purge.retention", ""))
	if err != nil {
		return err
	}
	cutoff := time.Now().UTC().Add(-retention)
	logger.Info("Purging completed orders", "before", cutoff.Format(time.RFC3339))

	switch backend := config.GetStringOrDef("db.backend", backendMongo); backend {
	case backendMongo:
		db, disconnect, err := openMongo(ctx, config, logger)
		if err != nil {
			return err
		}
		defer disconnect()

		res, err := db.Collection(ordersCollection).DeleteMany(ctx, completedBefore(cutoff))
		if err != nil {
			return fmt.Errorf("delete completed orders: %w", err)
		}
		logger.Info("Completed orders deleted", "count", res.DeletedCount)
		return nil

	case backendPostgres:
		pool, err := openPostgres(ctx, config, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Completed orders are never written again, so updated_at is the completion time.
		tag, err := pool.Exec(ctx, `DELETE FROM orders WHERE status = $1 AND updated_at < $2`, statusCompleted, cutoff)
		if err != nil {
			return fmt.Errorf("delete completed orders: %w", err)
		}
		logger.Info("Completed orders deleted", "count", tag.RowsAffected())
		return nil

	default:
		return fmt.Errorf("unknown db.backend %q", backend)
	}
}

func completedBefore(cutoff time.Time) bson.M {
	return bson.M{
		"status":       statusCompleted,
		"completed_at": bson.M{"$lt": cutoff},
	}
}

func parseRetention(raw string) (time.Duration, error) {
	if raw == "" {
		return DefaultRetention, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid purge.retention %q: %w", raw, err)
	}
	if d < minRetention {
		return 0, fmt.Errorf("purge.retention %s is below the %s minimum", d, minRetention)
	}
	return d, nil
}
