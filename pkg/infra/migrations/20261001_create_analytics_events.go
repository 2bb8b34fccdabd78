package migrations

import (
	"github.com/eventwish/fraudguard/pkg/infra/database"
	"gorm.io/gorm"
)

func init() {
	database.RegisterMigration(database.Migration{
		ID:   "20261001_create_analytics_events",
		Name: "Create analytics_events table",

		Up: func(db *gorm.DB) error {
			if err := db.Exec(`
				CREATE TABLE IF NOT EXISTS analytics_events (
					id                 UUID PRIMARY KEY,
					ad_id              TEXT NOT NULL,
					event_type         TEXT NOT NULL CHECK (event_type IN ('impression', 'click', 'conversion')),
					user_id            TEXT,
					device_id          TEXT,
					ip                 TEXT,
					timestamp          TIMESTAMPTZ NOT NULL,
					revenue            NUMERIC(20,6) NOT NULL DEFAULT 0,
					device_fingerprint TEXT,
					ip_fingerprint     TEXT,
					fraud_score        INTEGER NOT NULL DEFAULT 0,
					is_fraudulent      BOOLEAN NOT NULL DEFAULT FALSE,
					reasons            TEXT[],
					idempotency_key    TEXT UNIQUE,
					context            JSONB,
					metadata           JSONB,
					created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`).Error; err != nil {
				return err
			}

			for _, stmt := range []string{
				`CREATE INDEX IF NOT EXISTS idx_analytics_events_timestamp ON analytics_events (timestamp)`,
				`CREATE INDEX IF NOT EXISTS idx_analytics_events_ad_id ON analytics_events (ad_id)`,
				`CREATE INDEX IF NOT EXISTS idx_analytics_events_user_id ON analytics_events (user_id)`,
				`CREATE INDEX IF NOT EXISTS idx_analytics_events_device_id ON analytics_events (device_id)`,
				`CREATE INDEX IF NOT EXISTS idx_analytics_events_ip ON analytics_events (ip)`,
				`CREATE INDEX IF NOT EXISTS idx_analytics_events_fraud ON analytics_events (timestamp) WHERE is_fraudulent`,
			} {
				if err := db.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		},

		Down: func(db *gorm.DB) error {
			return db.Exec(`DROP TABLE IF EXISTS analytics_events`).Error
		},
	})
}
