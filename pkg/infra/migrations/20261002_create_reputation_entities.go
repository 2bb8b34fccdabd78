package migrations

import (
	"github.com/eventwish/fraudguard/pkg/infra/database"
	"gorm.io/gorm"
)

func init() {
	database.RegisterMigration(database.Migration{
		ID:   "20261002_create_reputation_entities",
		Name: "Create reputation_entities table",

		Up: func(db *gorm.DB) error {
			if err := db.Exec(`
				CREATE TABLE IF NOT EXISTS reputation_entities (
					entity_type      TEXT NOT NULL CHECK (entity_type IN ('user', 'device', 'ip')),
					entity_id        TEXT NOT NULL,
					activity_count   BIGINT NOT NULL DEFAULT 0,
					fraud_count      BIGINT NOT NULL DEFAULT 0,
					reputation_score DOUBLE PRECISION NOT NULL,
					last_fingerprint TEXT,
					last_seen        TIMESTAMPTZ NOT NULL,
					created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (entity_type, entity_id)
				);
			`).Error; err != nil {
				return err
			}

			return db.Exec(`
				CREATE INDEX IF NOT EXISTS idx_reputation_entities_score
				ON reputation_entities (entity_type, reputation_score)
				WHERE activity_count > 0;
			`).Error
		},

		Down: func(db *gorm.DB) error {
			return db.Exec(`DROP TABLE IF EXISTS reputation_entities`).Error
		},
	})
}
