package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/pkg/logger"
)

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database")
	return db, nil
}

func RunMigrations(db *sqlx.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS posts (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			title VARCHAR(255) NOT NULL DEFAULT '',
			caption TEXT NOT NULL,
			media_url VARCHAR(1024) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS publish_targets (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			post_id BIGINT NOT NULL,
			platform VARCHAR(32) NOT NULL,
			scheduled_at DATETIME NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			attempt_count INT NOT NULL DEFAULT 0,
			last_error TEXT,
			platform_post_id VARCHAR(128),
			published_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_targets_status_scheduled (status, scheduled_at),
			INDEX idx_targets_post (post_id),
			CONSTRAINT fk_targets_post FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS approval_requests (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			target_id BIGINT NOT NULL,
			contact_phone VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			response_message TEXT,
			responded_at DATETIME,
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_approvals_contact_status (contact_phone, status),
			INDEX idx_approvals_target (target_id),
			CONSTRAINT fk_approvals_target FOREIGN KEY (target_id) REFERENCES publish_targets(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,
	}

	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed")

	return nil
}

func SeedTestData(db *sqlx.DB) error {
	var count int

	err := db.Get(&count, "SELECT COUNT(*) FROM posts")
	if err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d posts, skipping seed", count)
		return nil
	}

	seedPosts := []struct {
		title     string
		caption   string
		mediaURL  string
		platforms []string
	}{
		{"Lançamento de verão", "Nova coleção chegando! ☀️ #verao", "https://cdn.example.com/art/summer.png", []string{"instagram", "facebook"}},
		{"Promoção relâmpago", "20% off em todos os produtos até meia-noite!", "https://cdn.example.com/art/sale.png", []string{"facebook"}},
		{"Bastidores", "Um dia no nosso estúdio 🎬", "https://cdn.example.com/art/studio.mp4", []string{"tiktok"}},
		{"Novidade da semana", "Confira o que preparamos para você.", "https://cdn.example.com/art/news.png", []string{"whatsapp"}},
	}

	for _, p := range seedPosts {
		result, err := db.Exec(
			"INSERT INTO posts (title, caption, media_url) VALUES (?, ?, ?)",
			p.title, p.caption, p.mediaURL,
		)
		if err != nil {
			return fmt.Errorf("failed to seed test data: %w", err)
		}

		postID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get seeded post id: %w", err)
		}

		for _, platform := range p.platforms {
			status := "pending"
			if platform == "whatsapp" {
				status = "awaiting_approval"
			}
			_, err := db.Exec(
				"INSERT INTO publish_targets (post_id, platform, scheduled_at, status) VALUES (?, ?, DATE_ADD(NOW(), INTERVAL 5 MINUTE), ?)",
				postID, platform, status,
			)
			if err != nil {
				return fmt.Errorf("failed to seed test data: %w", err)
			}
		}
	}

	logger.Infof("Seeded %d test posts", len(seedPosts))
	return nil
}
