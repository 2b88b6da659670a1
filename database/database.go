package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"checkout-service/config"
)

var DB *sql.DB

func InitDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return err
	}

	DB = db
	return ensureSchema()
}

func CloseDB() {
	if DB != nil {
		_ = DB.Close()
	}
}

// ensureSchema creates the tables and the unique indexes the concurrency
// model depends on: coupon codes, gateway payment ids, guest sessions.
func ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(191) NOT NULL,
			email VARCHAR(191) NOT NULL UNIQUE,
			phone VARCHAR(20) NOT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS guest_identities (
			id INT AUTO_INCREMENT PRIMARY KEY,
			session_id VARCHAR(64) NOT NULL UNIQUE,
			name VARCHAR(191) NOT NULL DEFAULT '',
			email VARCHAR(191) NOT NULL DEFAULT '',
			phone VARCHAR(20) NOT NULL DEFAULT '',
			last_address JSON NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS coupons (
			id INT AUTO_INCREMENT PRIMARY KEY,
			code VARCHAR(64) NOT NULL UNIQUE,
			discount_type VARCHAR(16) NOT NULL,
			discount_value DOUBLE NOT NULL,
			min_order_amount DOUBLE NOT NULL DEFAULT 0,
			max_discount DOUBLE NOT NULL DEFAULT 0,
			expiry_date DATETIME NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			usage_limit INT NOT NULL DEFAULT 0,
			used_count INT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id INT AUTO_INCREMENT PRIMARY KEY,
			order_number VARCHAR(64) NOT NULL UNIQUE,
			user_id INT NULL,
			guest_user_id INT NULL,
			shipping_address JSON NOT NULL,
			subtotal DOUBLE NOT NULL,
			discount DOUBLE NOT NULL DEFAULT 0,
			shipping_charge DOUBLE NOT NULL DEFAULT 0,
			total DOUBLE NOT NULL,
			coupon_code VARCHAR(64) NOT NULL DEFAULT '',
			payment_method VARCHAR(16) NOT NULL,
			payment_status VARCHAR(16) NOT NULL,
			order_status VARCHAR(16) NOT NULL,
			gateway_order_id VARCHAR(64) NOT NULL DEFAULT '',
			gateway_payment_id VARCHAR(64) NULL,
			advance_paid DOUBLE NOT NULL DEFAULT 0,
			waybill VARCHAR(64) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE KEY uniq_gateway_payment (gateway_payment_id)
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id INT AUTO_INCREMENT PRIMARY KEY,
			order_id INT NOT NULL,
			product_id VARCHAR(64) NOT NULL,
			name VARCHAR(191) NOT NULL,
			image VARCHAR(255) NOT NULL DEFAULT '',
			size VARCHAR(32) NOT NULL DEFAULT '',
			color VARCHAR(32) NOT NULL DEFAULT '',
			unit_price DOUBLE NOT NULL,
			quantity INT NOT NULL,
			KEY idx_order (order_id)
		)`,
		`CREATE TABLE IF NOT EXISTS otp_records (
			id INT AUTO_INCREMENT PRIMARY KEY,
			identifier VARCHAR(191) NOT NULL,
			channel VARCHAR(16) NOT NULL,
			otp_hash VARCHAR(64) NOT NULL,
			expires_at DATETIME NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			verified BOOLEAN NOT NULL DEFAULT FALSE,
			verified_at DATETIME NULL,
			last_sent_at DATETIME NOT NULL,
			KEY idx_identifier_channel (identifier, channel)
		)`,
		`CREATE TABLE IF NOT EXISTS gateway_orders (
			id INT AUTO_INCREMENT PRIMARY KEY,
			gateway_order_id VARCHAR(64) NOT NULL,
			purpose VARCHAR(20) NOT NULL,
			amount_paise BIGINT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_gateway_order (gateway_order_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := DB.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
